package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/samogod/mentorloop/pkg/orchestrator"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure the student on the held-out question set without training",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runEvaluate())
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate() int {
	orch, err := orchestrator.NewOrchestrator(configFile)
	if err != nil {
		color.Red("Failed to initialize orchestrator: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer orch.Finalize(context.WithoutCancel(ctx))

	if err := orch.Initialize(ctx); err != nil {
		color.Red("Initialization failed: %v", err)
		return 1
	}

	snap, err := orch.RunBaselineEvaluation(ctx)
	if err != nil {
		color.Red("Evaluation failed: %v", err)
		return 1
	}

	fmt.Println()
	color.Green("[INF] Evaluated %d questions", snap.QuestionsEvaluated)
	fmt.Printf(" %-16s %s\n", "Accuracy", percent(snap.Accuracy))
	fmt.Printf(" %-16s %.2f\n", "Average score", snap.AverageScore)
	fmt.Println()
	return 0
}
