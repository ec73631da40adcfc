package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samogod/mentorloop/pkg/orchestrator"
	"github.com/samogod/mentorloop/pkg/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var trainCycles int

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run a full training session",
	Long: `Run baseline evaluation, training cycles until a stop condition holds, and a final evaluation.
The first Ctrl+C stops after the current cycle; a second one aborts.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runTrain())
	},
}

func init() {
	trainCmd.Flags().IntVar(&trainCycles, "cycles", 0, "maximum number of cycles (default: training.max_cycles)")
	rootCmd.AddCommand(trainCmd)
}

func runTrain() int {
	orch, err := orchestrator.NewOrchestrator(configFile)
	if err != nil {
		color.Red("Failed to initialize orchestrator: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopOnSignal(orch, cancel)

	defer func() {
		finalizeCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer done()
		if err := orch.Finalize(finalizeCtx); err != nil {
			color.Yellow("Cleanup finished with errors: %v", err)
		}
	}()

	if err := orch.Initialize(ctx); err != nil {
		color.Red("Initialization failed: %v", err)
		return 1
	}

	result, err := orch.RunFullTraining(ctx, trainCycles)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			color.Yellow("Training aborted")
		} else {
			color.Red("Training failed: %v", err)
		}
		if result != nil {
			printTrainingSummary(result)
		}
		return 1
	}

	printTrainingSummary(result)
	return 0
}

func stopOnSignal(orch *orchestrator.Orchestrator, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		color.Yellow("\nStopping after the current cycle, press Ctrl+C again to abort")
		orch.Stop()
		<-sigCh
		cancel()
		signal.Stop(sigCh)
	}()
}

func printTrainingSummary(result *types.TrainingResult) {
	fmt.Println()
	color.Green("[INF] Session %s: %d cycles, stop reason: %s", result.SessionID, result.CyclesCompleted, stopReasonText(result.StopReason))

	if result.Baseline != nil {
		fmt.Printf(" %-22s %.2f%%\n", "Baseline accuracy", result.Baseline.Accuracy*100)
	}
	if result.Final != nil {
		fmt.Printf(" %-22s %.2f%%\n", "Final accuracy", result.Final.Accuracy*100)
		fmt.Printf(" %-22s %+.2f%%\n", "Improvement", result.Final.Improvement*100)
	}

	if len(result.LearningProgression) == 0 {
		fmt.Println()
		return
	}

	fmt.Println()
	fmt.Printf(" %-7s %-10s %-10s %-13s %-11s %-10s\n", "Cycle", "Questions", "Accuracy", "Improvement", "Efficiency", "Degraded")
	for _, c := range result.LearningProgression {
		fmt.Printf(" %-7d %-10d %-10s %-13s %-11s %-10d\n",
			c.CycleNumber,
			c.QuestionsProcessed,
			percent(c.Metrics.Accuracy),
			percent(c.Metrics.ImprovementRate),
			percent(c.Metrics.LearningEfficiency),
			c.Degraded,
		)
	}
	fmt.Println()
}

func stopReasonText(r types.StopReason) string {
	switch r {
	case types.StopReasonTargetReached:
		return "target accuracy reached"
	case types.StopReasonPlateau:
		return "learning plateau"
	case types.StopReasonLimit:
		return "cycle limit"
	case types.StopReasonRequested:
		return "stopped by user"
	case types.StopReasonError:
		return "error"
	default:
		return "unknown"
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
