package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/orchestrator"
	"github.com/samogod/mentorloop/pkg/results"
	"github.com/samogod/mentorloop/pkg/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	statusJSON   bool
	statusNoInit bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show training state, component readiness and the most recent session",
	Long: `Initialize the training system and report its state, which components are ready,
the configuration in use and the most recent saved session.
With --no-init only configuration and saved sessions are read.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runStatus(cmd))
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusJSON, "json", "j", false, "print status as JSON")
	statusCmd.Flags().BoolVar(&statusNoInit, "no-init", false, "skip connecting to the teacher and loading the student")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command) int {
	orch, err := orchestrator.NewOrchestrator(configFile)
	if err != nil {
		color.Red("Failed to load configuration: %v", err)
		return 1
	}
	defer orch.Finalize(cmd.Context())

	if !statusNoInit {
		if err := orch.Initialize(cmd.Context()); err != nil {
			color.Red("Initialization failed: %v", err)
			return 1
		}
	}

	cfg := orch.GetConfig()
	st := orch.Status()

	recent, err := results.LoadSessions(cfg.Data.OutputPath, 1)
	if err != nil {
		DebugLog("could not read saved sessions: %v", err)
	}
	var last *types.TrainingResult
	if len(recent) > 0 {
		last = &recent[0]
	}

	if statusJSON {
		out := struct {
			orchestrator.Status
			LastSession *types.TrainingResult `json:"last_session,omitempty"`
		}{Status: st, LastSession: last}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			color.Red("Failed to encode status: %v", err)
			return 1
		}
		return 0
	}

	renderStatus(os.Stdout, st, cfg, last)
	return 0
}

func renderStatus(w io.Writer, st orchestrator.Status, cfg *config.Config, last *types.TrainingResult) {
	header := color.New(color.FgCyan)

	header.Fprintf(w, "[INF] Training state (%s)\n", st.Phase)
	fmt.Fprintf(w, " %-22s %t\n", "Active", st.State.Active)
	fmt.Fprintf(w, " %-22s %d\n", "Current cycle", st.State.CurrentCycle)
	fmt.Fprintf(w, " %-22s %d\n", "Questions processed", st.State.TotalQuestionsProcessed)
	fmt.Fprintf(w, " %-22s %d\n", "Improvements", st.State.ImprovementsDetected)
	fmt.Fprintf(w, " %-22s %d/%d (mean %.4f)\n", "Plateau window",
		len(st.State.RecentImprovements), st.State.WindowSize, st.State.WindowMean())
	fmt.Fprintln(w)

	header.Fprintln(w, "[INF] Components")
	names := make([]string, 0, len(st.Components))
	for name := range st.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := "not ready"
		switch {
		case !st.Initialized:
			state = "not initialized"
		case st.Components[name]:
			state = "ready"
		}
		fmt.Fprintf(w, " %-22s %s\n", name, state)
	}
	fmt.Fprintln(w)

	header.Fprintf(w, "[INF] Configuration: %s\n", st.ConfigPath)
	fmt.Fprintf(w, " %-22s %s (%s)\n", "Teacher", cfg.Teacher.Provider, cfg.Teacher.Model)
	fmt.Fprintf(w, " %-22s %s\n", "Student", cfg.Student.ModelName)
	fmt.Fprintf(w, " %-22s %d\n", "Questions per cycle", cfg.Training.QuestionsPerCycle)
	fmt.Fprintf(w, " %-22s %d\n", "Max cycles", cfg.Training.MaxCycles)
	fmt.Fprintf(w, " %-22s %s\n", "Target accuracy", percent(cfg.Training.MinAccuracyThreshold))
	fmt.Fprintf(w, " %-22s %d\n", "Plateau window", cfg.Training.MaxPlateauCycles)
	fmt.Fprintf(w, " %-22s %s\n", "Memory backend", cfg.Memory.Backend)
	fmt.Fprintf(w, " %-22s %t\n", "Database", cfg.Database.Enabled)
	fmt.Fprintf(w, " %-22s %t\n", "Elasticsearch", cfg.Elastic.Enabled)
	fmt.Fprintln(w)

	if last == nil {
		color.New(color.FgYellow).Fprintf(w, "[WARN] No training sessions found in %s\n", cfg.Data.OutputPath)
		return
	}

	header.Fprintf(w, "[INF] Last session: %s\n", last.SessionID)
	fmt.Fprintf(w, " %-22s %s\n", "Started", last.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, " %-22s %d\n", "Cycles", last.CyclesCompleted)
	fmt.Fprintf(w, " %-22s %s\n", "Stop reason", stopReasonText(last.StopReason))
	if last.Final != nil {
		fmt.Fprintf(w, " %-22s %s (%+.2f%%)\n", "Final accuracy", percent(last.Final.Accuracy), last.Final.Improvement*100)
	}
	fmt.Fprintln(w)
}
