package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/samogod/mentorloop/pkg/database"
	"github.com/samogod/mentorloop/pkg/orchestrator"
	"github.com/samogod/mentorloop/pkg/results"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past training sessions",
	Long:  `List past training sessions from the database, or from the JSON result files when the database is disabled`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runHistory(cmd))
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of sessions to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command) int {
	orch, err := orchestrator.NewOrchestrator(configFile)
	if err != nil {
		color.Red("Failed to load configuration: %v", err)
		return 1
	}
	defer orch.Finalize(cmd.Context())

	cfg := orch.GetConfig()
	var records []database.SessionRecord

	if cfg.Database.Enabled {
		db, err := database.New(cmd.Context(), &cfg.Database)
		if err != nil {
			color.Red("Failed to connect to database: %v", err)
			return 1
		}
		defer db.Close()

		records, err = db.QuerySessions(cmd.Context(), historyLimit)
		if err != nil {
			color.Red("Failed to query database: %v", err)
			return 1
		}
	} else {
		sessions, err := results.LoadSessions(cfg.Data.OutputPath, historyLimit)
		if err != nil {
			color.Red("Failed to read sessions from %s: %v", cfg.Data.OutputPath, err)
			return 1
		}
		for i := range sessions {
			records = append(records, database.RecordOf(&sessions[i]))
		}
	}

	if len(records) == 0 {
		color.Yellow("No training sessions found")
		return 0
	}

	color.Green("Found %d sessions", len(records))
	fmt.Println()

	renderHistory(os.Stdout, records)
	return 0
}

func renderHistory(out io.Writer, records []database.SessionRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tCYCLES\tSTOP REASON\tBASELINE\tFINAL\tIMPROVEMENT")
	for _, r := range records {
		reason := r.StopReason
		if r.Interrupted {
			reason += " (interrupted)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%+.1f%%\n",
			shortID(r.SessionID),
			r.StartedAt.Format("2006-01-02 15:04"),
			r.CyclesCompleted,
			reason,
			percent(r.BaselineAccuracy),
			percent(r.FinalAccuracy),
			r.Improvement*100,
		)
	}
	w.Flush()
	fmt.Fprintln(out)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
