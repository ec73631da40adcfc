package cmd

import (
	"fmt"
	"os"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/database"
	"github.com/samogod/mentorloop/pkg/elastic"
	"github.com/samogod/mentorloop/pkg/memory"
	"github.com/samogod/mentorloop/pkg/metrics"
	"github.com/samogod/mentorloop/pkg/orchestrator"
	"github.com/samogod/mentorloop/pkg/results"
	"github.com/samogod/mentorloop/pkg/session"
	"github.com/samogod/mentorloop/pkg/student"
	"github.com/samogod/mentorloop/pkg/teacher"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string
	verbose    bool
	silent     bool
)

var Verbose bool

var rootCmd = &cobra.Command{
	Use:   "mentorloop",
	Short: "teacher-student training loop for small language models",
	Long: `mentorloop trains a small local language model with a large hosted one as its teacher.
The teacher writes questions and grades answers; wrong answers become fine-tuning steps.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		Verbose = verbose
		if verbose {
			setDebugLogFunctions()
		}
		return config.LoadEnvFile(envFile)
	},
}

func Execute() {
	hasSilentFlag := false
	for _, arg := range os.Args {
		if arg == "--silent" || arg == "-silent" {
			hasSilentFlag = true
		}
	}
	for i, arg := range os.Args {
		if arg == "-silent" {
			os.Args[i] = "--silent"
		}
	}

	if !hasSilentFlag {
		printBanner()
	}

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func DebugLog(format string, args ...interface{}) {
	if Verbose {
		fmt.Printf("[DBG] "+format+"\n", args...)
	}
}

func setDebugLogFunctions() {
	config.DebugLog = DebugLog
	orchestrator.DebugLog = DebugLog
	session.DebugLog = DebugLog
	database.DebugLog = DebugLog
	elastic.DebugLog = DebugLog
	memory.DebugLog = DebugLog
	metrics.DebugLog = DebugLog
	results.DebugLog = DebugLog
	teacher.DebugLog = DebugLog
	student.DebugLog = DebugLog
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "configs/api_keys.env", "file with API keys to load into the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "silent mode - no banner")

	rootCmd.AddCommand(versionCmd)
}

func printBanner() {
	banner := color.CyanString(`
┌┬┐┌─┐┌┐┌┌┬┐┌─┐┬─┐┬  ┌─┐┌─┐┌─┐
│││├┤ │││ │ │ │├┬┘│  │ ││ │├─┘
┴ ┴└─┘┘└┘ ┴ └─┘┴└─┴─┘└─┘└─┘┴  `)
	info := color.HiBlackString("teacher-student training loop for small language models")
	fmt.Println(banner)
	fmt.Println(info)
	fmt.Println()
}
