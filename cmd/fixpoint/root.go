package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fixpoint",
	Short: "Self-healing task scheduling engine",
	Long: `Fixpoint schedules prioritized work across a pool of executors,
decomposes compound tasks into dependency-ordered subtasks, and
watches the system for issues it can remediate on its own.

Core capabilities:
- Decomposes compound tasks into parallelizable subtask graphs
- Dispatches by priority from a single shared queue
- Runs tasks on a fixed pool of recoverable executors
- Monitors executor health and resets failed or stale slots
- Detects code, service, and resource issues and submits fixes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
