package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fixpointd/fixpoint/internal/config"
	"github.com/fixpointd/fixpoint/internal/state"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archived results and open issues",
	Long: `Display recent task results and unresolved issues from the archive.

Shows:
  - The most recent task execution results
  - Detected issues that have not been resolved`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum results to display")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.State.Path == "" {
		fmt.Println("State archive is disabled. Set state.path to enable it.")
		return nil
	}
	if _, err := os.Stat(cfg.State.Path); os.IsNotExist(err) {
		fmt.Println("No archive yet. Run 'fixpoint run' to start the engine.")
		return nil
	}

	db, err := state.Open(cfg.State.Path, cfg.State.KeepResults, cfg.State.KeepIssues)
	if err != nil {
		return fmt.Errorf("opening state archive: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating state archive: %w", err)
	}

	results, err := db.RecentResults(statusLimit)
	if err != nil {
		return fmt.Errorf("listing results: %w", err)
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	bold.Println("Recent results")
	if len(results) == 0 {
		fmt.Println("  (none)")
	}
	for _, r := range results {
		if r.Success {
			green.Print("  ✓ ")
		} else {
			red.Print("  ✗ ")
		}
		fmt.Printf("%-36s %-8s %-8s %s\n",
			r.TaskID, r.Type, r.ExecutionTime.Round(time.Millisecond), r.Timestamp.Format("2006-01-02 15:04:05"))
	}

	unresolved := false
	issues, err := db.ListIssues(&unresolved)
	if err != nil {
		return fmt.Errorf("listing issues: %w", err)
	}

	fmt.Println()
	bold.Println("Open issues")
	if len(issues) == 0 {
		fmt.Println("  (none)")
	}
	for _, issue := range issues {
		severityColor(issue.Severity).Printf("  %-8s", issue.Severity)
		fixed := " "
		if issue.AutoFixAttempted {
			fixed = "⟳"
		}
		fmt.Printf(" %s %-24s %s\n", fixed, issue.Type, issue.Target)
	}

	return nil
}
