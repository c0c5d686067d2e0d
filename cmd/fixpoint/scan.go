package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fixpointd/fixpoint/internal/config"
	"github.com/fixpointd/fixpoint/internal/detect"
	"github.com/fixpointd/fixpoint/internal/logging"
	"github.com/fixpointd/fixpoint/pkg/models"
)

var scanExtensions []string

var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Scan a directory for code issues",
	Long: `Scan a directory tree for known issue patterns and print findings.

This is a one-shot scan: nothing is remediated or persisted. The
directory argument defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanExtensions, "ext", nil, "File extensions to scan (default .go,.py,.js,.ts,.tsx,.log)")
}

func runScan(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(scanExtensions) > 0 {
		cfg.Detector.ScanExtensions = scanExtensions
	}

	detector := detect.New(detect.Config{
		ScanExtensions: cfg.Detector.ScanExtensions,
		Logger:         logging.Nop(),
	})

	issues, err := detector.ScanDirectory(root)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", root, err)
	}

	if len(issues) == 0 {
		color.New(color.FgGreen).Printf("✓ No issues found in %s\n", root)
		return nil
	}

	for _, issue := range issues {
		severityColor(issue.Severity).Printf("%-8s", issue.Severity)
		fmt.Printf(" %-24s %s\n", issue.Type, issue.Target)
		fmt.Printf("         %s\n", issue.Description)
	}
	fmt.Fprintf(os.Stderr, "\n%d issue(s) found\n", len(issues))
	return nil
}

func severityColor(s models.IssueSeverity) *color.Color {
	switch s {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case models.SeverityHigh:
		return color.New(color.FgRed)
	case models.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}
