package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fixpointd/fixpoint/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View fixpoint configuration.

Without arguments, displays the effective configuration after merging
defaults, the user config, project overrides, and environment variables.

Configuration is stored at ~/.config/fixpoint/config.yaml
Project-specific overrides can be placed in .fixpoint.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		displayConfig(cfg)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .fixpoint.yaml in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ".fixpoint.yaml"
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}

		data, err := defaultConfigYAML()
		if err != nil {
			return fmt.Errorf("rendering defaults: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

func displayConfig(cfg *config.Config) {
	fmt.Printf("pool.executors: %d\n", cfg.Pool.Executors)
	fmt.Printf("pool.remediation_rate: %g\n", cfg.Pool.RemediationRate)
	fmt.Printf("pool.remediation_burst: %d\n", cfg.Pool.RemediationBurst)
	fmt.Printf("dispatcher.history_size: %d\n", cfg.Dispatcher.HistorySize)
	fmt.Printf("dispatcher.complex_payload_length: %d\n", cfg.Dispatcher.ComplexPayloadLength)
	fmt.Printf("monitor.interval: %s\n", cfg.Monitor.Interval)
	fmt.Printf("monitor.stale_after: %s\n", cfg.Monitor.StaleAfter)
	fmt.Printf("detector.interval: %s\n", cfg.Detector.Interval)
	fmt.Printf("detector.auto_fix: %t\n", cfg.Detector.AutoFix)
	fmt.Printf("detector.scan_paths: %v\n", cfg.Detector.ScanPaths)
	fmt.Printf("detector.watch_paths: %v\n", cfg.Detector.WatchPaths)
	fmt.Printf("detector.memory_threshold: %g\n", cfg.Detector.MemoryThreshold)
	fmt.Printf("detector.cpu_threshold: %g\n", cfg.Detector.CPUThreshold)
	fmt.Printf("state.path: %s\n", cfg.State.Path)
	fmt.Printf("state.keep_results: %d\n", cfg.State.KeepResults)
	fmt.Printf("state.keep_issues: %d\n", cfg.State.KeepIssues)
	fmt.Printf("log.level: %s\n", cfg.Log.Level)
	fmt.Printf("log.console: %t\n", cfg.Log.Console)
	fmt.Printf("metrics.addr: %s\n", cfg.Metrics.Addr)
}

// defaultConfigYAML renders the built-in defaults as a commented-out
// starting point so an init'd file overrides nothing until edited.
func defaultConfigYAML() ([]byte, error) {
	cfg := config.Default()
	values := map[string]any{
		"pool": map[string]any{
			"executors":         cfg.Pool.Executors,
			"remediation_rate":  cfg.Pool.RemediationRate,
			"remediation_burst": cfg.Pool.RemediationBurst,
		},
		"dispatcher": map[string]any{
			"history_size":           cfg.Dispatcher.HistorySize,
			"complex_payload_length": cfg.Dispatcher.ComplexPayloadLength,
		},
		"monitor": map[string]any{
			"interval":    cfg.Monitor.Interval.String(),
			"stale_after": cfg.Monitor.StaleAfter.String(),
		},
		"detector": map[string]any{
			"interval":         cfg.Detector.Interval.String(),
			"auto_fix":         cfg.Detector.AutoFix,
			"scan_paths":       cfg.Detector.ScanPaths,
			"watch_paths":      cfg.Detector.WatchPaths,
			"memory_threshold": cfg.Detector.MemoryThreshold,
			"cpu_threshold":    cfg.Detector.CPUThreshold,
		},
		"state": map[string]any{
			"path":         cfg.State.Path,
			"keep_results": cfg.State.KeepResults,
			"keep_issues":  cfg.State.KeepIssues,
		},
		"log": map[string]any{
			"level":   cfg.Log.Level,
			"console": cfg.Log.Console,
		},
		"metrics": map[string]any{
			"addr": cfg.Metrics.Addr,
		},
	}

	body, err := yaml.Marshal(values)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteString("# fixpoint project configuration\n")
	out.WriteString("# Values here override ~/.config/fixpoint/config.yaml\n")
	out.WriteString("# Uncomment a line to pin it for this project.\n")
	for _, line := range strings.Split(strings.TrimRight(string(body), "\n"), "\n") {
		out.WriteString("# " + line + "\n")
	}
	return out.Bytes(), nil
}
