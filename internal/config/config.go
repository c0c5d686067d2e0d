// Package config handles configuration loading for fixpoint.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the fixpoint engine.
type Config struct {
	Pool       PoolConfig       `mapstructure:"pool"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	State      StateConfig      `mapstructure:"state"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// PoolConfig holds executor pool settings.
type PoolConfig struct {
	// Executors is the fixed number of executor slots.
	Executors int `mapstructure:"executors"`
	// RemediationRate bounds auto-remediation task submissions per second.
	RemediationRate float64 `mapstructure:"remediation_rate"`
	// RemediationBurst is the remediation limiter burst size.
	RemediationBurst int `mapstructure:"remediation_burst"`
}

// DispatcherConfig holds priority dispatcher settings.
type DispatcherConfig struct {
	// HistorySize bounds the dispatch history ring.
	HistorySize int `mapstructure:"history_size"`
	// ComplexPayloadLength is the payload length past which a task is
	// considered compound and routed through the decomposer.
	ComplexPayloadLength int `mapstructure:"complex_payload_length"`
}

// MonitorConfig holds health monitor settings.
type MonitorConfig struct {
	// Interval is how often executors are scanned.
	Interval time.Duration `mapstructure:"interval"`
	// StaleAfter is how long an executor may stay executing before it is
	// treated as unresponsive and reset.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// DetectorConfig holds issue detector settings.
type DetectorConfig struct {
	// Interval is the detection cycle period.
	Interval time.Duration `mapstructure:"interval"`
	// AutoFix submits remediation tasks for detected issues.
	AutoFix bool `mapstructure:"auto_fix"`
	// ScanPaths are directories scanned for code issues each cycle.
	ScanPaths []string `mapstructure:"scan_paths"`
	// ScanExtensions filters which files the directory scan reads.
	ScanExtensions []string `mapstructure:"scan_extensions"`
	// WatchPaths are directories rescanned on file-change events.
	WatchPaths []string `mapstructure:"watch_paths"`
	// MemoryThreshold is the memory usage percentage that raises an issue.
	MemoryThreshold float64 `mapstructure:"memory_threshold"`
	// CPUThreshold is the CPU usage percentage that raises an issue.
	CPUThreshold float64 `mapstructure:"cpu_threshold"`
	// HistorySize bounds the in-memory issue history.
	HistorySize int `mapstructure:"history_size"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Path is the SQLite archive location. Empty disables persistence.
	Path string `mapstructure:"path"`
	// KeepResults bounds archived task results.
	KeepResults int `mapstructure:"keep_results"`
	// KeepIssues bounds archived issues.
	KeepIssues int `mapstructure:"keep_issues"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// MetricsConfig holds metrics exposure settings.
type MetricsConfig struct {
	// Addr is the listen address for the Prometheus endpoint.
	// Empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.executors", 300)
	v.SetDefault("pool.remediation_rate", 5.0)
	v.SetDefault("pool.remediation_burst", 10)

	v.SetDefault("dispatcher.history_size", 10000)
	v.SetDefault("dispatcher.complex_payload_length", 500)

	v.SetDefault("monitor.interval", 5*time.Second)
	v.SetDefault("monitor.stale_after", 10*time.Minute)

	v.SetDefault("detector.interval", 30*time.Second)
	v.SetDefault("detector.auto_fix", true)
	v.SetDefault("detector.scan_paths", []string{})
	v.SetDefault("detector.scan_extensions", []string{".go", ".py", ".js", ".ts", ".tsx", ".log"})
	v.SetDefault("detector.watch_paths", []string{})
	v.SetDefault("detector.memory_threshold", 90.0)
	v.SetDefault("detector.cpu_threshold", 95.0)
	v.SetDefault("detector.history_size", 1000)

	v.SetDefault("state.path", DefaultStatePath())
	v.SetDefault("state.keep_results", 10000)
	v.SetDefault("state.keep_issues", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)

	v.SetDefault("metrics.addr", "")
}

// getUserConfigDir returns the XDG config directory for fixpoint.
func getUserConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "fixpoint")
}

// DefaultStatePath returns the default SQLite archive location.
func DefaultStatePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "fixpoint", "fixpoint.db")
}

// findProjectConfig walks up from the working directory looking for .fixpoint.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".fixpoint.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (FIXPOINT_*)
// 2. Project config (.fixpoint.yaml in current directory or a parent)
// 3. User config (~/.config/fixpoint/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Map nested keys to env names, e.g. pool.executors -> FIXPOINT_POOL_EXECUTORS.
	v.SetEnvPrefix("FIXPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in defaults without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(cfg)
	return cfg
}
