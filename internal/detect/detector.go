// Package detect watches the system for abnormal conditions and feeds
// remediation tasks back into the executor pool.
//
// A detection cycle runs three scans: a pluggable code scan, a pluggable
// service scan, and a built-in resource scan over /proc. Detected issues
// are archived and, when auto-fix is enabled and a pool is attached,
// converted into remediation tasks immediately rather than polled.
package detect

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/fixpointd/fixpoint/pkg/models"
)

// Default detector tuning.
const (
	DefaultInterval        = 30 * time.Second
	DefaultMemoryThreshold = 90.0
	DefaultCPUThreshold    = 95.0
	DefaultHistorySize     = 1000
)

// defaultExtensions are scanned when the config names none.
var defaultExtensions = []string{".go", ".py", ".js", ".ts", ".tsx", ".log"}

// skipDirs are directory names excluded from directory scans.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"venv":         true,
	".venv":        true,
	"__pycache__":  true,
	".git":         true,
}

// Remediator receives detected issues for auto-remediation. The executor
// pool satisfies this.
type Remediator interface {
	HandleSystemIssue(issue *models.DetectedIssue)
}

// IssueArchiver persists detected issues. A nil archiver keeps issues in
// memory only.
type IssueArchiver interface {
	SaveIssue(issue *models.DetectedIssue) error
}

// ScanFunc is a pluggable scan invoked each detection cycle. Returned
// issues are reported through the detector's normal path.
type ScanFunc func(ctx context.Context) []*models.DetectedIssue

// HandlerFunc is a custom per-type remediation callback. When registered
// for an issue type it replaces the default pool routing.
type HandlerFunc func(issue *models.DetectedIssue)

// Config configures a Detector.
type Config struct {
	// Interval is the detection cycle period. Defaults to 30s.
	Interval time.Duration
	// AutoFix submits remediation for each detected issue.
	AutoFix bool
	// ScanPaths are directories scanned for code issues each cycle.
	ScanPaths []string
	// ScanExtensions filters files for directory scans.
	ScanExtensions []string
	// MemoryThreshold raises memory_high above this usage percentage.
	MemoryThreshold float64
	// CPUThreshold raises cpu_high above this usage percentage.
	CPUThreshold float64
	// HistorySize bounds the in-memory issue history.
	HistorySize int
	// Remediator receives issues for auto-fix. Optional.
	Remediator Remediator
	// Archiver persists issues. Optional.
	Archiver IssueArchiver
	// Sampler reads system resources. Defaults to the /proc sampler.
	Sampler ResourceSampler
	// Logger receives detector events.
	Logger zerolog.Logger
}

// Detector periodically samples system, code, and service health and
// turns findings into DetectedIssues.
type Detector struct {
	cfg     Config
	log     zerolog.Logger
	sampler ResourceSampler

	cron *cron.Cron

	mu          sync.Mutex
	history     []*models.DetectedIssue
	handlers    map[string]HandlerFunc
	codeScan    ScanFunc
	serviceScan ScanFunc
}

// New creates a Detector.
func New(cfg Config) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = DefaultMemoryThreshold
	}
	if cfg.CPUThreshold <= 0 {
		cfg.CPUThreshold = DefaultCPUThreshold
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = NewProcSampler()
	}
	return &Detector{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "detector").Logger(),
		sampler:  sampler,
		handlers: make(map[string]HandlerFunc),
	}
}

// SetCodeScan installs the pluggable code-issue scan.
func (d *Detector) SetCodeScan(fn ScanFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codeScan = fn
}

// SetServiceScan installs the pluggable service-health scan.
func (d *Detector) SetServiceScan(fn ScanFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serviceScan = fn
}

// RegisterHandler installs a custom remediation callback for an issue
// type, replacing the default pool routing for that type.
func (d *Detector) RegisterHandler(issueType string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[issueType] = fn
}

// Run schedules detection cycles until ctx is canceled.
func (d *Detector) Run(ctx context.Context) error {
	d.cron = cron.New()
	_, err := d.cron.AddFunc(fmt.Sprintf("@every %s", d.cfg.Interval), func() {
		d.RunCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule detection cycle: %w", err)
	}

	d.cron.Start()
	d.log.Info().Dur("interval", d.cfg.Interval).Bool("auto_fix", d.cfg.AutoFix).
		Msg("issue detector started")

	<-ctx.Done()
	stopped := d.cron.Stop()
	<-stopped.Done()
	d.log.Info().Msg("issue detector stopped")
	return ctx.Err()
}

// RunCycle performs one full detection pass: pluggable code scan,
// pluggable service scan, configured path scans, and the resource scan.
func (d *Detector) RunCycle(ctx context.Context) {
	d.mu.Lock()
	codeScan, serviceScan := d.codeScan, d.serviceScan
	d.mu.Unlock()

	if codeScan != nil {
		for _, issue := range codeScan(ctx) {
			d.Report(issue)
		}
	}
	if serviceScan != nil {
		for _, issue := range serviceScan(ctx) {
			d.Report(issue)
		}
	}
	for _, path := range d.cfg.ScanPaths {
		if _, err := d.ScanDirectory(path); err != nil {
			d.log.Warn().Err(err).Str("path", path).Msg("directory scan failed")
		}
	}
	d.checkResources()
}

// checkResources runs the built-in resource scan.
func (d *Detector) checkResources() {
	memory, err := d.sampler.MemoryPercent()
	if err != nil {
		d.log.Debug().Err(err).Msg("memory sample unavailable")
	} else if memory > d.cfg.MemoryThreshold {
		d.ReportNew(models.CategoryPerformance, models.SeverityHigh, "memory_high", "system",
			fmt.Sprintf("Memory usage at %.1f%%", memory), nil)
	}

	cpu, ok, err := d.sampler.CPUPercent()
	if err != nil {
		d.log.Debug().Err(err).Msg("cpu sample unavailable")
	} else if ok && cpu > d.cfg.CPUThreshold {
		d.ReportNew(models.CategoryPerformance, models.SeverityMedium, "cpu_high", "system",
			fmt.Sprintf("CPU usage at %.1f%%", cpu), nil)
	}
}

// ReportNew builds and reports a fresh issue, returning it.
func (d *Detector) ReportNew(category models.IssueCategory, severity models.IssueSeverity,
	issueType, target, description string, metadata map[string]any) *models.DetectedIssue {

	issue := &models.DetectedIssue{
		ID:          uuid.New().String(),
		Category:    category,
		Severity:    severity,
		Type:        issueType,
		Target:      target,
		Description: description,
		DetectedAt:  time.Now(),
		Metadata:    metadata,
	}
	d.Report(issue)
	return issue
}

// Report archives an issue and triggers remediation. Each issue that
// triggers auto-fix produces exactly one downstream task, either through
// a registered custom handler or the pool's default routing.
func (d *Detector) Report(issue *models.DetectedIssue) {
	d.log.Info().Str("issue_type", issue.Type).Str("severity", string(issue.Severity)).
		Str("target", issue.Target).Msg(issue.Description)

	d.mu.Lock()
	handler := d.handlers[issue.Type]
	d.mu.Unlock()

	if d.cfg.AutoFix {
		issue.AutoFixAttempted = handler != nil || d.cfg.Remediator != nil
	}

	d.mu.Lock()
	d.history = append(d.history, issue)
	if len(d.history) > d.cfg.HistorySize {
		d.history = d.history[len(d.history)-d.cfg.HistorySize:]
	}
	d.mu.Unlock()

	if d.cfg.Archiver != nil {
		if err := d.cfg.Archiver.SaveIssue(issue); err != nil {
			d.log.Warn().Err(err).Str("issue_id", issue.ID).Msg("archiving issue failed")
		}
	}

	if !d.cfg.AutoFix {
		return
	}
	if handler != nil {
		handler(issue)
		return
	}
	if d.cfg.Remediator != nil {
		d.cfg.Remediator.HandleSystemIssue(issue)
	}
}

// ScanFile scans one file against the pattern library. At most one issue
// per issue type is reported per file.
func (d *Detector) ScanFile(path string) ([]*models.DetectedIssue, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scan file %s: %w", path, err)
	}

	var issues []*models.DetectedIssue
	for _, issueType := range patternTypes {
		expr, matched := matchIssueType(issueType, content)
		if !matched {
			continue
		}
		issue := d.ReportNew(models.CategoryCode, models.SeverityMedium, issueType, path,
			fmt.Sprintf("Pattern %q found in file", expr), nil)
		issues = append(issues, issue)
	}
	return issues, nil
}

// ScanDirectory walks a directory tree, scanning files whose extension
// is configured. Dependency and VCS directories are skipped.
func (d *Detector) ScanDirectory(root string) ([]*models.DetectedIssue, error) {
	extensions := d.extensions()

	var issues []*models.DetectedIssue
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if skipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(path, extensions) {
			return nil
		}
		fileIssues, scanErr := d.ScanFile(path)
		if scanErr != nil {
			d.log.Warn().Err(scanErr).Str("file", path).Msg("file scan failed")
			return nil
		}
		issues = append(issues, fileIssues...)
		return nil
	})
	if err != nil {
		return issues, fmt.Errorf("scan directory %s: %w", root, err)
	}
	return issues, nil
}

// extensions returns the configured scan extensions or the defaults.
func (d *Detector) extensions() []string {
	if len(d.cfg.ScanExtensions) > 0 {
		return d.cfg.ScanExtensions
	}
	return defaultExtensions
}

func hasExtension(path string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Issues returns the retained history, filtered by the non-nil arguments.
func (d *Detector) Issues(category *models.IssueCategory, severity *models.IssueSeverity, resolved *bool) []*models.DetectedIssue {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*models.DetectedIssue
	for _, issue := range d.history {
		if category != nil && issue.Category != *category {
			continue
		}
		if severity != nil && issue.Severity != *severity {
			continue
		}
		if resolved != nil && issue.Resolved != *resolved {
			continue
		}
		out = append(out, issue)
	}
	return out
}

// Status summarizes detector state for diagnostics.
func (d *Detector) Status() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	unresolved := 0
	autoFixes := 0
	for _, issue := range d.history {
		if !issue.Resolved {
			unresolved++
		}
		if issue.AutoFixAttempted {
			autoFixes++
		}
	}

	customHandlers := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		customHandlers = append(customHandlers, t)
	}

	return map[string]any{
		"auto_fix_enabled":  d.cfg.AutoFix,
		"check_interval":    d.cfg.Interval.String(),
		"total_issues":      len(d.history),
		"unresolved_issues": unresolved,
		"auto_fix_attempts": autoFixes,
		"pattern_types":     patternTypes,
		"custom_handlers":   customHandlers,
	}
}
