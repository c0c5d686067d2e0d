package models

import "time"

// IssueSeverity ranks how urgent a detected issue is.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityHigh     IssueSeverity = "high"
	SeverityMedium   IssueSeverity = "medium"
	SeverityLow      IssueSeverity = "low"
	SeverityInfo     IssueSeverity = "info"
)

// Valid returns true if the severity is a known value.
func (s IssueSeverity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	default:
		return false
	}
}

// RemediationPriority maps a severity to the priority of the task
// generated to remediate it.
func (s IssueSeverity) RemediationPriority() int {
	switch s {
	case SeverityCritical:
		return PriorityCritical
	case SeverityHigh:
		return 3
	default:
		return PriorityMedium
	}
}

// IssueCategory groups issues by the subsystem they affect.
type IssueCategory string

const (
	CategoryCode        IssueCategory = "code"
	CategorySystem      IssueCategory = "system"
	CategoryService     IssueCategory = "service"
	CategoryPerformance IssueCategory = "performance"
	CategorySecurity    IssueCategory = "security"
	CategoryNetwork     IssueCategory = "network"
)

// Valid returns true if the category is a known value.
func (c IssueCategory) Valid() bool {
	switch c {
	case CategoryCode, CategorySystem, CategoryService, CategoryPerformance, CategorySecurity, CategoryNetwork:
		return true
	default:
		return false
	}
}

// DetectedIssue is an abnormal condition found by the issue detector.
// Each issue that triggers auto-remediation produces exactly one task.
type DetectedIssue struct {
	// ID is the unique identifier for this issue.
	ID string `json:"id"`
	// Category groups the issue by affected subsystem.
	Category IssueCategory `json:"category"`
	// Severity ranks urgency and derives the remediation priority.
	Severity IssueSeverity `json:"severity"`
	// Type is the specific issue class, e.g. "memory_high".
	Type string `json:"type"`
	// Target names the affected file, service, or resource.
	Target string `json:"target"`
	// Description is a human-readable summary.
	Description string `json:"description"`
	// DetectedAt is when the issue was observed.
	DetectedAt time.Time `json:"detected_at"`
	// AutoFixAttempted reports whether a remediation task was submitted.
	AutoFixAttempted bool `json:"auto_fix_attempted"`
	// Resolved reports whether the issue has been cleared.
	Resolved bool `json:"resolved"`
	// Metadata carries detector-specific context.
	Metadata map[string]any `json:"metadata,omitempty"`
}
