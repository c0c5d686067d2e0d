// Package models defines the shared data types for the fixpoint scheduling engine.
package models

import "time"

// TaskType classifies a unit of work and selects its handler.
type TaskType string

const (
	// TaskFix repairs code issues, bugs, and errors.
	TaskFix TaskType = "fix"
	// TaskCode generates or modifies code.
	TaskCode TaskType = "code"
	// TaskAnalyze inspects code, systems, or patterns.
	TaskAnalyze TaskType = "analyze"
	// TaskRepair repairs system components.
	TaskRepair TaskType = "repair"
	// TaskOptimize improves performance or resource usage.
	TaskOptimize TaskType = "optimize"
	// TaskMonitor observes systems, services, and health.
	TaskMonitor TaskType = "monitor"
	// TaskHeal performs self-healing operations.
	TaskHeal TaskType = "heal"
	// TaskCustom runs caller-defined work.
	TaskCustom TaskType = "custom"
)

// Valid returns true if the type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskFix, TaskCode, TaskAnalyze, TaskRepair, TaskOptimize, TaskMonitor, TaskHeal, TaskCustom:
		return true
	default:
		return false
	}
}

// Priority levels. Lower values dispatch first.
const (
	PriorityCritical   = 1
	PriorityHigh       = 2
	PriorityMedium     = 5
	PriorityLow        = 8
	PriorityBackground = 10
)

// ClampPriority forces p into the valid 1..10 range.
func ClampPriority(p int) int {
	if p < PriorityCritical {
		return PriorityCritical
	}
	if p > PriorityBackground {
		return PriorityBackground
	}
	return p
}

// DefaultMaxRetries is the retry budget applied when a task does not set one.
// A task with MaxRetries=r is attempted at most r+1 times.
const DefaultMaxRetries = 3

// DefaultTimeout is the advisory per-task timeout applied when unset.
// It is metadata for handlers; the scheduler does not enforce it.
const DefaultTimeout = 30 * time.Second

// Task represents a submitted unit of work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Type selects the handler that executes this task.
	Type TaskType `json:"task_type"`
	// Payload carries handler-specific parameters.
	Payload map[string]any `json:"payload"`
	// Priority orders dispatch; 1 is highest, 10 lowest.
	Priority int `json:"priority"`
	// Timeout is advisory; handlers are trusted to self-bound.
	Timeout time.Duration `json:"timeout_ms"`
	// RetryCount is the number of retries consumed so far.
	RetryCount int `json:"retry_count"`
	// MaxRetries bounds retries after the first attempt.
	MaxRetries int `json:"max_retries"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// Metadata carries caller annotations not interpreted by the scheduler.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTask builds a task with defaults applied.
func NewTask(id string, typ TaskType, payload map[string]any, priority int) *Task {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Task{
		ID:         id,
		Type:       typ,
		Payload:    payload,
		Priority:   ClampPriority(priority),
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  time.Now(),
		Metadata:   map[string]any{},
	}
}

// TaskResult records the outcome of a single execution attempt.
type TaskResult struct {
	// TaskID is the ID of the executed task.
	TaskID string `json:"task_id"`
	// ExecutorID is the executor slot that ran the attempt.
	ExecutorID string `json:"executor_id"`
	// Type mirrors the task's type.
	Type TaskType `json:"task_type"`
	// Success reports whether the handler returned without error.
	Success bool `json:"success"`
	// Result is the handler's output on success.
	Result map[string]any `json:"result,omitempty"`
	// Error is the failure message on an unsuccessful attempt.
	Error string `json:"error,omitempty"`
	// ExecutionTime is how long the attempt ran.
	ExecutionTime time.Duration `json:"execution_time_ms"`
	// Timestamp is when the attempt finished.
	Timestamp time.Time `json:"timestamp"`
}
