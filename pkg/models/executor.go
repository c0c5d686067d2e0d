package models

import "time"

// ExecutorState represents the lifecycle state of an executor slot.
type ExecutorState string

const (
	// ExecutorIdle indicates the executor is free to accept a task.
	ExecutorIdle ExecutorState = "idle"
	// ExecutorExecuting indicates the executor is running a task.
	ExecutorExecuting ExecutorState = "executing"
	// ExecutorFailed indicates an unhandled fault. Only a health-monitor
	// reset returns a failed executor to idle.
	ExecutorFailed ExecutorState = "failed"
)

// Valid returns true if the state is a known value.
func (s ExecutorState) Valid() bool {
	switch s {
	case ExecutorIdle, ExecutorExecuting, ExecutorFailed:
		return true
	default:
		return false
	}
}

// ExecutorStatus is a read-only snapshot of one executor slot.
type ExecutorStatus struct {
	ID                 string        `json:"executor_id"`
	State              ExecutorState `json:"state"`
	TasksCompleted     int           `json:"tasks_completed"`
	TasksFailed        int           `json:"tasks_failed"`
	TotalExecutionTime time.Duration `json:"total_execution_time_ms"`
	CurrentTaskID      string        `json:"current_task,omitempty"`
	LastActivity       time.Time     `json:"last_activity"`
}

// PoolMetrics is a read-only snapshot of the executor pool.
type PoolMetrics struct {
	TotalExecutors   int           `json:"total_executors"`
	ActiveExecutors  int           `json:"active_executors"`
	IdleExecutors    int           `json:"idle_executors"`
	TasksQueued      int           `json:"tasks_queued"`
	TasksCompleted   int           `json:"tasks_completed"`
	TasksFailed      int           `json:"tasks_failed"`
	AvgExecutionTime time.Duration `json:"avg_execution_time_ms"`
	Uptime           time.Duration `json:"uptime_seconds"`
}

// DispatcherStatus is a read-only snapshot of the dispatcher.
type DispatcherStatus struct {
	PendingTasks     int `json:"pending_tasks"`
	HistorySize      int `json:"history_size"`
	CapabilityRoutes int `json:"capability_routes"`
	StrategyRoutes   int `json:"strategy_routes"`
}
