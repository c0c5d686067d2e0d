package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/fixpointd/fixpoint/pkg/models"
)

// Executor is one logical execution slot. It runs at most one task at a
// time and is never destroyed: a failed executor is reset in place by the
// health monitor.
type Executor struct {
	id string

	mu                 sync.Mutex
	state              models.ExecutorState
	tasksCompleted     int
	tasksFailed        int
	totalExecutionTime time.Duration
	currentTask        *models.Task
	lastActivity       time.Time
}

// newExecutor creates an idle executor slot.
func newExecutor(index int) *Executor {
	return &Executor{
		id:           fmt.Sprintf("EX-%04d", index),
		state:        models.ExecutorIdle,
		lastActivity: time.Now(),
	}
}

// ID returns the executor's identifier.
func (e *Executor) ID() string { return e.id }

// Available reports whether the executor can accept a task.
func (e *Executor) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == models.ExecutorIdle
}

// tryAssign claims the executor for a task. It fails if the executor is
// not idle, making find-and-claim atomic for the dispatch loop.
func (e *Executor) tryAssign(task *models.Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != models.ExecutorIdle {
		return false
	}
	e.state = models.ExecutorExecuting
	e.currentTask = task
	e.lastActivity = time.Now()
	return true
}

// complete records a successful attempt and releases the executor.
func (e *Executor) complete(elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasksCompleted++
	e.totalExecutionTime += elapsed
	e.state = models.ExecutorIdle
	e.currentTask = nil
	e.lastActivity = time.Now()
}

// fail records a handler error and releases the executor. Handler errors
// are an expected outcome; the slot stays usable.
func (e *Executor) fail(elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasksFailed++
	e.totalExecutionTime += elapsed
	e.state = models.ExecutorIdle
	e.currentTask = nil
	e.lastActivity = time.Now()
}

// markFailed records an unhandled fault. The executor keeps its current
// task for diagnostics and stays failed until a health-monitor reset.
func (e *Executor) markFailed(elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasksFailed++
	e.totalExecutionTime += elapsed
	e.state = models.ExecutorFailed
	e.lastActivity = time.Now()
}

// MarkFailed forces the executor into the failed state. Exposed for the
// health monitor's tests and for handler wrappers.
func (e *Executor) MarkFailed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = models.ExecutorFailed
	e.lastActivity = time.Now()
}

// Reset repairs the executor in place: state to idle, counters zeroed,
// current task cleared. This is state repair, not respawn.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = models.ExecutorIdle
	e.tasksCompleted = 0
	e.tasksFailed = 0
	e.totalExecutionTime = 0
	e.currentTask = nil
	e.lastActivity = time.Now()
}

// Status returns a read-only snapshot of the executor.
func (e *Executor) Status() models.ExecutorStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := models.ExecutorStatus{
		ID:                 e.id,
		State:              e.state,
		TasksCompleted:     e.tasksCompleted,
		TasksFailed:        e.tasksFailed,
		TotalExecutionTime: e.totalExecutionTime,
		LastActivity:       e.lastActivity,
	}
	if e.currentTask != nil {
		status.CurrentTaskID = e.currentTask.ID
	}
	return status
}

// counters returns the completion counters for metric aggregation.
func (e *Executor) counters() (completed, failed int, total time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasksCompleted, e.tasksFailed, e.totalExecutionTime
}
