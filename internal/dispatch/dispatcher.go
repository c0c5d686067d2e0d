// Package dispatch routes tasks onto the shared priority queue.
//
// Compound tasks go through the decomposer first and enter the queue as
// ordinary tasks, one per subtask, respecting the decomposition's
// execution order. Simple tasks enqueue directly. The queue is the single
// feed for all executors, so priority ordering holds for every path,
// including the pool's typed submit helpers and auto-remediation.
package dispatch

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fixpointd/fixpoint/pkg/models"
)

// Decomposer is the optional collaborator that breaks compound tasks
// apart. A nil Decomposer disables decomposition entirely.
type Decomposer interface {
	Decompose(task *models.Task, context map[string]any) (*models.Decomposition, error)
}

// historyEntry records one dispatch for diagnostics.
type historyEntry struct {
	TaskID       string          `json:"task_id"`
	Type         models.TaskType `json:"task_type"`
	Priority     int             `json:"priority"`
	DispatchedAt time.Time       `json:"dispatched_at"`
}

// Options configures optional dispatcher behavior.
type Options struct {
	// Decomposer handles compound tasks. Nil disables decomposition.
	Decomposer Decomposer
	// HistorySize bounds the dispatch history ring. Defaults to 10000.
	HistorySize int
	// ComplexPayloadLength is the payload text length past which a task
	// counts as compound. Defaults to 500.
	ComplexPayloadLength int
	// Logger receives dispatch events. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// Dispatcher pushes tasks onto the shared priority queue, decomposing
// compound ones first.
type Dispatcher struct {
	queue      *Queue
	decomposer Decomposer
	log        zerolog.Logger

	complexLen int

	mu          sync.Mutex
	history     []historyEntry
	historySize int
}

// New creates a Dispatcher feeding the given queue.
func New(queue *Queue, opts Options) *Dispatcher {
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = 10000
	}
	complexLen := opts.ComplexPayloadLength
	if complexLen <= 0 {
		complexLen = 500
	}
	return &Dispatcher{
		queue:       queue,
		decomposer:  opts.Decomposer,
		log:         opts.Logger.With().Str("component", "dispatcher").Logger(),
		complexLen:  complexLen,
		historySize: historySize,
	}
}

// Queue returns the shared priority queue this dispatcher feeds.
func (d *Dispatcher) Queue() *Queue {
	return d.queue
}

// Dispatch routes a task. Compound tasks are decomposed and every subtask
// is enqueued in execution order; the returned ID is "decomposed:<id>".
// Simple tasks enqueue directly and return their own ID. A decomposition
// failure (for example a dependency cycle) is returned, never dropped.
func (d *Dispatcher) Dispatch(task *models.Task) (string, error) {
	if d.decomposer != nil && d.isComplex(task) {
		dec, err := d.decomposer.Decompose(task, nil)
		if err != nil {
			return "", fmt.Errorf("dispatch task %s: %w", task.ID, err)
		}

		for _, group := range dec.ExecutionOrder {
			for _, subtaskID := range group {
				st := dec.Subtask(subtaskID)
				if st == nil {
					continue
				}
				sub := models.NewTask(st.ID, st.Type, subtaskPayload(task, st), st.Priority)
				sub.Metadata["parent_task_id"] = task.ID
				sub.Metadata["decomposition_id"] = dec.ID
				d.enqueue(sub)
			}
		}

		d.log.Info().Str("task_id", task.ID).Int("subtasks", len(dec.Subtasks)).
			Int("groups", len(dec.ExecutionOrder)).Msg("compound task decomposed")
		return "decomposed:" + task.ID, nil
	}

	d.enqueue(task)
	return task.ID, nil
}

// subtaskPayload merges the parent payload under the subtask description.
func subtaskPayload(parent *models.Task, st *models.Subtask) map[string]any {
	payload := map[string]any{"description": st.Description}
	for k, v := range parent.Payload {
		if _, taken := payload[k]; !taken {
			payload[k] = v
		}
	}
	return payload
}

func (d *Dispatcher) enqueue(task *models.Task) {
	d.queue.Push(task)

	d.mu.Lock()
	d.history = append(d.history, historyEntry{
		TaskID:       task.ID,
		Type:         task.Type,
		Priority:     task.Priority,
		DispatchedAt: time.Now(),
	})
	if len(d.history) > d.historySize {
		d.history = d.history[len(d.history)-d.historySize:]
	}
	d.mu.Unlock()

	d.log.Debug().Str("task_id", task.ID).Str("type", string(task.Type)).
		Int("priority", task.Priority).Msg("task queued")
}

// isComplex applies the compound-task heuristic: long payload text or
// repeated conjunction markers.
func (d *Dispatcher) isComplex(task *models.Task) bool {
	text := payloadString(task)
	return len(text) > d.complexLen ||
		strings.Count(text, "and") > 2 ||
		strings.Count(text, "then") > 1
}

func payloadString(task *models.Task) string {
	var b strings.Builder
	for _, v := range task.Payload {
		if s, ok := v.(string); ok {
			b.WriteString(s)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// GetNextTask pops the pending task with the smallest priority value,
// earliest submission first on ties. Returns nil when empty.
func (d *Dispatcher) GetNextTask() *models.Task {
	return d.queue.Pop()
}

// PendingCount returns the number of queued tasks.
func (d *Dispatcher) PendingCount() int {
	return d.queue.Len()
}

// DispatchFix dispatches a fix task for a target and issue type.
func (d *Dispatcher) DispatchFix(target, issueType string, priority int) (string, error) {
	task := models.NewTask(uuid.New().String(), models.TaskFix,
		map[string]any{"target": target, "issue_type": issueType}, priority)
	return d.Dispatch(task)
}

// DispatchCode dispatches a code generation task.
func (d *Dispatcher) DispatchCode(specification, language string, priority int) (string, error) {
	task := models.NewTask(uuid.New().String(), models.TaskCode,
		map[string]any{"action": "generate", "language": language, "specification": specification}, priority)
	return d.Dispatch(task)
}

// DispatchAnalyze dispatches an analysis task.
func (d *Dispatcher) DispatchAnalyze(target, analysisType string, priority int) (string, error) {
	task := models.NewTask(uuid.New().String(), models.TaskAnalyze,
		map[string]any{"target": target, "analysis_type": analysisType}, priority)
	return d.Dispatch(task)
}

// DispatchHeal dispatches a healing task. Heal defaults to critical
// priority at the call sites that use it.
func (d *Dispatcher) DispatchHeal(issue map[string]any, strategy string, priority int) (string, error) {
	task := models.NewTask(uuid.New().String(), models.TaskHeal,
		map[string]any{"issue": issue, "strategy": strategy}, priority)
	return d.Dispatch(task)
}

// DispatchBatch dispatches several tasks, returning their IDs in order.
// The first error aborts the remainder.
func (d *Dispatcher) DispatchBatch(tasks []*models.Task) ([]string, error) {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		id, err := d.Dispatch(task)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DispatchByCapability builds a task whose type is resolved from a
// capability name, letting an external registry route by name.
func (d *Dispatcher) DispatchByCapability(capability string, payload map[string]any, priority int) (string, error) {
	task := models.NewTask(uuid.New().String(), routeCapability(capability), clonePayload(payload), priority)
	task.Payload["capability"] = capability
	task.Metadata["routed_by"] = "capability"
	return d.Dispatch(task)
}

// DispatchByStrategy builds a task whose type is resolved from an
// execution strategy name.
func (d *Dispatcher) DispatchByStrategy(strategy string, payload map[string]any, priority int) (string, error) {
	task := models.NewTask(uuid.New().String(), routeStrategy(strategy), clonePayload(payload), priority)
	task.Payload["strategy"] = strategy
	task.Metadata["routed_by"] = "strategy"
	return d.Dispatch(task)
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	return out
}

// Status reports a read-only snapshot of the dispatcher.
func (d *Dispatcher) Status() models.DispatcherStatus {
	d.mu.Lock()
	historySize := len(d.history)
	d.mu.Unlock()

	return models.DispatcherStatus{
		PendingTasks:     d.queue.Len(),
		HistorySize:      historySize,
		CapabilityRoutes: len(capabilityRoutes),
		StrategyRoutes:   len(strategyRoutes),
	}
}
