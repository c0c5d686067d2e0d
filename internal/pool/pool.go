// Package pool runs tasks from the shared priority queue on a fixed set
// of logical executors.
//
// The pool owns two loops: the dispatch loop, which assigns ready tasks
// to idle executors, and the health monitor (health.go), which resets
// failed executors in place. Both wake on channel signals rather than
// polling.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fixpointd/fixpoint/internal/dispatch"
	"github.com/fixpointd/fixpoint/pkg/models"
)

// DefaultExecutorCount is the pool size when the config does not set one.
const DefaultExecutorCount = 300

// historyLimit bounds the in-memory result histories.
const historyLimit = 10000

// ErrNoHandler indicates no handler is registered for a task's type and
// no custom fallback exists.
var ErrNoHandler = errors.New("no handler registered")

// Handler executes one task. Handlers must honor ctx and are trusted to
// self-bound using the task's advisory timeout.
type Handler func(ctx context.Context, task *models.Task) (map[string]any, error)

// ResultArchiver persists task results. A nil archiver keeps results
// in memory only.
type ResultArchiver interface {
	SaveResult(result *models.TaskResult) error
}

// Config configures an executor pool.
type Config struct {
	// Executors is the fixed pool size. Defaults to DefaultExecutorCount.
	Executors int
	// Queue is the shared priority queue feeding the pool. Required.
	Queue *dispatch.Queue
	// Archiver persists results. Optional.
	Archiver ResultArchiver
	// Logger receives pool events.
	Logger zerolog.Logger
	// RemediationRate bounds auto-remediation submissions per second.
	// Zero disables the limiter.
	RemediationRate float64
	// RemediationBurst is the limiter burst size.
	RemediationBurst int
	// Metrics mirrors pool state into Prometheus. Optional.
	Metrics *Metrics
}

// Pool is a fixed set of executors pulling tasks from the shared queue.
type Pool struct {
	queue    *dispatch.Queue
	archiver ResultArchiver
	log      zerolog.Logger
	metrics  *Metrics

	executors []*Executor
	// freed wakes the dispatch loop when an executor returns to idle.
	freed chan struct{}

	handlersMu sync.RWMutex
	handlers   map[models.TaskType]Handler

	historyMu sync.Mutex
	completed []*models.TaskResult
	failed    []*models.TaskResult

	limiter   *rate.Limiter
	startTime time.Time
	wg        sync.WaitGroup
}

// New creates a pool with its executors initialized and idle.
func New(cfg Config) *Pool {
	count := cfg.Executors
	if count <= 0 {
		count = DefaultExecutorCount
	}

	var limiter *rate.Limiter
	if cfg.RemediationRate > 0 {
		burst := cfg.RemediationBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RemediationRate), burst)
	}

	p := &Pool{
		queue:     cfg.Queue,
		archiver:  cfg.Archiver,
		log:       cfg.Logger.With().Str("component", "pool").Logger(),
		metrics:   cfg.Metrics,
		executors: make([]*Executor, count),
		freed:     make(chan struct{}, 1),
		handlers:  make(map[models.TaskType]Handler),
		limiter:   limiter,
		startTime: time.Now(),
	}
	for i := range p.executors {
		p.executors[i] = newExecutor(i)
	}
	if p.metrics != nil {
		p.metrics.observePool(p)
	}

	p.log.Info().Int("executors", count).Msg("executor pool initialized")
	return p
}

// RegisterHandler installs the handler for a task type. Registering
// models.TaskCustom also provides the fallback for unknown types.
func (p *Pool) RegisterHandler(typ models.TaskType, h Handler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[typ] = h
}

// handlerFor resolves a task's handler, falling back to the custom
// handler when the type has none.
func (p *Pool) handlerFor(typ models.TaskType) (Handler, error) {
	p.handlersMu.RLock()
	defer p.handlersMu.RUnlock()
	if h, ok := p.handlers[typ]; ok {
		return h, nil
	}
	if h, ok := p.handlers[models.TaskCustom]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w for type %q", ErrNoHandler, typ)
}

// Run drives the dispatch loop until ctx is canceled, then waits for
// in-flight handlers to finish.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info().Msg("dispatch loop started")
	defer p.log.Info().Msg("dispatch loop stopped")

	for {
		task := p.queue.Pop()
		if task == nil {
			select {
			case <-ctx.Done():
				p.wg.Wait()
				return ctx.Err()
			case <-p.queue.Ready():
			}
			continue
		}

		ex := p.claimIdle(task)
		if ex == nil {
			// Nobody free: restore the task's queue position and wait
			// for an executor to come back.
			p.queue.PushFront(task)
			select {
			case <-ctx.Done():
				p.wg.Wait()
				return ctx.Err()
			case <-p.freed:
			}
			continue
		}

		p.wg.Add(1)
		go p.execute(ctx, ex, task)
	}
}

// claimIdle scans for an idle executor and atomically assigns the task.
func (p *Pool) claimIdle(task *models.Task) *Executor {
	for _, ex := range p.executors {
		if ex.tryAssign(task) {
			return ex
		}
	}
	return nil
}

// execute runs one attempt of a task on a claimed executor, records the
// result either way, and re-enqueues the task while retries remain.
func (p *Pool) execute(ctx context.Context, ex *Executor, task *models.Task) {
	defer p.wg.Done()

	start := time.Now()
	result := &models.TaskResult{
		TaskID:     task.ID,
		ExecutorID: ex.ID(),
		Type:       task.Type,
	}

	var (
		output   map[string]any
		execErr  error
		panicked bool
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				execErr = fmt.Errorf("handler panic: %v", r)
				p.log.Error().Str("task_id", task.ID).Str("executor", ex.ID()).
					Any("panic", r).Str("stack", string(debug.Stack())).Msg("handler panicked")
			}
		}()
		handler, err := p.handlerFor(task.Type)
		if err != nil {
			execErr = err
			return
		}
		output, execErr = handler(ctx, task)
	}()

	elapsed := time.Since(start)
	result.ExecutionTime = elapsed
	result.Timestamp = time.Now()

	switch {
	case panicked:
		result.Error = execErr.Error()
		ex.markFailed(elapsed)
	case execErr != nil:
		result.Error = execErr.Error()
		ex.fail(elapsed)
		p.signalFreed()
	default:
		result.Success = true
		result.Result = output
		ex.complete(elapsed)
		p.signalFreed()
	}

	p.record(result)

	if !result.Success && task.RetryCount < task.MaxRetries {
		task.RetryCount++
		p.queue.Push(task)
		if p.metrics != nil {
			p.metrics.retries.Inc()
		}
		p.log.Debug().Str("task_id", task.ID).Int("retry", task.RetryCount).
			Int("max_retries", task.MaxRetries).Msg("task re-enqueued")
	}
}

// signalFreed wakes the dispatch loop after an executor returns to idle.
func (p *Pool) signalFreed() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// record archives a result to the bounded history, the persistent
// archive when attached, and the metrics counters.
func (p *Pool) record(result *models.TaskResult) {
	p.historyMu.Lock()
	if result.Success {
		p.completed = append(p.completed, result)
		if len(p.completed) > historyLimit {
			p.completed = p.completed[len(p.completed)-historyLimit:]
		}
	} else {
		p.failed = append(p.failed, result)
		if len(p.failed) > historyLimit {
			p.failed = p.failed[len(p.failed)-historyLimit:]
		}
	}
	p.historyMu.Unlock()

	if p.metrics != nil {
		if result.Success {
			p.metrics.completed.Inc()
		} else {
			p.metrics.failed.Inc()
		}
	}

	if p.archiver != nil {
		if err := p.archiver.SaveResult(result); err != nil {
			p.log.Warn().Err(err).Str("task_id", result.TaskID).Msg("archiving result failed")
		}
	}
}

// SubmitTask pushes a task onto the shared queue and returns its ID.
func (p *Pool) SubmitTask(task *models.Task) string {
	p.queue.Push(task)
	return task.ID
}

// SubmitFixTask submits a fix task for a target and issue type.
func (p *Pool) SubmitFixTask(target, issueType string, priority int) string {
	task := models.NewTask(uuid.New().String(), models.TaskFix,
		map[string]any{"target": target, "issue_type": issueType}, priority)
	return p.SubmitTask(task)
}

// SubmitCodeTask submits a code generation task.
func (p *Pool) SubmitCodeTask(action, language, specification string, priority int) string {
	task := models.NewTask(uuid.New().String(), models.TaskCode,
		map[string]any{"action": action, "language": language, "specification": specification}, priority)
	return p.SubmitTask(task)
}

// SubmitAnalyzeTask submits an analysis task.
func (p *Pool) SubmitAnalyzeTask(target, analysisType string, priority int) string {
	task := models.NewTask(uuid.New().String(), models.TaskAnalyze,
		map[string]any{"target": target, "analysis_type": analysisType}, priority)
	return p.SubmitTask(task)
}

// SubmitHealTask submits a healing task. Healing defaults to critical
// priority at the detector call sites.
func (p *Pool) SubmitHealTask(issue map[string]any, strategy string, priority int) string {
	task := models.NewTask(uuid.New().String(), models.TaskHeal,
		map[string]any{"issue": issue, "strategy": strategy}, priority)
	return p.SubmitTask(task)
}

// HandleSystemIssue converts a detected issue into exactly one
// remediation task. Submission is rate-limited but never dropped: when
// the limiter is saturated the submit is deferred, keeping the caller's
// scan loop non-blocking.
func (p *Pool) HandleSystemIssue(issue *models.DetectedIssue) {
	priority := issue.Severity.RemediationPriority()

	p.log.Info().Str("issue_type", issue.Type).Str("severity", string(issue.Severity)).
		Str("target", issue.Target).Msg("issue received, dispatching remediation")

	submit := func() { p.submitRemediation(issue, priority) }

	if p.limiter == nil {
		submit()
		return
	}
	reservation := p.limiter.Reserve()
	if !reservation.OK() {
		submit()
		return
	}
	if delay := reservation.Delay(); delay > 0 {
		time.AfterFunc(delay, submit)
		return
	}
	submit()
}

// submitRemediation routes an issue type to the matching submit helper.
func (p *Pool) submitRemediation(issue *models.DetectedIssue, priority int) {
	issuePayload := map[string]any{
		"id":          issue.ID,
		"type":        issue.Type,
		"severity":    string(issue.Severity),
		"target":      issue.Target,
		"category":    string(issue.Category),
		"description": issue.Description,
	}

	switch issue.Type {
	case "import_error", "syntax_error", "encoding_error":
		p.SubmitFixTask(issue.Target, issue.Type, priority)
	case "service_down", "health_check_failed":
		p.SubmitHealTask(issuePayload, "restart", priority)
	case "performance_degraded", "memory_high":
		p.SubmitHealTask(issuePayload, "optimize", priority)
	default:
		p.SubmitHealTask(issuePayload, "auto", priority)
	}
}

// Metrics returns a read-only snapshot of the pool. Active counts every
// executor not currently idle, so active + idle always equals the total.
func (p *Pool) Metrics() models.PoolMetrics {
	var active, idle int
	var totalTime time.Duration
	var totalCompleted int
	for _, ex := range p.executors {
		if ex.Available() {
			idle++
		} else {
			active++
		}
		completed, _, elapsed := ex.counters()
		totalCompleted += completed
		totalTime += elapsed
	}

	var avg time.Duration
	if totalCompleted > 0 {
		avg = totalTime / time.Duration(totalCompleted)
	}

	p.historyMu.Lock()
	completed := len(p.completed)
	failed := len(p.failed)
	p.historyMu.Unlock()

	return models.PoolMetrics{
		TotalExecutors:   len(p.executors),
		ActiveExecutors:  active,
		IdleExecutors:    idle,
		TasksQueued:      p.queue.Len(),
		TasksCompleted:   completed,
		TasksFailed:      failed,
		AvgExecutionTime: avg,
		Uptime:           time.Since(p.startTime),
	}
}

// Executors returns the pool's executor slots.
func (p *Pool) Executors() []*Executor {
	return p.executors
}

// ExecutorStatuses returns a snapshot of every executor.
func (p *Pool) ExecutorStatuses() []models.ExecutorStatus {
	statuses := make([]models.ExecutorStatus, 0, len(p.executors))
	for _, ex := range p.executors {
		statuses = append(statuses, ex.Status())
	}
	return statuses
}

// CompletedResults returns a copy of the success history.
func (p *Pool) CompletedResults() []*models.TaskResult {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	out := make([]*models.TaskResult, len(p.completed))
	copy(out, p.completed)
	return out
}

// FailedResults returns a copy of the failure history.
func (p *Pool) FailedResults() []*models.TaskResult {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	out := make([]*models.TaskResult, len(p.failed))
	copy(out, p.failed)
	return out
}

// ResultsFor returns every recorded attempt for a task ID, failures and
// successes, in recording order.
func (p *Pool) ResultsFor(taskID string) []*models.TaskResult {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	var out []*models.TaskResult
	for _, r := range p.failed {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	for _, r := range p.completed {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out
}
