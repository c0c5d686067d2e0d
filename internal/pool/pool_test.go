package pool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixpointd/fixpoint/internal/dispatch"
	"github.com/fixpointd/fixpoint/pkg/models"
)

func newTestPool(executors int) (*Pool, *dispatch.Queue) {
	queue := dispatch.NewQueue()
	p := New(Config{Executors: executors, Queue: queue, Logger: zerolog.Nop()})
	return p, queue
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestPool_ExecutesTask(t *testing.T) {
	p, _ := newTestPool(2)
	p.RegisterHandler(models.TaskCode, func(ctx context.Context, task *models.Task) (map[string]any, error) {
		return map[string]any{"generated": true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.SubmitTask(models.NewTask("t1", models.TaskCode, nil, 5))

	waitFor(t, func() bool { return len(p.CompletedResults()) == 1 }, "task completion")

	results := p.CompletedResults()
	r := results[0]
	if r.TaskID != "t1" {
		t.Errorf("TaskID = %q, want t1", r.TaskID)
	}
	if !r.Success {
		t.Error("Result should be successful")
	}
	if r.Result["generated"] != true {
		t.Errorf("Result payload = %v, want generated=true", r.Result)
	}
	if r.ExecutorID == "" {
		t.Error("ExecutorID should be recorded")
	}
}

func TestPool_RetriesFailedTask(t *testing.T) {
	p, queue := newTestPool(2)
	p.RegisterHandler(models.TaskFix, func(ctx context.Context, task *models.Task) (map[string]any, error) {
		return nil, errors.New("transient failure")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	task := models.NewTask("t1", models.TaskFix, nil, 5)
	task.MaxRetries = 2
	p.SubmitTask(task)

	// MaxRetries=2 means 3 attempts total, then the task is abandoned.
	waitFor(t, func() bool { return len(p.FailedResults()) == 3 }, "retry exhaustion")

	time.Sleep(50 * time.Millisecond)
	if got := len(p.FailedResults()); got != 3 {
		t.Errorf("Attempts = %d, want exactly 3", got)
	}
	if queue.Len() != 0 {
		t.Errorf("Queue should be drained, has %d", queue.Len())
	}
	if got := len(p.ResultsFor("t1")); got != 3 {
		t.Errorf("ResultsFor = %d attempts, want 3", got)
	}
}

func TestPool_RetrySucceedsEventually(t *testing.T) {
	p, _ := newTestPool(1)
	attempts := 0
	p.RegisterHandler(models.TaskFix, func(ctx context.Context, task *models.Task) (map[string]any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("not yet")
		}
		return map[string]any{"fixed": true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.SubmitTask(models.NewTask("t1", models.TaskFix, nil, 5))

	waitFor(t, func() bool { return len(p.CompletedResults()) == 1 }, "eventual success")
	if got := len(p.FailedResults()); got != 2 {
		t.Errorf("Failed attempts = %d, want 2", got)
	}
}

func TestPool_NoHandlerFails(t *testing.T) {
	p, _ := newTestPool(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	task := models.NewTask("t1", models.TaskRepair, nil, 5)
	task.MaxRetries = 0
	p.SubmitTask(task)

	waitFor(t, func() bool { return len(p.FailedResults()) == 1 }, "missing-handler failure")
	if r := p.FailedResults()[0]; !strings.Contains(r.Error, "no handler registered") {
		t.Errorf("Error = %q, should mention missing handler", r.Error)
	}
}

func TestPool_CustomHandlerFallback(t *testing.T) {
	p, _ := newTestPool(1)
	p.RegisterHandler(models.TaskCustom, func(ctx context.Context, task *models.Task) (map[string]any, error) {
		return map[string]any{"fallback": true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.SubmitTask(models.NewTask("t1", models.TaskRepair, nil, 5))

	waitFor(t, func() bool { return len(p.CompletedResults()) == 1 }, "fallback completion")
	if r := p.CompletedResults()[0]; r.Result["fallback"] != true {
		t.Errorf("Result = %v, want fallback handler output", r.Result)
	}
}

func TestPool_PanicMarksExecutorFailed(t *testing.T) {
	p, _ := newTestPool(1)
	p.RegisterHandler(models.TaskCode, func(ctx context.Context, task *models.Task) (map[string]any, error) {
		panic("corrupted state")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	task := models.NewTask("t1", models.TaskCode, nil, 5)
	task.MaxRetries = 0
	p.SubmitTask(task)

	waitFor(t, func() bool { return len(p.FailedResults()) == 1 }, "panic failure")

	r := p.FailedResults()[0]
	if !strings.Contains(r.Error, "handler panic") {
		t.Errorf("Error = %q, should record the panic", r.Error)
	}

	// The executor stays failed until a health-monitor reset.
	ex := p.Executors()[0]
	waitFor(t, func() bool { return ex.Status().State == models.ExecutorFailed }, "failed state")
	if ex.Available() {
		t.Error("Failed executor should not be available")
	}

	m := p.Metrics()
	if m.ActiveExecutors+m.IdleExecutors != m.TotalExecutors {
		t.Errorf("active %d + idle %d should equal total %d", m.ActiveExecutors, m.IdleExecutors, m.TotalExecutors)
	}
	if m.IdleExecutors != 0 {
		t.Errorf("IdleExecutors = %d, want 0 while the only slot is failed", m.IdleExecutors)
	}
}

func TestPool_MetricsInvariant(t *testing.T) {
	p, _ := newTestPool(3)
	p.RegisterHandler(models.TaskCode, func(ctx context.Context, task *models.Task) (map[string]any, error) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	for i := 0; i < 5; i++ {
		p.SubmitCodeTask("generate", "go", "small job", 5)
	}
	waitFor(t, func() bool { return len(p.CompletedResults()) == 5 }, "all completions")

	m := p.Metrics()
	if m.TotalExecutors != 3 {
		t.Errorf("TotalExecutors = %d, want 3", m.TotalExecutors)
	}
	if m.ActiveExecutors+m.IdleExecutors != m.TotalExecutors {
		t.Errorf("active %d + idle %d should equal total %d", m.ActiveExecutors, m.IdleExecutors, m.TotalExecutors)
	}
	if m.TasksCompleted != 5 {
		t.Errorf("TasksCompleted = %d, want 5", m.TasksCompleted)
	}
	if m.TasksQueued != 0 {
		t.Errorf("TasksQueued = %d, want 0", m.TasksQueued)
	}
}

func TestHandleSystemIssue_RoutesByType(t *testing.T) {
	cases := []struct {
		issueType    string
		severity     models.IssueSeverity
		wantType     models.TaskType
		wantPriority int
		wantStrategy string
	}{
		{"import_error", models.SeverityCritical, models.TaskFix, 1, ""},
		{"syntax_error", models.SeverityMedium, models.TaskFix, 5, ""},
		{"service_down", models.SeverityCritical, models.TaskHeal, 1, "restart"},
		{"health_check_failed", models.SeverityHigh, models.TaskHeal, 3, "restart"},
		{"memory_high", models.SeverityHigh, models.TaskHeal, 3, "optimize"},
		{"performance_degraded", models.SeverityMedium, models.TaskHeal, 5, "optimize"},
		{"unknown_weirdness", models.SeverityLow, models.TaskHeal, 5, "auto"},
	}

	for _, tc := range cases {
		p, queue := newTestPool(1)
		p.HandleSystemIssue(&models.DetectedIssue{
			ID:       "i1",
			Type:     tc.issueType,
			Severity: tc.severity,
			Target:   "target-1",
			Category: models.CategorySystem,
		})

		if queue.Len() != 1 {
			t.Fatalf("%s: queue has %d tasks, want exactly 1", tc.issueType, queue.Len())
		}
		task := queue.Pop()
		if task.Type != tc.wantType {
			t.Errorf("%s: task type = %q, want %q", tc.issueType, task.Type, tc.wantType)
		}
		if task.Priority != tc.wantPriority {
			t.Errorf("%s: priority = %d, want %d", tc.issueType, task.Priority, tc.wantPriority)
		}
		if tc.wantStrategy != "" && task.Payload["strategy"] != tc.wantStrategy {
			t.Errorf("%s: strategy = %v, want %s", tc.issueType, task.Payload["strategy"], tc.wantStrategy)
		}
	}
}

func TestHandleSystemIssue_RateLimitedNeverDrops(t *testing.T) {
	queue := dispatch.NewQueue()
	p := New(Config{
		Executors:        1,
		Queue:            queue,
		Logger:           zerolog.Nop(),
		RemediationRate:  50,
		RemediationBurst: 1,
	})

	for i := 0; i < 3; i++ {
		p.HandleSystemIssue(&models.DetectedIssue{
			ID:       "i1",
			Type:     "service_down",
			Severity: models.SeverityHigh,
			Target:   "svc",
		})
	}

	// Submissions past the burst are deferred, not dropped.
	waitFor(t, func() bool { return queue.Len() == 3 }, "all remediations enqueued")
}

func TestExecutor_TryAssignIsExclusive(t *testing.T) {
	ex := newExecutor(0)
	task := models.NewTask("t1", models.TaskCode, nil, 5)

	if !ex.tryAssign(task) {
		t.Fatal("First tryAssign should succeed")
	}
	if ex.tryAssign(task) {
		t.Error("Second tryAssign should fail while executing")
	}

	ex.complete(time.Millisecond)
	if !ex.Available() {
		t.Error("Executor should be idle after completion")
	}
	if !ex.tryAssign(task) {
		t.Error("tryAssign should succeed again after completion")
	}
}

func TestExecutor_StatusSnapshot(t *testing.T) {
	ex := newExecutor(7)
	if ex.ID() != "EX-0007" {
		t.Errorf("ID = %q, want EX-0007", ex.ID())
	}

	task := models.NewTask("t1", models.TaskCode, nil, 5)
	ex.tryAssign(task)

	status := ex.Status()
	if status.State != models.ExecutorExecuting {
		t.Errorf("State = %q, want executing", status.State)
	}
	if status.CurrentTaskID != "t1" {
		t.Errorf("CurrentTaskID = %q, want t1", status.CurrentTaskID)
	}
}
