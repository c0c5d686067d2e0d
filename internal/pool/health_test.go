package pool

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixpointd/fixpoint/pkg/models"
)

func TestHealthMonitor_ResetsFailedExecutor(t *testing.T) {
	p, _ := newTestPool(3)
	monitor := NewHealthMonitor(p, time.Hour, time.Hour, zerolog.Nop())

	p.Executors()[1].MarkFailed()

	restarted := monitor.CheckOnce()
	if restarted != 1 {
		t.Fatalf("CheckOnce restarted %d, want 1", restarted)
	}

	for i, ex := range p.Executors() {
		if !ex.Available() {
			t.Errorf("Executor %d should be idle after the healing pass", i)
		}
	}
}

func TestHealthMonitor_ResetClearsState(t *testing.T) {
	p, _ := newTestPool(1)
	monitor := NewHealthMonitor(p, time.Hour, time.Hour, zerolog.Nop())

	ex := p.Executors()[0]
	ex.tryAssign(models.NewTask("t1", models.TaskCode, nil, 5))
	ex.markFailed(time.Second)

	status := ex.Status()
	if status.TasksFailed != 1 || status.CurrentTaskID != "t1" {
		t.Fatalf("Precondition: status = %+v", status)
	}

	monitor.CheckOnce()

	status = ex.Status()
	if status.State != models.ExecutorIdle {
		t.Errorf("State = %q, want idle", status.State)
	}
	if status.TasksFailed != 0 || status.TasksCompleted != 0 {
		t.Errorf("Counters should be zeroed, got %+v", status)
	}
	if status.CurrentTaskID != "" {
		t.Errorf("CurrentTaskID = %q, want cleared", status.CurrentTaskID)
	}
}

func TestHealthMonitor_ResetsStaleExecutor(t *testing.T) {
	p, _ := newTestPool(1)
	monitor := NewHealthMonitor(p, time.Hour, time.Millisecond, zerolog.Nop())

	ex := p.Executors()[0]
	ex.tryAssign(models.NewTask("t1", models.TaskCode, nil, 5))
	time.Sleep(10 * time.Millisecond)

	if restarted := monitor.CheckOnce(); restarted != 1 {
		t.Fatalf("CheckOnce restarted %d, want 1 for a stale executor", restarted)
	}
	if !ex.Available() {
		t.Error("Stale executor should be idle after reset")
	}
}

func TestHealthMonitor_LeavesHealthyAlone(t *testing.T) {
	p, _ := newTestPool(2)
	monitor := NewHealthMonitor(p, time.Hour, time.Hour, zerolog.Nop())

	// One idle, one actively executing well within the stale window.
	p.Executors()[1].tryAssign(models.NewTask("t1", models.TaskCode, nil, 5))

	if restarted := monitor.CheckOnce(); restarted != 0 {
		t.Errorf("CheckOnce restarted %d, want 0", restarted)
	}
	if p.Executors()[1].Status().State != models.ExecutorExecuting {
		t.Error("Executing executor should keep its task")
	}
}

func TestHealthMonitor_WakesDispatchLoop(t *testing.T) {
	p, queue := newTestPool(1)
	monitor := NewHealthMonitor(p, time.Hour, time.Hour, zerolog.Nop())

	done := make(chan map[string]any, 1)
	p.RegisterHandler(models.TaskCode, func(ctx context.Context, task *models.Task) (map[string]any, error) {
		out := map[string]any{"task": task.ID}
		done <- out
		return out, nil
	})

	// The only slot is failed, so the queued task cannot be assigned.
	p.Executors()[0].MarkFailed()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	queue.Push(models.NewTask("t1", models.TaskCode, nil, 5))
	time.Sleep(20 * time.Millisecond)

	select {
	case <-done:
		t.Fatal("Task should not run while the only executor is failed")
	default:
	}

	// Healing frees the slot and wakes the dispatch loop.
	if restarted := monitor.CheckOnce(); restarted != 1 {
		t.Fatalf("CheckOnce restarted %d, want 1", restarted)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Task should execute after the executor is healed")
	}
}

func TestHealthMonitor_RunStopsOnCancel(t *testing.T) {
	p, _ := newTestPool(1)
	monitor := NewHealthMonitor(p, time.Millisecond, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- monitor.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
