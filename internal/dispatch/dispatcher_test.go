package dispatch

import (
	"errors"
	"strings"
	"testing"

	"github.com/fixpointd/fixpoint/internal/decompose"
	"github.com/fixpointd/fixpoint/pkg/models"
)

func newTestDispatcher() *Dispatcher {
	return New(NewQueue(), Options{Decomposer: decompose.New()})
}

func TestDispatch_SimpleTask(t *testing.T) {
	d := newTestDispatcher()
	task := models.NewTask("t1", models.TaskFix, map[string]any{"description": "fix the parser"}, 3)

	id, err := d.Dispatch(task)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if id != "t1" {
		t.Errorf("Dispatch ID = %q, want t1", id)
	}
	if d.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", d.PendingCount())
	}
	if got := d.GetNextTask(); got == nil || got.ID != "t1" {
		t.Errorf("GetNextTask = %v, want t1", got)
	}
}

func TestDispatch_PriorityOrderAcrossTasks(t *testing.T) {
	d := newTestDispatcher()
	if _, err := d.Dispatch(models.NewTask("background", models.TaskAnalyze, map[string]any{"description": "routine sweep"}, 10)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if _, err := d.Dispatch(models.NewTask("urgent", models.TaskFix, map[string]any{"description": "hotfix"}, 1)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if got := d.GetNextTask(); got.ID != "urgent" {
		t.Errorf("GetNextTask = %s, want urgent", got.ID)
	}
	if got := d.GetNextTask(); got.ID != "background" {
		t.Errorf("GetNextTask = %s, want background", got.ID)
	}
}

func TestDispatch_CompoundTaskDecomposes(t *testing.T) {
	d := newTestDispatcher()
	task := models.NewTask("t1", models.TaskCustom, map[string]any{
		"description": "analyze the auth module then fix the session bug then verify the login flow",
	}, 4)

	id, err := d.Dispatch(task)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if id != "decomposed:t1" {
		t.Errorf("Dispatch ID = %q, want decomposed:t1", id)
	}
	if d.PendingCount() != 3 {
		t.Fatalf("PendingCount = %d, want 3 subtasks", d.PendingCount())
	}

	sub := d.GetNextTask()
	if sub == nil {
		t.Fatal("GetNextTask returned nil")
	}
	if sub.Metadata["parent_task_id"] != "t1" {
		t.Errorf("parent_task_id = %v, want t1", sub.Metadata["parent_task_id"])
	}
	if sub.Metadata["decomposition_id"] == nil {
		t.Error("decomposition_id should be set on subtasks")
	}
	if desc, _ := sub.Payload["description"].(string); !strings.Contains(desc, "analyze") {
		t.Errorf("First subtask description = %q, want the analyze clause", desc)
	}
}

func TestDispatch_LongPayloadIsCompound(t *testing.T) {
	d := New(NewQueue(), Options{Decomposer: decompose.New(), ComplexPayloadLength: 20})
	task := models.NewTask("t1", models.TaskFix, map[string]any{
		"description": "repair the request parser in the ingestion path",
	}, 3)

	id, err := d.Dispatch(task)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !strings.HasPrefix(id, "decomposed:") {
		t.Errorf("Dispatch ID = %q, want decomposed: prefix for a long payload", id)
	}
}

func TestDispatch_NilDecomposerNeverDecomposes(t *testing.T) {
	d := New(NewQueue(), Options{ComplexPayloadLength: 5})
	task := models.NewTask("t1", models.TaskFix, map[string]any{"description": "a payload well past the limit"}, 3)

	id, err := d.Dispatch(task)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if id != "t1" {
		t.Errorf("Dispatch ID = %q, want t1 when no decomposer is set", id)
	}
}

type failingDecomposer struct{ err error }

func (f *failingDecomposer) Decompose(task *models.Task, context map[string]any) (*models.Decomposition, error) {
	return nil, f.err
}

func TestDispatch_DecompositionErrorReturned(t *testing.T) {
	wantErr := errors.New("circular dependency detected")
	d := New(NewQueue(), Options{Decomposer: &failingDecomposer{err: wantErr}, ComplexPayloadLength: 5})
	task := models.NewTask("t1", models.TaskFix, map[string]any{"description": "long enough payload"}, 3)

	_, err := d.Dispatch(task)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Dispatch error = %v, want wrapped %v", err, wantErr)
	}
	if d.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0 after a failed decomposition", d.PendingCount())
	}
}

func TestDispatchFix(t *testing.T) {
	d := newTestDispatcher()
	if _, err := d.DispatchFix("parser.go", "syntax_error", 2); err != nil {
		t.Fatalf("DispatchFix failed: %v", err)
	}

	task := d.GetNextTask()
	if task.Type != models.TaskFix {
		t.Errorf("Type = %q, want fix", task.Type)
	}
	if task.Payload["target"] != "parser.go" || task.Payload["issue_type"] != "syntax_error" {
		t.Errorf("Payload = %v, want target and issue_type set", task.Payload)
	}
	if task.Priority != 2 {
		t.Errorf("Priority = %d, want 2", task.Priority)
	}
}

func TestDispatchByCapability(t *testing.T) {
	d := newTestDispatcher()
	cases := []struct {
		capability string
		want       models.TaskType
	}{
		{"code_synthesis", models.TaskCode},
		{"error_detection", models.TaskFix},
		{"self_healing", models.TaskHeal},
		{"unknown_capability", models.TaskCustom},
	}
	for _, tc := range cases {
		if _, err := d.DispatchByCapability(tc.capability, nil, 5); err != nil {
			t.Fatalf("DispatchByCapability(%s) failed: %v", tc.capability, err)
		}
		task := d.GetNextTask()
		if task.Type != tc.want {
			t.Errorf("Capability %s routed to %q, want %q", tc.capability, task.Type, tc.want)
		}
		if task.Payload["capability"] != tc.capability {
			t.Errorf("Payload capability = %v, want %s", task.Payload["capability"], tc.capability)
		}
	}
}

func TestDispatchByStrategy(t *testing.T) {
	d := newTestDispatcher()
	cases := []struct {
		strategy string
		want     models.TaskType
	}{
		{"sequential", models.TaskCode},
		{"parallel", models.TaskAnalyze},
		{"hybrid", models.TaskCustom},
		{"unknown", models.TaskCustom},
	}
	for _, tc := range cases {
		if _, err := d.DispatchByStrategy(tc.strategy, nil, 5); err != nil {
			t.Fatalf("DispatchByStrategy(%s) failed: %v", tc.strategy, err)
		}
		task := d.GetNextTask()
		if task.Type != tc.want {
			t.Errorf("Strategy %s routed to %q, want %q", tc.strategy, task.Type, tc.want)
		}
	}
}

func TestDispatchBatch(t *testing.T) {
	d := newTestDispatcher()
	tasks := []*models.Task{
		models.NewTask("a", models.TaskFix, map[string]any{"description": "one"}, 5),
		models.NewTask("b", models.TaskCode, map[string]any{"description": "two"}, 5),
	}
	ids, err := d.DispatchBatch(tasks)
	if err != nil {
		t.Fatalf("DispatchBatch failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs = %v, want [a b]", ids)
	}
}

func TestStatus(t *testing.T) {
	d := newTestDispatcher()
	if _, err := d.Dispatch(models.NewTask("t1", models.TaskFix, map[string]any{"description": "one"}, 5)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	status := d.Status()
	if status.PendingTasks != 1 {
		t.Errorf("PendingTasks = %d, want 1", status.PendingTasks)
	}
	if status.HistorySize != 1 {
		t.Errorf("HistorySize = %d, want 1", status.HistorySize)
	}
	if status.CapabilityRoutes == 0 || status.StrategyRoutes == 0 {
		t.Error("Route counts should be non-zero")
	}
}
