package models

import "time"

// Subtask is one decomposition unit of a compound task.
type Subtask struct {
	// ID is the unique identifier for this subtask.
	ID string `json:"subtask_id"`
	// ParentTaskID is the compound task this subtask was derived from.
	ParentTaskID string `json:"parent_task_id"`
	// Description is the human-readable step description.
	Description string `json:"description"`
	// Type selects the handler for the subtask when dispatched.
	Type TaskType `json:"task_type"`
	// Priority orders the subtask relative to its siblings.
	Priority int `json:"priority"`
	// EstimatedDuration is a keyword-derived running time estimate.
	EstimatedDuration time.Duration `json:"estimated_duration_ms"`
	// DependsOn lists sibling subtask IDs that must complete first.
	DependsOn []string `json:"dependencies,omitempty"`
	// CanParallelize reports whether this subtask may share a group.
	CanParallelize bool `json:"can_parallelize"`
}

// Decomposition is the full breakdown of a compound task.
type Decomposition struct {
	// ID is the unique identifier for this decomposition.
	ID string `json:"decomposition_id"`
	// Task is the original compound task.
	Task *Task `json:"original_task"`
	// Subtasks lists the decomposition units in generation order.
	Subtasks []*Subtask `json:"subtasks"`
	// DependencyGraph maps subtask ID to the IDs it requires.
	DependencyGraph map[string][]string `json:"dependency_graph"`
	// ExecutionOrder lists parallel groups in dependency order. Every
	// subtask appears in exactly one group, and all of its dependencies
	// lie in strictly earlier groups.
	ExecutionOrder [][]string `json:"execution_order"`
	// TotalEstimatedDuration is the critical-path estimate: the sum over
	// groups of the longest subtask in each group.
	TotalEstimatedDuration time.Duration `json:"total_estimated_duration_ms"`
}

// Subtask returns the subtask with the given ID, or nil.
func (d *Decomposition) Subtask(id string) *Subtask {
	for _, st := range d.Subtasks {
		if st.ID == id {
			return st
		}
	}
	return nil
}
