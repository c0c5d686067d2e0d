// Package graph provides the subtask dependency graph used during
// decomposition and scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"

	"github.com/fixpointd/fixpoint/pkg/models"
)

// ErrCycleDetected indicates a circular dependency in the subtask graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of subtasks. Nodes are
// subtasks; edges point at the subtasks a node requires.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps subtask ID to the subtask itself.
	nodes map[string]*models.Subtask
	// edges maps subtask ID to the IDs it depends on.
	edges map[string][]string
	// order preserves insertion order so traversals are deterministic.
	order []string
	// completed tracks which subtasks have been marked complete.
	completed map[string]bool
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Subtask),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// Build constructs the graph from a slice of subtasks. It returns an
// error if a dependency references an unknown subtask or a cycle exists.
func (g *DependencyGraph) Build(subtasks []*models.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, st := range subtasks {
		if _, dup := g.nodes[st.ID]; !dup {
			g.order = append(g.order, st.ID)
		}
		g.nodes[st.ID] = st
		g.edges[st.ID] = nil
	}

	for _, st := range subtasks {
		for _, depID := range st.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("subtask %s depends on unknown subtask %s", st.ID, depID)
			}
			g.edges[st.ID] = append(g.edges[st.ID], depID)
		}
	}

	if _, err := g.sortedLocked(); err != nil {
		return err
	}
	return nil
}

// Validate runs a topological sort over the whole graph and returns the
// linear order, or ErrCycleDetected.
func (g *DependencyGraph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedLocked()
}

// sortedLocked sorts the graph with gammazero/toposort. Assumes the lock
// is held. A result shorter than the node count means a cycle swallowed
// part of the graph.
func (g *DependencyGraph) sortedLocked() ([]string, error) {
	var edges []toposort.Edge
	for _, id := range g.order {
		deps := g.edges[id]
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range deps {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, ErrCycleDetected
	}

	order := make([]string, 0, len(g.nodes))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(g.nodes) {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// Groups batches the graph into parallel execution groups. Each group
// holds the entire zero-in-degree frontier at that step; every subtask
// appears in exactly one group and all of its dependencies lie in
// strictly earlier groups. Returns ErrCycleDetected if any subtasks
// remain unscheduled.
func (g *DependencyGraph) Groups() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		inDegree[id] = len(g.edges[id])
	}

	// dependents is the reverse adjacency for frontier advancement.
	dependents := make(map[string][]string, len(g.nodes))
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			dependents[depID] = append(dependents[depID], id)
		}
	}

	var ready []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	var groups [][]string
	scheduled := 0
	for len(ready) > 0 {
		group := ready
		ready = nil
		sort.Strings(group)
		groups = append(groups, group)
		scheduled += len(group)

		for _, id := range group {
			for _, depID := range dependents[id] {
				inDegree[depID]--
				if inDegree[depID] == 0 {
					ready = append(ready, depID)
				}
			}
		}
	}

	if scheduled != len(g.nodes) {
		return nil, ErrCycleDetected
	}
	return groups, nil
}

// GetReady returns subtask IDs with no unmet dependencies that are not
// yet completed. These may execute in parallel.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] {
			continue
		}
		satisfied := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkComplete marks a subtask as completed, affecting later GetReady calls.
func (g *DependencyGraph) MarkComplete(subtaskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[subtaskID] = true
}

// GetSubtask returns the subtask for a given ID, or nil.
func (g *DependencyGraph) GetSubtask(subtaskID string) *models.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[subtaskID]
}

// Size returns the number of subtasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs the given subtask depends on.
func (g *DependencyGraph) GetDependencies(subtaskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[subtaskID]
}

// GetDependents returns the IDs of subtasks that depend on the given one.
func (g *DependencyGraph) GetDependents(subtaskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == subtaskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}
