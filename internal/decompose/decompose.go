// Package decompose breaks compound tasks into dependency-ordered subtasks.
//
// Decomposition is deterministic: the same task and context always yield
// the same subtasks, dependency graph, and execution order. No external
// services are involved; the breakdown is driven by a pattern library
// and keyword matching.
package decompose

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fixpointd/fixpoint/internal/graph"
	"github.com/fixpointd/fixpoint/pkg/models"
)

// ErrCycleDetected is returned when inferred dependencies form a cycle.
// Decomposition fails fast rather than guessing a resolution.
var ErrCycleDetected = graph.ErrCycleDetected

// historyLimit bounds the retained decomposition history.
const historyLimit = 100

// Decomposer breaks compound tasks into subtasks with a dependency graph
// and a topologically valid execution order.
type Decomposer struct {
	mu      sync.Mutex
	history []*models.Decomposition
}

// New creates a new Decomposer.
func New() *Decomposer {
	return &Decomposer{}
}

// Decompose breaks a compound task into subtasks. The context map may
// carry caller hints; it is currently advisory and does not change the
// breakdown, which keeps decomposition deterministic per task.
func (d *Decomposer) Decompose(task *models.Task, context map[string]any) (*models.Decomposition, error) {
	decompositionID := uuid.New().String()

	dec := &models.Decomposition{
		ID:              decompositionID,
		Task:            task,
		DependencyGraph: map[string][]string{},
	}

	text := payloadText(task)

	if clauses := splitClauses(text); len(clauses) > 1 {
		d.buildClauseSubtasks(dec, task, clauses)
	} else {
		pattern := identifyPattern(task, text)
		steps := generateSteps(task, pattern)
		d.buildTemplateSubtasks(dec, task, steps)
	}

	for _, st := range dec.Subtasks {
		dec.DependencyGraph[st.ID] = st.DependsOn
	}

	g := graph.New()
	if err := g.Build(dec.Subtasks); err != nil {
		return nil, fmt.Errorf("decompose task %s: %w", task.ID, err)
	}
	order, err := g.Groups()
	if err != nil {
		return nil, fmt.Errorf("decompose task %s: %w", task.ID, err)
	}
	dec.ExecutionOrder = order
	dec.TotalEstimatedDuration = totalDuration(dec)

	d.mu.Lock()
	d.history = append(d.history, dec)
	if len(d.history) > historyLimit {
		d.history = d.history[len(d.history)-historyLimit:]
	}
	d.mu.Unlock()

	return dec, nil
}

// clause is one fragment of an explicit conjunction chain, with its
// sequence stage. Clauses in the same stage run in parallel; a later
// stage depends on every clause of the previous one.
type clause struct {
	text  string
	stage int
}

// splitClauses breaks payload text written as an explicit chain
// ("A then B", "A and B") into ordered clauses. Returns nil when the
// text is not a chain, in which case template decomposition applies.
func splitClauses(text string) []clause {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var clauses []clause
	for stage, segment := range splitKeyword(trimmed, "then") {
		for _, part := range splitKeyword(segment, "and") {
			part = strings.TrimSpace(part)
			if part != "" {
				clauses = append(clauses, clause{text: part, stage: stage})
			}
		}
	}
	if len(clauses) < 2 {
		return nil
	}
	return clauses
}

// splitKeyword splits on a standalone lowercase keyword surrounded by spaces.
func splitKeyword(s, keyword string) []string {
	return strings.Split(s, " "+keyword+" ")
}

// buildClauseSubtasks creates one subtask per clause. "then" boundaries
// become REQUIRES edges on the whole previous stage; "and" siblings stay
// parallel.
func (d *Decomposer) buildClauseSubtasks(dec *models.Decomposition, task *models.Task, clauses []clause) {
	total := len(clauses)
	stageIDs := map[int][]string{}

	for i, c := range clauses {
		st := &models.Subtask{
			ID:                fmt.Sprintf("%s-sub-%d", dec.ID, i),
			ParentTaskID:      task.ID,
			Description:       c.text,
			Type:              inferType(c.text, task.Type),
			Priority:          inferPriority(c.text, task.Priority, i, total),
			EstimatedDuration: inferDuration(c.text),
			CanParallelize:    true,
		}
		if prev, ok := stageIDs[c.stage-1]; ok {
			st.DependsOn = append(st.DependsOn, prev...)
		}
		stageIDs[c.stage] = append(stageIDs[c.stage], st.ID)
		dec.Subtasks = append(dec.Subtasks, st)
	}
}

// buildTemplateSubtasks creates subtasks from pattern step templates and
// infers dependencies from description markers.
func (d *Decomposer) buildTemplateSubtasks(dec *models.Decomposition, task *models.Task, steps []string) {
	total := len(steps)
	for i, desc := range steps {
		st := &models.Subtask{
			ID:                fmt.Sprintf("%s-sub-%d", dec.ID, i),
			ParentTaskID:      task.ID,
			Description:       desc,
			Type:              inferType(desc, task.Type),
			Priority:          inferPriority(desc, task.Priority, i, total),
			EstimatedDuration: inferDuration(desc),
			CanParallelize:    canParallelize(desc),
		}
		dec.Subtasks = append(dec.Subtasks, st)
	}
	inferDependencies(dec.Subtasks)
}

// identifyPattern classifies the task against the pattern library by
// payload keywords first, then by task type.
func identifyPattern(task *models.Task, text string) string {
	lower := strings.ToLower(text)
	names := make([]string, 0, len(patternLibrary))
	for name := range patternLibrary {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(lower, name) || strings.Contains(strings.ToLower(string(task.Type)), name) {
			return name
		}
	}
	if p, ok := typePatterns[task.Type]; ok {
		return p
	}
	return "general"
}

// generateSteps renders the pattern's step templates, customized with
// payload terms when present.
func generateSteps(task *models.Task, pattern string) []string {
	base, ok := patternLibrary[pattern]
	if !ok {
		base = genericSteps
	}

	target, _ := task.Payload["target"].(string)
	action, _ := task.Payload["action"].(string)

	steps := make([]string, 0, len(base))
	for _, template := range base {
		desc := titleCase(template)
		switch {
		case target != "":
			desc = fmt.Sprintf("%s for %s", desc, target)
		case action != "":
			desc = fmt.Sprintf("%s to %s", desc, action)
		}
		steps = append(steps, desc)
	}
	return steps
}

// canParallelize vetoes parallelism for steps that name an ordering.
func canParallelize(description string) bool {
	desc := strings.ToLower(description)
	return !containsAny(desc, []string{"requires", "depends", "after", "then"})
}

// inferDependencies runs the pairwise description scan. A "requires"
// marker with shared concept words adds a REQUIRES edge; a sequential
// marker makes a step require its predecessor; conflict markers veto
// parallelism on both sides without adding an edge.
func inferDependencies(subtasks []*models.Subtask) {
	for i, st := range subtasks {
		desc := strings.ToLower(st.Description)

		if containsAny(desc, conflictWords) {
			st.CanParallelize = false
			if i > 0 {
				subtasks[i-1].CanParallelize = false
			}
			continue
		}

		if strings.Contains(desc, "requires") {
			concepts := conceptWords(desc)
			for j, other := range subtasks {
				if i == j {
					continue
				}
				if sharesConcept(strings.ToLower(other.Description), concepts) {
					st.DependsOn = appendUnique(st.DependsOn, other.ID)
				}
			}
			continue
		}

		if containsAny(desc, sequentialWords) && i > 0 {
			st.DependsOn = appendUnique(st.DependsOn, subtasks[i-1].ID)
		}
	}
}

// conceptWords extracts candidate concept terms, skipping marker words.
func conceptWords(desc string) []string {
	var concepts []string
	for _, w := range strings.Fields(desc) {
		if len(w) < 4 || containsAny(w, sequentialWords) {
			continue
		}
		concepts = append(concepts, w)
	}
	return concepts
}

func sharesConcept(desc string, concepts []string) bool {
	for _, c := range concepts {
		if strings.Contains(desc, c) {
			return true
		}
	}
	return false
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// payloadText flattens string payload values in key order, so complexity
// checks and clause splitting see a stable rendering.
func payloadText(task *models.Task) string {
	keys := make([]string, 0, len(task.Payload))
	for k := range task.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if s, ok := task.Payload[k].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// totalDuration sums the longest subtask of each parallel group.
func totalDuration(dec *models.Decomposition) time.Duration {
	var total time.Duration
	for _, group := range dec.ExecutionOrder {
		var longest time.Duration
		for _, id := range group {
			if st := dec.Subtask(id); st != nil && st.EstimatedDuration > longest {
				longest = st.EstimatedDuration
			}
		}
		total += longest
	}
	return total
}

// History returns the retained decompositions, most recent last.
func (d *Decomposer) History() []*models.Decomposition {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*models.Decomposition, len(d.history))
	copy(out, d.history)
	return out
}

// Status summarizes decomposer activity for diagnostics.
func (d *Decomposer) Status() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	patterns := make([]string, 0, len(patternLibrary))
	for name := range patternLibrary {
		patterns = append(patterns, name)
	}
	sort.Strings(patterns)

	var avg float64
	if len(d.history) > 0 {
		var sum int
		for _, dec := range d.history {
			sum += len(dec.Subtasks)
		}
		avg = float64(sum) / float64(len(d.history))
	}

	return map[string]any{
		"decompositions_performed": len(d.history),
		"patterns_available":       patterns,
		"average_subtasks":         avg,
	}
}
