package decompose

import (
	"strings"
	"time"

	"github.com/fixpointd/fixpoint/pkg/models"
)

// patternLibrary maps a named decomposition pattern to its step templates.
// Step templates are snake_case; they are title-cased and customized with
// payload terms when subtasks are generated.
var patternLibrary = map[string][]string{
	"code_generation": {
		"analyze_requirements",
		"design_structure",
		"implement_core",
		"add_tests",
		"document",
	},
	"bug_fixing": {
		"reproduce_issue",
		"identify_root_cause",
		"design_fix",
		"implement_fix",
		"test_fix",
		"verify_fix",
	},
	"refactoring": {
		"analyze_current_code",
		"identify_refactoring_opportunities",
		"plan_refactoring",
		"execute_refactoring",
		"verify_functionality",
	},
	"optimization": {
		"profile_performance",
		"identify_bottlenecks",
		"design_optimization",
		"implement_optimization",
		"measure_improvement",
	},
}

// genericSteps is the fallback pattern for tasks matching no library entry.
var genericSteps = []string{
	"analyze_requirements",
	"design_solution",
	"implement_solution",
	"test_solution",
	"verify_solution",
}

// typePatterns maps a task type to its default pattern when the payload
// names none explicitly.
var typePatterns = map[models.TaskType]string{
	models.TaskCode:     "code_generation",
	models.TaskFix:      "bug_fixing",
	models.TaskOptimize: "optimization",
	models.TaskAnalyze:  "code_generation",
}

// Keyword groups used to infer subtask attributes from descriptions.
var (
	fixWords      = []string{"fix", "bug", "error", "issue"}
	analyzeWords  = []string{"analyze", "examine", "review"}
	optimizeWords = []string{"optimize", "improve", "enhance"}
	verifyWords   = []string{"test", "verify", "validate"}

	criticalWords   = []string{"critical", "core", "essential", "foundation"}
	sequentialWords = []string{"requires", "before", "after", "then", "next", "followed"}
	conflictWords   = []string{"conflicts", "cannot", "incompatible"}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// inferType picks a subtask type from description keywords, falling back
// to the parent task's type.
func inferType(description string, parent models.TaskType) models.TaskType {
	desc := strings.ToLower(description)
	switch {
	case containsAny(desc, fixWords):
		return models.TaskFix
	case containsAny(desc, analyzeWords):
		return models.TaskAnalyze
	case containsAny(desc, optimizeWords):
		return models.TaskOptimize
	case containsAny(desc, verifyWords):
		return models.TaskMonitor
	default:
		return parent
	}
}

// inferPriority reduces the parent priority proportionally to position,
// so earlier subtasks dispatch first, with a boost for critical steps.
func inferPriority(description string, parentPriority, index, total int) int {
	adjustment := (total - index) * 2
	if containsAny(strings.ToLower(description), criticalWords) {
		adjustment += 5
	}
	return models.ClampPriority(parentPriority - adjustment/total)
}

// inferDuration estimates a subtask's running time from its description.
func inferDuration(description string) time.Duration {
	desc := strings.ToLower(description)
	switch {
	case containsAny(desc, []string{"analyze", "examine"}):
		return 5 * time.Second
	case containsAny(desc, []string{"design", "plan"}):
		return 10 * time.Second
	case containsAny(desc, []string{"implement", "create", "build"}):
		return 30 * time.Second
	case containsAny(desc, []string{"test", "verify"}):
		return 15 * time.Second
	default:
		return 10 * time.Second
	}
}

// titleCase renders a snake_case step template as a readable description.
func titleCase(template string) string {
	parts := strings.Split(template, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
