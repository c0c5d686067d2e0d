package dispatch

import "github.com/fixpointd/fixpoint/pkg/models"

// capabilityRoutes maps external capability names to a task type, so a
// registry can select a type indirectly by name.
var capabilityRoutes = map[string]models.TaskType{
	"code_synthesis":           models.TaskCode,
	"code_analysis":            models.TaskAnalyze,
	"error_detection":          models.TaskFix,
	"system_repair":            models.TaskRepair,
	"performance_optimization": models.TaskOptimize,
	"health_monitoring":        models.TaskMonitor,
	"self_healing":             models.TaskHeal,
}

// strategyRoutes maps execution strategy names to a task type.
var strategyRoutes = map[string]models.TaskType{
	"sequential":      models.TaskCode,
	"parallel":        models.TaskAnalyze,
	"speculative":     models.TaskOptimize,
	"adversarial":     models.TaskAnalyze,
	"self_reflective": models.TaskMonitor,
	"hybrid":          models.TaskCustom,
}

// routeCapability resolves a capability name, defaulting to custom.
func routeCapability(name string) models.TaskType {
	if t, ok := capabilityRoutes[name]; ok {
		return t
	}
	return models.TaskCustom
}

// routeStrategy resolves a strategy name, defaulting to custom.
func routeStrategy(name string) models.TaskType {
	if t, ok := strategyRoutes[name]; ok {
		return t
	}
	return models.TaskCustom
}
