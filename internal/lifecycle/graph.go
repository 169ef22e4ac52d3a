// Package lifecycle drives task and feature status transitions. Every edge
// lives in a fixed graph; anything not listed fails with an invalid
// transition error rather than being coerced. Entry to in_progress is gated
// on dependency readiness and file lock acquisition, and entry to completed
// releases locks and re-checks the owning feature.
package lifecycle

import "github.com/agentcrew/crew/internal/entity"

// taskGraph lists the legal target statuses for each task status.
// completed is terminal.
var taskGraph = map[entity.TaskStatus][]entity.TaskStatus{
	entity.TaskPending:    {entity.TaskInProgress},
	entity.TaskInProgress: {entity.TaskBlocked, entity.TaskQA, entity.TaskCompleted},
	entity.TaskBlocked:    {entity.TaskPending, entity.TaskInProgress},
	entity.TaskQA:         {entity.TaskCompleted, entity.TaskInProgress},
	entity.TaskCompleted:  {},
}

// featureGraph lists the legal target statuses for each feature status.
var featureGraph = map[entity.FeatureStatus][]entity.FeatureStatus{
	entity.FeaturePlanning:   {entity.FeatureApproved},
	entity.FeatureApproved:   {entity.FeatureInProgress},
	entity.FeatureInProgress: {entity.FeatureQA, entity.FeatureCompleted},
	entity.FeatureQA:         {entity.FeatureCompleted, entity.FeatureInProgress},
	entity.FeatureCompleted:  {entity.FeatureArchived},
	entity.FeatureArchived:   {},
}

// CanTransitionTask reports whether the from→to edge exists in the task
// transition graph.
func CanTransitionTask(from, to entity.TaskStatus) bool {
	for _, target := range taskGraph[from] {
		if target == to {
			return true
		}
	}
	return false
}

// TaskTargets returns the legal target statuses from the given status.
func TaskTargets(from entity.TaskStatus) []entity.TaskStatus {
	return append([]entity.TaskStatus(nil), taskGraph[from]...)
}

// CanTransitionFeature reports whether the from→to edge exists in the
// feature transition graph.
func CanTransitionFeature(from, to entity.FeatureStatus) bool {
	for _, target := range featureGraph[from] {
		if target == to {
			return true
		}
	}
	return false
}

// FeatureTargets returns the legal target statuses from the given status.
func FeatureTargets(from entity.FeatureStatus) []entity.FeatureStatus {
	return append([]entity.FeatureStatus(nil), featureGraph[from]...)
}
