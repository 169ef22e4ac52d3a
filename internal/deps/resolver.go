// Package deps computes task readiness and validates dependency graphs.
//
// A task is ready when every task in its depends_on list is completed. A
// missing dependency document counts as unmet: the safe interpretation of a
// dangling reference is "not done yet". Cycle detection runs on every
// dependency edit so a cycle can never reach disk.
package deps

import (
	"sort"

	"github.com/agentcrew/crew/internal/entity"
	crewerr "github.com/agentcrew/crew/internal/errors"
)

// IsReady returns true iff every dependency of task is completed. A task
// with zero dependencies is always ready.
func IsReady(task *entity.Task, siblings map[string]*entity.Task) bool {
	return len(Unmet(task, siblings)) == 0
}

// Unmet returns the subset of task's dependencies that are not yet
// completed, in depends_on order. The result populates the blocked_by
// diagnostic in index documents.
func Unmet(task *entity.Task, siblings map[string]*entity.Task) []string {
	var unmet []string
	for _, depID := range task.DependsOn {
		dep, exists := siblings[depID]
		if !exists || dep.Status != entity.TaskCompleted {
			unmet = append(unmet, depID)
		}
	}
	return unmet
}

// DetectCycle runs depth-first cycle detection over the depends_on graph of
// the given tasks. It returns the cycle path in order, or nil if the graph
// is acyclic.
func DetectCycle(tasks []*entity.Task) []string {
	graph := make(map[string][]string, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		graph[t.ID] = append([]string(nil), t.DependsOn...)
		ids = append(ids, t.ID)
	}
	sort.Strings(ids) // deterministic traversal order

	visited := make(map[string]bool)
	for _, id := range ids {
		if cycle := dfsCycle(id, graph, visited); cycle != nil {
			return cycle
		}
	}
	return nil
}

// dfsCycle performs DFS from start, returning a reconstructed cycle path if
// one is reachable.
func dfsCycle(start string, graph map[string][]string, visited map[string]bool) []string {
	onPath := make(map[string]bool)
	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		if onPath[id] {
			cyclePath = append(cyclePath, id)
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		onPath[id] = true

		for _, dep := range graph[id] {
			if dfs(dep) {
				cyclePath = append(cyclePath, id)
				return true
			}
		}

		onPath[id] = false
		return false
	}

	if !dfs(start) {
		return nil
	}
	// Reverse so the path reads in dependency order.
	for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
		cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
	}
	// The DFS records every ancestor back to start; drop the lead-in so the
	// path begins at the repeated node and names only cycle members.
	repeated := cyclePath[len(cyclePath)-1]
	for i, id := range cyclePath {
		if id == repeated {
			return cyclePath[i:]
		}
	}
	return cyclePath
}

// ValidateEdit checks whether replacing taskID's dependency list with
// newDeps keeps the feature's graph valid. It rejects self-dependencies,
// references to unknown tasks, and edits that would introduce a cycle.
func ValidateEdit(taskID string, newDeps []string, tasks map[string]*entity.Task) error {
	for _, depID := range newDeps {
		if depID == taskID {
			return crewerr.ErrCycleDetected(taskID, []string{taskID, taskID})
		}
		if _, exists := tasks[depID]; !exists {
			return crewerr.ErrEntityNotFound("task", depID)
		}
	}

	// Re-run detection over a copy of the graph with the edit applied.
	edited := make([]*entity.Task, 0, len(tasks)+1)
	found := false
	for _, t := range tasks {
		if t.ID == taskID {
			clone := *t
			clone.DependsOn = append([]string(nil), newDeps...)
			edited = append(edited, &clone)
			found = true
			continue
		}
		edited = append(edited, t)
	}
	if !found {
		return crewerr.ErrEntityNotFound("task", taskID)
	}

	if cycle := DetectCycle(edited); cycle != nil {
		return crewerr.ErrCycleDetected(taskID, cycle)
	}
	return nil
}

// ComputeBlocks returns the IDs of tasks that list taskID in depends_on,
// sorted. This is the stored inverse edge kept current on dependency edits.
func ComputeBlocks(taskID string, all []*entity.Task) []string {
	var blocks []string
	for _, t := range all {
		for _, dep := range t.DependsOn {
			if dep == taskID {
				blocks = append(blocks, t.ID)
				break
			}
		}
	}
	sort.Strings(blocks)
	return blocks
}

// TaskMap builds an ID-keyed map from a task slice.
func TaskMap(tasks []*entity.Task) map[string]*entity.Task {
	m := make(map[string]*entity.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}
