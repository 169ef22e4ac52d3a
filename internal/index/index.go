// Package index builds the derived aggregation documents: per-feature and
// per-project indexes plus the workspace dashboard. Index documents are pure
// projections of the entity documents and can always be rebuilt from scratch;
// nothing reads them back as a source of truth.
package index

import (
	"sort"
	"time"

	"github.com/agentcrew/crew/internal/deps"
	"github.com/agentcrew/crew/internal/entity"
)

const (
	// IndexFileName is the derived index document inside a feature or
	// project directory.
	IndexFileName = "index.yaml"
	// DashboardFileName is the workspace-level dashboard document.
	DashboardFileName = "dashboard.yaml"
)

// FeatureIndex aggregates the tasks of one feature.
type FeatureIndex struct {
	FeatureID   string               `yaml:"feature_id" json:"feature_id"`
	ProjectID   string               `yaml:"project_id" json:"project_id"`
	Status      entity.FeatureStatus `yaml:"status" json:"status"`
	GeneratedAt time.Time            `yaml:"generated_at" json:"generated_at"`

	TotalTasks int                          `yaml:"total_tasks" json:"total_tasks"`
	TaskCounts map[entity.TaskStatus]int    `yaml:"task_counts" json:"task_counts"`
	ByAgent    map[entity.Agent][]string    `yaml:"by_agent,omitempty" json:"by_agent,omitempty"`
	ByPhase    map[int][]string             `yaml:"by_phase,omitempty" json:"by_phase,omitempty"`
	ByPriority map[entity.Priority][]string `yaml:"by_priority,omitempty" json:"by_priority,omitempty"`

	// BlockedBy maps each not-yet-completed task to its unmet dependencies.
	// Tasks with no unmet dependencies do not appear.
	BlockedBy map[string][]string `yaml:"blocked_by,omitempty" json:"blocked_by,omitempty"`

	// NextTaskID is the ID the next created task in this feature will get.
	NextTaskID string `yaml:"next_task_id" json:"next_task_id"`
}

// ProjectIndex aggregates the features (and their task totals) of one project.
type ProjectIndex struct {
	ProjectID   string               `yaml:"project_id" json:"project_id"`
	Status      entity.ProjectStatus `yaml:"status" json:"status"`
	GeneratedAt time.Time            `yaml:"generated_at" json:"generated_at"`

	TotalFeatures int                          `yaml:"total_features" json:"total_features"`
	FeatureCounts map[entity.FeatureStatus]int `yaml:"feature_counts" json:"feature_counts"`
	ByPriority    map[entity.Priority][]string `yaml:"by_priority,omitempty" json:"by_priority,omitempty"`

	TotalTasks int                       `yaml:"total_tasks" json:"total_tasks"`
	TaskCounts map[entity.TaskStatus]int `yaml:"task_counts" json:"task_counts"`
}

// Dashboard is the workspace-wide rollup across all projects.
type Dashboard struct {
	GeneratedAt time.Time `yaml:"generated_at" json:"generated_at"`

	TotalProjects int                          `yaml:"total_projects" json:"total_projects"`
	ProjectCounts map[entity.ProjectStatus]int `yaml:"project_counts" json:"project_counts"`

	TotalFeatures int                          `yaml:"total_features" json:"total_features"`
	FeatureCounts map[entity.FeatureStatus]int `yaml:"feature_counts" json:"feature_counts"`

	TotalTasks int                       `yaml:"total_tasks" json:"total_tasks"`
	TaskCounts map[entity.TaskStatus]int `yaml:"task_counts" json:"task_counts"`
}

// BuildFeatureIndex computes a feature index from the feature document and
// its loaded tasks. nextTaskID is the next available task ID in the feature.
// The computation is deterministic: two builds over the same inputs differ
// only in GeneratedAt.
func BuildFeatureIndex(f *entity.Feature, tasks []*entity.Task, nextTaskID string) *FeatureIndex {
	idx := &FeatureIndex{
		FeatureID:   f.ID,
		ProjectID:   f.ProjectID,
		Status:      f.Status,
		GeneratedAt: time.Now().UTC(),
		TotalTasks:  len(tasks),
		TaskCounts:  zeroTaskCounts(),
		NextTaskID:  nextTaskID,
	}

	byAgent := make(map[entity.Agent][]string)
	byPhase := make(map[int][]string)
	byPriority := make(map[entity.Priority][]string)
	blockedBy := make(map[string][]string)
	siblings := deps.TaskMap(tasks)

	for _, t := range tasks {
		idx.TaskCounts[t.Status]++
		byAgent[t.Agent] = append(byAgent[t.Agent], t.ID)
		byPhase[t.Phase] = append(byPhase[t.Phase], t.ID)
		byPriority[t.GetPriority()] = append(byPriority[t.GetPriority()], t.ID)
		if !t.IsTerminal() {
			if unmet := deps.Unmet(t, siblings); len(unmet) > 0 {
				blockedBy[t.ID] = unmet
			}
		}
	}

	sortGroups(byAgent)
	sortGroups(byPhase)
	sortGroups(byPriority)

	if len(byAgent) > 0 {
		idx.ByAgent = byAgent
	}
	if len(byPhase) > 0 {
		idx.ByPhase = byPhase
	}
	if len(byPriority) > 0 {
		idx.ByPriority = byPriority
	}
	if len(blockedBy) > 0 {
		idx.BlockedBy = blockedBy
	}
	return idx
}

// BuildProjectIndex folds already-built feature indexes into a project index.
func BuildProjectIndex(p *entity.Project, features []*entity.Feature, featureIndexes []*FeatureIndex) *ProjectIndex {
	idx := &ProjectIndex{
		ProjectID:     p.ID,
		Status:        p.Status,
		GeneratedAt:   time.Now().UTC(),
		TotalFeatures: len(features),
		FeatureCounts: zeroFeatureCounts(),
		TaskCounts:    zeroTaskCounts(),
	}

	byPriority := make(map[entity.Priority][]string)
	for _, f := range features {
		idx.FeatureCounts[f.Status]++
		byPriority[f.GetPriority()] = append(byPriority[f.GetPriority()], f.ID)
	}
	sortGroups(byPriority)
	if len(byPriority) > 0 {
		idx.ByPriority = byPriority
	}

	for _, fi := range featureIndexes {
		idx.TotalTasks += fi.TotalTasks
		for status, n := range fi.TaskCounts {
			idx.TaskCounts[status] += n
		}
	}
	return idx
}

// BuildDashboard folds project indexes into the workspace dashboard.
func BuildDashboard(projects []*entity.Project, projectIndexes []*ProjectIndex) *Dashboard {
	d := &Dashboard{
		GeneratedAt:   time.Now().UTC(),
		TotalProjects: len(projects),
		ProjectCounts: zeroProjectCounts(),
		FeatureCounts: zeroFeatureCounts(),
		TaskCounts:    zeroTaskCounts(),
	}

	for _, p := range projects {
		d.ProjectCounts[p.Status]++
	}
	for _, pi := range projectIndexes {
		d.TotalFeatures += pi.TotalFeatures
		for status, n := range pi.FeatureCounts {
			d.FeatureCounts[status] += n
		}
		d.TotalTasks += pi.TotalTasks
		for status, n := range pi.TaskCounts {
			d.TaskCounts[status] += n
		}
	}
	return d
}

// zeroTaskCounts returns a counts map with every status present so index
// documents keep a stable shape even when a bucket is empty.
func zeroTaskCounts() map[entity.TaskStatus]int {
	counts := make(map[entity.TaskStatus]int, len(entity.ValidTaskStatuses()))
	for _, s := range entity.ValidTaskStatuses() {
		counts[s] = 0
	}
	return counts
}

func zeroFeatureCounts() map[entity.FeatureStatus]int {
	return map[entity.FeatureStatus]int{
		entity.FeaturePlanning:   0,
		entity.FeatureApproved:   0,
		entity.FeatureInProgress: 0,
		entity.FeatureQA:         0,
		entity.FeatureCompleted:  0,
		entity.FeatureArchived:   0,
	}
}

func zeroProjectCounts() map[entity.ProjectStatus]int {
	return map[entity.ProjectStatus]int{
		entity.ProjectActive:   0,
		entity.ProjectPaused:   0,
		entity.ProjectArchived: 0,
		entity.ProjectFailed:   0,
	}
}

func sortGroups[K comparable](groups map[K][]string) {
	for _, ids := range groups {
		sort.Strings(ids)
	}
}
