// Package entity provides the persisted work-item documents for crew:
// projects, features, and tasks. One small YAML document per entity, written
// atomically; this package has no behavior beyond serialization and simple
// accessors.
package entity

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskQA         TaskStatus = "qa"
	TaskCompleted  TaskStatus = "completed" // Terminal: no transition leaves it
)

// ValidTaskStatuses returns all valid task status values.
func ValidTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskPending, TaskInProgress, TaskBlocked, TaskQA, TaskCompleted}
}

// IsValidTaskStatus returns true if s is a valid task status value.
func IsValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskBlocked, TaskQA, TaskCompleted:
		return true
	default:
		return false
	}
}

// FeatureStatus represents the current state of a feature.
type FeatureStatus string

const (
	FeaturePlanning   FeatureStatus = "planning"
	FeatureApproved   FeatureStatus = "approved"
	FeatureInProgress FeatureStatus = "in_progress"
	FeatureQA         FeatureStatus = "qa"
	FeatureCompleted  FeatureStatus = "completed"
	FeatureArchived   FeatureStatus = "archived"
)

// IsValidFeatureStatus returns true if s is a valid feature status value.
func IsValidFeatureStatus(s FeatureStatus) bool {
	switch s {
	case FeaturePlanning, FeatureApproved, FeatureInProgress, FeatureQA,
		FeatureCompleted, FeatureArchived:
		return true
	default:
		return false
	}
}

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectPaused   ProjectStatus = "paused"
	ProjectArchived ProjectStatus = "archived"
	ProjectFailed   ProjectStatus = "failed"
)

// IsValidProjectStatus returns true if s is a valid project status value.
func IsValidProjectStatus(s ProjectStatus) bool {
	switch s {
	case ProjectActive, ProjectPaused, ProjectArchived, ProjectFailed:
		return true
	default:
		return false
	}
}

// Priority represents the urgency/importance of a task or feature.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// IsValidPriority returns true if p is a valid priority value.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// PriorityOrder returns a numeric value for sorting (lower = higher priority).
func PriorityOrder(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// Agent is one of the fixed agent roles a task can be assigned to.
type Agent string

const (
	AgentArchitect   Agent = "architect"
	AgentImplementer Agent = "implementer"
	AgentReviewer    Agent = "reviewer"
	AgentTester      Agent = "tester"
	AgentDocs        Agent = "docs"
)

// ValidAgents returns all valid agent roles.
func ValidAgents() []Agent {
	return []Agent{AgentArchitect, AgentImplementer, AgentReviewer, AgentTester, AgentDocs}
}

// IsValidAgent returns true if a is a valid agent role.
func IsValidAgent(a Agent) bool {
	switch a {
	case AgentArchitect, AgentImplementer, AgentReviewer, AgentTester, AgentDocs:
		return true
	default:
		return false
	}
}

// TaskType represents the category of a task.
type TaskType string

const (
	TypeFeature  TaskType = "feature"
	TypeBug      TaskType = "bug"
	TypeRefactor TaskType = "refactor"
	TypeChore    TaskType = "chore"
	TypeDocs     TaskType = "docs"
	TypeTest     TaskType = "test"
)

// IsValidTaskType returns true if tt is a valid task type.
func IsValidTaskType(tt TaskType) bool {
	switch tt {
	case TypeFeature, TypeBug, TypeRefactor, TypeChore, TypeDocs, TypeTest:
		return true
	default:
		return false
	}
}

// QAStatus represents the state of a QA sub-record.
type QAStatus string

const (
	QAPending QAStatus = "pending"
	QAPassed  QAStatus = "passed"
	QAFailed  QAStatus = "failed"
)
