package entity

import (
	"sort"
	"time"
)

// FileSet is the set of file paths a task has declared write intent on.
// Entries may be literal paths or doublestar glob patterns.
type FileSet struct {
	Create []string `yaml:"create,omitempty" json:"create,omitempty"`
	Modify []string `yaml:"modify,omitempty" json:"modify,omitempty"`
	Delete []string `yaml:"delete,omitempty" json:"delete,omitempty"`
}

// All returns the union of all declared paths, deduplicated and sorted.
func (f FileSet) All() []string {
	seen := make(map[string]bool)
	var all []string
	for _, group := range [][]string{f.Create, f.Modify, f.Delete} {
		for _, p := range group {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			all = append(all, p)
		}
	}
	sort.Strings(all)
	return all
}

// ProgressEntry is one immutable record in a task's append-only progress log.
type ProgressEntry struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Agent     Agent     `yaml:"agent" json:"agent"`
	Action    string    `yaml:"action,omitempty" json:"action,omitempty"`
	Note      string    `yaml:"note,omitempty" json:"note,omitempty"`
}

// QARecord is the QA sub-record of a task or feature.
type QARecord struct {
	Required  bool     `yaml:"required" json:"required"`
	Status    QAStatus `yaml:"status,omitempty" json:"status,omitempty"`
	Checklist []string `yaml:"checklist,omitempty" json:"checklist,omitempty"`
}

// Task is the atomic unit of schedulable work, owned by a feature.
type Task struct {
	ID        string     `yaml:"id" json:"id"`
	FeatureID string     `yaml:"feature_id" json:"feature_id"`
	Title     string     `yaml:"title" json:"title"`
	Agent     Agent      `yaml:"agent" json:"agent"`
	Status    TaskStatus `yaml:"status" json:"status"`
	Priority  Priority   `yaml:"priority,omitempty" json:"priority,omitempty"`
	Type      TaskType   `yaml:"type,omitempty" json:"type,omitempty"`
	Phase     int        `yaml:"phase,omitempty" json:"phase,omitempty"`

	// DependsOn lists task IDs that must be completed before this task can
	// start. User-editable; edits are validated for cycles.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// Blocks lists task IDs waiting on this task. Maintained as the inverse
	// of DependsOn when dependencies are edited.
	Blocks []string `yaml:"blocks,omitempty" json:"blocks,omitempty"`

	// Files is the declared set of paths this task will create/modify/delete.
	// The lock manager acquires locks over the union before the task starts.
	Files FileSet `yaml:"files,omitempty" json:"files,omitempty"`

	// Instructions is free-form context handed to the executing agent.
	Instructions string `yaml:"instructions,omitempty" json:"instructions,omitempty"`

	// Progress is the append-only log of transitions and agent notes.
	// Never edited or truncated.
	Progress []ProgressEntry `yaml:"progress,omitempty" json:"progress,omitempty"`

	QA QARecord `yaml:"qa" json:"qa"`

	CreatedAt   time.Time  `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `yaml:"updated_at" json:"updated_at"`
	StartedAt   *time.Time `yaml:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// NewTask creates a new pending task owned by the given feature.
func NewTask(id, featureID, title string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        id,
		FeatureID: featureID,
		Title:     title,
		Agent:     AgentImplementer,
		Status:    TaskPending,
		Priority:  PriorityNormal,
		Type:      TypeFeature,
		QA:        QARecord{Status: QAPending},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetPriority returns the task's priority, defaulting to normal if not set.
func (t *Task) GetPriority() Priority {
	if t.Priority == "" {
		return PriorityNormal
	}
	return t.Priority
}

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted
}

// AppendProgress appends an immutable entry to the progress log.
func (t *Task) AppendProgress(agent Agent, action, note string) {
	t.Progress = append(t.Progress, ProgressEntry{
		Timestamp: time.Now().UTC(),
		Agent:     agent,
		Action:    action,
		Note:      note,
	})
}
