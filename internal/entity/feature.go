package entity

import "time"

// PhaseGroup names a phase within a feature's plan. Tasks reference phases
// by number.
type PhaseGroup struct {
	Number int    `yaml:"number" json:"number"`
	Name   string `yaml:"name" json:"name"`
}

// Feature is a unit of scope within a project, composed of tasks.
type Feature struct {
	ID        string        `yaml:"id" json:"id"`
	ProjectID string        `yaml:"project_id" json:"project_id"`
	Slug      string        `yaml:"slug" json:"slug"`
	Title     string        `yaml:"title" json:"title"`
	Status    FeatureStatus `yaml:"status" json:"status"`
	Priority  Priority      `yaml:"priority,omitempty" json:"priority,omitempty"`

	// Phases groups the feature's tasks into ordered phases.
	Phases []PhaseGroup `yaml:"phases,omitempty" json:"phases,omitempty"`

	// Docs holds pointers to design/spec documents for the feature.
	Docs []string `yaml:"docs,omitempty" json:"docs,omitempty"`

	// QA gates the feature's completion: when Required is true, completing
	// the last task leaves the feature in its current status until a QA
	// pass is recorded and completion is requested explicitly.
	QA QARecord `yaml:"qa" json:"qa"`

	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// NewFeature creates a new feature in planning status.
func NewFeature(id, projectID, slug, title string) *Feature {
	now := time.Now().UTC()
	return &Feature{
		ID:        id,
		ProjectID: projectID,
		Slug:      slug,
		Title:     title,
		Status:    FeaturePlanning,
		Priority:  PriorityNormal,
		QA:        QARecord{Status: QAPending},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetPriority returns the feature's priority, defaulting to normal.
func (f *Feature) GetPriority() Priority {
	if f.Priority == "" {
		return PriorityNormal
	}
	return f.Priority
}
