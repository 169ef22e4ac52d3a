package entity

import "time"

// Project is a top-level unit of work. Aggregate metrics (counts of features
// and tasks by status) live in the derived project index, never here; the
// project document stays small and authoritative.
type Project struct {
	ID        string        `yaml:"id" json:"id"`
	Name      string        `yaml:"name" json:"name"`
	Status    ProjectStatus `yaml:"status" json:"status"`
	CreatedAt time.Time     `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time     `yaml:"updated_at" json:"updated_at"`
}

// NewProject creates a new active project.
func NewProject(id, name string) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:        id,
		Name:      name,
		Status:    ProjectActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsArchived returns true if the project has been archived. Projects are
// never deleted from disk, only archived.
func (p *Project) IsArchived() bool {
	return p.Status == ProjectArchived
}
