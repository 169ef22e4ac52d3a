package entity

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	crewerr "github.com/agentcrew/crew/internal/errors"
	"github.com/agentcrew/crew/internal/util"
)

const (
	// CrewDir is the workspace dot-directory.
	CrewDir = ".crew"
	// ProjectsDir is the subdirectory for project trees.
	ProjectsDir = "projects"
	// FeaturesDir is the subdirectory for features within a project.
	FeaturesDir = "features"
	// TasksDir is the subdirectory for task documents within a feature.
	TasksDir = "tasks"
)

// Store reads and writes entity documents under a workspace root.
// Every save stamps updated_at and goes through an atomic write.
type Store struct {
	root string
}

// NewStore creates a store rooted at the given workspace directory
// (the directory containing .crew/).
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the workspace root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the .crew directory path.
func (s *Store) Dir() string {
	return filepath.Join(s.root, CrewDir)
}

// Initialized returns true if the workspace has a .crew directory.
func (s *Store) Initialized() bool {
	info, err := os.Stat(s.Dir())
	return err == nil && info.IsDir()
}

// ProjectDir returns the directory for a project.
func (s *Store) ProjectDir(projectID string) string {
	return filepath.Join(s.Dir(), ProjectsDir, projectID)
}

// ProjectPath returns the document path for a project.
func (s *Store) ProjectPath(projectID string) string {
	return filepath.Join(s.ProjectDir(projectID), "project.yaml")
}

// FeatureDir returns the directory for a feature.
func (s *Store) FeatureDir(projectID, featureID string) string {
	return filepath.Join(s.ProjectDir(projectID), FeaturesDir, featureID)
}

// FeaturePath returns the document path for a feature.
func (s *Store) FeaturePath(projectID, featureID string) string {
	return filepath.Join(s.FeatureDir(projectID, featureID), "feature.yaml")
}

// TaskPath returns the document path for a task.
func (s *Store) TaskPath(projectID, featureID, taskID string) string {
	return filepath.Join(s.FeatureDir(projectID, featureID), TasksDir, taskID+".yaml")
}

// readDoc reads and unmarshals a single document into out.
func readDoc(path, kind, id string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return crewerr.ErrEntityNotFound(kind, id)
		}
		return fmt.Errorf("read %s %s: %w", kind, id, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return crewerr.ErrCorruptDocument(path, err)
	}
	return nil
}

// writeDoc marshals and atomically writes a single document.
func writeDoc(path string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// LoadProject loads a project document by ID.
func (s *Store) LoadProject(projectID string) (*Project, error) {
	var p Project
	if err := readDoc(s.ProjectPath(projectID), "project", projectID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProject persists a project document.
func (s *Store) SaveProject(p *Project) error {
	p.UpdatedAt = time.Now().UTC()
	return writeDoc(s.ProjectPath(p.ID), p)
}

// LoadProjects loads all project documents. Corrupt documents are logged
// and skipped so one bad file cannot poison a whole listing.
func (s *Store) LoadProjects() ([]*Project, error) {
	entries, err := os.ReadDir(filepath.Join(s.Dir(), ProjectsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read projects directory: %w", err)
	}

	var projects []*Project
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := s.LoadProject(entry.Name())
		if err != nil {
			slog.Warn("skipping unreadable project document", "project", entry.Name(), "error", err)
			continue
		}
		projects = append(projects, p)
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

// LoadFeature loads a feature document by ID.
func (s *Store) LoadFeature(projectID, featureID string) (*Feature, error) {
	var f Feature
	if err := readDoc(s.FeaturePath(projectID, featureID), "feature", featureID, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SaveFeature persists a feature document.
func (s *Store) SaveFeature(f *Feature) error {
	f.UpdatedAt = time.Now().UTC()
	return writeDoc(s.FeaturePath(f.ProjectID, f.ID), f)
}

// LoadFeatures loads all features owned by a project, skipping corrupt
// documents with a warning.
func (s *Store) LoadFeatures(projectID string) ([]*Feature, error) {
	entries, err := os.ReadDir(filepath.Join(s.ProjectDir(projectID), FeaturesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read features directory: %w", err)
	}

	var features []*Feature
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		f, err := s.LoadFeature(projectID, entry.Name())
		if err != nil {
			slog.Warn("skipping unreadable feature document", "feature", entry.Name(), "error", err)
			continue
		}
		features = append(features, f)
	}

	sort.Slice(features, func(i, j int) bool { return features[i].ID < features[j].ID })
	return features, nil
}

// LoadTask loads a task document by ID.
func (s *Store) LoadTask(projectID, featureID, taskID string) (*Task, error) {
	var t Task
	if err := readDoc(s.TaskPath(projectID, featureID, taskID), "task", taskID, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTask persists a task document. The task's FeatureID names its owner.
func (s *Store) SaveTask(projectID string, t *Task) error {
	t.UpdatedAt = time.Now().UTC()
	return writeDoc(s.TaskPath(projectID, t.FeatureID, t.ID), t)
}

// LoadTasks loads all tasks owned by a feature, skipping corrupt documents
// with a warning.
func (s *Store) LoadTasks(projectID, featureID string) ([]*Task, error) {
	dir := filepath.Join(s.FeatureDir(projectID, featureID), TasksDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks directory: %w", err)
	}

	var tasks []*Task
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		t, err := s.LoadTask(projectID, featureID, strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			slog.Warn("skipping unreadable task document", "task", name, "error", err)
			continue
		}
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// TaskLocation identifies where a task document lives.
type TaskLocation struct {
	ProjectID string
	FeatureID string
}

// FindTask locates a task by ID across all projects and features. Task IDs
// are unique workspace-wide, so the first match wins.
func (s *Store) FindTask(taskID string) (*Task, *TaskLocation, error) {
	projects, err := s.LoadProjects()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range projects {
		features, err := s.LoadFeatures(p.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range features {
			path := s.TaskPath(p.ID, f.ID, taskID)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			t, err := s.LoadTask(p.ID, f.ID, taskID)
			if err != nil {
				return nil, nil, err
			}
			return t, &TaskLocation{ProjectID: p.ID, FeatureID: f.ID}, nil
		}
	}
	return nil, nil, crewerr.ErrEntityNotFound("task", taskID)
}

// FindFeature locates a feature by ID across all projects.
func (s *Store) FindFeature(featureID string) (*Feature, error) {
	projects, err := s.LoadProjects()
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		f, err := s.LoadFeature(p.ID, featureID)
		if err == nil {
			return f, nil
		}
	}
	return nil, crewerr.ErrEntityNotFound("feature", featureID)
}

var idPattern = regexp.MustCompile(`^(?:TASK|FEAT|PROJ)-(\d+)$`)

// nextID computes the next unused numeric suffix (max existing + 1) for the
// given prefix over a list of existing IDs.
func nextID(prefix string, existing []string) string {
	maxNum := 0
	for _, id := range existing {
		matches := idPattern.FindStringSubmatch(id)
		if len(matches) == 2 && strings.HasPrefix(id, prefix) {
			num, _ := strconv.Atoi(matches[1])
			if num > maxNum {
				maxNum = num
			}
		}
	}
	return fmt.Sprintf("%s-%03d", prefix, maxNum+1)
}

// NextTaskID generates the next task ID within a feature. It scans document
// filenames rather than parsed documents so a corrupt task file still
// reserves its numeric suffix.
func (s *Store) NextTaskID(projectID, featureID string) (string, error) {
	dir := filepath.Join(s.FeatureDir(projectID, featureID), TasksDir)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read tasks directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	return nextID("TASK", ids), nil
}

// NextFeatureID generates the next feature ID within a project. Like
// NextTaskID it scans directory names rather than parsed documents, so a
// corrupt feature.yaml still reserves its numeric suffix instead of being
// overwritten by the next create.
func (s *Store) NextFeatureID(projectID string) (string, error) {
	dir := filepath.Join(s.ProjectDir(projectID), FeaturesDir)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read features directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		ids = append(ids, entry.Name())
	}
	return nextID("FEAT", ids), nil
}

// NextProjectID generates the next project ID in the workspace, scanning
// directory names for the same corrupt-document tolerance as NextFeatureID.
func (s *Store) NextProjectID() (string, error) {
	dir := filepath.Join(s.Dir(), ProjectsDir)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read projects directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		ids = append(ids, entry.Name())
	}
	return nextID("PROJ", ids), nil
}
