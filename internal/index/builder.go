package index

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/agentcrew/crew/internal/entity"
	"github.com/agentcrew/crew/internal/events"
	"github.com/agentcrew/crew/internal/util"
)

// maxConcurrentRebuilds bounds the errgroup fan-out so a large workspace
// doesn't open hundreds of directories at once.
const maxConcurrentRebuilds = 8

// Builder rebuilds index documents from entity documents. Rebuilds are
// bottom-up: features before their project, projects before the dashboard.
type Builder struct {
	store *entity.Store
	pub   events.Publisher
}

// NewBuilder creates a builder over the given store. pub may be nil when no
// event stream is wanted.
func NewBuilder(store *entity.Store, pub events.Publisher) *Builder {
	if pub == nil {
		pub = events.NoOpPublisher{}
	}
	return &Builder{store: store, pub: pub}
}

// FeatureIndexPath returns the path of a feature's index document.
func (b *Builder) FeatureIndexPath(projectID, featureID string) string {
	return filepath.Join(b.store.FeatureDir(projectID, featureID), IndexFileName)
}

// ProjectIndexPath returns the path of a project's index document.
func (b *Builder) ProjectIndexPath(projectID string) string {
	return filepath.Join(b.store.ProjectDir(projectID), IndexFileName)
}

// DashboardPath returns the path of the workspace dashboard document.
func (b *Builder) DashboardPath() string {
	return filepath.Join(b.store.Dir(), DashboardFileName)
}

// RebuildFeature recomputes and writes one feature's index. Corrupt task
// documents are skipped by the store with a warning; they still reserve
// their ID but do not contribute to counts.
func (b *Builder) RebuildFeature(projectID, featureID string) (*FeatureIndex, error) {
	f, err := b.store.LoadFeature(projectID, featureID)
	if err != nil {
		return nil, err
	}
	tasks, err := b.store.LoadTasks(projectID, featureID)
	if err != nil {
		return nil, err
	}
	nextTaskID, err := b.store.NextTaskID(projectID, featureID)
	if err != nil {
		return nil, err
	}

	idx := BuildFeatureIndex(f, tasks, nextTaskID)
	if err := writeIndexDoc(b.FeatureIndexPath(projectID, featureID), idx); err != nil {
		return nil, err
	}
	b.pub.Publish(events.NewEvent(events.EventIndexRebuilt, featureID, map[string]any{
		"scope":   "feature",
		"project": projectID,
	}))
	return idx, nil
}

// RebuildProject rebuilds all of a project's feature indexes concurrently,
// then folds them into the project index and writes it.
func (b *Builder) RebuildProject(projectID string) (*ProjectIndex, error) {
	p, err := b.store.LoadProject(projectID)
	if err != nil {
		return nil, err
	}
	features, err := b.store.LoadFeatures(projectID)
	if err != nil {
		return nil, err
	}

	featureIndexes := make([]*FeatureIndex, len(features))
	var g errgroup.Group
	g.SetLimit(maxConcurrentRebuilds)
	for i, f := range features {
		g.Go(func() error {
			fi, err := b.RebuildFeature(projectID, f.ID)
			if err != nil {
				return fmt.Errorf("rebuild feature %s: %w", f.ID, err)
			}
			featureIndexes[i] = fi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := BuildProjectIndex(p, features, featureIndexes)
	if err := writeIndexDoc(b.ProjectIndexPath(projectID), idx); err != nil {
		return nil, err
	}
	b.pub.Publish(events.NewEvent(events.EventIndexRebuilt, projectID, map[string]any{
		"scope": "project",
	}))
	return idx, nil
}

// RebuildDashboard folds the on-disk project indexes into the dashboard.
// A project whose index is missing or unreadable is rebuilt first, so the
// dashboard never silently undercounts.
func (b *Builder) RebuildDashboard() (*Dashboard, error) {
	projects, err := b.store.LoadProjects()
	if err != nil {
		return nil, err
	}

	projectIndexes := make([]*ProjectIndex, len(projects))
	var g errgroup.Group
	g.SetLimit(maxConcurrentRebuilds)
	for i, p := range projects {
		g.Go(func() error {
			pi, err := b.LoadProjectIndex(p.ID)
			if err != nil {
				slog.Debug("project index unavailable, rebuilding", "project", p.ID, "error", err)
				pi, err = b.RebuildProject(p.ID)
				if err != nil {
					return fmt.Errorf("rebuild project %s: %w", p.ID, err)
				}
			}
			projectIndexes[i] = pi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := BuildDashboard(projects, projectIndexes)
	if err := writeIndexDoc(b.DashboardPath(), d); err != nil {
		return nil, err
	}
	b.pub.Publish(events.NewEvent(events.EventIndexRebuilt, events.GlobalEntityID, map[string]any{
		"scope": "dashboard",
	}))
	return d, nil
}

// RebuildAll rebuilds every index document in the workspace from scratch,
// bottom-up, and returns the resulting dashboard.
func (b *Builder) RebuildAll() (*Dashboard, error) {
	projects, err := b.store.LoadProjects()
	if err != nil {
		return nil, err
	}

	projectIndexes := make([]*ProjectIndex, len(projects))
	var g errgroup.Group
	g.SetLimit(maxConcurrentRebuilds)
	for i, p := range projects {
		g.Go(func() error {
			pi, err := b.RebuildProject(p.ID)
			if err != nil {
				return fmt.Errorf("rebuild project %s: %w", p.ID, err)
			}
			projectIndexes[i] = pi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := BuildDashboard(projects, projectIndexes)
	if err := writeIndexDoc(b.DashboardPath(), d); err != nil {
		return nil, err
	}
	b.pub.Publish(events.NewEvent(events.EventIndexRebuilt, events.GlobalEntityID, map[string]any{
		"scope": "all",
	}))
	return d, nil
}

// LoadFeatureIndex reads a feature index document from disk.
func (b *Builder) LoadFeatureIndex(projectID, featureID string) (*FeatureIndex, error) {
	var idx FeatureIndex
	if err := readIndexDoc(b.FeatureIndexPath(projectID, featureID), &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// LoadProjectIndex reads a project index document from disk.
func (b *Builder) LoadProjectIndex(projectID string) (*ProjectIndex, error) {
	var idx ProjectIndex
	if err := readIndexDoc(b.ProjectIndexPath(projectID), &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// Dashboard returns the on-disk dashboard, rebuilding it when missing or
// unreadable. Index documents are disposable, so an unreadable one is a
// rebuild trigger rather than an error.
func (b *Builder) Dashboard() (*Dashboard, error) {
	var d Dashboard
	if err := readIndexDoc(b.DashboardPath(), &d); err != nil {
		return b.RebuildDashboard()
	}
	return &d, nil
}

func readIndexDoc(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse index %s: %w", path, err)
	}
	return nil
}

func writeIndexDoc(path string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
