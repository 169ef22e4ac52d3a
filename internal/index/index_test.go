package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcrew/crew/internal/entity"
	"github.com/agentcrew/crew/internal/events"
)

func newTestStore(t *testing.T) *entity.Store {
	t.Helper()
	store := entity.NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.Dir(), 0o755))
	return store
}

func seedProject(t *testing.T, store *entity.Store, id string) *entity.Project {
	t.Helper()
	p := entity.NewProject(id, "Project "+id)
	require.NoError(t, store.SaveProject(p))
	return p
}

func seedFeature(t *testing.T, store *entity.Store, projectID, id string) *entity.Feature {
	t.Helper()
	f := entity.NewFeature(id, projectID, "feat-"+id, "Feature "+id)
	require.NoError(t, store.SaveFeature(f))
	return f
}

func seedTask(t *testing.T, store *entity.Store, projectID, featureID, id string, status entity.TaskStatus, dependsOn ...string) *entity.Task {
	t.Helper()
	task := entity.NewTask(id, featureID, "Task "+id)
	task.Status = status
	task.DependsOn = dependsOn
	require.NoError(t, store.SaveTask(projectID, task))
	return task
}

func TestRebuildFeature(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store, "PROJ-001")
	seedFeature(t, store, "PROJ-001", "FEAT-001")
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", entity.TaskCompleted)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-002", entity.TaskInProgress, "TASK-001")
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-003", entity.TaskPending, "TASK-002")

	b := NewBuilder(store, nil)
	idx, err := b.RebuildFeature("PROJ-001", "FEAT-001")
	require.NoError(t, err)

	assert.Equal(t, "FEAT-001", idx.FeatureID)
	assert.Equal(t, "PROJ-001", idx.ProjectID)
	assert.Equal(t, 3, idx.TotalTasks)
	assert.Equal(t, 1, idx.TaskCounts[entity.TaskCompleted])
	assert.Equal(t, 1, idx.TaskCounts[entity.TaskInProgress])
	assert.Equal(t, 1, idx.TaskCounts[entity.TaskPending])
	assert.Equal(t, 0, idx.TaskCounts[entity.TaskBlocked])
	assert.Equal(t, "TASK-004", idx.NextTaskID)

	// All three tasks default to the implementer agent.
	assert.Equal(t, []string{"TASK-001", "TASK-002", "TASK-003"}, idx.ByAgent[entity.AgentImplementer])

	// Only TASK-003 has an unmet dependency; TASK-002's dep is completed.
	require.Len(t, idx.BlockedBy, 1)
	assert.Equal(t, []string{"TASK-002"}, idx.BlockedBy["TASK-003"])

	// Index document round-trips from disk.
	loaded, err := b.LoadFeatureIndex("PROJ-001", "FEAT-001")
	require.NoError(t, err)
	assert.Equal(t, idx.TaskCounts, loaded.TaskCounts)
	assert.Equal(t, idx.BlockedBy, loaded.BlockedBy)
	assert.Equal(t, idx.NextTaskID, loaded.NextTaskID)
}

func TestRebuildFeatureIdempotent(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store, "PROJ-001")
	seedFeature(t, store, "PROJ-001", "FEAT-001")
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", entity.TaskCompleted)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-002", entity.TaskPending, "TASK-001", "TASK-003")

	b := NewBuilder(store, nil)
	first, err := b.RebuildFeature("PROJ-001", "FEAT-001")
	require.NoError(t, err)
	second, err := b.RebuildFeature("PROJ-001", "FEAT-001")
	require.NoError(t, err)

	first.GeneratedAt = time.Time{}
	second.GeneratedAt = time.Time{}
	assert.Equal(t, first, second)
}

func TestRebuildFeatureSkipsCorruptTask(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store, "PROJ-001")
	seedFeature(t, store, "PROJ-001", "FEAT-001")
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", entity.TaskPending)

	// A garbage document must not poison the rebuild, but its filename
	// still reserves the numeric suffix.
	corrupt := filepath.Join(store.FeatureDir("PROJ-001", "FEAT-001"), "tasks", "TASK-009.yaml")
	require.NoError(t, os.WriteFile(corrupt, []byte("{{{ not yaml"), 0o644))

	b := NewBuilder(store, nil)
	idx, err := b.RebuildFeature("PROJ-001", "FEAT-001")
	require.NoError(t, err)

	assert.Equal(t, 1, idx.TotalTasks)
	assert.Equal(t, "TASK-010", idx.NextTaskID)
}

func TestRebuildProject(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store, "PROJ-001")
	seedFeature(t, store, "PROJ-001", "FEAT-001")
	seedFeature(t, store, "PROJ-001", "FEAT-002")
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", entity.TaskCompleted)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-002", entity.TaskInProgress)
	seedTask(t, store, "PROJ-001", "FEAT-002", "TASK-003", entity.TaskPending)

	b := NewBuilder(store, nil)
	idx, err := b.RebuildProject("PROJ-001")
	require.NoError(t, err)

	assert.Equal(t, 2, idx.TotalFeatures)
	assert.Equal(t, 2, idx.FeatureCounts[entity.FeaturePlanning])
	assert.Equal(t, 3, idx.TotalTasks)
	assert.Equal(t, 1, idx.TaskCounts[entity.TaskCompleted])
	assert.Equal(t, 1, idx.TaskCounts[entity.TaskInProgress])
	assert.Equal(t, 1, idx.TaskCounts[entity.TaskPending])
	assert.Equal(t, []string{"FEAT-001", "FEAT-002"}, idx.ByPriority[entity.PriorityNormal])

	// Both feature indexes were written on the way up.
	_, err = b.LoadFeatureIndex("PROJ-001", "FEAT-001")
	require.NoError(t, err)
	_, err = b.LoadFeatureIndex("PROJ-001", "FEAT-002")
	require.NoError(t, err)
}

func TestRebuildAll(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store, "PROJ-001")
	seedProject(t, store, "PROJ-002")
	seedFeature(t, store, "PROJ-001", "FEAT-001")
	seedFeature(t, store, "PROJ-002", "FEAT-002")
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", entity.TaskCompleted)
	seedTask(t, store, "PROJ-002", "FEAT-002", "TASK-002", entity.TaskPending)

	pub := events.NewMemoryPublisher()
	defer pub.Close()
	ch := pub.Subscribe(events.GlobalEntityID)

	b := NewBuilder(store, pub)
	d, err := b.RebuildAll()
	require.NoError(t, err)

	assert.Equal(t, 2, d.TotalProjects)
	assert.Equal(t, 2, d.ProjectCounts[entity.ProjectActive])
	assert.Equal(t, 2, d.TotalFeatures)
	assert.Equal(t, 2, d.TotalTasks)
	assert.Equal(t, 1, d.TaskCounts[entity.TaskCompleted])
	assert.Equal(t, 1, d.TaskCounts[entity.TaskPending])

	// Dashboard document lands on disk.
	_, err = os.Stat(b.DashboardPath())
	require.NoError(t, err)

	// Rebuild events were published for every scope.
	scopes := make(map[string]bool)
	for len(ch) > 0 {
		ev := <-ch
		require.Equal(t, events.EventIndexRebuilt, ev.Type)
		data := ev.Data.(map[string]any)
		scopes[data["scope"].(string)] = true
	}
	assert.True(t, scopes["feature"])
	assert.True(t, scopes["project"])
	assert.True(t, scopes["all"])
}

func TestDashboardRebuildsWhenMissing(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store, "PROJ-001")
	seedFeature(t, store, "PROJ-001", "FEAT-001")
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", entity.TaskPending)

	b := NewBuilder(store, nil)
	d, err := b.Dashboard()
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalProjects)
	assert.Equal(t, 1, d.TotalTasks)
}

func TestCacheCoalescesAndInvalidates(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store, "PROJ-001")
	seedFeature(t, store, "PROJ-001", "FEAT-001")
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", entity.TaskPending)

	b := NewBuilder(store, nil)
	cache := NewCache(b, time.Minute)

	first, err := cache.Dashboard()
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalTasks)

	// Within the TTL a second read returns the cached value even after the
	// workspace changed underneath it.
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-002", entity.TaskPending)
	_, err = b.RebuildAll()
	require.NoError(t, err)

	stale, err := cache.Dashboard()
	require.NoError(t, err)
	assert.Equal(t, 1, stale.TotalTasks)

	cache.Invalidate()
	fresh, err := cache.Dashboard()
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalTasks)
}
