package lifecycle

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcrew/crew/internal/config"
	"github.com/agentcrew/crew/internal/entity"
	crewerr "github.com/agentcrew/crew/internal/errors"
	"github.com/agentcrew/crew/internal/lock"
)

func newTestManager(t *testing.T) (*Manager, *entity.Store, *lock.Manager) {
	t.Helper()
	store := entity.NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.Dir(), 0o755))
	locks := lock.NewManager(store.Dir(), config.Default())
	return NewManager(store, locks, nil), store, locks
}

func seedTask(t *testing.T, store *entity.Store, projectID, featureID, id string, mutate func(*entity.Task)) *entity.Task {
	t.Helper()
	task := entity.NewTask(id, featureID, "Task "+id)
	if mutate != nil {
		mutate(task)
	}
	require.NoError(t, store.SaveTask(projectID, task))
	return task
}

func seedWorkspace(t *testing.T, store *entity.Store) {
	t.Helper()
	p := entity.NewProject("PROJ-001", "Demo")
	require.NoError(t, store.SaveProject(p))
	f := entity.NewFeature("FEAT-001", "PROJ-001", "demo", "Demo feature")
	f.Status = entity.FeatureInProgress
	require.NoError(t, store.SaveFeature(f))
}

func TestStartStampsAndTransitions(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)

	task, err := m.Start("TASK-001", entity.AgentImplementer)
	require.NoError(t, err)

	assert.Equal(t, entity.TaskInProgress, task.Status)
	require.NotNil(t, task.StartedAt)
	require.NotEmpty(t, task.Progress)
	assert.Equal(t, "start", task.Progress[len(task.Progress)-1].Action)
}

func TestStartUnmetDependencyFlipsToBlocked(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-002", func(task *entity.Task) {
		task.DependsOn = []string{"TASK-001"}
	})

	_, err := m.Start("TASK-002", entity.AgentImplementer)
	require.Error(t, err)
	assert.True(t, crewerr.Is(err, crewerr.CodeNotReady))

	stored, err := store.LoadTask("PROJ-001", "FEAT-001", "TASK-002")
	require.NoError(t, err)
	assert.Equal(t, entity.TaskBlocked, stored.Status)
	assert.Nil(t, stored.StartedAt)
}

func TestStartLockConflictLeavesTaskUntouched(t *testing.T) {
	m, store, locks := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", func(task *entity.Task) {
		task.Files.Modify = []string{"src/shared.go"}
	})

	res, err := locks.Acquire(lock.AcquireRequest{
		TaskID:  "TASK-099",
		AgentID: "implementer",
		Project: "PROJ-001",
		Paths:   []string{"src/shared.go"},
	})
	require.NoError(t, err)
	require.True(t, res.Granted)

	_, err = m.Start("TASK-001", entity.AgentImplementer)
	require.Error(t, err)
	assert.True(t, crewerr.Is(err, crewerr.CodeLockConflict))

	stored, err := store.LoadTask("PROJ-001", "FEAT-001", "TASK-001")
	require.NoError(t, err)
	assert.Equal(t, entity.TaskPending, stored.Status)
}

func TestReadinessAfterLastDependencyCompletes(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-002", func(task *entity.Task) {
		task.DependsOn = []string{"TASK-001"}
	})

	_, err := m.Start("TASK-002", entity.AgentImplementer)
	require.Error(t, err)

	_, err = m.Start("TASK-001", entity.AgentImplementer)
	require.NoError(t, err)
	_, err = m.Transition("TASK-001", entity.TaskCompleted, entity.AgentImplementer, "")
	require.NoError(t, err)

	task, err := m.Start("TASK-002", entity.AgentImplementer)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskInProgress, task.Status)
}

func TestInvalidTransitionRejected(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)

	_, err := m.Transition("TASK-001", entity.TaskQA, entity.AgentReviewer, "")
	require.Error(t, err)
	assert.True(t, crewerr.Is(err, crewerr.CodeInvalidTransition))

	stored, err := store.LoadTask("PROJ-001", "FEAT-001", "TASK-001")
	require.NoError(t, err)
	assert.Equal(t, entity.TaskPending, stored.Status)
}

func TestCompletedIsTerminal(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)

	_, err := m.Start("TASK-001", entity.AgentImplementer)
	require.NoError(t, err)
	_, err = m.Transition("TASK-001", entity.TaskCompleted, entity.AgentImplementer, "")
	require.NoError(t, err)

	for _, target := range entity.ValidTaskStatuses() {
		_, err := m.Transition("TASK-001", target, entity.AgentImplementer, "")
		require.Error(t, err, "completed must not leave via %s", target)
	}
}

func TestCompletionReleasesLocks(t *testing.T) {
	m, store, locks := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", func(task *entity.Task) {
		task.Files.Create = []string{"a.ts"}
		task.Files.Modify = []string{"b.ts"}
	})

	_, err := m.Start("TASK-001", entity.AgentImplementer)
	require.NoError(t, err)
	require.Len(t, locks.HeldBy("TASK-001"), 2)

	_, err = m.Transition("TASK-001", entity.TaskCompleted, entity.AgentImplementer, "")
	require.NoError(t, err)
	assert.Empty(t, locks.HeldBy("TASK-001"))

	table := locks.Status()
	require.Len(t, table.History, 2)
	for _, h := range table.History {
		assert.Equal(t, lock.ReasonTaskCompleted, h.ReleaseReason)
	}

	// A different task can now take a.ts immediately.
	res, err := locks.Acquire(lock.AcquireRequest{
		TaskID:  "TASK-002",
		AgentID: "implementer",
		Project: "PROJ-001",
		Paths:   []string{"a.ts"},
	})
	require.NoError(t, err)
	assert.True(t, res.Granted)
}

func TestFailReleasesLocksAndReturnsToPending(t *testing.T) {
	m, store, locks := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", func(task *entity.Task) {
		task.Files.Modify = []string{"src/a.go"}
	})

	_, err := m.Start("TASK-001", entity.AgentImplementer)
	require.NoError(t, err)
	require.Len(t, locks.HeldBy("TASK-001"), 1)

	task, err := m.Fail("TASK-001", entity.AgentImplementer, "tests broke")
	require.NoError(t, err)
	assert.Equal(t, entity.TaskPending, task.Status)
	assert.Empty(t, locks.HeldBy("TASK-001"))

	table := locks.Status()
	require.Len(t, table.History, 1)
	assert.Equal(t, lock.ReasonTaskFailed, table.History[0].ReleaseReason)
}

func TestFailCompletedTaskRejected(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", func(task *entity.Task) {
		task.Status = entity.TaskCompleted
	})

	_, err := m.Fail("TASK-001", entity.AgentImplementer, "")
	require.Error(t, err)
	assert.True(t, crewerr.Is(err, crewerr.CodeInvalidTransition))
}

func TestTaskQAGate(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", func(task *entity.Task) {
		task.QA.Required = true
	})

	_, err := m.Start("TASK-001", entity.AgentImplementer)
	require.NoError(t, err)
	_, err = m.Transition("TASK-001", entity.TaskQA, entity.AgentReviewer, "")
	require.NoError(t, err)

	// qa → completed refused until the verdict is recorded.
	_, err = m.Transition("TASK-001", entity.TaskCompleted, entity.AgentReviewer, "")
	require.Error(t, err)
	assert.True(t, crewerr.Is(err, crewerr.CodeInvalidTransition))

	_, err = m.RecordTaskQA("TASK-001", entity.QAPassed, entity.AgentReviewer, "looks good")
	require.NoError(t, err)
	task, err := m.Transition("TASK-001", entity.TaskCompleted, entity.AgentReviewer, "")
	require.NoError(t, err)
	assert.Equal(t, entity.TaskCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
}

func TestQARejectionResetsStatus(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", func(task *entity.Task) {
		task.QA.Required = true
	})

	_, err := m.Start("TASK-001", entity.AgentImplementer)
	require.NoError(t, err)
	_, err = m.Transition("TASK-001", entity.TaskQA, entity.AgentReviewer, "")
	require.NoError(t, err)
	_, err = m.RecordTaskQA("TASK-001", entity.QAFailed, entity.AgentReviewer, "missing tests")
	require.NoError(t, err)

	task, err := m.Transition("TASK-001", entity.TaskInProgress, entity.AgentImplementer, "rework")
	require.NoError(t, err)
	assert.Equal(t, entity.TaskInProgress, task.Status)
	assert.Equal(t, entity.QAPending, task.QA.Status)
}

// A task whose locks expired while it sat in qa must pass the lock gate
// again before resuming. If another task claimed a declared path in the
// meantime, the re-entry is refused and the task stays in qa.
func TestQAReentryReacquiresLocks(t *testing.T) {
	store := entity.NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.Dir(), 0o755))
	now := time.Now().UTC()
	locks := lock.NewManager(store.Dir(), config.Default(),
		lock.WithClock(func() time.Time { return now }))
	m := NewManager(store, locks, nil)

	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", func(task *entity.Task) {
		task.Files.Modify = []string{"shared.ts"}
	})

	_, err := m.Start("TASK-001", entity.AgentImplementer)
	require.NoError(t, err)
	_, err = m.Transition("TASK-001", entity.TaskQA, entity.AgentReviewer, "")
	require.NoError(t, err)

	// The review outlives the TTL and another task claims the path.
	now = now.Add(5 * time.Hour)
	res, err := locks.Acquire(lock.AcquireRequest{
		TaskID:  "TASK-099",
		AgentID: "implementer",
		Project: "PROJ-001",
		Paths:   []string{"shared.ts"},
	})
	require.NoError(t, err)
	require.True(t, res.Granted)

	_, err = m.Transition("TASK-001", entity.TaskInProgress, entity.AgentImplementer, "rework")
	require.Error(t, err)
	assert.True(t, crewerr.Is(err, crewerr.CodeLockConflict))

	stored, err := store.LoadTask("PROJ-001", "FEAT-001", "TASK-001")
	require.NoError(t, err)
	assert.Equal(t, entity.TaskQA, stored.Status)
	assert.Empty(t, locks.HeldBy("TASK-001"))

	// Once the holder lets go, the re-entry reclaims the path.
	_, err = locks.Release("TASK-099", lock.ReasonManual)
	require.NoError(t, err)
	task, err := m.Transition("TASK-001", entity.TaskInProgress, entity.AgentImplementer, "rework")
	require.NoError(t, err)
	assert.Equal(t, entity.TaskInProgress, task.Status)
	require.Len(t, locks.HeldBy("TASK-001"), 1)
}

// Feature F owns T1 (no deps) and T2 (depends on T1). Completing both with
// qa.required=false completes the feature; with qa.required=true the
// feature stays put until an explicit QA pass and transition.
func TestFeatureCascade(t *testing.T) {
	t.Run("without QA requirement", func(t *testing.T) {
		m, store, _ := newTestManager(t)
		seedWorkspace(t, store)
		seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)
		seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-002", func(task *entity.Task) {
			task.DependsOn = []string{"TASK-001"}
		})

		_, err := m.Start("TASK-001", entity.AgentImplementer)
		require.NoError(t, err)
		_, err = m.Transition("TASK-001", entity.TaskCompleted, entity.AgentImplementer, "")
		require.NoError(t, err)

		f, err := store.LoadFeature("PROJ-001", "FEAT-001")
		require.NoError(t, err)
		assert.Equal(t, entity.FeatureInProgress, f.Status, "cascade must wait for all tasks")

		_, err = m.Start("TASK-002", entity.AgentImplementer)
		require.NoError(t, err)
		_, err = m.Transition("TASK-002", entity.TaskCompleted, entity.AgentImplementer, "")
		require.NoError(t, err)

		f, err = store.LoadFeature("PROJ-001", "FEAT-001")
		require.NoError(t, err)
		assert.Equal(t, entity.FeatureCompleted, f.Status)
	})

	t.Run("with QA requirement", func(t *testing.T) {
		m, store, _ := newTestManager(t)
		seedWorkspace(t, store)
		f, err := store.LoadFeature("PROJ-001", "FEAT-001")
		require.NoError(t, err)
		f.QA.Required = true
		require.NoError(t, store.SaveFeature(f))
		seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)

		_, err = m.Start("TASK-001", entity.AgentImplementer)
		require.NoError(t, err)
		_, err = m.Transition("TASK-001", entity.TaskCompleted, entity.AgentImplementer, "")
		require.NoError(t, err)

		f, err = store.LoadFeature("PROJ-001", "FEAT-001")
		require.NoError(t, err)
		assert.Equal(t, entity.FeatureInProgress, f.Status, "feature must wait for QA pass")

		// Explicit QA pass, then the completion transition succeeds.
		_, err = m.RecordFeatureQA("FEAT-001", entity.QAPassed)
		require.NoError(t, err)
		f, err = m.TransitionFeature("FEAT-001", entity.FeatureCompleted)
		require.NoError(t, err)
		assert.Equal(t, entity.FeatureCompleted, f.Status)
	})
}

func TestTransitionFeatureRequiresAllTasksCompleted(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)

	_, err := m.TransitionFeature("FEAT-001", entity.FeatureCompleted)
	require.Error(t, err)
	assert.True(t, crewerr.Is(err, crewerr.CodeInvalidTransition))
}

func TestFeatureGraph(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	f, err := store.LoadFeature("PROJ-001", "FEAT-001")
	require.NoError(t, err)
	f.Status = entity.FeaturePlanning
	require.NoError(t, store.SaveFeature(f))

	_, err = m.TransitionFeature("FEAT-001", entity.FeatureInProgress)
	require.Error(t, err, "planning cannot jump to in_progress")

	_, err = m.TransitionFeature("FEAT-001", entity.FeatureApproved)
	require.NoError(t, err)
	_, err = m.TransitionFeature("FEAT-001", entity.FeatureInProgress)
	require.NoError(t, err)
}

func TestSetDependencies(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-002", nil)

	_, err := m.SetDependencies("TASK-002", []string{"TASK-001"})
	require.NoError(t, err)

	t1, err := store.LoadTask("PROJ-001", "FEAT-001", "TASK-001")
	require.NoError(t, err)
	assert.Equal(t, []string{"TASK-002"}, t1.Blocks)

	// Removing the edge clears the inverse list.
	_, err = m.SetDependencies("TASK-002", nil)
	require.NoError(t, err)
	t1, err = store.LoadTask("PROJ-001", "FEAT-001", "TASK-001")
	require.NoError(t, err)
	assert.Empty(t, t1.Blocks)
}

func TestSetDependenciesRejectsCycle(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-002", func(task *entity.Task) {
		task.DependsOn = []string{"TASK-001"}
	})

	_, err := m.SetDependencies("TASK-001", []string{"TASK-002"})
	require.Error(t, err)
	assert.True(t, crewerr.Is(err, crewerr.CodeCycleDetected))

	stored, err := store.LoadTask("PROJ-001", "FEAT-001", "TASK-001")
	require.NoError(t, err)
	assert.Empty(t, stored.DependsOn, "rejected edit must not reach disk")
}

func TestSetDependenciesRejectsUnknownReference(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedWorkspace(t, store)
	seedTask(t, store, "PROJ-001", "FEAT-001", "TASK-001", nil)

	_, err := m.SetDependencies("TASK-001", []string{"TASK-404"})
	require.Error(t, err)
	assert.True(t, crewerr.Is(err, crewerr.CodeEntityNotFound))
}
