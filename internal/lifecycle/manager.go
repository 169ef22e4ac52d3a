package lifecycle

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentcrew/crew/internal/deps"
	"github.com/agentcrew/crew/internal/entity"
	crewerr "github.com/agentcrew/crew/internal/errors"
	"github.com/agentcrew/crew/internal/events"
	"github.com/agentcrew/crew/internal/lock"
)

// Manager coordinates task and feature transitions over the entity store,
// the dependency resolver, and the lock manager. It is the only writer of
// status fields; callers never flip a status on a document directly.
type Manager struct {
	store *entity.Store
	locks *lock.Manager
	pub   events.Publisher
}

// NewManager creates a lifecycle manager. pub may be nil when no event
// stream is wanted.
func NewManager(store *entity.Store, locks *lock.Manager, pub events.Publisher) *Manager {
	if pub == nil {
		pub = events.NoOpPublisher{}
	}
	return &Manager{store: store, locks: locks, pub: pub}
}

// Start moves a task into in_progress. The move is gated twice: every
// dependency must be completed, and the lock manager must grant locks over
// the task's declared file set. Re-entry from qa runs the same gates, so a
// task whose locks expired during review cannot resume without reclaiming
// them. A readiness failure flips a pending task to blocked; a lock
// conflict leaves the task untouched so the caller can retry.
func (m *Manager) Start(taskID string, agent entity.Agent) (*entity.Task, error) {
	task, loc, err := m.store.FindTask(taskID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTask(task.Status, entity.TaskInProgress) {
		return nil, crewerr.ErrInvalidTransition(task.ID, string(task.Status), string(entity.TaskInProgress))
	}

	siblings, err := m.store.LoadTasks(loc.ProjectID, loc.FeatureID)
	if err != nil {
		return nil, err
	}
	if unmet := deps.Unmet(task, deps.TaskMap(siblings)); len(unmet) > 0 {
		// Only a pending task flips to blocked; the blocked status has no
		// edge from qa, so a QA re-entry just reports NOT_READY.
		if task.Status == entity.TaskPending {
			task.Status = entity.TaskBlocked
			task.AppendProgress(agent, "blocked", "waiting on "+strings.Join(unmet, ", "))
			if err := m.store.SaveTask(loc.ProjectID, task); err != nil {
				return nil, err
			}
			m.pub.Publish(events.NewEvent(events.EventTaskBlocked, task.ID, map[string]any{
				"unmet": unmet,
			}))
		}
		return nil, crewerr.ErrNotReady(task.ID, unmet)
	}

	if paths := task.Files.All(); len(paths) > 0 {
		res, err := m.locks.Acquire(lock.AcquireRequest{
			TaskID:  task.ID,
			AgentID: string(agent),
			Project: loc.ProjectID,
			Paths:   paths,
		})
		if err != nil {
			return nil, fmt.Errorf("acquire locks for %s: %w", task.ID, err)
		}
		if !res.Granted {
			conflictPaths := make([]string, 0, len(res.Conflicts))
			for _, c := range res.Conflicts {
				conflictPaths = append(conflictPaths, c.Path)
			}
			m.pub.Publish(events.NewEvent(events.EventLockConflict, task.ID, map[string]any{
				"conflicts": res.Conflicts,
			}))
			return nil, crewerr.ErrLockConflict(task.ID, conflictPaths)
		}
		m.pub.Publish(events.NewEvent(events.EventLockAcquired, task.ID, map[string]any{
			"paths": paths,
		}))
	}

	from := task.Status
	task.Status = entity.TaskInProgress
	if from == entity.TaskQA {
		// QA sent the work back; the next review starts clean.
		task.QA.Status = entity.QAPending
	}
	if agent != "" {
		task.Agent = agent
	}
	if task.StartedAt == nil {
		now := time.Now().UTC()
		task.StartedAt = &now
	}
	task.AppendProgress(agent, "start", "")
	if err := m.store.SaveTask(loc.ProjectID, task); err != nil {
		return nil, err
	}
	m.publishTaskTransition(task.ID, from, entity.TaskInProgress)
	return task, nil
}

// Transition moves a task along one edge of the transition graph. Every
// move into in_progress goes through Start so the readiness and lock gates
// always apply, including when QA sends work back and the task's locks may
// have expired in the meantime. Completion stamps completed_at, releases
// the task's locks, and re-checks the owning feature.
func (m *Manager) Transition(taskID string, target entity.TaskStatus, agent entity.Agent, note string) (*entity.Task, error) {
	if !entity.IsValidTaskStatus(target) {
		return nil, crewerr.ErrInvalidTransition(taskID, "?", string(target))
	}
	if target == entity.TaskInProgress {
		return m.Start(taskID, agent)
	}

	task, loc, err := m.store.FindTask(taskID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTask(task.Status, target) {
		return nil, crewerr.ErrInvalidTransition(task.ID, string(task.Status), string(target))
	}

	if target == entity.TaskCompleted && task.QA.Required && task.QA.Status != entity.QAPassed {
		e := crewerr.ErrInvalidTransition(task.ID, string(task.Status), string(target))
		e.Why = "the task requires QA and its QA status is not passed"
		e.Fix = "record a QA pass first, or mark qa.required false"
		return nil, e
	}

	from := task.Status
	task.Status = target
	if target == entity.TaskCompleted {
		now := time.Now().UTC()
		task.CompletedAt = &now
	}
	task.AppendProgress(agent, string(target), note)
	if err := m.store.SaveTask(loc.ProjectID, task); err != nil {
		return nil, err
	}
	m.publishTaskTransition(task.ID, from, target)

	if target == entity.TaskCompleted {
		m.releaseLocks(task.ID, lock.ReasonTaskCompleted)
		m.cascadeFeature(loc.ProjectID, loc.FeatureID)
	}
	return task, nil
}

// Fail abandons a task attempt: locks are released with reason task_failed
// and the task returns to pending so another agent can pick it up. Failing
// a completed task is rejected.
func (m *Manager) Fail(taskID string, agent entity.Agent, note string) (*entity.Task, error) {
	task, loc, err := m.store.FindTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.IsTerminal() {
		return nil, crewerr.ErrInvalidTransition(task.ID, string(task.Status), string(entity.TaskPending))
	}

	m.releaseLocks(task.ID, lock.ReasonTaskFailed)

	from := task.Status
	task.Status = entity.TaskPending
	task.AppendProgress(agent, "failed", note)
	if err := m.store.SaveTask(loc.ProjectID, task); err != nil {
		return nil, err
	}
	m.publishTaskTransition(task.ID, from, entity.TaskPending)
	return task, nil
}

// SetDependencies replaces a task's depends_on list after cycle and
// reference validation, then recomputes the inverse blocks lists across the
// feature.
func (m *Manager) SetDependencies(taskID string, newDeps []string) (*entity.Task, error) {
	task, loc, err := m.store.FindTask(taskID)
	if err != nil {
		return nil, err
	}
	siblings, err := m.store.LoadTasks(loc.ProjectID, loc.FeatureID)
	if err != nil {
		return nil, err
	}
	if err := deps.ValidateEdit(task.ID, newDeps, deps.TaskMap(siblings)); err != nil {
		return nil, err
	}

	task.DependsOn = append([]string(nil), newDeps...)
	if err := m.store.SaveTask(loc.ProjectID, task); err != nil {
		return nil, err
	}

	// Recompute blocks over the updated graph and persist only the tasks
	// whose list changed.
	updated := make([]*entity.Task, 0, len(siblings))
	for _, s := range siblings {
		if s.ID == task.ID {
			updated = append(updated, task)
		} else {
			updated = append(updated, s)
		}
	}
	for _, s := range updated {
		blocks := deps.ComputeBlocks(s.ID, updated)
		if !equalStrings(blocks, s.Blocks) {
			s.Blocks = blocks
			if err := m.store.SaveTask(loc.ProjectID, s); err != nil {
				return nil, err
			}
		}
	}
	return task, nil
}

// RecordTaskQA records a QA verdict on a task without changing its status.
func (m *Manager) RecordTaskQA(taskID string, status entity.QAStatus, agent entity.Agent, note string) (*entity.Task, error) {
	task, loc, err := m.store.FindTask(taskID)
	if err != nil {
		return nil, err
	}
	task.QA.Status = status
	task.AppendProgress(agent, "qa_"+string(status), note)
	if err := m.store.SaveTask(loc.ProjectID, task); err != nil {
		return nil, err
	}
	return task, nil
}

// RecordFeatureQA records a QA verdict on a feature.
func (m *Manager) RecordFeatureQA(featureID string, status entity.QAStatus) (*entity.Feature, error) {
	f, err := m.store.FindFeature(featureID)
	if err != nil {
		return nil, err
	}
	f.QA.Status = status
	if err := m.store.SaveFeature(f); err != nil {
		return nil, err
	}
	return f, nil
}

// TransitionFeature moves a feature along one edge of the feature graph.
// Completion requires every owned task completed and, when qa.required, a
// recorded QA pass.
func (m *Manager) TransitionFeature(featureID string, target entity.FeatureStatus) (*entity.Feature, error) {
	if !entity.IsValidFeatureStatus(target) {
		return nil, crewerr.ErrInvalidTransition(featureID, "?", string(target))
	}
	f, err := m.store.FindFeature(featureID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionFeature(f.Status, target) {
		return nil, crewerr.ErrInvalidTransition(f.ID, string(f.Status), string(target))
	}

	if target == entity.FeatureCompleted {
		tasks, err := m.store.LoadTasks(f.ProjectID, f.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if !t.IsTerminal() {
				e := crewerr.ErrInvalidTransition(f.ID, string(f.Status), string(target))
				e.Why = fmt.Sprintf("task %s is still %s", t.ID, t.Status)
				e.Fix = "complete every task in the feature first"
				return nil, e
			}
		}
		if f.QA.Required && f.QA.Status != entity.QAPassed {
			e := crewerr.ErrInvalidTransition(f.ID, string(f.Status), string(target))
			e.Why = "the feature requires QA and its QA status is not passed"
			e.Fix = "record a QA pass first, or mark qa.required false"
			return nil, e
		}
	}

	from := f.Status
	f.Status = target
	if from == entity.FeatureQA && target == entity.FeatureInProgress {
		f.QA.Status = entity.QAPending
	}
	if err := m.store.SaveFeature(f); err != nil {
		return nil, err
	}
	m.pub.Publish(events.NewEvent(events.EventFeatureTransitioned, f.ID, map[string]any{
		"from": string(from),
		"to":   string(target),
	}))
	return f, nil
}

// cascadeFeature re-checks a feature after one of its tasks completed.
// When every task is completed and the feature does not require QA (or QA
// already passed), the feature is completed; otherwise it stays where it is
// until a QA verdict arrives. The check is idempotent, so racing callers
// can both run it safely.
func (m *Manager) cascadeFeature(projectID, featureID string) {
	f, err := m.store.LoadFeature(projectID, featureID)
	if err != nil {
		slog.Warn("feature cascade skipped", "feature", featureID, "error", err)
		return
	}
	if f.Status == entity.FeatureCompleted || f.Status == entity.FeatureArchived {
		return
	}
	tasks, err := m.store.LoadTasks(projectID, featureID)
	if err != nil {
		slog.Warn("feature cascade skipped", "feature", featureID, "error", err)
		return
	}
	if len(tasks) == 0 {
		return
	}
	for _, t := range tasks {
		if !t.IsTerminal() {
			return
		}
	}
	if f.QA.Required && f.QA.Status != entity.QAPassed {
		// Completion is offered, never forced: the feature waits in its
		// current status for an explicit QA pass.
		return
	}
	if !CanTransitionFeature(f.Status, entity.FeatureCompleted) {
		slog.Warn("feature cascade skipped: no edge to completed",
			"feature", f.ID, "status", f.Status)
		return
	}
	if _, err := m.TransitionFeature(f.ID, entity.FeatureCompleted); err != nil {
		slog.Warn("feature cascade failed", "feature", f.ID, "error", err)
	}
}

// releaseLocks releases every lock owned by the task, logging rather than
// failing the transition when the lock table is unavailable. Advisory locks
// must never wedge a status change; TTL expiry covers the leak.
func (m *Manager) releaseLocks(taskID string, reason lock.ReleaseReason) {
	n, err := m.locks.Release(taskID, reason)
	if err != nil {
		slog.Warn("lock release failed", "task", taskID, "reason", reason, "error", err)
		return
	}
	if n > 0 {
		m.pub.Publish(events.NewEvent(events.EventLockReleased, taskID, map[string]any{
			"count":  n,
			"reason": string(reason),
		}))
	}
}

func (m *Manager) publishTaskTransition(taskID string, from, to entity.TaskStatus) {
	m.pub.Publish(events.NewEvent(events.EventTaskTransitioned, taskID, map[string]any{
		"from": string(from),
		"to":   string(to),
	}))
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
