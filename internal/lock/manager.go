package lock

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/agentcrew/crew/internal/config"
)

// Manager grants and revokes advisory locks over the lock-table document.
//
// Every operation is a full read-modify-write of the table under a process
// level mutex. Operations never block waiting for a path: Acquire returns a
// conflict list immediately, pushing retry policy to the caller. Because a
// request either gets all its paths or none and never holds partial locks
// while waiting, lock ordering deadlocks cannot occur.
type Manager struct {
	path       string
	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the manager's time source. Used by tests to control
// TTL expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager over the lock table in crewDir.
func NewManager(crewDir string, cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		path:       filepath.Join(crewDir, TableFileName),
		defaultTTL: cfg.DefaultTTL(),
		maxTTL:     cfg.MaxTTL(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init writes an empty lock table unless one already exists. Used by
// workspace scaffolding; the table would also materialize lazily on the
// first acquire.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := os.Stat(m.path); err == nil {
		return nil
	}
	return saveTable(m.path, &Table{Config: m.tableConfig()}, m.now())
}

// tableConfig returns the config snapshot written into the table document.
func (m *Manager) tableConfig() TableConfig {
	return TableConfig{
		DefaultTTLMinutes: int(m.defaultTTL / time.Minute),
		MaxTTLMinutes:     int(m.maxTTL / time.Minute),
	}
}

// clampTTL applies the default and the hard ceiling. Requests exceeding the
// maximum are clamped, not rejected.
func (m *Manager) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if ttl > m.maxTTL {
		ttl = m.maxTTL
	}
	return ttl
}

// AcquireRequest asks for exclusive locks on a set of paths on behalf of a
// task. Paths may be literals or doublestar glob patterns.
type AcquireRequest struct {
	TaskID  string
	AgentID string
	Project string
	Paths   []string
	// TTL of the requested locks. Zero means the configured default.
	TTL time.Duration
}

// Conflict describes one requested path held by another live owner.
type Conflict struct {
	Path        string    `json:"path"`
	HolderTask  string    `json:"holder_task"`
	HolderAgent string    `json:"holder_agent"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AcquireResult is the outcome of an Acquire call. Conflicts are reported,
// not returned as errors: contention is an expected condition and the
// caller decides whether to retry, queue, or abort.
type AcquireResult struct {
	Granted   bool       `json:"granted"`
	Locks     []FileLock `json:"locks,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Acquire attempts to lock every requested path for the task. The request
// is all-or-nothing: if any path is held by another live owner, nothing is
// granted and each conflicting path gets a queue entry. Re-acquiring paths
// the task already owns is idempotent and refreshes their expiry. Expired
// locks encountered on the way are reclaimed inline.
func (m *Manager) Acquire(req AcquireRequest) (*AcquireResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	table := loadTable(m.path, m.tableConfig())
	m.reapLocked(table, now)

	ttl := m.clampTTL(req.TTL)

	var conflicts []Conflict
	for _, path := range req.Paths {
		for i := range table.Locks {
			held := &table.Locks[i]
			if held.OwnerTask == req.TaskID {
				continue
			}
			if pathsOverlap(path, held.File) {
				conflicts = append(conflicts, Conflict{
					Path:        path,
					HolderTask:  held.OwnerTask,
					HolderAgent: held.OwnerAgent,
					ExpiresAt:   held.ExpiresAt,
				})
				break
			}
		}
	}

	if len(conflicts) > 0 {
		for _, c := range conflicts {
			appendQueueEntry(table, QueueEntry{
				File:           c.Path,
				RequesterTask:  req.TaskID,
				RequesterAgent: req.AgentID,
				RequestedAt:    now,
			})
		}
		if err := saveTable(m.path, table, now); err != nil {
			return nil, err
		}
		return &AcquireResult{Granted: false, Conflicts: conflicts}, nil
	}

	expiry := now.Add(ttl)
	ttlMinutes := int(ttl / time.Minute)
	var granted []FileLock
	for _, path := range req.Paths {
		if existing := findOwnLock(table, req.TaskID, path); existing != nil {
			// Idempotent re-acquire: refresh expiry, no duplicate record.
			existing.ExpiresAt = expiry
			existing.TTLMinutes = ttlMinutes
			granted = append(granted, *existing)
			continue
		}
		l := FileLock{
			ID:         uuid.NewString(),
			File:       path,
			Project:    req.Project,
			OwnerTask:  req.TaskID,
			OwnerAgent: req.AgentID,
			LockType:   TypeExclusive,
			AcquiredAt: now,
			ExpiresAt:  expiry,
			TTLMinutes: ttlMinutes,
		}
		table.Locks = append(table.Locks, l)
		granted = append(granted, l)
	}

	// The retry that finally succeeded clears the requester's queue entries.
	dropQueueEntries(table, req.TaskID)

	if err := saveTable(m.path, table, now); err != nil {
		return nil, err
	}
	return &AcquireResult{Granted: true, Locks: granted}, nil
}

// Release removes every lock owned by the task, appending one history entry
// per lock. Queued requesters are not promoted; the queue is informational.
// Releasing a task that holds nothing is a no-op returning zero.
func (m *Manager) Release(taskID string, reason ReleaseReason) (int, error) {
	if !IsValidReleaseReason(reason) {
		reason = ReasonManual
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	table := loadTable(m.path, m.tableConfig())

	var kept []FileLock
	released := 0
	for _, l := range table.Locks {
		if l.OwnerTask != taskID {
			kept = append(kept, l)
			continue
		}
		table.History = append(table.History, historyEntry(l, now, reason))
		released++
	}
	table.Locks = kept
	dropQueueEntries(table, taskID)

	if released == 0 {
		return 0, nil
	}
	if err := saveTable(m.path, table, now); err != nil {
		return 0, err
	}
	return released, nil
}

// ReapExpired removes every lock whose TTL has passed, recording each in
// history with reason expired. Safe to call at any time and concurrently
// with Acquire/Release within a process; repeated calls are no-ops.
func (m *Manager) ReapExpired() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	table := loadTable(m.path, m.tableConfig())
	reaped := m.reapLocked(table, now)
	if reaped == 0 {
		return 0, nil
	}
	if err := saveTable(m.path, table, now); err != nil {
		return 0, err
	}
	return reaped, nil
}

// reapLocked moves expired locks to history. Caller holds m.mu.
func (m *Manager) reapLocked(table *Table, now time.Time) int {
	var kept []FileLock
	reaped := 0
	for _, l := range table.Locks {
		if !l.Expired(now) {
			kept = append(kept, l)
			continue
		}
		table.History = append(table.History, historyEntry(l, now, ReasonExpired))
		reaped++
	}
	table.Locks = kept
	return reaped
}

// Status returns a snapshot of the current lock table.
func (m *Manager) Status() *Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return loadTable(m.path, m.tableConfig())
}

// HeldBy returns the live locks owned by a task.
func (m *Manager) HeldBy(taskID string) []FileLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	table := loadTable(m.path, m.tableConfig())
	var held []FileLock
	for _, l := range table.Locks {
		if l.OwnerTask == taskID && !l.Expired(now) {
			held = append(held, l)
		}
	}
	return held
}

func historyEntry(l FileLock, now time.Time, reason ReleaseReason) HistoryEntry {
	return HistoryEntry{
		TaskID:          l.OwnerTask,
		Agent:           l.OwnerAgent,
		File:            l.File,
		AcquiredAt:      l.AcquiredAt,
		ReleasedAt:      now,
		ReleaseReason:   reason,
		DurationSeconds: int64(now.Sub(l.AcquiredAt) / time.Second),
	}
}

// findOwnLock returns the task's existing lock on exactly this path, if any.
func findOwnLock(table *Table, taskID, path string) *FileLock {
	for i := range table.Locks {
		if table.Locks[i].OwnerTask == taskID && table.Locks[i].File == path {
			return &table.Locks[i]
		}
	}
	return nil
}

// appendQueueEntry records a pending request, deduplicating on
// (file, requester task) so repeated failed retries do not grow the queue.
func appendQueueEntry(table *Table, entry QueueEntry) {
	for _, q := range table.Queue {
		if q.File == entry.File && q.RequesterTask == entry.RequesterTask {
			return
		}
	}
	table.Queue = append(table.Queue, entry)
}

// dropQueueEntries removes all queue entries for a task.
func dropQueueEntries(table *Table, taskID string) {
	var kept []QueueEntry
	for _, q := range table.Queue {
		if q.RequesterTask != taskID {
			kept = append(kept, q)
		}
	}
	table.Queue = kept
}

// pathsOverlap reports whether two declared paths can touch the same file.
// Either side may be a doublestar pattern; a malformed pattern degrades to
// literal comparison.
func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	if ok, err := doublestar.Match(a, b); err == nil && ok {
		return true
	}
	if ok, err := doublestar.Match(b, a); err == nil && ok {
		return true
	}
	return false
}
