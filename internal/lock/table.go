// Package lock provides cooperative, TTL-bounded advisory file locks for
// coordinated multi-agent execution.
//
// All state lives in a single lock-table document (.crew/locks.yaml) written
// atomically on every mutation. There is no central lock service: any driver
// may invoke the manager transiently, and a crashed holder's locks are
// reclaimed by TTL expiry alone. Across processes the last write to the
// table wins; the locks are advisory, so this weak consistency only risks a
// transient double-write of source files, never corruption of the entity
// documents.
package lock

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentcrew/crew/internal/util"
)

// TableFileName is the lock-table document name inside .crew/.
const TableFileName = "locks.yaml"

// Type is the lock type. Only exclusive locks exist today.
type Type string

// TypeExclusive is the only supported lock type.
const TypeExclusive Type = "exclusive"

// ReleaseReason records why a lock left the table.
type ReleaseReason string

const (
	ReasonTaskCompleted ReleaseReason = "task_completed"
	ReasonTaskFailed    ReleaseReason = "task_failed"
	ReasonManual        ReleaseReason = "manual"
	ReasonExpired       ReleaseReason = "expired"
)

// IsValidReleaseReason returns true if r is a known release reason.
func IsValidReleaseReason(r ReleaseReason) bool {
	switch r {
	case ReasonTaskCompleted, ReasonTaskFailed, ReasonManual, ReasonExpired:
		return true
	default:
		return false
	}
}

// FileLock is one live advisory claim on a file path.
type FileLock struct {
	ID         string    `yaml:"id" json:"id"`
	File       string    `yaml:"file" json:"file"`
	Project    string    `yaml:"project,omitempty" json:"project,omitempty"`
	OwnerTask  string    `yaml:"owner_task" json:"owner_task"`
	OwnerAgent string    `yaml:"owner_agent" json:"owner_agent"`
	LockType   Type      `yaml:"lock_type" json:"lock_type"`
	AcquiredAt time.Time `yaml:"acquired_at" json:"acquired_at"`
	ExpiresAt  time.Time `yaml:"expires_at" json:"expires_at"`
	TTLMinutes int       `yaml:"ttl_minutes" json:"ttl_minutes"`
}

// Expired returns true if the lock's TTL has passed at the given instant.
func (l *FileLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// HistoryEntry is an immutable audit record of a released lock.
type HistoryEntry struct {
	TaskID          string        `yaml:"task_id" json:"task_id"`
	Agent           string        `yaml:"agent" json:"agent"`
	File            string        `yaml:"file" json:"file"`
	AcquiredAt      time.Time     `yaml:"acquired_at" json:"acquired_at"`
	ReleasedAt      time.Time     `yaml:"released_at" json:"released_at"`
	ReleaseReason   ReleaseReason `yaml:"release_reason" json:"release_reason"`
	DurationSeconds int64         `yaml:"duration_seconds" json:"duration_seconds"`
}

// QueueEntry records a request for a path currently held by another owner.
// The queue is diagnostic only: releases never promote waiters, and no FIFO
// fairness is guaranteed. A queued requester must retry Acquire.
type QueueEntry struct {
	File           string    `yaml:"file" json:"file"`
	RequesterTask  string    `yaml:"requester_task" json:"requester_task"`
	RequesterAgent string    `yaml:"requester_agent" json:"requester_agent"`
	RequestedAt    time.Time `yaml:"requested_at" json:"requested_at"`
}

// TableConfig is the TTL configuration snapshot stored in the table.
type TableConfig struct {
	DefaultTTLMinutes int `yaml:"default_ttl_minutes" json:"default_ttl_minutes"`
	MaxTTLMinutes     int `yaml:"max_ttl_minutes" json:"max_ttl_minutes"`
}

// Table is the lock-table document.
type Table struct {
	UpdatedAt time.Time      `yaml:"updated_at" json:"updated_at"`
	Config    TableConfig    `yaml:"config" json:"config"`
	Locks     []FileLock     `yaml:"locks,omitempty" json:"locks,omitempty"`
	History   []HistoryEntry `yaml:"history,omitempty" json:"history,omitempty"`
	Queue     []QueueEntry   `yaml:"queue,omitempty" json:"queue,omitempty"`
}

// loadTable reads the lock table at path. A missing or unreadable table is
// rebuilt empty: losing the table only means all locks implicitly expired,
// which advisory semantics tolerate.
func loadTable(path string, cfg TableConfig) *Table {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Table{Config: cfg}
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return &Table{Config: cfg}
	}
	t.Config = cfg
	return &t
}

// saveTable writes the lock table atomically.
func saveTable(path string, t *Table, now time.Time) error {
	t.UpdatedAt = now
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal lock table: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write lock table: %w", err)
	}
	return nil
}
