// Package db provides the SQLite event journal for crew.
//
// The journal (.crew/crew.db) records task transitions and lock activity for
// the dashboard timeline. It is derived, rebuildable data: the YAML entity
// documents remain the system of record, and deleting the journal loses
// history only.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// JournalFileName is the journal database file inside .crew/.
const JournalFileName = "crew.db"

const schema = `
CREATE TABLE IF NOT EXISTS event_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id   TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	data        TEXT,
	source      TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_entity ON event_log(entity_id, created_at);
CREATE INDEX IF NOT EXISTS idx_event_log_type ON event_log(event_type, created_at);
`

// EventRecord is one persisted journal row.
type EventRecord struct {
	ID        int64
	EntityID  string
	EventType string
	Data      any // JSON marshaled to TEXT
	Source    string
	CreatedAt time.Time
}

// Journal wraps the SQLite connection.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the journal at the given path.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// WAL and a busy timeout for concurrent transient invocations.
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// OpenInMemory opens an isolated in-memory journal for testing.
func OpenInMemory() (*Journal, error) {
	return Open(":memory:")
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

// timeLayout stores UTC timestamps with nanosecond precision so events
// created in quick succession keep their order.
const timeLayout = "2006-01-02 15:04:05.000000000"

// SaveEvents inserts events in one transaction.
func (j *Journal) SaveEvents(events []*EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO event_log (entity_id, event_type, data, source, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		var dataJSON *string
		if e.Data != nil {
			bytes, err := json.Marshal(e.Data)
			if err != nil {
				return fmt.Errorf("marshal event data: %w", err)
			}
			s := string(bytes)
			dataJSON = &s
		}
		res, err := stmt.Exec(e.EntityID, e.EventType, dataJSON, e.Source,
			e.CreatedAt.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("save event: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			e.ID = id
		}
	}

	return tx.Commit()
}

// SaveEvent inserts a single event.
func (j *Journal) SaveEvent(e *EventRecord) error {
	return j.SaveEvents([]*EventRecord{e})
}

// QueryOptions filters journal queries.
type QueryOptions struct {
	EntityID   string
	EventTypes []string
	Since      *time.Time
	Limit      int
}

// QueryEvents returns matching events, newest first.
func (j *Journal) QueryEvents(opts QueryOptions) ([]*EventRecord, error) {
	query := `SELECT id, entity_id, event_type, data, source, created_at FROM event_log`
	var conds []string
	var args []any

	if opts.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, opts.EntityID)
	}
	if len(opts.EventTypes) > 0 {
		placeholders := strings.Repeat("?,", len(opts.EventTypes))
		conds = append(conds, fmt.Sprintf("event_type IN (%s)", placeholders[:len(placeholders)-1]))
		for _, et := range opts.EventTypes {
			args = append(args, et)
		}
	}
	if opts.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		var e EventRecord
		var data sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.EntityID, &e.EventType, &data, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if data.Valid {
			var parsed any
			if err := json.Unmarshal([]byte(data.String), &parsed); err == nil {
				e.Data = parsed
			}
		}
		if ts, err := time.Parse(timeLayout, createdAt); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// PruneOlderThan deletes events older than the retention window, returning
// the number of rows removed.
func (j *Journal) PruneOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(timeLayout)
	res, err := j.db.Exec(`DELETE FROM event_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
