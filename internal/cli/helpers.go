package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/tidwall/gjson"

	"github.com/agentcrew/crew/internal/config"
	"github.com/agentcrew/crew/internal/db"
	"github.com/agentcrew/crew/internal/entity"
	crewerr "github.com/agentcrew/crew/internal/errors"
	"github.com/agentcrew/crew/internal/events"
	"github.com/agentcrew/crew/internal/index"
	"github.com/agentcrew/crew/internal/lifecycle"
	"github.com/agentcrew/crew/internal/lock"
)

// workspace bundles everything a command needs against the current
// directory's .crew/ tree. Close flushes the event journal.
type workspace struct {
	root    string
	cfg     *config.Config
	store   *entity.Store
	locks   *lock.Manager
	pub     events.Publisher
	journal *db.Journal
	life    *lifecycle.Manager
	builder *index.Builder
}

// openWorkspace wires up a workspace rooted at the current directory,
// failing when crew is not initialized there.
func openWorkspace() (*workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	store := entity.NewStore(cwd)
	if !store.Initialized() {
		return nil, crewerr.ErrNotInitialized()
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}

	w := &workspace{
		root:  cwd,
		cfg:   cfg,
		store: store,
		locks: lock.NewManager(store.Dir(), cfg),
		pub:   events.NoOpPublisher{},
	}

	// The journal is derived data: failing to open it degrades to live-only
	// events, never blocks the command.
	if cfg.Journal.Enabled {
		journal, err := db.Open(filepath.Join(store.Dir(), db.JournalFileName))
		if err != nil {
			slog.Warn("event journal unavailable", "error", err)
		} else {
			w.journal = journal
			w.pub = events.NewPersistentPublisher(journal, "cli", slog.Default())
			if cfg.Journal.RetentionDays > 0 {
				retention := time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
				if _, err := journal.PruneOlderThan(retention); err != nil {
					slog.Warn("journal prune failed", "error", err)
				}
			}
		}
	}

	w.life = lifecycle.NewManager(store, w.locks, w.pub)
	w.builder = index.NewBuilder(store, w.pub)
	return w, nil
}

// Close flushes buffered events and closes the journal.
func (w *workspace) Close() {
	w.pub.Close()
	if w.journal != nil {
		_ = w.journal.Close()
	}
}

// refKind classifies an entity reference by its ID prefix.
func refKind(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "TASK-"):
		return "task", nil
	case strings.HasPrefix(ref, "FEAT-"):
		return "feature", nil
	case strings.HasPrefix(ref, "PROJ-"):
		return "project", nil
	default:
		return "", fmt.Errorf("unrecognized reference %q (expected TASK-, FEAT-, or PROJ- prefix)", ref)
	}
}

// printJSON writes v as indented JSON, optionally narrowed to a gjson path.
func printJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	if path != "" {
		result := gjson.GetBytes(data, path)
		if !result.Exists() {
			return fmt.Errorf("path %q not found in output", path)
		}
		fmt.Println(result.String())
		return nil
	}
	fmt.Println(string(data))
	return nil
}

// stdoutIsTTY reports whether stdout is a terminal. Decorated output is
// reserved for humans; pipes get plain text.
func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// statusGlyph marks a status for terminal output.
func statusGlyph(done bool) string {
	if !stdoutIsTTY() {
		if done {
			return "[x]"
		}
		return "[ ]"
	}
	if done {
		return "●"
	}
	return "○"
}
