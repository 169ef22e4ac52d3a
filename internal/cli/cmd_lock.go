package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentcrew/crew/internal/lock"
)

// newLockCmd creates the lock command with its subcommands.
func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and drive the advisory file-lock table",
		Long: `Inspect and drive the advisory file-lock table.

Locks are advisory and TTL-bounded: a crashed holder needs no cleanup,
its locks expire and are reclaimed on the next acquire or reap. The queue
is diagnostic only: a queued requester is never promoted automatically
and must retry.`,
	}
	cmd.AddCommand(newLockAcquireCmd())
	cmd.AddCommand(newLockReleaseCmd())
	cmd.AddCommand(newLockReapCmd())
	cmd.AddCommand(newLockStatusCmd())
	return cmd
}

func newLockAcquireCmd() *cobra.Command {
	var (
		agent string
		ttl   int
		paths []string
	)

	cmd := &cobra.Command{
		Use:   "acquire <task-id>",
		Short: "Acquire locks for a task's declared file set",
		Long: `Acquire locks for a task.

Without --path, locks cover the task's declared create/modify/delete set.
The request is all-or-nothing: one conflicting path refuses the whole set
and records queue entries. Re-acquiring held paths refreshes their expiry.

Examples:
  crew lock acquire TASK-001
  crew lock acquire TASK-001 --ttl 60
  crew lock acquire TASK-001 --path 'src/**/*.go'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			taskID := args[0]
			task, loc, err := w.store.FindTask(taskID)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				paths = task.Files.All()
			}
			if len(paths) == 0 {
				return fmt.Errorf("%s declares no file paths and none were given with --path", taskID)
			}

			res, err := w.locks.Acquire(lock.AcquireRequest{
				TaskID:  taskID,
				AgentID: agent,
				Project: loc.ProjectID,
				Paths:   paths,
				TTL:     time.Duration(ttl) * time.Minute,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(res, "")
			}
			if !res.Granted {
				fmt.Println("Refused: conflicting holders")
				for _, c := range res.Conflicts {
					fmt.Printf("  %s  held by %s (%s) until %s\n",
						c.Path, c.HolderTask, c.HolderAgent, c.ExpiresAt.Format(time.RFC3339))
				}
				return fmt.Errorf("%d path(s) in conflict", len(res.Conflicts))
			}
			fmt.Printf("Granted %d lock(s) to %s\n", len(res.Locks), taskID)
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "implementer", "Acting agent role")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "Lock TTL in minutes (0 = configured default, clamped to max)")
	cmd.Flags().StringSliceVar(&paths, "path", nil, "Lock these paths instead of the task's declared set")
	return cmd
}

func newLockReleaseCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "release <task-id>",
		Short: "Release every lock a task holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			r := lock.ReleaseReason(reason)
			if !lock.IsValidReleaseReason(r) {
				return fmt.Errorf("unknown release reason %q", reason)
			}
			n, err := w.locks.Release(args[0], r)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(map[string]int{"released": n}, "")
			}
			fmt.Printf("Released %d lock(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", string(lock.ReasonManual), "Release reason for the history record")
	return cmd
}

func newLockReapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Reclaim expired locks",
		Long: `Reclaim expired locks.

Scans the table and moves every lock past its expiry to history with
reason expired. Safe to run at any time; acquire does the same reclaim
inline, so reaping is a hygiene pass, not a requirement.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			n, err := w.locks.ReapExpired()
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(map[string]int{"reaped": n}, "")
			}
			fmt.Printf("Reaped %d expired lock(s)\n", n)
			return nil
		},
	}
}

func newLockStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show held locks and queued requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			table := w.locks.Status()
			if jsonOut {
				return printJSON(table, "")
			}

			if len(table.Locks) == 0 {
				fmt.Println("No locks held.")
			} else {
				now := time.Now().UTC()
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PATH\tTASK\tAGENT\tEXPIRES")
				for _, l := range table.Locks {
					expires := l.ExpiresAt.Format(time.RFC3339)
					if l.Expired(now) {
						// Not reaped yet; the next acquire or reap reclaims it.
						expires += " (expired)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
						l.File, l.OwnerTask, l.OwnerAgent, expires)
				}
				tw.Flush()
			}

			if len(table.Queue) > 0 {
				fmt.Println()
				fmt.Println("Waiting (diagnostic, retry to acquire):")
				for _, q := range table.Queue {
					fmt.Printf("  %s  wanted by %s since %s\n",
						q.File, q.RequesterTask, q.RequestedAt.Format(time.RFC3339))
				}
			}
			return nil
		},
	}
}
