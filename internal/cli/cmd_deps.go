package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentcrew/crew/internal/deps"
	"github.com/agentcrew/crew/internal/entity"
)

// DepsOutput is the JSON output structure for the deps command.
type DepsOutput struct {
	TaskID    string            `json:"task_id"`
	Title     string            `json:"title"`
	Status    entity.TaskStatus `json:"status"`
	Ready     bool              `json:"ready"`
	BlockedBy []DepsTaskInfo    `json:"blocked_by,omitempty"`
	Blocks    []DepsTaskInfo    `json:"blocks,omitempty"`
}

// DepsTaskInfo describes one related task.
type DepsTaskInfo struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Status entity.TaskStatus `json:"status"`
}

// newDepsCmd creates the deps command
func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps <task-id>",
		Short: "Show a task's dependencies and readiness",
		Long: `Show what a task is waiting on and what waits on it.

Understanding the output:
  ● / [x]     Dependency is completed
  ○ / [ ]     Dependency is not yet completed
  READY       All dependencies completed (can start)
  BLOCKED     Has unmet dependencies

Examples:
  crew deps TASK-002
  crew deps TASK-002 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			task, loc, err := w.store.FindTask(args[0])
			if err != nil {
				return err
			}
			siblings, err := w.store.LoadTasks(loc.ProjectID, loc.FeatureID)
			if err != nil {
				return err
			}
			byID := deps.TaskMap(siblings)

			out := DepsOutput{
				TaskID: task.ID,
				Title:  task.Title,
				Status: task.Status,
				Ready:  deps.IsReady(task, byID),
			}
			for _, depID := range task.DependsOn {
				info := DepsTaskInfo{ID: depID, Title: "(missing)", Status: ""}
				if dep, ok := byID[depID]; ok {
					info.Title = dep.Title
					info.Status = dep.Status
				}
				out.BlockedBy = append(out.BlockedBy, info)
			}
			for _, blockedID := range deps.ComputeBlocks(task.ID, siblings) {
				b := byID[blockedID]
				out.Blocks = append(out.Blocks, DepsTaskInfo{ID: b.ID, Title: b.Title, Status: b.Status})
			}

			if jsonOut {
				return printJSON(out, "")
			}

			fmt.Printf("%s  %s  [%s]\n", task.ID, task.Title, task.Status)
			if out.Ready {
				fmt.Println("READY")
			} else {
				fmt.Println("BLOCKED")
			}
			if len(out.BlockedBy) > 0 {
				fmt.Println()
				fmt.Println("Depends on:")
				for _, d := range out.BlockedBy {
					fmt.Printf("  %s %s  %s [%s]\n",
						statusGlyph(d.Status == entity.TaskCompleted), d.ID, d.Title, d.Status)
				}
			}
			if len(out.Blocks) > 0 {
				fmt.Println()
				fmt.Println("Blocks:")
				for _, d := range out.Blocks {
					fmt.Printf("  %s  %s [%s]\n", d.ID, d.Title, d.Status)
				}
			}
			return nil
		},
	}
	return cmd
}
