package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentcrew/crew/internal/entity"
)

// newStartCmd creates the start command
func newStartCmd() *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start a task (acquire locks, move to in_progress)",
		Long: `Start a task.

Starting is gated twice:
  1. Every task in depends_on must be completed, otherwise the task is
     flipped to blocked and the unmet dependencies are reported.
  2. The lock manager must grant exclusive locks over the task's declared
     file set, otherwise the conflicting holders are reported and the task
     is left untouched for a retry.

Examples:
  crew start TASK-001
  crew start TASK-001 --agent reviewer`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			if !entity.IsValidAgent(entity.Agent(agent)) {
				return fmt.Errorf("unknown agent %q (valid: %v)", agent, entity.ValidAgents())
			}
			task, err := w.life.Start(args[0], entity.Agent(agent))
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(task, "")
			}
			fmt.Printf("%s in_progress (%s)\n", task.ID, task.Agent)
			if paths := task.Files.All(); len(paths) > 0 && !quiet {
				fmt.Println("Locked:", strings.Join(paths, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", string(entity.AgentImplementer), "Acting agent role")
	return cmd
}
