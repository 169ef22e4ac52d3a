package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentcrew/crew/internal/entity"
)

// newTransitionCmd creates the transition command
func newTransitionCmd() *cobra.Command {
	var (
		agent string
		note  string
	)

	cmd := &cobra.Command{
		Use:   "transition <task-id|feature-id> <status>",
		Short: "Move a task or feature along its status graph",
		Long: `Move a task or feature along its status graph.

Task statuses:    pending, in_progress, blocked, qa, completed
Feature statuses: planning, approved, in_progress, qa, completed, archived

Edges not in the graph are rejected, never coerced. Completing a task
releases its locks and re-checks the owning feature; completing a feature
requires every owned task completed (and a QA pass when qa.required).

Examples:
  crew transition TASK-001 qa --note "ready for review"
  crew transition TASK-001 completed
  crew transition FEAT-001 approved`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			ref, target := args[0], args[1]
			kind, err := refKind(ref)
			if err != nil {
				return err
			}

			switch kind {
			case "task":
				task, err := w.life.Transition(ref, entity.TaskStatus(target), entity.Agent(agent), note)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(task, "")
				}
				fmt.Printf("%s %s\n", task.ID, task.Status)
			case "feature":
				f, err := w.life.TransitionFeature(ref, entity.FeatureStatus(target))
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(f, "")
				}
				fmt.Printf("%s %s\n", f.ID, f.Status)
			default:
				return fmt.Errorf("transition applies to tasks and features, not %ss", kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", string(entity.AgentImplementer), "Acting agent role")
	cmd.Flags().StringVar(&note, "note", "", "Free-text note for the progress log")
	return cmd
}

// newFailCmd creates the fail command
func newFailCmd() *cobra.Command {
	var (
		agent string
		note  string
	)

	cmd := &cobra.Command{
		Use:   "fail <task-id>",
		Short: "Abandon a task attempt and release its locks",
		Long: `Abandon a task attempt.

Releases every lock the task holds (reason task_failed) and returns the
task to pending so another agent can pick it up. The failed attempt stays
visible in the progress log and lock history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			task, err := w.life.Fail(args[0], entity.Agent(agent), note)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(task, "")
			}
			fmt.Printf("%s pending (attempt failed)\n", task.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", string(entity.AgentImplementer), "Acting agent role")
	cmd.Flags().StringVar(&note, "note", "", "Why the attempt failed")
	return cmd
}

// newQACmd creates the qa command
func newQACmd() *cobra.Command {
	var (
		agent string
		note  string
	)

	cmd := &cobra.Command{
		Use:   "qa <task-id|feature-id> <pass|fail>",
		Short: "Record a QA verdict on a task or feature",
		Long: `Record a QA verdict.

A recorded pass is what unlocks the qa → completed transition for entities
with qa.required set. Recording a verdict never changes status by itself;
follow up with 'crew transition'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			ref := args[0]
			var status entity.QAStatus
			switch args[1] {
			case "pass":
				status = entity.QAPassed
			case "fail":
				status = entity.QAFailed
			default:
				return fmt.Errorf("verdict must be pass or fail, got %q", args[1])
			}

			kind, err := refKind(ref)
			if err != nil {
				return err
			}
			switch kind {
			case "task":
				task, err := w.life.RecordTaskQA(ref, status, entity.Agent(agent), note)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(task, "")
				}
				fmt.Printf("%s qa %s\n", task.ID, status)
			case "feature":
				f, err := w.life.RecordFeatureQA(ref, status)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(f, "")
				}
				fmt.Printf("%s qa %s\n", f.ID, status)
			default:
				return fmt.Errorf("qa verdicts apply to tasks and features, not %ss", kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", string(entity.AgentReviewer), "Acting agent role")
	cmd.Flags().StringVar(&note, "note", "", "Free-text note for the progress log")
	return cmd
}
