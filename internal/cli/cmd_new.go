package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentcrew/crew/internal/entity"
)

// newNewCmd creates the new command with project/feature/task subcommands.
func newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a project, feature, or task",
	}
	cmd.AddCommand(newNewProjectCmd())
	cmd.AddCommand(newNewFeatureCmd())
	cmd.AddCommand(newNewTaskCmd())
	return cmd
}

func newNewProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "project <name>",
		Short: "Create a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			id, err := w.store.NextProjectID()
			if err != nil {
				return err
			}
			p := entity.NewProject(id, args[0])
			if err := w.store.SaveProject(p); err != nil {
				return err
			}
			if jsonOut {
				return printJSON(p, "")
			}
			fmt.Println("Created", p.ID)
			return nil
		},
	}
}

func newNewFeatureCmd() *cobra.Command {
	var slug string

	cmd := &cobra.Command{
		Use:   "feature <project-id> <title>",
		Short: "Create a new feature in a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			projectID, title := args[0], args[1]
			if _, err := w.store.LoadProject(projectID); err != nil {
				return err
			}
			id, err := w.store.NextFeatureID(projectID)
			if err != nil {
				return err
			}
			if slug == "" {
				slug = slugify(title)
			}
			f := entity.NewFeature(id, projectID, slug, title)
			if err := w.store.SaveFeature(f); err != nil {
				return err
			}
			if jsonOut {
				return printJSON(f, "")
			}
			fmt.Println("Created", f.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&slug, "slug", "", "URL-safe short name (derived from title if empty)")
	return cmd
}

func newNewTaskCmd() *cobra.Command {
	var (
		agent     string
		priority  string
		taskType  string
		phase     int
		dependsOn []string
		create    []string
		modify    []string
		remove    []string
		qaNeeded  bool
	)

	cmd := &cobra.Command{
		Use:   "task <feature-id> <title>",
		Short: "Create a new task in a feature",
		Long: `Create a new task in a feature.

Declared file paths feed the lock manager when the task starts; entries may
be literal paths or doublestar glob patterns (src/**/*.go).

Examples:
  crew new task FEAT-001 "Wire the parser"
  crew new task FEAT-001 "Refactor auth" --modify 'src/auth/**' --depends TASK-003
  crew new task FEAT-001 "Ship docs" --agent docs --priority low`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			featureID, title := args[0], args[1]
			f, err := w.store.FindFeature(featureID)
			if err != nil {
				return err
			}

			id, err := w.store.NextTaskID(f.ProjectID, f.ID)
			if err != nil {
				return err
			}
			task := entity.NewTask(id, f.ID, title)
			if agent != "" {
				if !entity.IsValidAgent(entity.Agent(agent)) {
					return fmt.Errorf("unknown agent %q (valid: %v)", agent, entity.ValidAgents())
				}
				task.Agent = entity.Agent(agent)
			}
			if priority != "" {
				if !entity.IsValidPriority(entity.Priority(priority)) {
					return fmt.Errorf("unknown priority %q", priority)
				}
				task.Priority = entity.Priority(priority)
			}
			if taskType != "" {
				if !entity.IsValidTaskType(entity.TaskType(taskType)) {
					return fmt.Errorf("unknown task type %q", taskType)
				}
				task.Type = entity.TaskType(taskType)
			}
			task.Phase = phase
			task.Files = entity.FileSet{Create: create, Modify: modify, Delete: remove}
			task.QA.Required = qaNeeded

			if err := w.store.SaveTask(f.ProjectID, task); err != nil {
				return err
			}
			if len(dependsOn) > 0 {
				// Validates references and cycles, and maintains the
				// inverse blocks lists on the dependencies.
				if _, err := w.life.SetDependencies(task.ID, dependsOn); err != nil {
					return err
				}
				task.DependsOn = dependsOn
			}
			if jsonOut {
				return printJSON(task, "")
			}
			fmt.Println("Created", task.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Assigned agent role (architect, implementer, reviewer, tester, docs)")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority (critical, high, normal, low)")
	cmd.Flags().StringVar(&taskType, "type", "", "Task type (feature, bug, refactor, chore, docs, test)")
	cmd.Flags().IntVar(&phase, "phase", 0, "Phase number within the feature")
	cmd.Flags().StringSliceVar(&dependsOn, "depends", nil, "Task IDs this task depends on")
	cmd.Flags().StringSliceVar(&create, "create", nil, "File paths the task will create")
	cmd.Flags().StringSliceVar(&modify, "modify", nil, "File paths the task will modify")
	cmd.Flags().StringSliceVar(&remove, "delete", nil, "File paths the task will delete")
	cmd.Flags().BoolVar(&qaNeeded, "qa", false, "Require a QA pass before completion")
	return cmd
}

// slugify lowercases a title and squashes runs of non-alphanumerics to
// single hyphens.
func slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
