package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentcrew/crew/internal/entity"
)

// newShowCmd creates the show command
func newShowCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "show <task-id|feature-id|project-id>",
		Short: "Show an entity document",
		Long: `Show a task, feature, or project document.

With --path, the JSON form is narrowed to a gjson path expression, which
makes the output directly scriptable.

Examples:
  crew show TASK-001
  crew show TASK-001 --json
  crew show TASK-001 --path status
  crew show TASK-001 --path 'progress.#(action=="failed").note'
  crew show FEAT-001 --path 'qa.required'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			ref := args[0]
			kind, err := refKind(ref)
			if err != nil {
				return err
			}

			var doc any
			switch kind {
			case "task":
				task, _, err := w.store.FindTask(ref)
				if err != nil {
					return err
				}
				doc = task
			case "feature":
				f, err := w.store.FindFeature(ref)
				if err != nil {
					return err
				}
				doc = f
			case "project":
				p, err := w.store.LoadProject(ref)
				if err != nil {
					return err
				}
				doc = p
			}

			if jsonOut || path != "" {
				return printJSON(doc, path)
			}

			switch d := doc.(type) {
			case *entity.Task:
				printTask(d)
			case *entity.Feature:
				printFeature(d)
			case *entity.Project:
				printProject(d)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "gjson path to extract from the JSON form")
	return cmd
}

func printTask(t *entity.Task) {
	fmt.Printf("%s  %s\n", t.ID, t.Title)
	fmt.Printf("  Status:    %s\n", t.Status)
	fmt.Printf("  Agent:     %s\n", t.Agent)
	fmt.Printf("  Priority:  %s\n", t.GetPriority())
	if t.Phase > 0 {
		fmt.Printf("  Phase:     %d\n", t.Phase)
	}
	if len(t.DependsOn) > 0 {
		fmt.Printf("  Depends:   %s\n", strings.Join(t.DependsOn, ", "))
	}
	if len(t.Blocks) > 0 {
		fmt.Printf("  Blocks:    %s\n", strings.Join(t.Blocks, ", "))
	}
	if paths := t.Files.All(); len(paths) > 0 {
		fmt.Printf("  Files:     %s\n", strings.Join(paths, ", "))
	}
	if t.QA.Required {
		fmt.Printf("  QA:        required, %s\n", t.QA.Status)
	}
	if t.StartedAt != nil {
		fmt.Printf("  Started:   %s\n", t.StartedAt.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", t.CompletedAt.Format(time.RFC3339))
	}
	if len(t.Progress) > 0 {
		fmt.Println("  Progress:")
		for _, p := range t.Progress {
			line := fmt.Sprintf("    %s  %s  %s", p.Timestamp.Format("2006-01-02 15:04"), p.Agent, p.Action)
			if p.Note != "" {
				line += "  " + p.Note
			}
			fmt.Println(line)
		}
	}
}

func printFeature(f *entity.Feature) {
	fmt.Printf("%s  %s\n", f.ID, f.Title)
	fmt.Printf("  Project:   %s\n", f.ProjectID)
	fmt.Printf("  Status:    %s\n", f.Status)
	fmt.Printf("  Priority:  %s\n", f.GetPriority())
	if f.QA.Required {
		fmt.Printf("  QA:        required, %s\n", f.QA.Status)
	}
	for _, ph := range f.Phases {
		fmt.Printf("  Phase %d:   %s\n", ph.Number, ph.Name)
	}
}

func printProject(p *entity.Project) {
	fmt.Printf("%s  %s\n", p.ID, p.Name)
	fmt.Printf("  Status:   %s\n", p.Status)
	fmt.Printf("  Created:  %s\n", p.CreatedAt.Format(time.RFC3339))
}
