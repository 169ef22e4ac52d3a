package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRebuildCmd creates the rebuild command
func newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild [feature|project|dashboard|all] [ref]",
		Short: "Recompute derived index documents",
		Long: `Recompute derived index documents.

Index documents are disposable projections of the entity documents. They
are rebuilt bottom-up: a project rebuild refreshes its feature indexes
first, a dashboard rebuild folds project indexes.

Examples:
  crew rebuild                      # Everything (same as 'all')
  crew rebuild feature FEAT-001
  crew rebuild project PROJ-001
  crew rebuild dashboard`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			scope := "all"
			if len(args) > 0 {
				scope = args[0]
			}

			switch scope {
			case "all":
				d, err := w.builder.RebuildAll()
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(d, "")
				}
				fmt.Printf("Rebuilt all indexes: %d project(s), %d feature(s), %d task(s)\n",
					d.TotalProjects, d.TotalFeatures, d.TotalTasks)
			case "dashboard":
				d, err := w.builder.RebuildDashboard()
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(d, "")
				}
				fmt.Println("Rebuilt dashboard")
			case "feature":
				if len(args) < 2 {
					return fmt.Errorf("rebuild feature needs a feature ID")
				}
				f, err := w.store.FindFeature(args[1])
				if err != nil {
					return err
				}
				idx, err := w.builder.RebuildFeature(f.ProjectID, f.ID)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(idx, "")
				}
				fmt.Printf("Rebuilt %s index: %d task(s)\n", f.ID, idx.TotalTasks)
			case "project":
				if len(args) < 2 {
					return fmt.Errorf("rebuild project needs a project ID")
				}
				idx, err := w.builder.RebuildProject(args[1])
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(idx, "")
				}
				fmt.Printf("Rebuilt %s index: %d feature(s), %d task(s)\n",
					args[1], idx.TotalFeatures, idx.TotalTasks)
			default:
				return fmt.Errorf("unknown rebuild scope %q (feature, project, dashboard, all)", scope)
			}
			return nil
		},
	}
	return cmd
}
