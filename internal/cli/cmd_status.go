package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentcrew/crew/internal/entity"
	"github.com/agentcrew/crew/internal/index"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Workspace dashboard summary",
		Long: `Show the workspace dashboard: project, feature, and task totals.

Reads the derived dashboard document, rebuilding it when missing. Use
--fresh to force a full bottom-up rebuild first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			defer w.Close()

			cache := index.NewCache(w.builder, time.Duration(w.cfg.Index.CacheTTLSeconds)*time.Second)

			var d *index.Dashboard
			if fresh {
				d, err = w.builder.RebuildAll()
			} else {
				d, err = cache.Dashboard()
			}
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(d, "")
			}

			fmt.Printf("Projects: %d   Features: %d   Tasks: %d\n",
				d.TotalProjects, d.TotalFeatures, d.TotalTasks)
			fmt.Println()

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TASKS\t")
			for _, s := range entity.ValidTaskStatuses() {
				fmt.Fprintf(tw, "  %s\t%d\n", s, d.TaskCounts[s])
			}
			tw.Flush()

			fmt.Printf("\nGenerated %s\n", d.GeneratedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().BoolVar(&fresh, "fresh", false, "Rebuild all indexes before reporting")
	return cmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show crew version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("crew version 0.1.0-dev")
		},
	}
}
