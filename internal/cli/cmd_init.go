package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentcrew/crew/internal/config"
	"github.com/agentcrew/crew/internal/entity"
	crewerr "github.com/agentcrew/crew/internal/errors"
	"github.com/agentcrew/crew/internal/lock"
)

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize crew in the current directory",
		Long: `Initialize crew in the current directory.

Creates the .crew/ workspace:
  .crew/config.yaml    Configuration (TTLs, journal, index cache)
  .crew/locks.yaml     Empty advisory lock table
  .crew/projects/      Entity documents live here

Examples:
  crew init            # Initialize
  crew init --force    # Rewrite config over an existing workspace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}

			store := entity.NewStore(cwd)
			if store.Initialized() && !force {
				return crewerr.ErrAlreadyInitialized(store.Dir())
			}

			if err := os.MkdirAll(filepath.Join(store.Dir(), entity.ProjectsDir), 0o755); err != nil {
				return fmt.Errorf("create workspace directories: %w", err)
			}

			cfg := config.Default()
			if err := config.Save(cwd, cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			if err := lock.NewManager(store.Dir(), cfg).Init(); err != nil {
				return fmt.Errorf("write lock table: %w", err)
			}

			if !quiet {
				fmt.Println("Initialized crew workspace in", store.Dir())
				fmt.Println()
				fmt.Println("Next steps:")
				fmt.Println("  crew new project \"My project\"   # Create a project")
				fmt.Println("  crew status                       # Workspace dashboard")
			}
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Rewrite configuration even if already initialized")
	return cmd
}
