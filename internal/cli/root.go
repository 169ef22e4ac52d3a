// Package cli implements the crew command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	crewerr "github.com/agentcrew/crew/internal/errors"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crew",
	Short: "File-lock coordination and task state for multi-agent work",
	Long: `crew coordinates multiple coding agents working in one repository.

It keeps one small YAML document per project, feature, and task under
.crew/, grants advisory TTL-bounded file locks so agents never write the
same path at once, gates task starts on dependency completion, and keeps
rebuildable index documents for dashboards.

Quick start:
  crew init                         Initialize crew in current directory
  crew new project "My project"     Create a project
  crew new task FEAT-001 "Do it"    Create a task
  crew start TASK-001               Acquire locks and begin work
  crew status                       Workspace dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Structured errors print their full what/why/fix message.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		if ce := crewerr.AsCrewError(err); ce != nil {
			fmt.Fprintln(os.Stderr, ce.UserMessage())
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .crew/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	// Add subcommands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newNewCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newTransitionCmd())
	rootCmd.AddCommand(newFailCmd())
	rootCmd.AddCommand(newQACmd())
	rootCmd.AddCommand(newLockCmd())
	rootCmd.AddCommand(newDepsCmd())
	rootCmd.AddCommand(newRebuildCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in .crew directory
		viper.AddConfigPath(".crew")
		viper.AddConfigPath("$HOME/.crew")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("CREW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
