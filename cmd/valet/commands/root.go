// Package commands implements the Valet CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "valet",
		Short: "Valet — conversational personal assistant backend",
		Long: `Valet turns free-text requests into tasks, reminders, notes, calendar
events, email drafts, meetings, and background research assignments.

Examples:
  valet chat "remind me to call the dentist tomorrow at 9am"
  valet chat                    # interactive mode
  valet serve                   # run the assignment worker daemon
  valet assignments list
  valet config set-key`,
		Version: version,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newServeCmd(),
		newAssignmentsCmd(),
		newConfigCmd(),
		newSetupCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
