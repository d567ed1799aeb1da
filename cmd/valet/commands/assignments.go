package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/valetd/valet/pkg/valet/store"
)

// newAssignmentsCmd creates the `valet assignments` command group.
func newAssignmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "Inspect and retry background research assignments",
		Long: `Research assignments run out-of-band in the worker. Use these
commands to list them, read completed findings, and retry failures.

Examples:
  valet assignments list
  valet assignments show <id>
  valet assignments retry <id>
  valet assignments retry --force <id>`,
	}

	cmd.AddCommand(
		newAssignmentsListCmd(),
		newAssignmentsShowCmd(),
		newAssignmentsRetryCmd(),
	)
	return cmd
}

func newAssignmentsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			userID, _ := cmd.Flags().GetString("user")
			limit, _ := cmd.Flags().GetInt("limit")

			assignments, err := rt.db.Assignments.ListByUser(userID, limit)
			if err != nil {
				return err
			}
			if len(assignments) == 0 {
				fmt.Println("No assignments yet.")
				return nil
			}

			for _, a := range assignments {
				fmt.Printf("%s  %-12s  %-10s  %s\n",
					a.ID, a.Status, a.Type, a.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringP("user", "u", "local", "user ID")
	cmd.Flags().Int("limit", 20, "max assignments to show")
	return cmd
}

func newAssignmentsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one assignment, including findings when completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			a, err := rt.db.Assignments.FindByID(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Title:    %s\n", a.Title)
			fmt.Printf("Type:     %s\n", a.Type)
			fmt.Printf("Status:   %s\n", a.Status)
			fmt.Printf("Query:    %s\n", a.Query)
			fmt.Printf("Created:  %s\n", a.CreatedAt.Format(time.RFC3339))
			if a.CompletedAt != nil {
				fmt.Printf("Finished: %s\n", a.CompletedAt.Format(time.RFC3339))
			}
			if a.Status == store.AssignmentCompleted {
				fmt.Printf("\n%s\n", a.Findings)
				if err := rt.db.Assignments.MarkViewed(a.ID); err != nil {
					rt.logger.Warn("mark viewed failed", "error", err)
				}
			}
			return nil
		},
	}
}

func newAssignmentsRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a failed assignment and queue it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			force, _ := cmd.Flags().GetBool("force")
			if err := rt.worker.Retry(args[0], force); err != nil {
				return err
			}

			fmt.Printf("Assignment %s reset to in_progress. The daemon will pick it up.\n", args[0])
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "retry regardless of current status")
	return cmd
}
