package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newApproveCmd(opts *rootOptions) *cobra.Command {
	return newDecisionCmd(opts, "approve", "Approve a task waiting in Pending_Approval", "Approved")
}

func newRejectCmd(opts *rootOptions) *cobra.Command {
	return newDecisionCmd(opts, "reject", "Reject a task waiting in Pending_Approval", "Rejected")
}

func newRequeueCmd(opts *rootOptions) *cobra.Command {
	return newDecisionCmd(opts, "requeue", "Move a failed task back to Needs_Action with a fresh budget", "Requeued")
}

func newDecisionCmd(opts *rootOptions, verb, short, done string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   verb + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.decider()
			id := args[0]
			switch verb {
			case "approve":
				err = d.Approve(cmd.Context(), id, reason)
			case "reject":
				err = d.Reject(cmd.Context(), id, reason)
			default:
				err = d.Requeue(cmd.Context(), id, reason)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the decision")
	return cmd
}
