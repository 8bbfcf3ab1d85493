package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/osqazi/AI-Employee-FTE/internal/approval"
	"github.com/osqazi/AI-Employee-FTE/internal/executor"
	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// eventPrinter reports executor progress on the terminal.
type eventPrinter struct {
	w io.Writer
}

func (p eventPrinter) OnIterationStart(t *task.Task, iteration, limit int) {
	fmt.Fprintf(p.w, "\n%s [Iteration %d/%d]\n", t.ID, iteration, limit)
}

func (p eventPrinter) OnIteration(t *task.Task, entry plan.LogEntry) {
	fmt.Fprintf(p.w, "  %s -> %s (%dms)", entry.Phase, entry.Outcome, entry.DurationMS)
	if entry.Action != "" {
		fmt.Fprintf(p.w, ": %s", entry.Action)
	}
	fmt.Fprintln(p.w)
}

func (p eventPrinter) OnComplete(t *task.Task, pl *plan.Plan) {
	fmt.Fprintf(p.w, "\n%s completed after %d iterations (%d/%d steps)\n", t.ID, pl.Iteration, pl.CompletedSteps(), len(pl.Steps))
}

func (p eventPrinter) OnFailed(t *task.Task, pl *plan.Plan, reason string) {
	fmt.Fprintf(p.w, "\n%s failed: %s\n", t.ID, reason)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task-id>",
		Short: "Execute one task now",
		Long: `Runs the reasoning loop for a task in Needs_Action or Approved until it is
done or its iteration budget is spent. Tasks that need a human decision
must be approved first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, opts, args[0])
		},
	}
}

func runTask(cmd *cobra.Command, opts *rootOptions, id string) error {
	a, err := opts.open()
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if approval.NewWorkflow(a.store, a.cfg.Policy(), nil).Gated(t) {
		return fmt.Errorf("task %s requires approval (%s); run 'fte cycle' to queue it for a decision", id, a.cfg.Policy().Reason(t))
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ex, err := a.executor(eventPrinter{w: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	res, err := ex.Run(ctx, id)
	if errors.Is(err, executor.ErrInterrupted) {
		fmt.Fprintf(cmd.OutOrStdout(), "\nInterrupted after %d iterations. Run again to resume.\n", res.Iterations)
		return nil
	}
	return err
}

func newCycleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one approval workflow cycle",
		Long:  "Moves gated tasks to Pending_Approval, then executes ungated and approved tasks once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			wf, err := a.workflow(eventPrinter{w: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			stats := wf.Cycle(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "\nMoved to approval: %d\nExecuted: %d (completed %d, failed %d)\nErrors: %d\n",
				stats.MovedToApproval, stats.Executed, stats.Completed, stats.Failed, stats.Errors)
			return nil
		},
	}
}
