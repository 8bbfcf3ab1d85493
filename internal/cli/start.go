package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osqazi/AI-Employee-FTE/internal/config"
	fsignal "github.com/osqazi/AI-Employee-FTE/internal/signal"
)

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the workflow, the signal sources and the supervisor until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, opts)
		},
	}
}

func runStart(cmd *cobra.Command, opts *rootOptions) error {
	a, err := opts.open()
	if err != nil {
		return err
	}
	defer a.Close()

	wf, err := a.workflow(nil)
	if err != nil {
		return err
	}
	sup, err := a.supervisor()
	if err != nil {
		return err
	}
	in, err := a.ingester()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching vault %s (Ctrl+C to stop)\n", a.layout.Root)

	g.Go(func() error {
		return wf.Run(ctx, a.cfg.Workflow.Interval)
	})

	if fd := a.cfg.Sources.FileDrop; fd.Enabled {
		drop := fsignal.NewFileDrop(a.cfg.FileDropDir(a.layout.Drop())).WithLogger(a.logger)
		if fd.Watch {
			if err := drop.Watch(ctx); err != nil {
				// Polling still picks the files up, just later.
				a.logger.Warn("file watch disabled", zap.String("dir", drop.Dir()), zap.Error(err))
			}
			defer drop.Close()
		}
		poller := fsignal.NewPoller(drop, in, fd.Interval).WithLogger(a.logger)
		g.Go(func() error {
			return poller.Run(ctx)
		})
		fmt.Fprintf(out, "  file drop: %s\n", drop.Dir())
	}

	if sup != nil {
		g.Go(func() error {
			return sup.Run(ctx)
		})
		fmt.Fprintf(out, "  supervising %d processes\n", len(sup.Snapshot()))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(out, "Stopped.")
	return nil
}

func newSuperviseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "supervise",
		Short: "Run only the process supervisor until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			sup, err := a.supervisor()
			if err != nil {
				return err
			}
			if sup == nil {
				return errors.New("no processes configured; add supervisor.processes to " + filepath.Join(opts.cfg.Dir, config.FileName))
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := sup.Run(ctx); err != nil {
				return err
			}
			printProcesses(cmd.OutOrStdout(), sup.Snapshot())
			return nil
		},
	}
}
