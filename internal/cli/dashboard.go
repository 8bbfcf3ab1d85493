package cli

import (
	"github.com/spf13/cobra"

	"github.com/osqazi/AI-Employee-FTE/internal/tui"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/views"
)

func newDashboardCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:         "dashboard",
		Short:       "Open the live vault dashboard",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationLogFile: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, opts)
		},
	}
}

func runDashboard(cmd *cobra.Command, opts *rootOptions) error {
	a, err := opts.open()
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(tui.Options{
		Loader: views.Loader{
			Store:     a.store,
			Tracker:   a.tracker,
			AuditPath: a.layout.AuditLog(),
		},
		Decisions: a.decider(),
	})
}
