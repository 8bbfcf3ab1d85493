package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/supervisor"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/styles"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show bucket counts and recent tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent tasks to list")
	return cmd
}

func runStatus(cmd *cobra.Command, opts *rootOptions, limit int) error {
	a, err := opts.open()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	var recent []*task.Task
	counts := make(map[task.Status]int)
	for _, status := range task.Statuses() {
		tasks, err := a.store.List(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", status, err)
		}
		counts[status] = len(tasks)
		recent = append(recent, tasks...)
	}

	fmt.Fprintln(out, styles.TitleStyle.Render("Vault "+a.layout.Root))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, status := range task.Statuses() {
		fmt.Fprintf(w, "%s\t%d\n", styles.ForState(string(status)).Render(task.Bucket(status)), counts[status])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	planCount, size, err := calculateDirStats(a.layout.Root, a.layout.Plans())
	if err == nil {
		fmt.Fprintln(out, styles.SubtleStyle.Render(fmt.Sprintf("%d plans, %s on disk", planCount, formatSize(size))))
	}

	if len(recent) > 0 && limit > 0 {
		sort.SliceStable(recent, func(i, j int) bool {
			return recent[i].Updated.After(recent[j].Updated)
		})
		if len(recent) > limit {
			recent = recent[:limit]
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, styles.HeadingStyle.Render("Recent tasks"))
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tUPDATED")
		for _, t := range recent {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, formatAge(t.Updated))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	events, err := audit.Tail(a.layout.ErrorLog(), 3)
	if err == nil && len(events) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, styles.ErrorStyle.Render("Recent errors"))
		for _, e := range events {
			fmt.Fprintf(out, "  %s  %s  %s\n", formatAge(e.Timestamp), e.Action, e.Source)
		}
	}
	return nil
}

// printProcesses lists supervised process state.
func printProcesses(out io.Writer, procs []supervisor.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROCESS\tSTATE\tRESTARTS\tLAST EXIT")
	for _, p := range procs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n", p.Name, p.State, p.RestartCount, p.MaxRestarts, p.LastExit)
	}
	w.Flush()
}

// formatAge returns a human-readable relative time string.
func formatAge(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// calculateDirStats counts plan records and the total size of dir.
func calculateDirStats(dir, plansDir string) (planCount int, totalSize int64, err error) {
	entries, readErr := os.ReadDir(plansDir)
	if readErr == nil {
		for _, e := range entries {
			if filepath.Ext(e.Name()) == ".md" {
				planCount++
			}
		}
	}

	err = filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	return
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1fMB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1fKB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
