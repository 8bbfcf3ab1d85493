// Package views holds the bubbletea models for each screen of the dashboard.
package views

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/supervisor"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/msgs"
)

// DefaultEventLimit is how many recent audit events a snapshot carries.
const DefaultEventLimit = 8

// Loader reads the vault state shown by the views.
type Loader struct {
	Store      task.Store
	Tracker    *plan.Tracker
	AuditPath  string
	EventLimit int
	// Processes reports supervised process state. Nil when nothing is supervised.
	Processes func() []supervisor.Status
	Now       func() time.Time
}

// Snapshot lists every bucket and the audit tail.
func (l Loader) Snapshot(ctx context.Context) (msgs.Snapshot, error) {
	snap := msgs.Snapshot{Tasks: make(map[task.Status][]*task.Task)}
	for _, status := range task.Statuses() {
		tasks, err := l.Store.List(ctx, status)
		if err != nil {
			return snap, fmt.Errorf("listing %s: %w", status, err)
		}
		snap.Tasks[status] = tasks
	}

	if l.AuditPath != "" {
		limit := l.EventLimit
		if limit == 0 {
			limit = DefaultEventLimit
		}
		events, err := audit.Tail(l.AuditPath, limit)
		if err != nil {
			return snap, fmt.Errorf("reading audit log: %w", err)
		}
		snap.Events = events
	}

	if l.Processes != nil {
		snap.Processes = l.Processes()
	}
	snap.LoadedAt = l.now()
	return snap, nil
}

// Task loads one task and its plan, if any.
func (l Loader) Task(ctx context.Context, id string) (*task.Task, *plan.Plan, error) {
	t, err := l.Store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if l.Tracker == nil {
		return t, nil, nil
	}
	p, err := l.Tracker.Load(id)
	if err != nil {
		if errors.Is(err, plan.ErrNotFound) {
			return t, nil, nil
		}
		return t, nil, err
	}
	return t, p, nil
}

func (l Loader) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// formatAge formats a duration in human-readable form.
func formatAge(d time.Duration) string {
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
