// Package msgs defines shared message types for TUI view transitions.
package msgs

import (
	"time"

	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/supervisor"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// Snapshot is the vault state rendered by the dashboard.
type Snapshot struct {
	Tasks     map[task.Status][]*task.Task
	Events    []audit.Event
	Processes []supervisor.Status
	LoadedAt  time.Time
}

// Count returns the number of tasks in status.
func (s Snapshot) Count(status task.Status) int {
	return len(s.Tasks[status])
}

// SnapshotMsg carries a freshly loaded snapshot.
type SnapshotMsg struct {
	Snapshot Snapshot
	Err      error
}

// TickMsg triggers a periodic refresh.
type TickMsg struct{}

// View transition messages

// OpenTaskMsg signals that the user wants the detail view of a task.
type OpenTaskMsg struct {
	TaskID string
}

// TaskLoadedMsg carries the task and plan for the detail view.
// Plan is nil when execution has not started.
type TaskLoadedMsg struct {
	Task *task.Task
	Plan *plan.Plan
	Err  error
}

// BackMsg signals a return to the dashboard.
type BackMsg struct{}

// DecisionDoneMsg reports the result of approve, reject or requeue.
type DecisionDoneMsg struct {
	TaskID string
	Action string
	Err    error
}
