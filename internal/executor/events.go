package executor

import (
	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// Events receives callbacks during task execution.
// Implement this interface in the CLI or TUI to receive updates.
type Events interface {
	// OnIterationStart is called before the phases of an iteration run.
	OnIterationStart(t *task.Task, iteration, limit int)

	// OnIteration is called after an iteration is logged and saved.
	OnIteration(t *task.Task, entry plan.LogEntry)

	// OnComplete is called when the task reaches done.
	OnComplete(t *task.Task, p *plan.Plan)

	// OnFailed is called when the budget is exhausted.
	OnFailed(t *task.Task, p *plan.Plan, reason string)
}
