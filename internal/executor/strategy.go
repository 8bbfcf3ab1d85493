package executor

import (
	"context"

	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// Decision is the reasoning result for one iteration.
type Decision struct {
	// Add lists new steps to append to the plan.
	Add []string
	// Step is the index (after Add is applied) of the step to act on.
	// A negative index skips the act phase.
	Step int
}

// Outcome is the result of invoking an action. Failures are reported here,
// never by panicking.
type Outcome struct {
	OK      bool
	Summary string
	Err     error
}

// Reasoner decides what to do next.
type Reasoner interface {
	Next(ctx context.Context, t *task.Task, p *plan.Plan) (Decision, error)
}

// ActionExecutor performs one plan step against the outside world.
type ActionExecutor interface {
	Invoke(ctx context.Context, t *task.Task, step plan.Step) Outcome
}

// CompletionPredicate decides whether the task is finished.
type CompletionPredicate interface {
	IsDone(ctx context.Context, t *task.Task, p *plan.Plan) (bool, error)
}

// ActionFunc adapts a function to ActionExecutor.
type ActionFunc func(ctx context.Context, t *task.Task, step plan.Step) Outcome

// Invoke implements ActionExecutor.
func (f ActionFunc) Invoke(ctx context.Context, t *task.Task, step plan.Step) Outcome {
	return f(ctx, t, step)
}
