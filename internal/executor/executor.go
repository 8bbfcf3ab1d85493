// Package executor drives a task through bounded read-reason-plan-act-check
// iterations until it completes or its budget runs out.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// DefaultMaxIterations is the iteration budget for one task.
const DefaultMaxIterations = 10

var (
	// ErrMaxIterations is returned when a task exhausts its budget.
	ErrMaxIterations = errors.New("max iterations exceeded")
	// ErrInterrupted is returned when the context is cancelled between iterations.
	ErrInterrupted = errors.New("execution interrupted")
	// ErrNotRunnable is returned for tasks outside needs_action and approved.
	ErrNotRunnable = errors.New("task is not runnable")
)

// Result summarizes one Run.
type Result struct {
	TaskID     string
	Status     task.Status
	Iterations int
	Plan       *plan.Plan
}

// Executor orchestrates the execution of a single task.
type Executor struct {
	store         task.Store
	tracker       *plan.Tracker
	reasoner      Reasoner
	action        ActionExecutor
	predicate     CompletionPredicate
	maxIterations int
	events        Events
	audit         *audit.Logger
	logger        *zap.Logger
	now           func() time.Time
}

// New creates an Executor over store and tracker with the checklist
// strategies and no action. Set an action with WithAction before running.
func New(store task.Store, tracker *plan.Tracker) *Executor {
	return &Executor{
		store:         store,
		tracker:       tracker,
		reasoner:      ChecklistReasoner{},
		predicate:     ChecklistPredicate{},
		maxIterations: DefaultMaxIterations,
		logger:        zap.NewNop(),
		now:           time.Now,
	}
}

// WithReasoner sets the reasoning strategy.
func (e *Executor) WithReasoner(r Reasoner) *Executor {
	e.reasoner = r
	return e
}

// WithAction sets the action executor.
func (e *Executor) WithAction(a ActionExecutor) *Executor {
	e.action = a
	return e
}

// WithPredicate sets the completion predicate.
func (e *Executor) WithPredicate(p CompletionPredicate) *Executor {
	e.predicate = p
	return e
}

// WithMaxIterations sets the iteration budget. Non-positive values keep the default.
func (e *Executor) WithMaxIterations(n int) *Executor {
	if n > 0 {
		e.maxIterations = n
	}
	return e
}

// WithEvents sets an event handler for progress callbacks.
func (e *Executor) WithEvents(ev Events) *Executor {
	e.events = ev
	return e
}

// WithAudit sets the audit log.
func (e *Executor) WithAudit(l *audit.Logger) *Executor {
	e.audit = l
	return e
}

// WithLogger sets the diagnostic logger.
func (e *Executor) WithLogger(l *zap.Logger) *Executor {
	if l != nil {
		e.logger = l.Named("executor")
	}
	return e
}

// WithClock overrides the time source.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// MaxIterations returns the configured budget.
func (e *Executor) MaxIterations() int {
	return e.maxIterations
}

// Run executes the task until it is done, its budget is exhausted, or ctx is
// cancelled. Only one Run per task can be active at a time.
func (e *Executor) Run(ctx context.Context, taskID string) (Result, error) {
	if e.action == nil {
		return Result{}, errors.New("executor has no action configured")
	}

	lock := e.tracker.Lock(taskID)
	if err := lock.Acquire(); err != nil {
		return Result{}, err
	}
	defer lock.Release()

	t, err := e.store.Get(ctx, taskID)
	if err != nil {
		return Result{}, err
	}
	if t.Status != task.StatusNeedsAction && t.Status != task.StatusApproved {
		return Result{TaskID: t.ID, Status: t.Status}, fmt.Errorf("%w: %s is %s", ErrNotRunnable, t.ID, t.Status)
	}
	startStatus := t.Status

	p, created, err := e.tracker.LoadOrCreate(taskID)
	if err != nil {
		return Result{}, err
	}
	p.Reopen()
	if created {
		if err := e.tracker.Save(p); err != nil {
			return Result{}, fmt.Errorf("failed to save plan: %w", err)
		}
	}

	log := e.logger.With(zap.String("task", t.ID))
	e.record(audit.ActionExecutionStarted, t, audit.StatusPending, map[string]any{
		"iteration": p.Iteration,
		"budget":    e.maxIterations,
	})

	if p.Status == plan.StatusCompleted {
		// A previous run completed the plan but stopped before moving the task.
		return e.succeed(t, startStatus, p)
	}

	limit := p.BudgetStart + e.maxIterations
	for p.Iteration < limit {
		if ctx.Err() != nil {
			return e.interrupt(t, p)
		}

		p.Iteration++
		if e.events != nil {
			e.events.OnIterationStart(t, p.Iteration, limit)
		}

		entry := e.iterate(ctx, t, p)
		if err := p.Record(entry); err != nil {
			return Result{}, err
		}
		if err := e.tracker.Save(p); err != nil {
			return Result{}, fmt.Errorf("failed to save plan: %w", err)
		}
		log.Debug("iteration finished",
			zap.Int("iteration", entry.Iteration),
			zap.String("phase", entry.Phase),
			zap.String("outcome", entry.Outcome),
			zap.Int64("duration_ms", entry.DurationMS))
		if e.events != nil {
			e.events.OnIteration(t, entry)
		}

		if entry.Outcome == plan.OutcomeDone {
			return e.succeed(t, startStatus, p)
		}
	}

	return e.fail(t, startStatus, p)
}

// iterate runs the phases of one iteration. Any error or panic ends the
// iteration early; the returned entry names the last phase reached.
func (e *Executor) iterate(ctx context.Context, t *task.Task, p *plan.Plan) (entry plan.LogEntry) {
	start := e.now()
	entry = plan.LogEntry{Iteration: p.Iteration, Phase: plan.PhaseRead, Step: -1, At: start.UTC()}
	defer func() {
		if r := recover(); r != nil {
			entry.Outcome = plan.OutcomeError
			entry.Action = fmt.Sprintf("panic in %s: %v", entry.Phase, r)
		}
		entry.DurationMS = e.now().Sub(start).Milliseconds()
	}()

	fail := func(err error) plan.LogEntry {
		entry.Outcome = plan.OutcomeError
		entry.Action = err.Error()
		return entry
	}

	// Read: observe the current record.
	current, err := e.store.Get(ctx, t.ID)
	if err != nil {
		return fail(err)
	}
	if current.Status != t.Status {
		return fail(fmt.Errorf("task moved to %s", current.Status))
	}
	*t = *current

	entry.Phase = plan.PhaseReason
	decision, err := e.reasoner.Next(ctx, t, p)
	if err != nil {
		return fail(err)
	}

	entry.Phase = plan.PhasePlan
	p.AddSteps(decision.Add...)
	if decision.Step >= len(p.Steps) {
		return fail(fmt.Errorf("step %d out of range (%d steps)", decision.Step, len(p.Steps)))
	}

	if decision.Step >= 0 {
		entry.Phase = plan.PhaseAct
		entry.Step = decision.Step
		step := p.Steps[decision.Step]
		entry.Action = step.Description

		outcome := e.action.Invoke(ctx, t, step)
		if !outcome.OK {
			entry.Outcome = plan.OutcomeFailed
			entry.Action = describeFailure(step.Description, outcome)
			return entry
		}
		if err := p.MarkDone(decision.Step); err != nil {
			return fail(err)
		}
	}

	entry.Phase = plan.PhaseCheck
	done, err := e.predicate.IsDone(ctx, t, p)
	if err != nil {
		return fail(err)
	}
	if done {
		entry.Outcome = plan.OutcomeDone
	} else {
		entry.Outcome = plan.OutcomeProgress
	}
	return entry
}

func describeFailure(action string, o Outcome) string {
	switch {
	case o.Err != nil && o.Summary != "":
		return fmt.Sprintf("%s: %s (%v)", action, o.Summary, o.Err)
	case o.Err != nil:
		return fmt.Sprintf("%s: %v", action, o.Err)
	case o.Summary != "":
		return fmt.Sprintf("%s: %s", action, o.Summary)
	default:
		return action + ": failed"
	}
}

func (e *Executor) succeed(t *task.Task, from task.Status, p *plan.Plan) (Result, error) {
	p.Status = plan.StatusCompleted
	if err := e.tracker.Save(p); err != nil {
		return Result{}, fmt.Errorf("failed to save plan: %w", err)
	}

	text := fmt.Sprintf("completed after %d iterations (%d/%d steps)", p.Iteration, p.CompletedSteps(), len(p.Steps))
	if err := e.move(t, from, task.StatusDone, task.NoteCompletion, text); err != nil {
		return Result{}, err
	}

	e.logger.Info("task completed", zap.String("task", t.ID), zap.Int("iterations", p.Iteration))
	e.record(audit.ActionTaskCompleted, t, audit.StatusSuccess, map[string]any{
		"iterations": p.Iteration,
		"steps":      len(p.Steps),
	})
	if e.events != nil {
		e.events.OnComplete(t, p)
	}
	return Result{TaskID: t.ID, Status: task.StatusDone, Iterations: p.Iteration, Plan: p}, nil
}

func (e *Executor) fail(t *task.Task, from task.Status, p *plan.Plan) (Result, error) {
	p.Status = plan.StatusAbandoned
	if err := e.tracker.Save(p); err != nil {
		return Result{}, fmt.Errorf("failed to save plan: %w", err)
	}

	reason := fmt.Sprintf("max iterations (%d) exceeded", e.maxIterations)
	if err := e.move(t, from, task.StatusFailed, task.NoteFailure, reason); err != nil {
		return Result{}, err
	}

	e.logger.Warn("task failed", zap.String("task", t.ID), zap.String("reason", reason))
	e.record(audit.ActionTaskFailed, t, audit.StatusFailure, map[string]any{
		"iterations": p.Iteration,
		"reason":     reason,
	})
	if e.events != nil {
		e.events.OnFailed(t, p, reason)
	}
	return Result{TaskID: t.ID, Status: task.StatusFailed, Iterations: p.Iteration, Plan: p},
		fmt.Errorf("task %s: %w", t.ID, ErrMaxIterations)
}

func (e *Executor) interrupt(t *task.Task, p *plan.Plan) (Result, error) {
	e.logger.Info("execution interrupted", zap.String("task", t.ID), zap.Int("iteration", p.Iteration))
	e.record(audit.ActionExecutionInterrupted, t, audit.StatusPending, map[string]any{
		"iteration": p.Iteration,
	})
	return Result{TaskID: t.ID, Status: t.Status, Iterations: p.Iteration, Plan: p},
		fmt.Errorf("task %s: %w", t.ID, ErrInterrupted)
}

// move applies the terminal transition. The store write is not tied to the
// run context so a cancelled run still records its outcome.
func (e *Executor) move(t *task.Task, from, to task.Status, kind, text string) error {
	ok, err := e.store.Transition(context.Background(), t.ID, from, to, task.Note{
		At:   e.now().UTC(),
		Kind: kind,
		Text: text,
	})
	if err != nil {
		return fmt.Errorf("failed to move task to %s: %w", to, err)
	}
	if !ok {
		return fmt.Errorf("task %s is no longer %s", t.ID, from)
	}
	t.Status = to
	return nil
}

func (e *Executor) record(action string, t *task.Task, status string, details map[string]any) {
	if e.audit == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["task"] = t.ID
	if err := e.audit.Log(action, t.Source, status, details); err != nil {
		e.logger.Warn("failed to write audit event", zap.String("action", action), zap.Error(err))
	}
}
