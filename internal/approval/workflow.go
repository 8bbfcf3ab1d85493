package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/executor"
	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// DefaultInterval is the polling interval of Run.
const DefaultInterval = 30 * time.Second

// Runner executes one task. *executor.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, taskID string) (executor.Result, error)
}

// Stats counts what one cycle did.
type Stats struct {
	MovedToApproval int
	Executed        int
	Completed       int
	Failed          int
	Errors          int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.MovedToApproval += other.MovedToApproval
	s.Executed += other.Executed
	s.Completed += other.Completed
	s.Failed += other.Failed
	s.Errors += other.Errors
}

// Workflow moves gated tasks to pending approval and hands the rest to the
// executor. It never decides approval itself.
type Workflow struct {
	store  task.Store
	policy Policy
	runner Runner
	audit  *audit.Logger
	logger *zap.Logger
	now    func() time.Time
}

// NewWorkflow creates a workflow over store.
func NewWorkflow(store task.Store, policy Policy, runner Runner) *Workflow {
	return &Workflow{
		store:  store,
		policy: policy,
		runner: runner,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// WithAudit sets the audit log.
func (w *Workflow) WithAudit(l *audit.Logger) *Workflow {
	w.audit = l
	return w
}

// WithLogger sets the diagnostic logger.
func (w *Workflow) WithLogger(l *zap.Logger) *Workflow {
	if l != nil {
		w.logger = l.Named("workflow")
	}
	return w
}

// Cycle performs one pass: gate, then execute needs_action, then execute approved.
// Per-task errors are counted and logged; they never abort the pass.
func (w *Workflow) Cycle(ctx context.Context) Stats {
	var stats Stats

	pending, err := w.store.List(ctx, task.StatusNeedsAction)
	if err != nil {
		w.logger.Warn("failed to list needs_action tasks", zap.Error(err))
		stats.Errors++
	}

	var runnable []string
	for _, t := range pending {
		if ctx.Err() != nil {
			return stats
		}
		if !w.Gated(t) {
			runnable = append(runnable, t.ID)
			continue
		}
		reason := w.policy.Reason(t)
		moved, err := w.store.Transition(ctx, t.ID, task.StatusNeedsAction, task.StatusPendingApproval, task.Note{
			At:   w.now().UTC(),
			Kind: task.NoteApproval,
			Text: "approval required: " + reason,
		})
		if err != nil {
			w.logger.Warn("failed to request approval", zap.String("task", t.ID), zap.Error(err))
			stats.Errors++
			continue
		}
		if !moved {
			continue
		}
		stats.MovedToApproval++
		w.logger.Info("approval requested", zap.String("task", t.ID), zap.String("reason", reason))
		w.record(audit.ActionApprovalRequested, t, audit.StatusPending, map[string]any{"reason": reason})
	}

	for _, id := range runnable {
		if ctx.Err() != nil {
			return stats
		}
		w.execute(ctx, id, &stats)
	}

	approved, err := w.store.List(ctx, task.StatusApproved)
	if err != nil {
		w.logger.Warn("failed to list approved tasks", zap.Error(err))
		stats.Errors++
	}
	for _, t := range approved {
		if ctx.Err() != nil {
			return stats
		}
		w.execute(ctx, t.ID, &stats)
	}

	return stats
}

func (w *Workflow) execute(ctx context.Context, id string, stats *Stats) {
	if w.runner == nil {
		return
	}
	res, err := w.runner.Run(ctx, id)
	switch {
	case err == nil:
		stats.Executed++
		if res.Status == task.StatusDone {
			stats.Completed++
		}
	case errors.Is(err, executor.ErrMaxIterations):
		stats.Executed++
		stats.Failed++
	case errors.Is(err, executor.ErrInterrupted):
		stats.Executed++
	case errors.Is(err, plan.ErrLocked), errors.Is(err, executor.ErrNotRunnable):
		// Another worker owns it or it moved on since the listing.
		w.logger.Debug("skipping task", zap.String("task", id), zap.Error(err))
	default:
		stats.Errors++
		w.logger.Warn("task execution error", zap.String("task", id), zap.Error(err))
	}
}

// Gated reports whether t must wait for a human decision before it runs.
func (w *Workflow) Gated(t *task.Task) bool {
	return t.Status == task.StatusNeedsAction && w.policy.RequiresApproval(t) && !previouslyApproved(t)
}

// previouslyApproved reports whether a human already approved t, which is
// the case for an approved task that failed and was requeued.
func previouslyApproved(t *task.Task) bool {
	n, ok := t.LastNote(task.NoteDecision)
	return ok && strings.HasPrefix(n.Text, "approved")
}

// Run performs a cycle immediately and then one per interval until ctx is cancelled.
func (w *Workflow) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats := w.Cycle(ctx)
		w.logger.Debug("cycle finished",
			zap.Int("moved_to_approval", stats.MovedToApproval),
			zap.Int("executed", stats.Executed),
			zap.Int("failed", stats.Failed),
			zap.Int("errors", stats.Errors))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Workflow) record(action string, t *task.Task, status string, details map[string]any) {
	if w.audit == nil {
		return
	}
	details["task"] = t.ID
	if err := w.audit.Log(action, t.Source, status, details); err != nil {
		w.logger.Warn("failed to write audit event", zap.String("action", action), zap.Error(err))
	}
}
