package approval

import (
	"context"

	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// DecisionSource is the audit source of human decisions.
const DecisionSource = "human"

// Decider applies human decisions and records them in the audit log.
type Decider struct {
	store task.Store
	audit *audit.Logger
}

// NewDecider creates a decider. auditLog may be nil.
func NewDecider(store task.Store, auditLog *audit.Logger) *Decider {
	return &Decider{store: store, audit: auditLog}
}

// Approve moves a pending task to approved.
func (d *Decider) Approve(ctx context.Context, id, reason string) error {
	return d.decide(ctx, id, true, reason)
}

// Reject moves a pending task to rejected.
func (d *Decider) Reject(ctx context.Context, id, reason string) error {
	return d.decide(ctx, id, false, reason)
}

func (d *Decider) decide(ctx context.Context, id string, approved bool, reason string) error {
	if err := task.Decide(ctx, d.store, id, approved, reason); err != nil {
		return err
	}
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	return d.record(audit.ActionApprovalDecided, map[string]any{
		"task":     id,
		"decision": decision,
		"reason":   reason,
	})
}

// Requeue moves a failed task back to needs_action.
func (d *Decider) Requeue(ctx context.Context, id, reason string) error {
	if err := task.Requeue(ctx, d.store, id, reason); err != nil {
		return err
	}
	return d.record(audit.ActionTaskRequeued, map[string]any{"task": id, "reason": reason})
}

func (d *Decider) record(action string, details map[string]any) error {
	if d.audit == nil {
		return nil
	}
	return d.audit.Log(action, DecisionSource, audit.StatusSuccess, details)
}
