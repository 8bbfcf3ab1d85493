package task

import (
	"context"
	"fmt"
	"time"
)

// Decide records the human approval decision on a pending task.
func Decide(ctx context.Context, store Store, id string, approved bool, reason string) error {
	to := StatusRejected
	verb := "rejected"
	if approved {
		to = StatusApproved
		verb = "approved"
	}
	text := verb
	if reason != "" {
		text = verb + ": " + reason
	}

	ok, err := store.Transition(ctx, id, StatusPendingApproval, to, Note{
		At:   time.Now().UTC(),
		Kind: NoteDecision,
		Text: text,
	})
	if err != nil {
		return err
	}
	if !ok {
		return notInStatus(ctx, store, id, StatusPendingApproval)
	}
	return nil
}

// Requeue moves a failed task back to needs_action.
func Requeue(ctx context.Context, store Store, id, reason string) error {
	text := "requeued"
	if reason != "" {
		text = "requeued: " + reason
	}
	ok, err := store.Transition(ctx, id, StatusFailed, StatusNeedsAction, Note{
		At:   time.Now().UTC(),
		Kind: NoteRequeue,
		Text: text,
	})
	if err != nil {
		return err
	}
	if !ok {
		return notInStatus(ctx, store, id, StatusFailed)
	}
	return nil
}

func notInStatus(ctx context.Context, store Store, id string, want Status) error {
	t, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("task %s is %s, not %s", id, t.Status, want)
}
