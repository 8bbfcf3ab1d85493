package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/executor"
	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

// fakeRunner completes tasks by moving them to done, or returns a scripted error.
type fakeRunner struct {
	store task.Store
	errs  map[string]error

	mu    sync.Mutex
	calls []string
}

func (r *fakeRunner) Run(ctx context.Context, id string) (executor.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, id)
	r.mu.Unlock()

	if err := r.errs[id]; err != nil {
		return executor.Result{TaskID: id}, err
	}
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return executor.Result{}, err
	}
	if _, err := r.store.Transition(ctx, id, t.Status, task.StatusDone, task.Note{Kind: task.NoteCompletion, Text: "done"}); err != nil {
		return executor.Result{}, err
	}
	return executor.Result{TaskID: id, Status: task.StatusDone}, nil
}

func (r *fakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestStore(t *testing.T) (*task.FolderStore, vault.Layout) {
	t.Helper()
	layout := vault.New(t.TempDir())
	store, err := task.NewFolderStore(layout)
	require.NoError(t, err)
	return store, layout
}

func create(t *testing.T, store task.Store, id, body string) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &task.Task{
		ID:     id,
		Source: task.SourceWhatsApp,
		Type:   "none",
		Body:   body,
	}))
}

func TestWorkflow_Cycle(t *testing.T) {
	store, layout := newTestStore(t)
	ctx := context.Background()

	create(t, store, "A_GATED", "Please send the invoice")
	create(t, store, "B_PLAIN", "We launched the new site")

	runner := &fakeRunner{store: store}
	wf := NewWorkflow(store, DefaultPolicy(), runner).WithAudit(audit.NewLogger(layout.AuditLog()))

	stats := wf.Cycle(ctx)
	assert.Equal(t, Stats{MovedToApproval: 1, Executed: 1, Completed: 1}, stats)
	assert.Equal(t, []string{"B_PLAIN"}, runner.Calls())

	gated, err := store.Get(ctx, "A_GATED")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPendingApproval, gated.Status)
	note, ok := gated.LastNote(task.NoteApproval)
	require.True(t, ok)
	assert.Equal(t, `approval required: matched keyword "invoice"`, note.Text)

	// Re-scanning while the task waits for a human does nothing.
	stats = wf.Cycle(ctx)
	assert.Equal(t, Stats{}, stats)

	// Human approves; next cycle executes it.
	require.NoError(t, task.Decide(ctx, store, "A_GATED", true, "go ahead"))
	stats = wf.Cycle(ctx)
	assert.Equal(t, Stats{Executed: 1, Completed: 1}, stats)
	assert.Equal(t, []string{"B_PLAIN", "A_GATED"}, runner.Calls())

	events, err := audit.ReadEvents(layout.AuditLog())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionApprovalRequested, events[0].Action)
}

func TestWorkflow_RejectedIsNeverExecuted(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	create(t, store, "GATED", "contract renewal")

	runner := &fakeRunner{store: store}
	wf := NewWorkflow(store, DefaultPolicy(), runner)
	wf.Cycle(ctx)
	require.NoError(t, task.Decide(ctx, store, "GATED", false, "no"))

	assert.Equal(t, Stats{}, wf.Cycle(ctx))
	assert.Empty(t, runner.Calls())
}

func TestWorkflow_ErrorsAreCountedNotFatal(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	create(t, store, "A", "one")
	create(t, store, "B", "two")
	create(t, store, "C", "three")
	create(t, store, "D", "four")

	runner := &fakeRunner{store: store, errs: map[string]error{
		"A": errors.New("disk full"),
		"B": executor.ErrMaxIterations,
		"C": plan.ErrLocked,
	}}
	stats := NewWorkflow(store, DefaultPolicy(), runner).Cycle(ctx)

	assert.Equal(t, Stats{Executed: 2, Completed: 1, Failed: 1, Errors: 1}, stats)
	assert.Equal(t, []string{"A", "B", "C", "D"}, runner.Calls())
}

func TestWorkflow_RequeuedApprovedTaskIsNotGatedAgain(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	create(t, store, "INV", "invoice ABC")

	runner := &fakeRunner{store: store, errs: map[string]error{}}
	wf := NewWorkflow(store, DefaultPolicy(), runner)
	wf.Cycle(ctx)
	require.NoError(t, task.Decide(ctx, store, "INV", true, ""))

	// The run fails and the task is requeued by hand.
	_, err := store.Transition(ctx, "INV", task.StatusApproved, task.StatusFailed, task.Note{Kind: task.NoteFailure, Text: "boom"})
	require.NoError(t, err)
	require.NoError(t, task.Requeue(ctx, store, "INV", ""))

	stats := wf.Cycle(ctx)
	assert.Equal(t, 0, stats.MovedToApproval)
	assert.Equal(t, 1, stats.Completed)
}

func TestWorkflow_Gated(t *testing.T) {
	wf := NewWorkflow(nil, DefaultPolicy(), nil)

	invoice := &task.Task{ID: "A", Status: task.StatusNeedsAction, Body: "send the invoice"}
	assert.True(t, wf.Gated(invoice))

	plain := &task.Task{ID: "B", Status: task.StatusNeedsAction, Body: "thanks"}
	assert.False(t, wf.Gated(plain))

	approved := &task.Task{ID: "C", Status: task.StatusApproved, Body: "send the invoice"}
	assert.False(t, wf.Gated(approved), "approved tasks are past the gate")

	requeued := &task.Task{
		ID:     "D",
		Status: task.StatusNeedsAction,
		Body:   "send the invoice",
		Notes:  []task.Note{{Kind: task.NoteDecision, Text: "approved: ok"}, {Kind: task.NoteRequeue, Text: "requeued"}},
	}
	assert.False(t, wf.Gated(requeued))
}

func TestWorkflow_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, _ := newTestStore(t)
	create(t, store, "A", "hello")
	runner := &fakeRunner{store: store}
	wf := NewWorkflow(store, DefaultPolicy(), runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- wf.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return len(runner.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	create(t, store, "B", "world")
	require.Eventually(t, func() bool { return len(runner.Calls()) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
