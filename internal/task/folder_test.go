package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

var testNow = time.Date(2026, 10, 16, 10, 15, 0, 0, time.UTC)

func newTestFolderStore(t *testing.T, opts ...FolderOption) (*FolderStore, vault.Layout) {
	t.Helper()
	layout := vault.New(t.TempDir())
	opts = append([]FolderOption{WithClock(func() time.Time { return testNow })}, opts...)
	s, err := NewFolderStore(layout, opts...)
	require.NoError(t, err)
	return s, layout
}

func newTestTask(id string) *Task {
	return &Task{
		ID:     id,
		Source: SourceWhatsApp,
		Type:   "invoice",
		Fields: map[string]string{"amount": "5000.00"},
		Body:   "Please invoice Client ABC\n",
	}
}

func TestFolderStore_CreateAndGet(t *testing.T) {
	s, layout := newTestFolderStore(t)
	ctx := context.Background()

	tk := newTestTask("WHATSAPP_invoice_20261016_101500")
	require.NoError(t, s.Create(ctx, tk))

	_, err := os.Stat(filepath.Join(layout.Bucket(vault.NeedsAction), tk.ID+".md"))
	require.NoError(t, err)

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsAction, got.Status)
	assert.Equal(t, PriorityNormal, got.Priority)
	assert.True(t, got.Created.Equal(testNow))
	assert.Equal(t, "Please invoice Client ABC\n", got.Body)
	assert.Equal(t, "5000.00", got.Field("amount"))
}

func TestFolderStore_GetNotFound(t *testing.T) {
	s, _ := newTestFolderStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got: %v", err)
}

func TestFolderStore_CreateRejectsNonInitialStatus(t *testing.T) {
	s, _ := newTestFolderStore(t)
	tk := newTestTask("X")
	tk.Status = StatusApproved
	assert.Error(t, s.Create(context.Background(), tk))
}

func TestFolderStore_CreateCollisionAppendsSuffix(t *testing.T) {
	s, _ := newTestFolderStore(t)
	ctx := context.Background()

	first := newTestTask("WHATSAPP_invoice_20261016_101500")
	second := newTestTask("WHATSAPP_invoice_20261016_101500")
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))

	assert.Equal(t, "WHATSAPP_invoice_20261016_101500", first.ID)
	assert.True(t, strings.HasPrefix(second.ID, first.ID+"_"), "unexpected id %q", second.ID)

	tasks, err := s.List(ctx, StatusNeedsAction)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestFolderStore_CreateCollisionAcrossBuckets(t *testing.T) {
	s, _ := newTestFolderStore(t)
	ctx := context.Background()

	first := newTestTask("SAME")
	require.NoError(t, s.Create(ctx, first))
	ok, err := s.Transition(ctx, "SAME", StatusNeedsAction, StatusDone, Note{})
	require.NoError(t, err)
	require.True(t, ok)

	second := newTestTask("SAME")
	require.NoError(t, s.Create(ctx, second))
	assert.NotEqual(t, "SAME", second.ID)
}

func TestFolderStore_ConcurrentCreateNeverOverwrites(t *testing.T) {
	s, _ := newTestFolderStore(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Create(ctx, newTestTask("WHATSAPP_none_20261016_101500"))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tasks, err := s.List(ctx, StatusNeedsAction)
	require.NoError(t, err)
	assert.Len(t, tasks, n)
}

func TestFolderStore_DuplicateSignal(t *testing.T) {
	s, layout := newTestFolderStore(t)
	ctx := context.Background()

	first := newTestTask("A")
	first.SignalID = "wamid.123"
	require.NoError(t, s.Create(ctx, first))

	dup := newTestTask("B")
	dup.SignalID = "wamid.123"
	err := s.Create(ctx, dup)
	assert.True(t, errors.Is(err, ErrDuplicateSignal), "expected ErrDuplicateSignal, got: %v", err)

	_, err = os.Stat(filepath.Join(layout.Bucket(vault.NeedsAction), "B.md"))
	assert.True(t, os.IsNotExist(err), "duplicate must not create a record")
}

func TestFolderStore_OrphanSignalMarkerIsReclaimed(t *testing.T) {
	s, layout := newTestFolderStore(t)
	ctx := context.Background()

	first := newTestTask("A")
	first.SignalID = "wamid.crash"
	require.NoError(t, s.Create(ctx, first))

	// Simulate a crash after the claim: the record is gone, the marker stays.
	require.NoError(t, os.Remove(filepath.Join(layout.Bucket(vault.NeedsAction), "A.md")))
	markers, err := os.ReadDir(layout.Signals())
	require.NoError(t, err)
	require.Len(t, markers, 1)
	marker := filepath.Join(layout.Signals(), markers[0].Name())
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "A\n", string(data))

	// A fresh marker still counts as an in-flight claim.
	retry := newTestTask("B")
	retry.SignalID = "wamid.crash"
	err = s.Create(ctx, retry)
	assert.True(t, errors.Is(err, ErrDuplicateSignal), "expected ErrDuplicateSignal, got: %v", err)

	old := time.Now().Add(-2 * markerGrace)
	require.NoError(t, os.Chtimes(marker, old, old))
	retry = newTestTask("B")
	retry.SignalID = "wamid.crash"
	require.NoError(t, s.Create(ctx, retry))

	data, err = os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "B\n", string(data))

	// A stale marker naming a live record is still a duplicate.
	require.NoError(t, os.Chtimes(marker, old, old))
	again := newTestTask("C")
	again.SignalID = "wamid.crash"
	err = s.Create(ctx, again)
	assert.True(t, errors.Is(err, ErrDuplicateSignal), "expected ErrDuplicateSignal, got: %v", err)
}

func TestFolderStore_Transition(t *testing.T) {
	s, layout := newTestFolderStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestTask("T1")))

	ok, err := s.Transition(ctx, "T1", StatusNeedsAction, StatusPendingApproval,
		Note{Kind: NoteApproval, Text: `matched keyword "invoice"`})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(filepath.Join(layout.Bucket(vault.NeedsAction), "T1.md"))
	assert.True(t, os.IsNotExist(err))

	got, err := s.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, got.Status)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, NoteApproval, got.Notes[0].Kind)
	assert.True(t, got.Notes[0].At.Equal(testNow))
	assert.Equal(t, "Please invoice Client ABC\n", got.Body)

	// Second claim of the same edge is a no-op.
	ok, err = s.Transition(ctx, "T1", StatusNeedsAction, StatusPendingApproval, Note{Kind: NoteApproval, Text: "again"})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = s.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, got.Notes, 1)
}

func TestFolderStore_TransitionIllegal(t *testing.T) {
	s, _ := newTestFolderStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestTask("T1")))

	_, err := s.Transition(ctx, "T1", StatusNeedsAction, StatusApproved, Note{})
	assert.True(t, errors.Is(err, ErrIllegalTransition), "expected ErrIllegalTransition, got: %v", err)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusNeedsAction, te.From)
	assert.Equal(t, StatusApproved, te.To)
}

func TestFolderStore_ConcurrentTransitionSingleWinner(t *testing.T) {
	s, _ := newTestFolderStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestTask("T1")))

	const n = 8
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Transition(ctx, "T1", StatusNeedsAction, StatusDone, Note{Kind: NoteCompletion, Text: "done"})
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for ok := range wins {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestFolderStore_ListSkipsMalformed(t *testing.T) {
	var skipped []string
	s, layout := newTestFolderStore(t, WithSkipFunc(func(ref string, err error) {
		skipped = append(skipped, filepath.Base(ref))
		assert.True(t, errors.Is(err, ErrMalformed), "unexpected skip error: %v", err)
	}))
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestTask("GOOD")))

	dir := layout.Bucket(vault.NeedsAction)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BAD.md"), []byte("no header"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	tasks, err := s.List(ctx, StatusNeedsAction)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "GOOD", tasks[0].ID)
	assert.Equal(t, []string{"BAD.md"}, skipped)

	// Malformed records are left in place.
	_, err = os.Stat(filepath.Join(dir, "BAD.md"))
	assert.NoError(t, err)
}

func TestFolderStore_ListOrdersByCreated(t *testing.T) {
	s, _ := newTestFolderStore(t)
	ctx := context.Background()

	late := newTestTask("A_LATE")
	late.Created = testNow.Add(time.Minute)
	early := newTestTask("Z_EARLY")
	early.Created = testNow
	require.NoError(t, s.Create(ctx, late))
	require.NoError(t, s.Create(ctx, early))

	tasks, err := s.List(ctx, StatusNeedsAction)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Z_EARLY", tasks[0].ID)
	assert.Equal(t, "A_LATE", tasks[1].ID)
}

func TestFolderStore_HumanMoveToApproved(t *testing.T) {
	s, layout := newTestFolderStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestTask("T1")))
	ok, err := s.Transition(ctx, "T1", StatusNeedsAction, StatusPendingApproval, Note{Kind: NoteApproval, Text: "gate"})
	require.NoError(t, err)
	require.True(t, ok)

	// A human drags the file from Pending_Approval to Approved.
	require.NoError(t, os.Rename(
		filepath.Join(layout.Bucket(vault.PendingApproval), "T1.md"),
		filepath.Join(layout.Bucket(vault.Approved), "T1.md"),
	))

	tasks, err := s.List(ctx, StatusApproved)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusApproved, tasks[0].Status)
	last, ok := tasks[0].LastNote(NoteDecision)
	require.True(t, ok)
	assert.Contains(t, last.Text, "approved")

	// Reading never rewrites the record.
	path := filepath.Join(layout.Bucket(vault.Approved), "T1.md")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "status: pending_approval")

	// The next claimed transition persists the observed decision.
	ok, err = s.Transition(ctx, "T1", StatusApproved, StatusDone, Note{Kind: NoteCompletion, Text: "done"})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	kinds := make([]string, 0, len(got.Notes))
	for _, n := range got.Notes {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []string{NoteApproval, NoteDecision, NoteCompletion}, kinds)
}

func TestFolderStore_ListDuringTransitionKeepsNotes(t *testing.T) {
	s, _ := newTestFolderStore(t)
	ctx := context.Background()

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, _ = s.List(ctx, StatusDone)
			}
		}()
	}

	const rounds = 200
	for i := 0; i < rounds; i++ {
		id := fmt.Sprintf("T%03d", i)
		require.NoError(t, s.Create(ctx, newTestTask(id)))
		ok, err := s.Transition(ctx, id, StatusNeedsAction, StatusDone, Note{Kind: NoteCompletion, Text: "finished"})
		require.NoError(t, err)
		require.True(t, ok)
	}
	close(stop)
	readers.Wait()

	for i := 0; i < rounds; i++ {
		id := fmt.Sprintf("T%03d", i)
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		note, ok := got.LastNote(NoteCompletion)
		if !ok || note.Text != "finished" {
			t.Errorf("expected completion note on %s, got: %+v", id, got.Notes)
		}
	}
}

func TestFolderStore_PresetPendingApprovalHeader(t *testing.T) {
	s, layout := newTestFolderStore(t)
	record := "---\nid: HAND\nsource: cli\ntype: none\nstatus: pending_approval\npriority: normal\nrequires_approval: false\n---\nwritten by hand\n"
	require.NoError(t, os.WriteFile(filepath.Join(layout.Bucket(vault.NeedsAction), "HAND.md"), []byte(record), 0644))

	tasks, err := s.List(context.Background(), StatusNeedsAction)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusNeedsAction, tasks[0].Status)
	assert.True(t, tasks[0].RequiresApproval)
}

func TestFolderStore_IllegalBucketMismatchIsMalformed(t *testing.T) {
	var skips int
	s, layout := newTestFolderStore(t, WithSkipFunc(func(string, error) { skips++ }))
	record := "---\nid: ODD\nstatus: needs_action\n---\nbody\n"
	require.NoError(t, os.WriteFile(filepath.Join(layout.Bucket(vault.Approved), "ODD.md"), []byte(record), 0644))

	tasks, err := s.List(context.Background(), StatusApproved)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, 1, skips)
}

func TestDecideAndRequeue(t *testing.T) {
	s, _ := newTestFolderStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestTask("T1")))

	err := Decide(ctx, s, "T1", true, "")
	require.Error(t, err, "task is not pending approval yet")

	_, err = s.Transition(ctx, "T1", StatusNeedsAction, StatusPendingApproval, Note{})
	require.NoError(t, err)
	require.NoError(t, Decide(ctx, s, "T1", false, "not this month"))

	got, err := s.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	n, ok := got.LastNote(NoteDecision)
	require.True(t, ok)
	assert.Equal(t, "rejected: not this month", n.Text)

	require.NoError(t, s.Create(ctx, newTestTask("T2")))
	_, err = s.Transition(ctx, "T2", StatusNeedsAction, StatusFailed, Note{Kind: NoteFailure, Text: "boom"})
	require.NoError(t, err)
	require.NoError(t, Requeue(ctx, s, "T2", "retry"))

	got, err = s.Get(ctx, "T2")
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsAction, got.Status)

	err = Requeue(ctx, s, "missing", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}
