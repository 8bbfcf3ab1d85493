package task

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

const (
	recordExt   = ".md"
	maxIDProbes = 8
	// markerGrace protects a signal claim while its Create is still in flight.
	markerGrace = time.Minute
)

var buckets = map[Status]string{
	StatusNeedsAction:     vault.NeedsAction,
	StatusPendingApproval: vault.PendingApproval,
	StatusApproved:        vault.Approved,
	StatusRejected:        vault.Rejected,
	StatusDone:            vault.Done,
	StatusFailed:          vault.Inbox,
}

// Bucket returns the vault folder holding tasks in status.
func Bucket(s Status) string {
	return buckets[s]
}

// FolderStore keeps one markdown record per task inside the vault bucket
// named after its status. The bucket a record sits in is authoritative.
type FolderStore struct {
	layout vault.Layout
	onSkip SkipFunc
	now    func() time.Time

	mu sync.Mutex
}

// FolderOption configures a FolderStore.
type FolderOption func(*FolderStore)

// WithSkipFunc reports records skipped by List.
func WithSkipFunc(fn SkipFunc) FolderOption {
	return func(s *FolderStore) {
		s.onSkip = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) FolderOption {
	return func(s *FolderStore) {
		s.now = now
	}
}

// NewFolderStore creates the vault layout if needed and returns a store over it.
func NewFolderStore(layout vault.Layout, opts ...FolderOption) (*FolderStore, error) {
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	s := &FolderStore{
		layout: layout,
		onSkip: func(string, error) {},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns where a task in status is stored.
func (s *FolderStore) Path(id string, status Status) string {
	return filepath.Join(s.layout.Bucket(Bucket(status)), id+recordExt)
}

// Create implements Store.
func (s *FolderStore) Create(ctx context.Context, t *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepareNew(t, s.now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marker := ""
	if t.SignalID != "" {
		var err error
		if marker, err = s.claimSignal(t.SignalID); err != nil {
			return err
		}
	}

	if err := s.writeNew(t, marker); err != nil {
		if marker != "" {
			os.Remove(marker)
		}
		return err
	}
	return nil
}

// claimSignal creates the dedup marker for a signal id exclusively. A marker
// left behind by a Create that never wrote its record is reclaimed once it is
// older than markerGrace.
func (s *FolderStore) claimSignal(signalID string) (string, error) {
	sum := sha256.Sum256([]byte(signalID))
	path := filepath.Join(s.layout.Signals(), hex.EncodeToString(sum[:16]))

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to claim signal: %w", err)
		}
		if attempt > 0 || !s.orphanMarker(path) {
			break
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to reclaim signal marker: %w", err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrDuplicateSignal, signalID)
}

// orphanMarker reports whether the marker at path names no existing record.
func (s *FolderStore) orphanMarker(path string) bool {
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) < markerGrace {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	id := strings.TrimSpace(string(data))
	return id == "" || !s.exists(id)
}

// writeNew links a fully written temp file into the needs_action bucket so a
// record is never overwritten and never observed half-written. The signal
// marker, if any, names each candidate id before it is linked.
func (s *FolderStore) writeNew(t *Task, marker string) error {
	dir := s.layout.Bucket(Bucket(StatusNeedsAction))
	base := t.ID

	for probe := 0; probe < maxIDProbes; probe++ {
		if probe > 0 {
			id, err := withSuffix(base)
			if err != nil {
				return fmt.Errorf("failed to generate id suffix: %w", err)
			}
			t.ID = id
		}
		if s.exists(t.ID) {
			continue
		}

		data, err := Marshal(t)
		if err != nil {
			return err
		}
		if marker != "" {
			if err := os.WriteFile(marker, []byte(t.ID+"\n"), 0644); err != nil {
				return fmt.Errorf("failed to record signal marker: %w", err)
			}
		}
		tmp, err := writeTemp(dir, t.ID, data)
		if err != nil {
			return err
		}
		err = os.Link(tmp, filepath.Join(dir, t.ID+recordExt))
		os.Remove(tmp)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create task record: %w", err)
		}
	}
	return fmt.Errorf("failed to find a free id for %s", base)
}

// exists reports whether any bucket holds a record named id.
func (s *FolderStore) exists(id string) bool {
	for _, status := range Statuses() {
		if _, err := os.Lstat(s.Path(id, status)); err == nil {
			return true
		}
	}
	return false
}

// Get implements Store.
func (s *FolderStore) Get(ctx context.Context, id string) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, status := range Statuses() {
		path := s.Path(id, status)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		t, err := s.load(path, status)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return t, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List implements Store.
func (s *FolderStore) List(ctx context.Context, status Status) ([]*Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	dir := s.layout.Bucket(Bucket(status))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var tasks []*Task
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		path := filepath.Join(dir, name)
		t, err := s.load(path, status)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// Moved by another worker between ReadDir and load.
				continue
			}
			s.onSkip(path, err)
			continue
		}
		tasks = append(tasks, t)
	}

	sortTasks(tasks)
	return tasks, nil
}

// load parses a record and reconciles its header with the bucket it was
// found in. It never writes: a reader may race a Transition that has moved
// the file but not yet rewritten it.
func (s *FolderStore) load(path string, bucket Status) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if want := strings.TrimSuffix(filepath.Base(path), recordExt); t.ID != want {
		return nil, fmt.Errorf("%w: id %q does not match file name", ErrMalformed, t.ID)
	}
	if err := reconcile(t, bucket, s.now()); err != nil {
		return nil, err
	}
	return t, nil
}

// reconcile aligns the header of t with the bucket holding it. The bucket
// wins; the next claimed Transition persists the result.
func reconcile(t *Task, bucket Status, now time.Time) error {
	switch {
	case t.Status == bucket:
		return nil
	case bucket == StatusNeedsAction && t.Status == StatusPendingApproval:
		// Header preset by hand: treat as a request for approval.
		t.Status = StatusNeedsAction
		t.RequiresApproval = true
		return nil
	case CanTransition(t.Status, bucket):
		// The record was moved by hand or a rewrite was interrupted.
		from := t.Status
		t.Status = bucket
		t.Updated = now.UTC()
		if from == StatusPendingApproval {
			t.Notes = append(t.Notes, Note{
				At:   t.Updated,
				Kind: NoteDecision,
				Text: fmt.Sprintf("%s by moving the record to %s", bucket, Bucket(bucket)),
			})
		}
		return nil
	default:
		return fmt.Errorf("%w: header status %q in bucket %s", ErrMalformed, t.Status, Bucket(bucket))
	}
}

// Transition implements Store.
func (s *FolderStore) Transition(ctx context.Context, id string, from, to Status, note Note) (bool, error) {
	if err := validateTransition(from, to); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	src := s.Path(id, from)
	dst := s.Path(id, to)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Lstat(src); os.IsNotExist(err) {
		return false, nil
	}
	if _, err := os.Lstat(dst); err == nil {
		return false, fmt.Errorf("%w: %s already exists in %s", ErrMalformed, id, Bucket(to))
	}

	// The rename is the claim: exactly one caller moves the file out of from.
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to move %s to %s: %w", id, Bucket(to), err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		return true, fmt.Errorf("failed to read moved record: %w", err)
	}
	t, err := Unmarshal(data)
	if err != nil {
		return true, err
	}
	if err := reconcile(t, from, s.now()); err != nil {
		return true, err
	}
	applyTransition(t, to, note, s.now())
	if err := s.rewrite(dst, t); err != nil {
		return true, err
	}
	return true, nil
}

// Close implements Store.
func (s *FolderStore) Close() error {
	return nil
}

func (s *FolderStore) rewrite(path string, t *Task) error {
	data, err := Marshal(t)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// prepareNew validates and fills defaults on a task about to be created.
func prepareNew(t *Task, now time.Time) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: task has no id", ErrMalformed)
	}
	if strings.ContainsAny(t.ID, `/\`) {
		return fmt.Errorf("%w: invalid id %q", ErrMalformed, t.ID)
	}
	if t.Status == "" {
		t.Status = StatusNeedsAction
	}
	if t.Status != StatusNeedsAction {
		return fmt.Errorf("new tasks start in %s, got %s", StatusNeedsAction, t.Status)
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	now = now.UTC()
	if t.Created.IsZero() {
		t.Created = now
	}
	if t.Updated.IsZero() {
		t.Updated = t.Created
	}
	return nil
}

func applyTransition(t *Task, to Status, note Note, now time.Time) {
	t.Status = to
	t.Updated = now.UTC()
	if !note.IsZero() {
		if note.At.IsZero() {
			note.At = t.Updated
		}
		t.Notes = append(t.Notes, note)
	}
}

func sortTasks(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].Created.Equal(tasks[j].Created) {
			return tasks[i].Created.Before(tasks[j].Created)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// writeTemp writes data to a hidden temp file in dir and returns its path.
func writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmp, nil
}

// writeFileAtomic replaces path via temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := writeTemp(filepath.Dir(path), filepath.Base(path), data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
