package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const filePrefix = "PLAN_"

// Tracker loads and saves plan records under a single directory.
type Tracker struct {
	dir string
	now func() time.Time
}

// NewTracker returns a tracker rooted at dir (the vault's Plans folder).
func NewTracker(dir string) *Tracker {
	return &Tracker{dir: dir, now: time.Now}
}

// WithClock overrides the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Dir returns the directory plans are stored in.
func (t *Tracker) Dir() string {
	return t.dir
}

// Path returns the plan record path for a task.
func (t *Tracker) Path(taskID string) string {
	return filepath.Join(t.dir, filePrefix+taskID+".md")
}

// Lock returns the run lock for a task.
func (t *Tracker) Lock(taskID string) *Lock {
	return NewLock(filepath.Join(t.dir, filePrefix+taskID+lockFileExt))
}

// Load reads the plan for a task.
func (t *Tracker) Load(taskID string) (*Plan, error) {
	data, err := os.ReadFile(t.Path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	p, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if p.SourceTask != taskID {
		return nil, fmt.Errorf("%w: plan belongs to %s", ErrMalformed, p.SourceTask)
	}
	return p, nil
}

// LoadOrCreate returns the existing plan or a new empty one. The new plan is
// not written until Save.
func (t *Tracker) LoadOrCreate(taskID string) (*Plan, bool, error) {
	p, err := t.Load(taskID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	return New(taskID, t.now()), true, nil
}

// Save atomically writes the plan record, stamping Updated.
// Uses a temp file + rename so readers never see a partial record.
func (t *Tracker) Save(p *Plan) error {
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return fmt.Errorf("failed to create plans directory: %w", err)
	}
	p.Updated = t.now().UTC()

	data, err := Marshal(p)
	if err != nil {
		return err
	}

	path := t.Path(p.SourceTask)
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
