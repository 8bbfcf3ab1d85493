package task

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("task not found")
	// ErrDuplicateSignal is returned when a signal id was already ingested.
	ErrDuplicateSignal = errors.New("signal already ingested")
	// ErrIllegalTransition is returned for an edge outside the status graph.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrMalformed marks a record that cannot be parsed or reconciled.
	ErrMalformed = errors.New("malformed task record")
)

// SkipFunc is told about every record a listing had to skip.
type SkipFunc func(ref string, err error)

// Store persists tasks and moves them through the status graph.
type Store interface {
	// Create persists a new task in needs_action. The task's ID may be
	// extended with a random suffix when the generated name is taken.
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// List returns the tasks currently in status, oldest first.
	List(ctx context.Context, status Status) ([]*Task, error)
	// Transition claims the task in from and moves it to to, appending note.
	// It returns false with no error when the task is no longer in from.
	Transition(ctx context.Context, id string, from, to Status, note Note) (bool, error)
	Close() error
}

func validateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// TransitionError describes a rejected edge. It matches ErrIllegalTransition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return "illegal status transition " + string(e.From) + " -> " + string(e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
