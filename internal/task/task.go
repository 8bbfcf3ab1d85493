// Package task holds the unit-of-work model, its status graph and the stores
// that persist it.
package task

import (
	"strings"
	"time"
)

// Status is the lifecycle position of a task.
type Status string

const (
	StatusNeedsAction     Status = "needs_action"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusDone            Status = "done"
	StatusFailed          Status = "failed"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusNeedsAction,
		StatusPendingApproval,
		StatusApproved,
		StatusRejected,
		StatusDone,
		StatusFailed,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether no edge leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(allowedTransitions[s]) == 0
}

var allowedTransitions = map[Status]map[Status]struct{}{
	StatusNeedsAction: {
		StatusPendingApproval: {},
		StatusDone:            {},
		StatusFailed:          {},
	},
	StatusPendingApproval: {
		StatusApproved: {},
		StatusRejected: {},
	},
	StatusApproved: {
		StatusDone:   {},
		StatusFailed: {},
	},
	StatusFailed: {
		StatusNeedsAction: {},
	},
	StatusRejected: {},
	StatusDone:     {},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Priority markers.
const (
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Note kinds.
const (
	NoteApproval   = "approval"
	NoteDecision   = "decision"
	NoteCompletion = "completion"
	NoteFailure    = "failure"
	NoteRequeue    = "requeue"
)

// Note is an append-only annotation on a task.
type Note struct {
	At   time.Time `yaml:"at"`
	Kind string    `yaml:"kind"`
	Text string    `yaml:"text"`
}

// IsZero reports whether the note carries no text.
func (n Note) IsZero() bool {
	return strings.TrimSpace(n.Text) == ""
}

// Task is one unit of work derived from a signal.
// Body and Fields are fixed at creation; Status, Updated and Notes change
// through store transitions.
type Task struct {
	ID               string
	Source           string
	Type             string
	TriggerSource    string
	BusinessAction   string
	Skill            string
	Server           string
	Status           Status
	Priority         string
	RequiresApproval bool
	SignalID         string
	Created          time.Time
	Updated          time.Time
	Fields           map[string]string
	Notes            []Note
	Body             string
}

// Field returns a payload field or "".
func (t *Task) Field(name string) string {
	if t.Fields == nil {
		return ""
	}
	return t.Fields[name]
}

// LastNote returns the most recent note of the given kind.
func (t *Task) LastNote(kind string) (Note, bool) {
	for i := len(t.Notes) - 1; i >= 0; i-- {
		if t.Notes[i].Kind == kind {
			return t.Notes[i], true
		}
	}
	return Note{}, false
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	c := *t
	if t.Fields != nil {
		c.Fields = make(map[string]string, len(t.Fields))
		for k, v := range t.Fields {
			c.Fields[k] = v
		}
	}
	c.Notes = append([]Note(nil), t.Notes...)
	return &c
}
