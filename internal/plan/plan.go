// Package plan tracks the step list and iteration history for executing one task.
package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle of a plan.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Iteration phases, in execution order.
const (
	PhaseRead   = "read"
	PhaseReason = "reason"
	PhasePlan   = "plan"
	PhaseAct    = "act"
	PhaseCheck  = "check"
)

// Iteration outcomes.
const (
	OutcomeProgress = "progress"
	OutcomeDone     = "done"
	OutcomeFailed   = "failed"
	OutcomeError    = "error"
)

var (
	// ErrNotFound is returned when a task has no plan yet.
	ErrNotFound = errors.New("plan not found")
	// ErrMalformed marks a plan record that cannot be parsed.
	ErrMalformed = errors.New("malformed plan record")
)

// Step is one checklist item.
type Step struct {
	Description string
	Done        bool
}

// LogEntry records one iteration of the execution loop.
type LogEntry struct {
	Iteration  int       `json:"iteration"`
	Phase      string    `json:"phase"`
	Step       int       `json:"step"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"timestamp"`
}

// Plan is the execution state for one task.
type Plan struct {
	SourceTask string
	Status     Status
	Steps      []Step
	Iteration  int
	Log        []LogEntry
	Created    time.Time
	Updated    time.Time

	// BudgetStart is the iteration the current retry budget counts from.
	// It moves forward when an abandoned plan is reopened.
	BudgetStart int
}

// New returns an empty active plan for taskID.
func New(taskID string, now time.Time) *Plan {
	now = now.UTC()
	return &Plan{
		SourceTask: taskID,
		Status:     StatusActive,
		Created:    now,
		Updated:    now,
	}
}

// AddSteps appends non-blank steps, skipping descriptions already present.
func (p *Plan) AddSteps(descriptions ...string) int {
	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		seen[s.Description] = true
	}

	added := 0
	for _, d := range descriptions {
		d = strings.Join(strings.Fields(d), " ")
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		p.Steps = append(p.Steps, Step{Description: d})
		added++
	}
	return added
}

// NextUndone returns the index of the first undone step, or -1.
func (p *Plan) NextUndone() int {
	for i := range p.Steps {
		if !p.Steps[i].Done {
			return i
		}
	}
	return -1
}

// MarkDone completes step i. Completed steps are never reopened.
func (p *Plan) MarkDone(i int) error {
	if i < 0 || i >= len(p.Steps) {
		return fmt.Errorf("step %d out of range (%d steps)", i, len(p.Steps))
	}
	p.Steps[i].Done = true
	return nil
}

// CompletedSteps counts done steps.
func (p *Plan) CompletedSteps() int {
	n := 0
	for _, s := range p.Steps {
		if s.Done {
			n++
		}
	}
	return n
}

// AllDone reports whether there is at least one step and every step is done.
func (p *Plan) AllDone() bool {
	return len(p.Steps) > 0 && p.CompletedSteps() == len(p.Steps)
}

// Record appends an iteration log entry. Iterations must strictly increase.
func (p *Plan) Record(e LogEntry) error {
	if n := len(p.Log); n > 0 && e.Iteration <= p.Log[n-1].Iteration {
		return fmt.Errorf("iteration %d does not follow %d", e.Iteration, p.Log[n-1].Iteration)
	}
	p.Log = append(p.Log, e)
	return nil
}

// Reopen reactivates an abandoned plan with a fresh budget starting at the
// current iteration. History is kept.
func (p *Plan) Reopen() {
	if p.Status != StatusAbandoned {
		return
	}
	p.Status = StatusActive
	p.BudgetStart = p.Iteration
}

// Finished reports whether the plan left the active state.
func (p *Plan) Finished() bool {
	return p.Status != StatusActive
}
