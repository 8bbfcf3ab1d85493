package plan

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 10, 16, 10, 15, 0, 0, time.UTC)

func TestPlan_Steps(t *testing.T) {
	p := New("T1", testNow)

	if p.AllDone() {
		t.Error("expected empty plan not to be done")
	}
	if got := p.NextUndone(); got != -1 {
		t.Errorf("expected -1 for empty plan, got: %d", got)
	}

	added := p.AddSteps("Create invoice", "  ", "Send   invoice\n to client", "Create invoice")
	if added != 2 {
		t.Fatalf("expected 2 steps added, got: %d", added)
	}
	if p.Steps[1].Description != "Send invoice to client" {
		t.Errorf("expected whitespace to be collapsed, got: %q", p.Steps[1].Description)
	}

	if err := p.MarkDone(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.NextUndone(); got != 1 {
		t.Errorf("expected next undone 1, got: %d", got)
	}
	if p.CompletedSteps() != 1 || p.AllDone() {
		t.Errorf("expected 1 of 2 done, got: %d", p.CompletedSteps())
	}

	if err := p.MarkDone(5); err == nil {
		t.Error("expected error for out of range step")
	}

	if err := p.MarkDone(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.AllDone() {
		t.Error("expected plan to be done")
	}
}

func TestPlan_RecordIsMonotonic(t *testing.T) {
	p := New("T1", testNow)

	if err := p.Record(LogEntry{Iteration: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Record(LogEntry{Iteration: 1}); err == nil {
		t.Error("expected error for repeated iteration")
	}
	if err := p.Record(LogEntry{Iteration: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Log) != 2 {
		t.Errorf("expected 2 entries, got: %d", len(p.Log))
	}
}

func TestNew(t *testing.T) {
	p := New("T1", testNow)
	if p.Status != StatusActive || p.Iteration != 0 || p.Finished() {
		t.Errorf("unexpected new plan: %+v", p)
	}
}

func TestPlan_Reopen(t *testing.T) {
	p := New("T1", testNow)
	p.Iteration = 10
	p.Reopen()
	if p.Status != StatusActive || p.BudgetStart != 0 {
		t.Fatalf("expected active plan to be unchanged, got: %+v", p)
	}

	p.Status = StatusAbandoned
	p.Reopen()
	if p.Status != StatusActive || p.BudgetStart != 10 || p.Iteration != 10 {
		t.Errorf("unexpected reopened plan: %+v", p)
	}
}
