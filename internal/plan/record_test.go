package plan

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMarshalUnmarshal(t *testing.T) {
	p := New("CROSSDOMAIN_invoice_20261016_101500", testNow)
	p.AddSteps("Create invoice in Odoo", "Email invoice to ABC")
	p.Steps[0].Done = true
	p.Iteration = 2
	p.Log = []LogEntry{
		{Iteration: 1, Phase: PhaseCheck, Step: 0, Action: "Create invoice in Odoo", Outcome: OutcomeProgress, DurationMS: 12, At: testNow},
		{Iteration: 2, Phase: PhaseAct, Step: 1, Action: "Email invoice to ABC", Outcome: OutcomeFailed, DurationMS: 3, At: testNow.Add(time.Second)},
	}

	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := string(data)
	for _, want := range []string{
		"source_task: CROSSDOMAIN_invoice_20261016_101500\n",
		"total_steps: 2\n",
		"completed_steps: 1\n",
		"- [x] Create invoice in Odoo\n",
		"- [ ] Email invoice to ABC\n",
		"```jsonl\n{\"iteration\":1,",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected record to contain %q:\n%s", want, text)
		}
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := map[string]string{
		"no header":       "# Plan\n",
		"no source task":  "---\nstatus: active\n---\n",
		"bad status":      "---\nsource_task: T\nstatus: paused\n---\n",
		"bad log line":    "---\nsource_task: T\nstatus: active\n---\n## Iteration Log\n\n```jsonl\nnot json\n```\n",
		"unterminated log": "---\nsource_task: T\nstatus: active\n---\n## Iteration Log\n\n```jsonl\n",
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(data)); !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got: %v", err)
			}
		})
	}
}

func TestParseCheckbox(t *testing.T) {
	tests := []struct {
		line string
		want Step
		ok   bool
	}{
		{"- [ ] Send invoice", Step{Description: "Send invoice"}, true},
		{"* [x] Logged", Step{Description: "Logged", Done: true}, true},
		{"  12. [X] Numbered", Step{Description: "Numbered", Done: true}, true},
		{"1. [ ] Review", Step{Description: "Review"}, true},
		{"- [ ]", Step{}, false},
		{"- [?] odd", Step{}, false},
		{"- plain bullet", Step{}, false},
		{"1) [ ] wrong numbering", Step{}, false},
		{"text", Step{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseCheckbox(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseCheckbox(%q) = %+v, %v; expected %+v, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}
