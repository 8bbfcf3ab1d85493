// Package approval gates tasks on a human decision and drives the polling
// cycle that feeds approved and ungated work to the executor.
package approval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// DefaultKeywords mark content that needs a human decision.
var DefaultKeywords = []string{
	"approval",
	"pending approval",
	"requires approval",
	"hitl",
	"human approval",
	"complex task",
	"high priority",
	"financial",
	"invoice",
	"payment",
	"contract",
	"agreement",
}

// DefaultPriorities are the priority markers that always need a human decision.
var DefaultPriorities = []string{task.PriorityHigh, task.PriorityCritical}

// Policy decides whether a task must wait for approval.
type Policy struct {
	Keywords   []string
	Priorities []string
}

// DefaultPolicy returns the built-in keyword and priority sets.
func DefaultPolicy() Policy {
	return Policy{
		Keywords:   append([]string(nil), DefaultKeywords...),
		Priorities: append([]string(nil), DefaultPriorities...),
	}
}

// RequiresApproval reports whether t must be decided by a human.
func (p Policy) RequiresApproval(t *task.Task) bool {
	_, ok := p.evaluate(t)
	return ok
}

// Reason returns why t needs approval, or "" when it does not.
func (p Policy) Reason(t *task.Task) string {
	reason, _ := p.evaluate(t)
	return reason
}

func (p Policy) evaluate(t *task.Task) (string, bool) {
	if t.RequiresApproval {
		return "flagged for approval at creation", true
	}

	priority := strings.ToLower(strings.TrimSpace(t.Priority))
	for _, marker := range p.Priorities {
		if priority != "" && priority == strings.ToLower(marker) {
			return fmt.Sprintf("priority %q", t.Priority), true
		}
	}

	text := strings.ToLower(searchText(t))
	for _, kw := range p.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return fmt.Sprintf("matched keyword %q", kw), true
		}
	}
	return "", false
}

// searchText joins the parts of a task the keyword scan looks at.
func searchText(t *task.Task) string {
	parts := []string{t.Type, t.BusinessAction, t.Body}
	keys := make([]string, 0, len(t.Fields))
	for k := range t.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, t.Fields[k])
	}
	return strings.Join(parts, "\n")
}
