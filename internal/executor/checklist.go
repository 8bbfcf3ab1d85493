package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// ChecklistReasoner seeds the plan from the task body's checklist, falling back
// to the task's business action, and then works the steps in order.
type ChecklistReasoner struct{}

// Next implements Reasoner.
func (ChecklistReasoner) Next(_ context.Context, t *task.Task, p *plan.Plan) (Decision, error) {
	if len(p.Steps) > 0 {
		return Decision{Step: p.NextUndone()}, nil
	}
	steps := SeedSteps(t)
	if len(steps) == 0 {
		return Decision{}, fmt.Errorf("task %s has no actionable steps", t.ID)
	}
	return Decision{Add: steps, Step: 0}, nil
}

// SeedSteps extracts the initial steps for a task.
func SeedSteps(t *task.Task) []string {
	var steps []string
	seen := map[string]bool{}
	for _, line := range strings.Split(t.Body, "\n") {
		step, ok := plan.ParseCheckbox(line)
		if !ok || seen[step.Description] {
			continue
		}
		seen[step.Description] = true
		steps = append(steps, step.Description)
	}
	if len(steps) > 0 {
		return steps
	}
	if action := strings.TrimSpace(t.BusinessAction); action != "" {
		return []string{action}
	}
	return []string{fmt.Sprintf("Process %s task from %s", orNone(t.Type), orNone(t.Source))}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// ChecklistPredicate is done when the plan has steps and all are done.
type ChecklistPredicate struct{}

// IsDone implements CompletionPredicate.
func (ChecklistPredicate) IsDone(_ context.Context, _ *task.Task, p *plan.Plan) (bool, error) {
	return p.AllDone(), nil
}

// SkillAction dispatches on the task's skill, falling back to Default.
type SkillAction struct {
	Skills  map[string]ActionExecutor
	Default ActionExecutor
}

// NewSkillAction returns a dispatcher with the given fallback.
func NewSkillAction(fallback ActionExecutor) *SkillAction {
	return &SkillAction{Skills: map[string]ActionExecutor{}, Default: fallback}
}

// Register binds a skill name to an executor.
func (s *SkillAction) Register(skill string, a ActionExecutor) *SkillAction {
	s.Skills[skill] = a
	return s
}

// Invoke implements ActionExecutor.
func (s *SkillAction) Invoke(ctx context.Context, t *task.Task, step plan.Step) Outcome {
	if a, ok := s.Skills[t.Skill]; ok && a != nil {
		return a.Invoke(ctx, t, step)
	}
	if s.Default == nil {
		return Outcome{Err: fmt.Errorf("no executor for skill %q", t.Skill)}
	}
	return s.Default.Invoke(ctx, t, step)
}
