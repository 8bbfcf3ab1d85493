package plan

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

const (
	actionItemsHeading  = "## Action Items"
	iterationLogHeading = "## Iteration Log"
	logFenceOpen        = "```jsonl"
	logFenceClose       = "```"
)

type header struct {
	SourceTask     string    `yaml:"source_task"`
	Status         Status    `yaml:"status"`
	Created        time.Time `yaml:"created"`
	Updated        time.Time `yaml:"updated"`
	TotalSteps     int       `yaml:"total_steps"`
	CompletedSteps int       `yaml:"completed_steps"`
	Iteration      int       `yaml:"iteration"`
	BudgetStart    int       `yaml:"budget_start,omitempty"`
}

// Marshal renders a plan as a markdown record.
func Marshal(p *Plan) ([]byte, error) {
	head, err := yaml.Marshal(&header{
		SourceTask:     p.SourceTask,
		Status:         p.Status,
		Created:        p.Created.UTC(),
		Updated:        p.Updated.UTC(),
		TotalSteps:     len(p.Steps),
		CompletedSteps: p.CompletedSteps(),
		Iteration:      p.Iteration,
		BudgetStart:    p.BudgetStart,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan header: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Plan: %s\n\n", p.SourceTask)
	b.WriteString(actionItemsHeading + "\n\n")
	for _, s := range p.Steps {
		mark := " "
		if s.Done {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", mark, s.Description)
	}
	b.WriteString("\n" + iterationLogHeading + "\n\n")
	b.WriteString(logFenceOpen + "\n")
	for _, e := range p.Log {
		line, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal log entry: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	b.WriteString(logFenceClose + "\n")

	return vault.JoinFrontmatter(head, b.String()), nil
}

// Unmarshal parses a plan record.
func Unmarshal(data []byte) (*Plan, error) {
	head, body, err := vault.SplitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var h header
	if err := yaml.Unmarshal([]byte(head), &h); err != nil {
		return nil, fmt.Errorf("%w: invalid header: %v", ErrMalformed, err)
	}
	if h.SourceTask == "" {
		return nil, fmt.Errorf("%w: missing source_task", ErrMalformed)
	}
	switch h.Status {
	case StatusActive, StatusCompleted, StatusAbandoned:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformed, h.Status)
	}

	p := &Plan{
		SourceTask:  h.SourceTask,
		Status:      h.Status,
		Iteration:   h.Iteration,
		BudgetStart: h.BudgetStart,
		Created:     h.Created,
		Updated:     h.Updated,
	}

	section := ""
	inLog := false
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if inLog {
			if trimmed == logFenceClose {
				inLog = false
				continue
			}
			if trimmed == "" {
				continue
			}
			var e LogEntry
			if err := json.Unmarshal([]byte(trimmed), &e); err != nil {
				return nil, fmt.Errorf("%w: iteration log: %v", ErrMalformed, err)
			}
			p.Log = append(p.Log, e)
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "## "):
			section = trimmed
		case section == actionItemsHeading:
			if step, ok := ParseCheckbox(trimmed); ok {
				p.Steps = append(p.Steps, step)
			}
		case section == iterationLogHeading && trimmed == logFenceOpen:
			inLog = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if inLog {
		return nil, fmt.Errorf("%w: unterminated iteration log", ErrMalformed)
	}
	return p, nil
}

// ParseCheckbox parses "- [ ] text", "* [x] text" or "1. [ ] text".
func ParseCheckbox(line string) (Step, bool) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
		line = line[2:]
	default:
		i := 0
		for i < len(line) && line[i] >= '0' && line[i] <= '9' {
			i++
		}
		if i == 0 || !strings.HasPrefix(line[i:], ". ") {
			return Step{}, false
		}
		line = line[i+2:]
	}

	line = strings.TrimLeft(line, " ")
	if len(line) < 3 || line[0] != '[' || line[2] != ']' {
		return Step{}, false
	}
	var done bool
	switch line[1] {
	case ' ':
	case 'x', 'X':
		done = true
	default:
		return Step{}, false
	}

	desc := strings.TrimSpace(line[3:])
	if desc == "" {
		return Step{}, false
	}
	return Step{Description: desc, Done: done}, true
}
