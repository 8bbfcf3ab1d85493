package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/osqazi/AI-Employee-FTE/internal/ai"
	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// CommandAction performs a step by running the reasoning engine CLI with a
// prompt describing the task and step. Exit status 0 means success.
type CommandAction struct {
	engine ai.Engine
	dir    string
	logDir string
}

// NewCommandAction creates an action for engine, running in dir (the vault
// root). Output is appended to <logDir>/<task id>.log when logDir is set.
func NewCommandAction(engine ai.Engine, dir, logDir string) *CommandAction {
	return &CommandAction{engine: engine, dir: dir, logDir: logDir}
}

// Engine returns the configured engine.
func (c *CommandAction) Engine() ai.Engine {
	return c.engine
}

// Invoke implements ActionExecutor.
func (c *CommandAction) Invoke(ctx context.Context, t *task.Task, step plan.Step) Outcome {
	prompt := BuildPrompt(t, step)

	cmd := ai.CommandContext(ctx, c.engine.Binary, c.engine.CommandArgs(prompt)...)
	if c.dir != "" {
		cmd.Dir = c.dir
	}

	var stdout bytes.Buffer
	out, closeOut, err := c.output(t.ID)
	if err != nil {
		return Outcome{Err: err}
	}
	defer closeOut()
	cmd.Stdout = io.MultiWriter(&stdout, out)
	cmd.Stderr = out

	fmt.Fprintf(out, "\n=== %s: %s ===\n", c.engine.Name, step.Description)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Outcome{Err: ctx.Err(), Summary: "cancelled"}
		}
		return Outcome{Err: fmt.Errorf("%s exited with error: %w", c.engine.Name, err), Summary: lastLine(stdout.String())}
	}
	return Outcome{OK: true, Summary: lastLine(stdout.String())}
}

// output opens the per-task output log in append mode.
func (c *CommandAction) output(taskID string) (io.Writer, func(), error) {
	if c.logDir == "" {
		return io.Discard, func() {}, nil
	}
	if err := os.MkdirAll(c.logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create output log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.logDir, taskID+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output log: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// BuildPrompt constructs the engine prompt for one step of a task.
func BuildPrompt(t *task.Task, step plan.Step) string {
	var sb strings.Builder

	sb.WriteString("You are executing one step of a task for a personal automation assistant.\n\n")

	sb.WriteString("## Task\n")
	sb.WriteString(fmt.Sprintf("**ID**: %s\n", t.ID))
	sb.WriteString(fmt.Sprintf("**Source**: %s\n", t.Source))
	sb.WriteString(fmt.Sprintf("**Type**: %s\n", t.Type))
	if t.BusinessAction != "" {
		sb.WriteString(fmt.Sprintf("**Business action**: %s\n", t.BusinessAction))
	}
	if t.Skill != "" {
		sb.WriteString(fmt.Sprintf("**Skill**: %s\n", t.Skill))
	}
	if t.Server != "" {
		sb.WriteString(fmt.Sprintf("**MCP server**: %s\n", t.Server))
	}
	if len(t.Fields) > 0 {
		keys := make([]string, 0, len(t.Fields))
		for k := range t.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\n## Extracted fields\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", k, t.Fields[k]))
		}
	}

	sb.WriteString("\n## Content\n")
	sb.WriteString(strings.TrimSpace(t.Body))
	sb.WriteString("\n\n")

	sb.WriteString("## Your Step\n")
	sb.WriteString(step.Description)
	sb.WriteString("\n\n")

	sb.WriteString("## Instructions\n")
	sb.WriteString("1. Perform only this step\n")
	sb.WriteString("2. Use the named skill or MCP server when one is given\n")
	sb.WriteString("3. Print a one-line summary of what you did as the last line of output\n")
	sb.WriteString("4. Exit with a non-zero status if the step could not be completed\n")

	return sb.String()
}
