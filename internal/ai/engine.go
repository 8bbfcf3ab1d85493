// Package ai selects and invokes the reasoning engine CLI.
package ai

import (
	"fmt"
	"os/exec"
	"strings"
)

// PromptPlaceholder is replaced by the prompt in an engine's argument list.
const PromptPlaceholder = "{prompt}"

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// Engine describes a reasoning engine command line.
type Engine struct {
	Name   string
	Binary string
	Args   []string
}

// Built-in engines.
var (
	Claude = Engine{
		Name:   "claude",
		Binary: "claude",
		Args:   []string{"-p", PromptPlaceholder, "--dangerously-skip-permissions"},
	}
	Qwen = Engine{
		Name:   "qwen",
		Binary: "qwen",
		Args:   []string{"-p", PromptPlaceholder},
	}
)

// Lookup returns the built-in engine for name (case-insensitive).
// An empty name selects Claude.
func Lookup(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Claude.Name:
		return Claude, nil
	case Qwen.Name:
		return Qwen, nil
	default:
		return Engine{}, fmt.Errorf("unknown reasoning engine %q (expected %s or %s)", name, Claude.Name, Qwen.Name)
	}
}

// Available reports whether the engine binary is in PATH.
func (e Engine) Available() bool {
	_, err := exec.LookPath(e.Binary)
	return err == nil
}

// CommandArgs returns the argument list with the prompt substituted.
// When no placeholder is present the prompt is appended.
func (e Engine) CommandArgs(prompt string) []string {
	args := make([]string, 0, len(e.Args)+1)
	substituted := false
	for _, a := range e.Args {
		if a == PromptPlaceholder {
			args = append(args, prompt)
			substituted = true
			continue
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, prompt)
	}
	return args
}

// String returns the engine name.
func (e Engine) String() string {
	return e.Name
}
