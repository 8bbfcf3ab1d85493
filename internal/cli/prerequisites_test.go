package cli

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/osqazi/AI-Employee-FTE/internal/ai"
	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

func TestRequireVault(t *testing.T) {
	dir := t.TempDir()
	if err := requireVault(vault.New(dir)); err != nil {
		t.Errorf("expected existing directory to pass, got: %v", err)
	}

	err := requireVault(vault.New(filepath.Join(dir, "missing")))
	var prereq *PrerequisiteError
	if !errors.As(err, &prereq) {
		t.Fatalf("expected *PrerequisiteError, got %T: %v", err, err)
	}
	if !strings.Contains(prereq.Help, "fte init") {
		t.Errorf("expected help to mention fte init, got: %s", prereq.Help)
	}
}

func TestCheckEngine(t *testing.T) {
	if err := checkEngine(ai.Engine{Name: "sh", Binary: "sh"}); err != nil {
		t.Errorf("expected sh to be available, got: %v", err)
	}

	err := checkEngine(ai.Engine{Name: "ghost", Binary: "fte-no-such-engine"})
	var prereq *PrerequisiteError
	if !errors.As(err, &prereq) {
		t.Fatalf("expected *PrerequisiteError, got %T: %v", err, err)
	}
	if prereq.Check != "Reasoning engine" {
		t.Errorf("expected Check to be 'Reasoning engine', got %q", prereq.Check)
	}
	if !strings.Contains(err.Error(), "fte-no-such-engine not found") {
		t.Errorf("expected message to name the binary, got: %s", err.Error())
	}
}
