package cli

import (
	"fmt"

	"github.com/osqazi/AI-Employee-FTE/internal/ai"
	"github.com/osqazi/AI-Employee-FTE/internal/config"
	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

// PrerequisiteError represents a failed prerequisite check with helpful remediation info.
type PrerequisiteError struct {
	Check   string
	Message string
	Help    string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("%s: %s\n\n%s", e.Check, e.Message, e.Help)
}

// requireVault verifies the vault was initialized.
func requireVault(layout vault.Layout) error {
	if !layout.Exists() {
		return &PrerequisiteError{
			Check:   "Vault",
			Message: fmt.Sprintf("%s does not exist", layout.Root),
			Help:    "Run 'fte init' first, or point --vault (or " + config.EnvVault + ") at an existing vault.",
		}
	}
	return nil
}

// checkEngine verifies the reasoning engine binary is installed.
func checkEngine(engine ai.Engine) error {
	if !engine.Available() {
		return &PrerequisiteError{
			Check:   "Reasoning engine",
			Message: fmt.Sprintf("%s not found in PATH", engine.Binary),
			Help:    "Install the engine CLI, or select another one with " + config.EnvEngine + " (claude or qwen) or engine.binary in " + config.FileName + ".",
		}
	}
	return nil
}
