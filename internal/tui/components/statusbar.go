package components

import (
	"strings"

	"github.com/osqazi/AI-Employee-FTE/internal/tui/styles"
)

// KeyHelp is one key binding shown in the status bar.
type KeyHelp struct {
	Key  string
	Desc string
}

// StatusBar renders a bottom help bar with the key bindings of the current
// view and an optional message on the right.
type StatusBar struct{}

// NewStatusBar creates a new StatusBar instance.
func NewStatusBar() StatusBar {
	return StatusBar{}
}

// Render returns the status bar string for the given width.
// Items are joined with " • ".
func (s StatusBar) Render(width int, items []KeyHelp, message string) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.Key+" "+it.Desc)
	}
	content := strings.Join(parts, " • ")
	if message != "" {
		if content != "" {
			content += "  "
		}
		content += message
	}
	return styles.StatusBarStyle.Width(width).Render(content)
}
