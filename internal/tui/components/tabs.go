package components

import (
	"fmt"
	"strings"

	"github.com/osqazi/AI-Employee-FTE/internal/tui/styles"
)

// Tab is one bucket shown in the tab row.
type Tab struct {
	Label string
	Count int
}

// RenderTabs renders the tab row with the active tab highlighted.
func RenderTabs(tabs []Tab, active int) string {
	parts := make([]string, 0, len(tabs))
	for i, tab := range tabs {
		label := fmt.Sprintf("%s (%d)", tab.Label, tab.Count)
		if i == active {
			parts = append(parts, styles.SelectedStyle.Render("["+label+"]"))
		} else {
			parts = append(parts, styles.SubtleStyle.Render(" "+label+" "))
		}
	}
	return strings.Join(parts, " ")
}
