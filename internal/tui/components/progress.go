package components

import (
	"fmt"
	"strings"
)

const (
	filledChar = "■"
	emptyChar  = "□"
)

// Progress renders plan step progress like: ■■■■□□□□ 2/4 steps
type Progress struct {
	Current int
	Total   int
	Width   int // character width of the bar portion
}

// NewProgress creates a new Progress instance.
func NewProgress(current, total, width int) Progress {
	return Progress{
		Current: current,
		Total:   total,
		Width:   width,
	}
}

// View returns the rendered progress bar string.
func (p Progress) View() string {
	if p.Total <= 0 || p.Width <= 0 {
		return ""
	}

	current := p.Current
	if current < 0 {
		current = 0
	}
	if current > p.Total {
		current = p.Total
	}

	filled := (current * p.Width) / p.Total
	bar := strings.Repeat(filledChar, filled) + strings.Repeat(emptyChar, p.Width-filled)

	return fmt.Sprintf("%s %d/%d steps", bar, current, p.Total)
}
