package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/components"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/msgs"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/styles"
)

// chrome is the number of rows used by the title and status bar.
const chrome = 4

// DetailModel shows one task with its plan and iteration history.
type DetailModel struct {
	task     *task.Task
	plan     *plan.Plan
	viewport viewport.Model

	width  int
	height int
}

// NewDetailModel creates a detail view. p may be nil.
func NewDetailModel(t *task.Task, p *plan.Plan) DetailModel {
	m := DetailModel{
		task:     t,
		plan:     p,
		viewport: viewport.New(0, 0),
	}
	m.viewport.SetContent(m.content())
	return m
}

// TaskID returns the id of the task on screen.
func (m DetailModel) TaskID() string {
	return m.task.ID
}

// SetSize updates the dimensions.
func (m *DetailModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = max(height-chrome, 1)
	m.viewport.SetContent(m.content())
}

// Init implements tea.Model.
func (m DetailModel) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m DetailModel) Update(msg tea.Msg) (DetailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "backspace", "q":
			return m, func() tea.Msg { return msgs.BackMsg{} }
		case "ctrl+c":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m DetailModel) View() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render(m.task.ID))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(components.NewStatusBar().Render(m.width, []components.KeyHelp{
		{Key: "↑/↓", Desc: "Scroll"},
		{Key: "esc", Desc: "Back"},
	}, ""))
	return b.String()
}

func (m DetailModel) content() string {
	t := m.task
	var b strings.Builder

	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-18s %s\n", label+":", value)
		}
	}
	field("Status", styles.ForState(string(t.Status)).Render(string(t.Status)))
	field("Priority", t.Priority)
	field("Source", t.Source)
	field("Trigger source", t.TriggerSource)
	field("Business action", t.BusinessAction)
	field("Skill", t.Skill)
	field("MCP server", t.Server)
	if t.RequiresApproval {
		field("Approval", "required")
	}
	field("Created", t.Created.Local().Format("2006-01-02 15:04:05"))

	if p := m.plan; p != nil {
		b.WriteString("\n")
		b.WriteString(styles.HeadingStyle.Render("Plan"))
		fmt.Fprintf(&b, "  %s\n", styles.ForState(string(p.Status)).Render(string(p.Status)))
		if len(p.Steps) > 0 {
			b.WriteString(components.NewProgress(p.CompletedSteps(), len(p.Steps), 16).View())
			b.WriteString("\n")
		}
		for i, step := range p.Steps {
			mark := "[ ]"
			if step.Done {
				mark = "[x]"
			}
			fmt.Fprintf(&b, "  %s %d. %s\n", mark, i+1, step.Description)
		}
		if len(p.Log) > 0 {
			b.WriteString("\n")
			b.WriteString(styles.HeadingStyle.Render("Iterations"))
			b.WriteString("\n")
			for _, e := range p.Log {
				line := fmt.Sprintf("  #%-3d %-8s %-9s %6dms  %s", e.Iteration, e.Phase, e.Outcome, e.DurationMS, e.Action)
				if e.Outcome == plan.OutcomeFailed || e.Outcome == plan.OutcomeError {
					line = styles.ErrorStyle.Render(line)
				}
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}

	if len(t.Notes) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.HeadingStyle.Render("Notes"))
		b.WriteString("\n")
		for _, n := range t.Notes {
			fmt.Fprintf(&b, "  %s  %-10s %s\n", n.At.Local().Format("2006-01-02 15:04"), n.Kind, n.Text)
		}
	}

	if body := strings.TrimSpace(t.Body); body != "" {
		b.WriteString("\n")
		b.WriteString(body)
		b.WriteString("\n")
	}
	return b.String()
}
