// Package tui implements the interactive vault dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/osqazi/AI-Employee-FTE/internal/tui/msgs"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/styles"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/views"
)

// View represents the different screens in the TUI.
type View int

const (
	ViewDashboard View = iota
	ViewDetail
)

// Minimum terminal dimensions for the TUI to render properly.
const (
	MinTerminalWidth  = 60
	MinTerminalHeight = 15
)

// Options configures the dashboard.
type Options struct {
	Loader    views.Loader
	Decisions views.Decisions
	Refresh   time.Duration
}

// Model is the main Bubble Tea model that orchestrates all views.
type Model struct {
	currentView View
	width       int
	height      int

	loader    views.Loader
	dashboard views.DashboardModel
	detail    views.DetailModel
	err       error
}

// Run starts the TUI application.
func Run(opts Options) error {
	p := tea.NewProgram(
		initialModel(opts),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}

func initialModel(opts Options) Model {
	return Model{
		currentView: ViewDashboard,
		loader:      opts.Loader,
		dashboard:   views.NewDashboardModel(opts.Loader, opts.Decisions, opts.Refresh),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.dashboard.Init()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.dashboard.SetSize(msg.Width, msg.Height)
		if m.currentView == ViewDetail {
			m.detail.SetSize(msg.Width, msg.Height)
		}
		return m, nil

	case msgs.OpenTaskMsg:
		loader := m.loader
		id := msg.TaskID
		return m, func() tea.Msg {
			t, p, err := loader.Task(context.Background(), id)
			return msgs.TaskLoadedMsg{Task: t, Plan: p, Err: err}
		}

	case msgs.TaskLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.detail = views.NewDetailModel(msg.Task, msg.Plan)
		m.detail.SetSize(m.width, m.height)
		m.currentView = ViewDetail
		return m, nil

	case msgs.BackMsg:
		m.currentView = ViewDashboard
		return m, nil

	// Refresh traffic always belongs to the dashboard so its tick loop
	// keeps running while the detail view is open.
	case msgs.SnapshotMsg, msgs.TickMsg, msgs.DecisionDoneMsg:
		var cmd tea.Cmd
		m.dashboard, cmd = m.dashboard.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.currentView {
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	default:
		if _, ok := msg.(tea.KeyMsg); ok {
			m.err = nil
		}
		m.dashboard, cmd = m.dashboard.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width > 0 && (m.width < MinTerminalWidth || m.height < MinTerminalHeight) {
		return m.renderTerminalTooSmall()
	}

	var view string
	switch m.currentView {
	case ViewDetail:
		view = m.detail.View()
	default:
		view = m.dashboard.View()
	}
	if m.err != nil {
		view += "\n" + styles.ErrorStyle.Render("Error: "+m.err.Error())
	}
	return view
}

func (m Model) renderTerminalTooSmall() string {
	var b strings.Builder
	b.WriteString(styles.ErrorStyle.Render("Terminal too small"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Minimum: %dx%d\n", MinTerminalWidth, MinTerminalHeight))
	b.WriteString(fmt.Sprintf("Current: %dx%d\n", m.width, m.height))
	return b.String()
}
