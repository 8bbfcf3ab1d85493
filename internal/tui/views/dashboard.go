package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/osqazi/AI-Employee-FTE/internal/task"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/components"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/msgs"
	"github.com/osqazi/AI-Employee-FTE/internal/tui/styles"
)

// DefaultRefresh is the dashboard refresh interval.
const DefaultRefresh = 2 * time.Second

// Decisions applies human decisions. *approval.Decider satisfies it.
type Decisions interface {
	Approve(ctx context.Context, id, reason string) error
	Reject(ctx context.Context, id, reason string) error
	Requeue(ctx context.Context, id, reason string) error
}

var tabLabels = map[task.Status]string{
	task.StatusNeedsAction:     "Needs Action",
	task.StatusPendingApproval: "Pending Approval",
	task.StatusApproved:        "Approved",
	task.StatusRejected:        "Rejected",
	task.StatusDone:            "Done",
	task.StatusFailed:          "Failed",
}

// DashboardModel lists tasks per bucket with recent activity and process state.
type DashboardModel struct {
	loader    Loader
	decisions Decisions
	refresh   time.Duration

	spinner spinner.Model
	tab     int
	cursor  int
	snap    msgs.Snapshot
	loaded  bool
	message string
	err     error

	width  int
	height int
}

// NewDashboardModel creates a dashboard. decisions may be nil for a read-only view.
func NewDashboardModel(loader Loader, decisions Decisions, refresh time.Duration) DashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SelectedStyle
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return DashboardModel{
		loader:    loader,
		decisions: decisions,
		refresh:   refresh,
		spinner:   s,
	}
}

// Init implements tea.Model.
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

// SetSize updates the dimensions.
func (m *DashboardModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Status returns the bucket of the active tab.
func (m DashboardModel) Status() task.Status {
	return task.Statuses()[m.tab]
}

// Selected returns the task under the cursor, or nil.
func (m DashboardModel) Selected() *task.Task {
	tasks := m.snap.Tasks[m.Status()]
	if m.cursor < 0 || m.cursor >= len(tasks) {
		return nil
	}
	return tasks[m.cursor]
}

func (m DashboardModel) load() tea.Cmd {
	loader := m.loader
	return func() tea.Msg {
		snap, err := loader.Snapshot(context.Background())
		return msgs.SnapshotMsg{Snapshot: snap, Err: err}
	}
}

func (m DashboardModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg {
		return msgs.TickMsg{}
	})
}

// Update handles messages.
func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case msgs.SnapshotMsg:
		m.err = msg.Err
		if msg.Err == nil {
			m.snap = msg.Snapshot
			m.loaded = true
			m.clampCursor()
		}
		return m, m.tick()

	case msgs.TickMsg:
		return m, m.load()

	case msgs.DecisionDoneMsg:
		if msg.Err != nil {
			m.message = styles.ErrorStyle.Render(fmt.Sprintf("%s %s failed: %v", msg.Action, msg.TaskID, msg.Err))
		} else {
			m.message = styles.SuccessStyle.Render(fmt.Sprintf("%s %s", pastTense(msg.Action), msg.TaskID))
		}
		return m, m.load()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}
	return m, nil
}

func (m DashboardModel) handleKeyPress(msg tea.KeyMsg) (DashboardModel, tea.Cmd) {
	switch msg.String() {
	case "tab", "right", "l":
		m.tab = (m.tab + 1) % len(task.Statuses())
		m.cursor = 0
	case "shift+tab", "left", "h":
		n := len(task.Statuses())
		m.tab = (m.tab + n - 1) % n
		m.cursor = 0
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.snap.Tasks[m.Status()])-1 {
			m.cursor++
		}
	case "enter":
		if t := m.Selected(); t != nil {
			id := t.ID
			return m, func() tea.Msg { return msgs.OpenTaskMsg{TaskID: id} }
		}
	case "a":
		return m.decide("approve", task.StatusPendingApproval)
	case "x":
		return m.decide("reject", task.StatusPendingApproval)
	case "u":
		return m.decide("requeue", task.StatusFailed)
	case "r":
		m.message = ""
		return m, m.load()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m DashboardModel) decide(action string, from task.Status) (DashboardModel, tea.Cmd) {
	t := m.Selected()
	if m.decisions == nil || t == nil || m.Status() != from {
		return m, nil
	}
	id := t.ID
	decisions := m.decisions
	return m, func() tea.Msg {
		ctx := context.Background()
		var err error
		switch action {
		case "approve":
			err = decisions.Approve(ctx, id, "")
		case "reject":
			err = decisions.Reject(ctx, id, "")
		case "requeue":
			err = decisions.Requeue(ctx, id, "")
		}
		return msgs.DecisionDoneMsg{TaskID: id, Action: action, Err: err}
	}
}

func (m *DashboardModel) clampCursor() {
	n := len(m.snap.Tasks[m.Status()])
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func pastTense(action string) string {
	switch action {
	case "approve":
		return "Approved"
	case "reject":
		return "Rejected"
	case "requeue":
		return "Requeued"
	}
	return action
}

// View renders the dashboard.
func (m DashboardModel) View() string {
	var b strings.Builder

	b.WriteString(styles.TitleStyle.Render("AI Employee"))
	b.WriteString("\n")

	tabs := make([]components.Tab, 0, len(task.Statuses()))
	for _, status := range task.Statuses() {
		tabs = append(tabs, components.Tab{Label: tabLabels[status], Count: m.snap.Count(status)})
	}
	b.WriteString(components.RenderTabs(tabs, m.tab))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(styles.ErrorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	case !m.loaded:
		b.WriteString(m.spinner.View() + " Loading vault...")
		b.WriteString("\n")
	default:
		b.WriteString(m.renderTasks())
	}

	if len(m.snap.Processes) > 0 {
		b.WriteString("\n")
		b.WriteString(m.renderProcesses())
	}
	if len(m.snap.Events) > 0 {
		b.WriteString("\n")
		b.WriteString(m.renderEvents())
	}

	b.WriteString("\n")
	b.WriteString(components.NewStatusBar().Render(m.width, m.keyHelp(), m.message))
	return b.String()
}

func (m DashboardModel) renderTasks() string {
	tasks := m.snap.Tasks[m.Status()]
	if len(tasks) == 0 {
		return styles.SubtleStyle.Render("No tasks in "+tabLabels[m.Status()]) + "\n"
	}

	now := m.snap.LoadedAt
	var b strings.Builder
	for i, t := range tasks {
		line := fmt.Sprintf("%-48s %-8s %s", t.ID, t.Priority, formatAge(now.Sub(t.Updated)))
		if t.BusinessAction != "" {
			line += "  " + t.BusinessAction
		}
		if i == m.cursor {
			b.WriteString(styles.SelectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m DashboardModel) renderProcesses() string {
	var b strings.Builder
	b.WriteString(styles.HeadingStyle.Render("Processes"))
	b.WriteString("\n")
	for _, p := range m.snap.Processes {
		state := styles.ForState(string(p.State)).Render(string(p.State))
		b.WriteString(fmt.Sprintf("  %-20s %s  restarts %d/%d", p.Name, state, p.RestartCount, p.MaxRestarts))
		b.WriteString("\n")
	}
	return b.String()
}

func (m DashboardModel) renderEvents() string {
	var b strings.Builder
	b.WriteString(styles.HeadingStyle.Render("Recent activity"))
	b.WriteString("\n")
	for i := len(m.snap.Events) - 1; i >= 0; i-- {
		e := m.snap.Events[i]
		line := fmt.Sprintf("  %s  %-30s %s", e.Timestamp.Local().Format("15:04:05"), e.Action, e.Status)
		if id, ok := e.Details["task"].(string); ok {
			line += "  " + id
		}
		b.WriteString(styles.SubtleStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m DashboardModel) keyHelp() []components.KeyHelp {
	items := []components.KeyHelp{{Key: "tab", Desc: "Bucket"}, {Key: "enter", Desc: "Open"}}
	if m.decisions != nil {
		switch m.Status() {
		case task.StatusPendingApproval:
			items = append(items, components.KeyHelp{Key: "a", Desc: "Approve"}, components.KeyHelp{Key: "x", Desc: "Reject"})
		case task.StatusFailed:
			items = append(items, components.KeyHelp{Key: "u", Desc: "Requeue"})
		}
	}
	return append(items, components.KeyHelp{Key: "r", Desc: "Refresh"}, components.KeyHelp{Key: "q", Desc: "Quit"})
}
