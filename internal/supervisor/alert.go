package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// AlertCategory prefixes the ids of watchdog alert tasks.
const AlertCategory = "ALERT_WATCHDOG"

// Alerter is told once about every process that became unrecoverable.
type Alerter interface {
	Alert(ctx context.Context, d Descriptor, st Status) error
}

// AlertEmitter records an unrecoverable process in the error log and files a
// critical alert task so it reaches a human through normal triage.
type AlertEmitter struct {
	store  task.Store
	errors *audit.Logger
	now    func() time.Time
}

// NewAlertEmitter creates an emitter. Either destination may be nil.
func NewAlertEmitter(store task.Store, errorLog *audit.Logger) *AlertEmitter {
	return &AlertEmitter{store: store, errors: errorLog, now: time.Now}
}

// WithClock sets the time source.
func (a *AlertEmitter) WithClock(now func() time.Time) *AlertEmitter {
	a.now = now
	return a
}

// Alert writes the error log line and the alert task. Both are attempted;
// the first failure is returned.
func (a *AlertEmitter) Alert(ctx context.Context, d Descriptor, st Status) error {
	at := a.now().UTC()
	var firstErr error

	if a.errors != nil {
		err := a.errors.Log(audit.ActionWatchdogCriticalFailure, task.SourceWatchdog, audit.StatusFailure, map[string]any{
			"process":               d.Name,
			"command":               strings.Join(d.Command, " "),
			"restarts":              st.RestartCount,
			"max_restarts_exceeded": true,
			"last_exit":             st.LastExit,
			"recommendation":        "Manual intervention required",
		})
		if err != nil {
			firstErr = fmt.Errorf("failed to write error log: %w", err)
		}
	}

	if a.store != nil {
		t := &task.Task{
			ID:       task.NewID(AlertCategory, d.Name, at),
			Source:   task.SourceWatchdog,
			Type:     "alert",
			Priority: task.PriorityCritical,
			Created:  at,
			Updated:  at,
			Fields: map[string]string{
				"process":  d.Name,
				"restarts": fmt.Sprintf("%d", st.RestartCount),
			},
			Body: alertBody(d, st, at),
		}
		if err := a.store.Create(ctx, t); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to create alert task: %w", err)
		}
	}
	return firstErr
}

func alertBody(d Descriptor, st Status, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Critical Alert: Process %s Failed\n\n", d.Name)
	fmt.Fprintf(&b, "**Process**: %s\n", d.Name)
	fmt.Fprintf(&b, "**Command**: `%s`\n", strings.Join(d.Command, " "))
	fmt.Fprintf(&b, "**Time**: %s\n", at.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Issue**: max restarts (%d) exceeded\n", st.MaxRestarts)
	if st.LastExit != "" {
		fmt.Fprintf(&b, "**Last exit**: %s\n", st.LastExit)
	}
	b.WriteString("\n## Required Actions\n\n")
	fmt.Fprintf(&b, "1. [ ] Check the process output in Logs/%s.log and Logs/error_log.jsonl\n", d.Name)
	b.WriteString("2. [ ] Fix the cause (configuration, missing dependency, port in use, invalid credentials)\n")
	fmt.Fprintf(&b, "3. [ ] Run the command by hand to confirm it stays up: `%s`\n", strings.Join(d.Command, " "))
	b.WriteString("4. [ ] Restart the supervisor so the process is watched again\n")
	return b.String()
}
