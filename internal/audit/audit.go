// Package audit appends one JSON line per lifecycle event to the vault logs.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Actions written to the audit logs.
const (
	ActionTaskCreated             = "task_created"
	ActionTriggerDetected         = "cross_domain_trigger_detected"
	ActionSignalDuplicate         = "signal_duplicate"
	ActionApprovalRequested       = "approval_requested"
	ActionApprovalDecided         = "approval_decided"
	ActionTaskRequeued            = "task_requeued"
	ActionExecutionStarted        = "execution_started"
	ActionTaskCompleted           = "task_completed"
	ActionTaskFailed              = "task_failed"
	ActionExecutionInterrupted    = "execution_interrupted"
	ActionRecordSkipped           = "record_skipped"
	ActionProcessStarted          = "process_started"
	ActionProcessRestarted        = "process_restarted"
	ActionWatchdogCriticalFailure = "watchdog_critical_failure"
)

// Statuses written to the audit logs.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusPending = "pending"
	StatusSkipped = "skipped"
)

// Event is a single audit log line.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Source    string         `json:"source"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details"`
}

// Sink receives a copy of every event after it is written to disk.
type Sink interface {
	Publish(Event) error
}

// Logger appends events to a JSON Lines file.
type Logger struct {
	path   string
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a Logger.
type Option func(*Logger)

// WithSink fans events out to s. Sink failures are logged, never returned.
func WithSink(s Sink) Option {
	return func(l *Logger) {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Logger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// NewLogger creates a logger appending to path.
func NewLogger(path string, opts ...Option) *Logger {
	l := &Logger{
		path:   path,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Log appends an event built from its parts.
func (l *Logger) Log(action, source, status string, details map[string]any) error {
	return l.Write(Event{
		Action:  action,
		Source:  source,
		Status:  status,
		Details: details,
	})
}

// Write appends e, stamping its timestamp when unset.
func (l *Logger) Write(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	line = append(line, '\n')

	if err := l.append(line); err != nil {
		return err
	}

	for _, s := range l.sinks {
		if err := s.Publish(e); err != nil {
			l.logger.Warn("audit sink publish failed",
				zap.String("action", e.Action),
				zap.Error(err))
		}
	}
	return nil
}

func (l *Logger) append(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// ReadEvents reads all events from a JSON Lines file.
// Unparseable lines are skipped. A missing file yields no events.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

// Tail returns at most n of the most recent events.
func Tail(path string, n int) ([]Event, error) {
	events, err := ReadEvents(path)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}
