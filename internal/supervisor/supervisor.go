package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// Defaults for the monitor loop.
const (
	DefaultInterval = 30 * time.Second
	DefaultGrace    = 5 * time.Second
)

type process struct {
	desc          Descriptor
	state         State
	handle        Handle
	restartCount  int
	lastRestartAt time.Time
	lastExit      string
	alerted       bool
}

func (p *process) status() Status {
	st := Status{
		Name:          p.desc.Name,
		State:         p.state,
		RestartCount:  p.restartCount,
		MaxRestarts:   p.desc.MaxRestarts,
		LastRestartAt: p.lastRestartAt,
		LastExit:      p.lastExit,
	}
	if p.handle != nil && p.handle.Alive() {
		st.PID = p.handle.PID()
	}
	return st
}

// Supervisor polls a fixed set of processes from a single goroutine and
// restarts the ones that died.
type Supervisor struct {
	spawner  Spawner
	alerter  Alerter
	audit    *audit.Logger
	logger   *zap.Logger
	now      func() time.Time
	interval time.Duration
	grace    time.Duration

	mu    sync.Mutex
	procs []*process
}

// New creates a supervisor for descs.
func New(spawner Spawner, descs []Descriptor) (*Supervisor, error) {
	if err := Validate(descs); err != nil {
		return nil, err
	}
	s := &Supervisor{
		spawner:  spawner,
		logger:   zap.NewNop(),
		now:      time.Now,
		interval: DefaultInterval,
		grace:    DefaultGrace,
	}
	for _, d := range descs {
		if d.MaxRestarts < 0 {
			d.MaxRestarts = DefaultMaxRestarts
		}
		d.Command = append([]string(nil), d.Command...)
		s.procs = append(s.procs, &process{desc: d, state: StateStopped})
	}
	return s, nil
}

// WithAlerter sets who is told about unrecoverable processes.
func (s *Supervisor) WithAlerter(a Alerter) *Supervisor {
	s.alerter = a
	return s
}

// WithAudit sets the audit log for start and restart events.
func (s *Supervisor) WithAudit(l *audit.Logger) *Supervisor {
	s.audit = l
	return s
}

// WithLogger sets the diagnostic logger.
func (s *Supervisor) WithLogger(l *zap.Logger) *Supervisor {
	if l != nil {
		s.logger = l.Named("supervisor")
	}
	return s
}

// WithClock sets the time source used for restart spacing.
func (s *Supervisor) WithClock(now func() time.Time) *Supervisor {
	s.now = now
	return s
}

// WithInterval sets the poll interval of Run.
func (s *Supervisor) WithInterval(d time.Duration) *Supervisor {
	if d > 0 {
		s.interval = d
	}
	return s
}

// WithGrace sets how long Run waits for processes to exit on shutdown.
func (s *Supervisor) WithGrace(d time.Duration) *Supervisor {
	if d > 0 {
		s.grace = d
	}
	return s
}

// Start spawns every stopped process. Spawn failures are logged and left to
// the restart policy.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.procs {
		if p.state == StateStopped {
			s.start(ctx, p)
		}
	}
}

// Check polls every process once and applies the restart policy.
func (s *Supervisor) Check(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.procs {
		if ctx.Err() != nil {
			return
		}
		s.check(ctx, p)
	}
}

func (s *Supervisor) check(ctx context.Context, p *process) {
	switch p.state {
	case StateUnrecoverable:
		return
	case StateStopped:
		s.start(ctx, p)
		return
	}

	if p.handle != nil {
		if p.handle.Alive() {
			p.state = StateRunning
			return
		}
		p.lastExit = exitString(p.handle.ExitErr())
		s.logger.Warn("process exited",
			zap.String("process", p.desc.Name),
			zap.Int("pid", p.handle.PID()),
			zap.String("exit", p.lastExit))
		p.handle = nil
	}

	if p.restartCount >= p.desc.MaxRestarts {
		p.state = StateUnrecoverable
		s.logger.Error("max restarts exceeded",
			zap.String("process", p.desc.Name),
			zap.Int("max_restarts", p.desc.MaxRestarts))
		s.alert(ctx, p)
		return
	}

	delay := p.desc.Delay(p.restartCount)
	if wait := delay - s.now().Sub(p.lastRestartAt); wait > 0 {
		p.state = StateRestarting
		s.logger.Debug("waiting before restart", zap.String("process", p.desc.Name), zap.Duration("wait", wait))
		return
	}

	p.restartCount++
	s.logger.Info("restarting process",
		zap.String("process", p.desc.Name),
		zap.Int("attempt", p.restartCount),
		zap.Int("max_restarts", p.desc.MaxRestarts))
	if s.spawn(ctx, p) {
		s.record(audit.ActionProcessRestarted, audit.StatusSuccess, p)
	} else {
		s.record(audit.ActionProcessRestarted, audit.StatusFailure, p)
	}
}

func (s *Supervisor) start(ctx context.Context, p *process) {
	if s.spawn(ctx, p) {
		s.record(audit.ActionProcessStarted, audit.StatusSuccess, p)
	} else {
		s.record(audit.ActionProcessStarted, audit.StatusFailure, p)
	}
}

// spawn records the attempt time and starts a new handle for p.
func (s *Supervisor) spawn(ctx context.Context, p *process) bool {
	p.lastRestartAt = s.now()
	h, err := s.spawner.Spawn(ctx, p.desc)
	if err != nil {
		p.state = StateRestarting
		p.lastExit = err.Error()
		s.logger.Error("failed to start process", zap.String("process", p.desc.Name), zap.Error(err))
		return false
	}
	p.handle = h
	p.state = StateRunning
	s.logger.Info("process started", zap.String("process", p.desc.Name), zap.Int("pid", h.PID()))
	return true
}

func (s *Supervisor) alert(ctx context.Context, p *process) {
	if p.alerted {
		return
	}
	p.alerted = true
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Alert(ctx, p.desc, p.status()); err != nil {
		s.logger.Error("failed to emit alert", zap.String("process", p.desc.Name), zap.Error(err))
	}
}

// Run starts the processes and checks them every interval until ctx is
// cancelled. All processes are stopped before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.StopAll(s.grace)

	s.Start(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// StopAll sends a terminate signal to every live process, waits up to grace
// for them to exit, then kills the rest.
func (s *Supervisor) StopAll(grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var live []*process
	for _, p := range s.procs {
		if p.handle == nil || !p.handle.Alive() {
			continue
		}
		if err := p.handle.Terminate(); err != nil {
			s.logger.Warn("failed to terminate process", zap.String("process", p.desc.Name), zap.Error(err))
		}
		live = append(live, p)
	}

	deadline := time.Now().Add(grace)
	for _, p := range live {
		if !p.handle.Wait(time.Until(deadline)) {
			s.logger.Warn("process did not exit in time, killing", zap.String("process", p.desc.Name))
			if err := p.handle.Kill(); err != nil {
				s.logger.Warn("failed to kill process", zap.String("process", p.desc.Name), zap.Error(err))
			}
			p.handle.Wait(grace)
		}
		s.logger.Info("process stopped", zap.String("process", p.desc.Name))
	}

	for _, p := range s.procs {
		if p.state != StateUnrecoverable {
			p.state = StateStopped
		}
		p.handle = nil
	}
}

// Reset clears the restart accounting of name so the next Check starts it
// again. It is the only way out of the unrecoverable state.
func (s *Supervisor) Reset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.procs {
		if p.desc.Name != name {
			continue
		}
		if p.handle != nil && p.handle.Alive() {
			return fmt.Errorf("process %s is running", name)
		}
		p.state = StateStopped
		p.handle = nil
		p.restartCount = 0
		p.alerted = false
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownProcess, name)
}

// Snapshot returns the state of every process in configuration order.
func (s *Supervisor) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p.status())
	}
	return out
}

func (s *Supervisor) record(action, status string, p *process) {
	if s.audit == nil {
		return
	}
	details := map[string]any{
		"process":  p.desc.Name,
		"restarts": p.restartCount,
	}
	if p.handle != nil {
		details["pid"] = p.handle.PID()
	}
	if status == audit.StatusFailure && p.lastExit != "" {
		details["error"] = p.lastExit
	}
	if err := s.audit.Log(action, task.SourceWatchdog, status, details); err != nil {
		s.logger.Warn("failed to write audit event", zap.String("action", action), zap.Error(err))
	}
}

func exitString(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
