// Package supervisor keeps the long-running worker processes alive,
// restarting them with bounded attempts and raising one critical alert when a
// process cannot be kept running.
package supervisor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// State is the supervisor's view of one process.
type State string

const (
	StateStopped       State = "stopped"
	StateRunning       State = "running"
	StateRestarting    State = "restarting"
	StateUnrecoverable State = "unrecoverable"
)

// Defaults applied to descriptors that leave a field unset.
const (
	DefaultMaxRestarts  = 3
	DefaultRestartDelay = 5 * time.Second
)

// MaxRestartDelay caps the backoff between two starts.
const MaxRestartDelay = time.Hour

// Descriptor is the static configuration of a supervised process.
type Descriptor struct {
	Name    string
	Command []string
	Dir     string
	Env     []string

	// MaxRestarts bounds automatic restarts. Negative means DefaultMaxRestarts.
	MaxRestarts int
	// RestartDelay is the minimum spacing between two starts.
	RestartDelay time.Duration
	// BackoffFactor multiplies the delay after every restart. 1 keeps it fixed.
	BackoffFactor float64
}

// Delay returns the minimum time to wait after the last start once the
// process has been restarted restarts times.
func (d Descriptor) Delay(restarts int) time.Duration {
	factor := d.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	if d.RestartDelay <= 0 {
		return 0
	}
	delay := float64(d.RestartDelay) * math.Pow(factor, float64(restarts))
	if delay > float64(MaxRestartDelay) {
		return max(d.RestartDelay, MaxRestartDelay)
	}
	return time.Duration(delay)
}

// Validate checks a set of descriptors for missing names, duplicate names
// and empty commands.
func Validate(descs []Descriptor) error {
	seen := make(map[string]bool, len(descs))
	for i, d := range descs {
		if d.Name == "" {
			return fmt.Errorf("process %d: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("process %s: duplicate name", d.Name)
		}
		seen[d.Name] = true
		if len(d.Command) == 0 || d.Command[0] == "" {
			return fmt.Errorf("process %s: command is required", d.Name)
		}
		if d.RestartDelay < 0 {
			return fmt.Errorf("process %s: restart delay must not be negative", d.Name)
		}
	}
	return nil
}

// ErrUnknownProcess is returned for a name that is not supervised.
var ErrUnknownProcess = errors.New("unknown process")

// Status is a point-in-time copy of one process's supervision state.
type Status struct {
	Name          string
	State         State
	PID           int
	RestartCount  int
	MaxRestarts   int
	LastRestartAt time.Time
	LastExit      string
}
