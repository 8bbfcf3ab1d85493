package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// Handle is a running (or exited) process owned by the supervisor.
type Handle interface {
	PID() int
	Alive() bool
	// Terminate asks the process to exit.
	Terminate() error
	Kill() error
	// Wait blocks until the process exits or timeout passes, and reports
	// whether it exited.
	Wait(timeout time.Duration) bool
	// ExitErr is the exit error once the process has exited.
	ExitErr() error
}

// Spawner starts processes.
type Spawner interface {
	Spawn(ctx context.Context, d Descriptor) (Handle, error)
}

// ExecSpawner starts processes with os/exec. Output of each process is
// appended to <LogDir>/<name>.log when LogDir is set.
type ExecSpawner struct {
	LogDir string
}

// NewExecSpawner creates a spawner writing process output under logDir.
func NewExecSpawner(logDir string) *ExecSpawner {
	return &ExecSpawner{LogDir: logDir}
}

// LogPath returns the output file of the named process.
func (s *ExecSpawner) LogPath(name string) string {
	return filepath.Join(s.LogDir, name+".log")
}

// Spawn starts d in its own process group. The process is not bound to ctx
// and does not receive the terminal's interrupt; the supervisor stops the
// whole group through the handle so it gets a graceful terminate first.
func (s *ExecSpawner) Spawn(ctx context.Context, d Descriptor) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.Command) == 0 {
		return nil, fmt.Errorf("process %s: empty command", d.Name)
	}

	cmd := exec.Command(d.Command[0], d.Command[1:]...)
	cmd.Dir = d.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(d.Env) > 0 {
		cmd.Env = append(os.Environ(), d.Env...)
	}

	var out *os.File
	if s.LogDir != "" {
		if err := os.MkdirAll(s.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(s.LogPath(d.Name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open process log: %w", err)
		}
		out = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if out != nil {
			out.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", d.Name, err)
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		if out != nil {
			out.Close()
		}
		close(h.done)
	}()
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (h *execHandle) PID() int { return h.cmd.Process.Pid }

func (h *execHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Terminate signals the process group, so children of a wrapper such as
// sh -c are stopped too, even after the leader has exited.
func (h *execHandle) Terminate() error {
	return h.signalGroup(syscall.SIGTERM)
}

func (h *execHandle) Kill() error {
	return h.signalGroup(syscall.SIGKILL)
}

func (h *execHandle) signalGroup(sig syscall.Signal) error {
	err := syscall.Kill(-h.cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func (h *execHandle) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

func (h *execHandle) ExitErr() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
