package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockFileExt = ".lock"

// ErrLocked is returned when another live process holds the run lock.
var ErrLocked = errors.New("task is already running")

// Lock is a pid lock file that keeps a task to one active run.
type Lock struct {
	path string
}

// NewLock creates a lock manager for the given lock file path.
func NewLock(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire attempts to take the lock.
// Stale locks (dead pid or unreadable content) are removed and the take retried once.
func (l *Lock) Acquire() error {
	err := l.create()
	if err == nil || !os.IsExist(err) {
		return err
	}

	pid, ok, readErr := l.holder()
	if readErr != nil {
		return readErr
	}
	if ok && processExists(pid) {
		return fmt.Errorf("%w (PID %d)", ErrLocked, pid)
	}

	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("failed to remove stale lock file: %w", removeErr)
	}

	// Only retry once to avoid looping against a competing process.
	if err := l.create(); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: lock taken by another process during retry", ErrLocked)
		}
		return err
	}
	return nil
}

// create publishes a fully written pid file at the lock path with a hard link,
// so the lock never exists without its pid. A raw os.IsExist error is
// returned when the lock is already there.
func (l *Lock) create() error {
	dir, base := filepath.Split(l.path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+base+".*")
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	_, writeErr := fmt.Fprintf(f, "%d", os.Getpid())
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write lock file: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to write lock file: %w", closeErr)
	}

	if err := os.Link(tmp, l.path); err != nil {
		if os.IsExist(err) {
			return err
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// holder reads the pid from the lock file. ok is false when the content is not a pid.
func (l *Lock) holder() (pid int, ok bool, err error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read existing lock file: %w", err)
	}
	pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if parseErr != nil {
		return 0, false, nil
	}
	return pid, true, nil
}

// Release removes the lock file.
// Returns nil if the lock file doesn't exist (idempotent).
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked reports whether the lock is currently held by a live process.
// If the lock file is stale or invalid, it is removed and false is returned.
func (l *Lock) IsLocked() (bool, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return false, nil
	}
	pid, ok, err := l.holder()
	if err != nil {
		return false, err
	}
	if ok && processExists(pid) {
		return true, nil
	}
	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		return false, fmt.Errorf("failed to remove stale lock file: %w", removeErr)
	}
	return false, nil
}

// processExists checks if a process with the given PID is running.
// Uses kill with signal 0, which checks for process existence without sending a signal.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
