package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestExecSpawner_OutputAndExit(t *testing.T) {
	dir := t.TempDir()
	s := NewExecSpawner(filepath.Join(dir, "logs"))

	h, err := s.Spawn(context.Background(), Descriptor{
		Name:    "echoer",
		Command: []string{"sh", "-c", "echo started; exit 3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Wait(5 * time.Second) {
		t.Fatal("expected process to exit")
	}
	if h.Alive() {
		t.Error("expected process to be dead after exit")
	}
	if h.ExitErr() == nil || !strings.Contains(h.ExitErr().Error(), "exit status 3") {
		t.Errorf("expected exit status 3, got: %v", h.ExitErr())
	}

	data, err := os.ReadFile(s.LogPath("echoer"))
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "started") {
		t.Errorf("expected log to contain output, got: %q", data)
	}
}

func TestExecSpawner_Terminate(t *testing.T) {
	s := NewExecSpawner("")
	h, err := s.Spawn(context.Background(), Descriptor{
		Name:    "sleeper",
		Command: []string{"sleep", "30"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Alive() {
		t.Fatal("expected process to be alive")
	}
	if h.PID() <= 0 {
		t.Errorf("expected a pid, got: %d", h.PID())
	}
	if err := h.Terminate(); err != nil {
		t.Fatalf("terminate failed: %v", err)
	}
	if !h.Wait(5 * time.Second) {
		t.Fatal("expected process to exit after terminate")
	}
	if err := h.Kill(); err != nil {
		t.Errorf("kill after exit should be a no-op, got: %v", err)
	}
}

func TestExecSpawner_MissingBinary(t *testing.T) {
	s := NewExecSpawner(t.TempDir())
	_, err := s.Spawn(context.Background(), Descriptor{
		Name:    "ghost",
		Command: []string{"definitely-not-a-real-binary-fte"},
	})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestExecSpawner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExecSpawner("").Spawn(ctx, Descriptor{Name: "x", Command: []string{"true"}})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

// readPID waits for a shell to write a background pid into path.
func readPID(t *testing.T, path string) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid > 0 {
				return pid
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no pid written to %s", path)
	return 0
}

// processGone reports whether pid has exited. A zombie waiting to be reaped
// by its new parent counts as gone.
func processGone(pid int) bool {
	if err := syscall.Kill(pid, 0); err != nil {
		return true
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	stat := string(data)
	fields := strings.Fields(stat[strings.LastIndexByte(stat, ')')+1:])
	return len(fields) > 0 && fields[0] == "Z"
}

func waitGone(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if processGone(pid) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	syscall.Kill(pid, syscall.SIGKILL)
	t.Errorf("expected child %d to be stopped with its group", pid)
}

func TestStopAll_StopsWrappedChildren(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	sup, err := New(NewExecSpawner(""), []Descriptor{{
		Name:    "wrapper",
		Command: []string{"sh", "-c", "sleep 60 & echo $! > '" + pidFile + "'; wait"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sup.Start(context.Background())
	child := readPID(t, pidFile)

	sup.StopAll(2 * time.Second)
	waitGone(t, child)

	for _, st := range sup.Snapshot() {
		if st.State != StateStopped {
			t.Errorf("expected %s to be stopped, got: %s", st.Name, st.State)
		}
	}
}

func TestExecSpawner_TerminateAfterLeaderExit(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	h, err := NewExecSpawner("").Spawn(context.Background(), Descriptor{
		Name:    "orphaner",
		Command: []string{"sh", "-c", "sleep 60 & echo $! > '" + pidFile + "'"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	child := readPID(t, pidFile)
	if !h.Wait(5 * time.Second) {
		t.Fatal("expected the shell to exit")
	}

	if err := h.Terminate(); err != nil {
		t.Fatalf("terminate failed: %v", err)
	}
	waitGone(t, child)
}

func TestExecSpawner_OwnProcessGroup(t *testing.T) {
	h, err := NewExecSpawner("").Spawn(context.Background(), Descriptor{
		Name:    "sleeper",
		Command: []string{"sleep", "30"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		h.Kill()
		h.Wait(5 * time.Second)
	}()

	pgid, err := syscall.Getpgid(h.PID())
	if err != nil {
		t.Fatalf("getpgid failed: %v", err)
	}
	if pgid != h.PID() {
		t.Errorf("expected process group %d, got: %d", h.PID(), pgid)
	}
	if pgid == syscall.Getpgrp() {
		t.Error("expected the worker outside the supervisor's process group")
	}
}
