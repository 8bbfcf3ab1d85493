package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/osqazi/AI-Employee-FTE/internal/supervisor"
)

func TestFormatAge(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{90 * time.Second, "1 min ago"},
		{30 * time.Minute, "30 mins ago"},
		{90 * time.Minute, "1 hour ago"},
		{5 * time.Hour, "5 hours ago"},
		{30 * time.Hour, "1 day ago"},
		{100 * time.Hour, "4 days ago"},
	}
	for _, tt := range tests {
		if got := formatAge(time.Now().Add(-tt.ago)); got != tt.want {
			t.Errorf("formatAge(-%v): expected %q, got: %q", tt.ago, tt.want, got)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512B"},
		{2048, "2.0KB"},
		{3 * 1024 * 1024, "3.0MB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d): expected %q, got: %q", tt.bytes, tt.want, got)
		}
	}
}

func TestCalculateDirStats(t *testing.T) {
	dir := t.TempDir()
	plans := filepath.Join(dir, "Plans")
	if err := os.MkdirAll(plans, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(plans, "PLAN_A.md"):   "12345",
		filepath.Join(plans, "PLAN_A.lock"): "1",
		filepath.Join(dir, "note.md"):       "1234",
	}
	for path, body := range files {
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	count, size, err := calculateDirStats(dir, plans)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 plan, got: %d", count)
	}
	if size != 10 {
		t.Errorf("expected 10 bytes, got: %d", size)
	}
}

func TestPrintProcesses(t *testing.T) {
	var buf bytes.Buffer
	printProcesses(&buf, []supervisor.Status{
		{Name: "orchestrator", State: supervisor.StateRunning, MaxRestarts: 3},
		{Name: "odoo_mcp", State: supervisor.StateUnrecoverable, RestartCount: 3, MaxRestarts: 3, LastExit: "exit status 1"},
	})

	out := buf.String()
	for _, want := range []string{"PROCESS", "orchestrator", "running", "0/3", "unrecoverable", "3/3", "exit status 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}
