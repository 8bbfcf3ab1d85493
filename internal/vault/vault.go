// Package vault describes the on-disk layout shared by every component:
// one directory per task bucket plus plans, logs and the drop folder.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
)

// Bucket directory names. A task record lives in exactly one bucket at a time.
const (
	NeedsAction     = "Needs_Action"
	PendingApproval = "Pending_Approval"
	Approved        = "Approved"
	Rejected        = "Rejected"
	Done            = "Done"
	Inbox           = "Inbox"
)

const (
	plansDir   = "Plans"
	logsDir    = "Logs"
	dropDir    = "Drop"
	signalsDir = ".signals"
)

// Layout resolves paths inside a vault root.
type Layout struct {
	Root string
}

// New returns the layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// Buckets lists every task bucket directory name.
func Buckets() []string {
	return []string{NeedsAction, PendingApproval, Approved, Rejected, Done, Inbox}
}

// Bucket returns the absolute path of a bucket directory.
func (l Layout) Bucket(name string) string { return filepath.Join(l.Root, name) }

// Plans returns the plans directory.
func (l Layout) Plans() string { return filepath.Join(l.Root, plansDir) }

// Logs returns the logs directory.
func (l Layout) Logs() string { return filepath.Join(l.Root, logsDir) }

// Output returns the directory holding per-task engine output.
func (l Layout) Output() string { return filepath.Join(l.Logs(), "output") }

// Drop returns the directory watched for dropped files.
func (l Layout) Drop() string { return filepath.Join(l.Root, dropDir) }

// Signals returns the directory holding ingested-signal markers.
func (l Layout) Signals() string { return filepath.Join(l.Root, signalsDir) }

// AuditLog returns the path of the append-only audit log.
func (l Layout) AuditLog() string { return filepath.Join(l.Logs(), "audit_log.jsonl") }

// ErrorLog returns the path of the append-only error log.
func (l Layout) ErrorLog() string { return filepath.Join(l.Logs(), "error_log.jsonl") }

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	dirs := []string{l.Plans(), l.Logs(), l.Drop(), l.Signals()}
	for _, b := range Buckets() {
		dirs = append(dirs, l.Bucket(b))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the vault root exists and is a directory.
func (l Layout) Exists() bool {
	info, err := os.Stat(l.Root)
	return err == nil && info.IsDir()
}
