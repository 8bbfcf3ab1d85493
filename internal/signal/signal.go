// Package signal turns incoming messages, emails and dropped files into
// tasks. Concrete watchers implement Source; the Ingester classifies each
// signal and files the task exactly once.
package signal

import (
	"context"
	"time"
)

// Signal is one raw item from a source.
type Signal struct {
	// ID identifies the item at its source. It is the deduplication key.
	ID       string
	Source   string
	Sender   string
	Subject  string
	Text     string
	Priority string
	Received time.Time
	// Meta is copied into the task fields.
	Meta map[string]string
}

// Content is the text the classifier sees.
func (s Signal) Content() string {
	if s.Subject == "" {
		return s.Text
	}
	return s.Subject + "\n" + s.Text
}

// Source produces signals on demand.
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]Signal, error)
}

// Acker is implemented by sources that must be told once a signal has been
// filed, e.g. to move a dropped file out of the way.
type Acker interface {
	Ack(ctx context.Context, sig Signal) error
}

// Waker is implemented by sources that can announce new items between polls.
type Waker interface {
	Wake() <-chan struct{}
}
