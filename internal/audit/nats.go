package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on <prefix>.<action>.
type NATSSink struct {
	pub    Publisher
	nc     *nats.Conn
	prefix string
}

// NewNATSSink wraps an existing publisher.
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "fte.audit"
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

// ConnectNATS dials url and returns a sink publishing under prefix.
func ConnectNATS(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("fte-audit"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	s := NewNATSSink(nc, prefix)
	s.nc = nc
	return s, nil
}

// Subject returns the subject an action is published on.
func (s *NATSSink) Subject(action string) string {
	return s.prefix + "." + action
}

// Publish implements Sink.
func (s *NATSSink) Publish(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.pub.Publish(s.Subject(e.Action), b)
}

// Close drains the connection when the sink owns one.
func (s *NATSSink) Close() {
	if s.nc != nil {
		_ = s.nc.Drain()
	}
}
