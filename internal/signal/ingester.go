package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osqazi/AI-Employee-FTE/internal/approval"
	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
	"github.com/osqazi/AI-Employee-FTE/internal/trigger"
)

// Ingester classifies signals and creates their tasks.
type Ingester struct {
	store      task.Store
	classifier *trigger.Classifier
	policy     approval.Policy
	audit      *audit.Logger
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngester creates an ingester writing to store.
func NewIngester(store task.Store, classifier *trigger.Classifier, policy approval.Policy) *Ingester {
	if classifier == nil {
		classifier = trigger.Default()
	}
	return &Ingester{
		store:      store,
		classifier: classifier,
		policy:     policy,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
}

// WithAudit sets the audit log.
func (in *Ingester) WithAudit(l *audit.Logger) *Ingester {
	in.audit = l
	return in
}

// WithLogger sets the diagnostic logger.
func (in *Ingester) WithLogger(l *zap.Logger) *Ingester {
	if l != nil {
		in.logger = l.Named("ingest")
	}
	return in
}

// WithClock sets the time source.
func (in *Ingester) WithClock(now func() time.Time) *Ingester {
	in.now = now
	return in
}

// Ingest files sig as a new needs_action task. A signal without an ID gets a
// random one. Re-ingesting a signal returns task.ErrDuplicateSignal.
func (in *Ingester) Ingest(ctx context.Context, sig Signal) (*task.Task, error) {
	if strings.TrimSpace(sig.Text) == "" && strings.TrimSpace(sig.Subject) == "" {
		return nil, errors.New("signal has no content")
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Source == "" {
		sig.Source = task.SourceCLI
	}

	t := in.build(sig, in.classifier.Classify(sig.Content()))
	t.RequiresApproval = in.policy.RequiresApproval(t)

	if err := in.store.Create(ctx, t); err != nil {
		if errors.Is(err, task.ErrDuplicateSignal) {
			in.logger.Debug("duplicate signal", zap.String("signal", sig.ID), zap.String("source", sig.Source))
			in.record(audit.ActionSignalDuplicate, sig.Source, audit.StatusSkipped, map[string]any{"signal": sig.ID})
		}
		return nil, fmt.Errorf("failed to ingest signal %s: %w", sig.ID, err)
	}

	in.logger.Info("task created",
		zap.String("task", t.ID),
		zap.String("trigger", t.Type),
		zap.Bool("requires_approval", t.RequiresApproval))
	in.record(audit.ActionTaskCreated, t.Source, audit.StatusSuccess, map[string]any{
		"task":              t.ID,
		"signal":            sig.ID,
		"type":              t.Type,
		"requires_approval": t.RequiresApproval,
	})
	if t.Source == task.SourceCrossDomain {
		in.record(audit.ActionTriggerDetected, sig.Source, audit.StatusSuccess, map[string]any{
			"task":         t.ID,
			"sender":       sig.Sender,
			"trigger_type": t.Type,
		})
	}
	return t, nil
}

func (in *Ingester) build(sig Signal, c trigger.Classification) *task.Task {
	at := in.now().UTC()
	received := sig.Received
	if received.IsZero() {
		received = at
	}

	fields := make(map[string]string, len(c.Fields)+len(sig.Meta)+2)
	for k, v := range sig.Meta {
		fields[k] = v
	}
	if sig.Sender != "" {
		fields["sender"] = sig.Sender
	}
	if sig.Subject != "" {
		fields["subject"] = sig.Subject
	}
	for k, v := range c.Fields {
		fields[k] = v
	}

	t := &task.Task{
		Source:   sig.Source,
		Type:     c.Trigger,
		Priority: sig.Priority,
		SignalID: sig.ID,
		Created:  at,
		Updated:  at,
		Fields:   fields,
	}
	if c.Matched() {
		t.Source = task.SourceCrossDomain
		t.TriggerSource = sig.Source
		t.BusinessAction = c.Rule.BusinessAction
		t.Skill = c.Rule.Skill
		t.Server = c.Rule.Server
		if t.Priority == "" {
			t.Priority = task.PriorityHigh
		}
	}
	if t.Priority == "" {
		t.Priority = task.PriorityNormal
	}
	t.ID = task.NewID(task.Category(t.Source), c.Trigger, at)
	t.Body = body(sig, c, received)
	return t
}

func body(sig Signal, c trigger.Classification, received time.Time) string {
	var b strings.Builder
	if c.Matched() {
		fmt.Fprintf(&b, "# Cross-Domain Trigger: %s\n\n", c.Trigger)
	} else {
		fmt.Fprintf(&b, "# %s signal\n\n", sig.Source)
	}
	fmt.Fprintf(&b, "**Source**: %s\n", sig.Source)
	if sig.Sender != "" {
		fmt.Fprintf(&b, "**From**: %s\n", sig.Sender)
	}
	if sig.Subject != "" {
		fmt.Fprintf(&b, "**Subject**: %s\n", sig.Subject)
	}
	fmt.Fprintf(&b, "**Received**: %s\n", received.UTC().Format(time.RFC3339))
	if c.Matched() {
		fmt.Fprintf(&b, "**Business Action**: %s\n", c.Rule.BusinessAction)
	}

	b.WriteString("\n## Original Content\n\n")
	b.WriteString(strings.TrimSpace(sig.Text))
	b.WriteString("\n")

	if len(c.Fields) > 0 {
		b.WriteString("\n## Extracted Data\n\n")
		if v, ok := c.Fields[trigger.FieldAmount]; ok {
			fmt.Fprintf(&b, "- **Amount**: $%s\n", v)
		}
		if v, ok := c.Fields[trigger.FieldCounterparty]; ok {
			fmt.Fprintf(&b, "- **Client**: %s\n", v)
		}
	}

	steps := []string{"Review the message and take the requested action"}
	if c.Matched() {
		steps = []string{"Review trigger and extracted data"}
		switch {
		case c.Rule.BusinessAction != "" && c.Rule.Server != "":
			steps = append(steps, c.Rule.BusinessAction+" via "+c.Rule.Server)
		case c.Rule.BusinessAction != "":
			steps = append(steps, c.Rule.BusinessAction)
		}
		steps = append(steps, "Record the outcome in the audit log")
	}
	b.WriteString("\n## Required Actions\n\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. [ ] %s\n", i+1, s)
	}
	return b.String()
}

func (in *Ingester) record(action, source, status string, details map[string]any) {
	if in.audit == nil {
		return
	}
	if err := in.audit.Log(action, source, status, details); err != nil {
		in.logger.Warn("failed to write audit event", zap.String("action", action), zap.Error(err))
	}
}
