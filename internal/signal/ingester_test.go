package signal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osqazi/AI-Employee-FTE/internal/approval"
	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

var testNow = time.Date(2026, 10, 16, 10, 15, 0, 0, time.UTC)

type testEnv struct {
	layout   vault.Layout
	store    *task.FolderStore
	ingester *Ingester
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	layout := vault.New(t.TempDir())
	store, err := task.NewFolderStore(layout)
	require.NoError(t, err)
	in := NewIngester(store, nil, approval.DefaultPolicy()).
		WithAudit(audit.NewLogger(layout.AuditLog())).
		WithClock(func() time.Time { return testNow })
	return &testEnv{layout: layout, store: store, ingester: in}
}

func TestIngester_CrossDomainTrigger(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.ingester.Ingest(context.Background(), Signal{
		ID:     "wa-1",
		Source: task.SourceWhatsApp,
		Sender: "+1234567890",
		Text:   "Please send an invoice for $5,000 to Client ABC",
	})
	require.NoError(t, err)

	assert.Equal(t, "CROSSDOMAIN_invoice_20261016_101500", got.ID)
	assert.Equal(t, task.SourceCrossDomain, got.Source)
	assert.Equal(t, task.SourceWhatsApp, got.TriggerSource)
	assert.Equal(t, "invoice", got.Type)
	assert.Equal(t, "Create Odoo invoice", got.BusinessAction)
	assert.Equal(t, "odoo_create_invoice", got.Skill)
	assert.Equal(t, "odoo-mcp", got.Server)
	assert.Equal(t, task.PriorityHigh, got.Priority)
	assert.True(t, got.RequiresApproval)
	assert.Equal(t, "wa-1", got.SignalID)
	assert.Equal(t, "5000.00", got.Field("amount"))
	assert.Equal(t, "ABC", got.Field("counterparty"))
	assert.Equal(t, "+1234567890", got.Field("sender"))
	assert.Contains(t, got.Body, "2. [ ] Create Odoo invoice via odoo-mcp")
	assert.Contains(t, got.Body, "- **Amount**: $5000.00")

	stored, err := env.store.Get(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusNeedsAction, stored.Status)

	events, err := audit.ReadEvents(env.layout.AuditLog())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionTaskCreated, events[0].Action)
	assert.Equal(t, audit.ActionTriggerDetected, events[1].Action)
	assert.Equal(t, "invoice", events[1].Details["trigger_type"])
}

func TestIngester_PlainMessage(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.ingester.Ingest(context.Background(), Signal{
		ID:      "mail-1",
		Source:  task.SourceGmail,
		Sender:  "ana@example.com",
		Subject: "Lunch",
		Text:    "Are we still on for Thursday?",
	})
	require.NoError(t, err)

	assert.Equal(t, "GMAIL_none_20261016_101500", got.ID)
	assert.Equal(t, task.SourceGmail, got.Source)
	assert.Equal(t, "none", got.Type)
	assert.Empty(t, got.TriggerSource)
	assert.Equal(t, task.PriorityNormal, got.Priority)
	assert.False(t, got.RequiresApproval)
	assert.Equal(t, "Lunch", got.Field("subject"))
	assert.Contains(t, got.Body, "1. [ ] Review the message")
}

func TestIngester_SubjectIsClassified(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.ingester.Ingest(context.Background(), Signal{
		Source:  task.SourceGmail,
		Subject: "Receipt for your order",
		Text:    "Total charged: 42.50 USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "receipt", got.Type)
	assert.Equal(t, "42.50", got.Field("amount"))
	assert.NotEmpty(t, got.SignalID, "a random signal id is assigned")
}

func TestIngester_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	sig := Signal{ID: "wa-7", Source: task.SourceWhatsApp, Text: "hello"}

	_, err := env.ingester.Ingest(context.Background(), sig)
	require.NoError(t, err)

	_, err = env.ingester.Ingest(context.Background(), sig)
	assert.ErrorIs(t, err, task.ErrDuplicateSignal)

	tasks, err := env.store.List(context.Background(), task.StatusNeedsAction)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	events, err := audit.ReadEvents(env.layout.AuditLog())
	require.NoError(t, err)
	assert.Equal(t, audit.ActionSignalDuplicate, events[len(events)-1].Action)
}

func TestIngester_SameSecondDoesNotCollide(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.ingester.Ingest(ctx, Signal{Source: task.SourceWhatsApp, Text: "one"})
	require.NoError(t, err)
	b, err := env.ingester.Ingest(ctx, Signal{Source: task.SourceWhatsApp, Text: "two"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, strings.HasPrefix(b.ID, a.ID+"_"))
}

func TestIngester_EmptySignal(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ingester.Ingest(context.Background(), Signal{Source: task.SourceWhatsApp, Text: "  "})
	assert.Error(t, err)
}

func TestIngester_PresetPriority(t *testing.T) {
	env := newTestEnv(t)
	got, err := env.ingester.Ingest(context.Background(), Signal{
		Source:   task.SourceCLI,
		Text:     "call the plumber",
		Priority: task.PriorityCritical,
	})
	require.NoError(t, err)
	assert.Equal(t, task.PriorityCritical, got.Priority)
	assert.True(t, got.RequiresApproval)
	assert.Equal(t, "CLI_none_20261016_101500", got.ID)
}
