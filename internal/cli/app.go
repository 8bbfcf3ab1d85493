package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/osqazi/AI-Employee-FTE/internal/approval"
	"github.com/osqazi/AI-Employee-FTE/internal/audit"
	"github.com/osqazi/AI-Employee-FTE/internal/config"
	"github.com/osqazi/AI-Employee-FTE/internal/executor"
	"github.com/osqazi/AI-Employee-FTE/internal/plan"
	"github.com/osqazi/AI-Employee-FTE/internal/signal"
	"github.com/osqazi/AI-Employee-FTE/internal/supervisor"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

// app is the set of components one command works with.
type app struct {
	cfg     *config.Config
	layout  vault.Layout
	logger  *zap.Logger
	store   task.Store
	tracker *plan.Tracker
	audit   *audit.Logger
	errors  *audit.Logger
	nats    *audit.NATSSink
}

// open wires the store and audit logs for an initialized vault.
func (o *rootOptions) open() (*app, error) {
	layout := vault.New(o.cfg.Vault)
	if err := requireVault(layout); err != nil {
		return nil, err
	}

	a := &app{
		cfg:     o.cfg,
		layout:  layout,
		logger:  o.logger,
		tracker: plan.NewTracker(layout.Plans()),
	}
	a.errors = audit.NewLogger(layout.ErrorLog(), audit.WithLogger(o.logger))

	auditOpts := []audit.Option{audit.WithLogger(o.logger)}
	if url := o.cfg.NATS.URL; url != "" {
		sink, err := audit.ConnectNATS(url, o.cfg.NATS.Prefix)
		if err != nil {
			// Fan-out is optional; the JSONL log stays authoritative.
			o.logger.Warn("audit fan-out disabled", zap.String("url", url), zap.Error(err))
		} else {
			a.nats = sink
			auditOpts = append(auditOpts, audit.WithSink(sink))
		}
	}
	a.audit = audit.NewLogger(layout.AuditLog(), auditOpts...)

	store, err := a.openStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	return a, nil
}

func (a *app) openStore() (task.Store, error) {
	switch a.cfg.Store.Backend {
	case config.BackendSQLite:
		opts := []task.SQLiteOption{task.WithSQLiteSkipFunc(a.skip)}
		if a.cfg.Store.Mirror {
			opts = append(opts, task.WithMirror(a.layout))
		}
		return task.OpenSQLite(a.cfg.Store.Path, opts...)
	default:
		return task.NewFolderStore(a.layout, task.WithSkipFunc(a.skip))
	}
}

// skip reports a malformed record. The record itself is left in place.
func (a *app) skip(ref string, err error) {
	a.logger.Warn("skipping record", zap.String("record", ref), zap.Error(err))
	_ = a.errors.Log(audit.ActionRecordSkipped, "store", audit.StatusSkipped, map[string]any{
		"record": ref,
		"error":  err.Error(),
	})
}

// Close releases the store and the NATS connection.
func (a *app) Close() error {
	if a.nats != nil {
		a.nats.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func (a *app) decider() *approval.Decider {
	return approval.NewDecider(a.store, a.audit)
}

func (a *app) ingester() (*signal.Ingester, error) {
	classifier, err := a.cfg.Classifier()
	if err != nil {
		return nil, err
	}
	return signal.NewIngester(a.store, classifier, a.cfg.Policy()).
		WithAudit(a.audit).
		WithLogger(a.logger), nil
}

// executor builds the task executor around the configured reasoning engine.
// events may be nil.
func (a *app) executor(events executor.Events) (*executor.Executor, error) {
	engine, err := a.cfg.ReasoningEngine()
	if err != nil {
		return nil, err
	}
	if err := checkEngine(engine); err != nil {
		return nil, err
	}
	action := executor.NewSkillAction(executor.NewCommandAction(engine, a.cfg.Engine.Dir, a.layout.Output()))

	e := executor.New(a.store, a.tracker).
		WithAction(action).
		WithMaxIterations(a.cfg.Executor.MaxIterations).
		WithAudit(a.audit).
		WithLogger(a.logger)
	if events != nil {
		e = e.WithEvents(events)
	}
	return e, nil
}

func (a *app) workflow(events executor.Events) (*approval.Workflow, error) {
	runner, err := a.executor(events)
	if err != nil {
		return nil, err
	}
	return approval.NewWorkflow(a.store, a.cfg.Policy(), runner).
		WithAudit(a.audit).
		WithLogger(a.logger), nil
}

// supervisor returns nil when no processes are configured.
func (a *app) supervisor() (*supervisor.Supervisor, error) {
	descs := a.cfg.Descriptors()
	if len(descs) == 0 {
		return nil, nil
	}
	s, err := supervisor.New(supervisor.NewExecSpawner(a.layout.Logs()), descs)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	return s.WithAlerter(supervisor.NewAlertEmitter(a.store, a.errors)).
		WithAudit(a.audit).
		WithLogger(a.logger).
		WithInterval(a.cfg.Supervisor.Interval).
		WithGrace(a.cfg.Supervisor.Grace), nil
}
