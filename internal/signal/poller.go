package signal

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

// DefaultPollInterval is used when a poller is given no interval.
const DefaultPollInterval = 60 * time.Second

// PollStats counts what one poll did.
type PollStats struct {
	Seen       int
	Created    int
	Duplicates int
	Errors     int
}

// Poller feeds one source into an ingester on a fixed interval.
type Poller struct {
	source   Source
	ingester *Ingester
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a poller.
func NewPoller(source Source, ingester *Ingester, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{source: source, ingester: ingester, interval: interval, logger: zap.NewNop()}
}

// WithLogger sets the diagnostic logger.
func (p *Poller) WithLogger(l *zap.Logger) *Poller {
	if l != nil {
		p.logger = l.Named("poller").With(zap.String("source", p.source.Name()))
	}
	return p
}

// PollOnce ingests everything the source has now. A signal that was already
// ingested is acknowledged again so the source can let go of it; a signal
// that failed is left for the next poll.
func (p *Poller) PollOnce(ctx context.Context) (PollStats, error) {
	var stats PollStats
	sigs, err := p.source.Poll(ctx)
	if err != nil {
		return stats, err
	}
	acker, _ := p.source.(Acker)

	for _, sig := range sigs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Seen++
		if sig.Source == "" {
			sig.Source = p.source.Name()
		}
		_, err := p.ingester.Ingest(ctx, sig)
		switch {
		case err == nil:
			stats.Created++
		case errors.Is(err, task.ErrDuplicateSignal):
			stats.Duplicates++
		default:
			stats.Errors++
			p.logger.Warn("failed to ingest signal", zap.String("signal", sig.ID), zap.Error(err))
			continue
		}
		if acker != nil {
			if err := acker.Ack(ctx, sig); err != nil {
				p.logger.Warn("failed to acknowledge signal", zap.String("signal", sig.ID), zap.Error(err))
			}
		}
	}
	return stats, nil
}

// Run polls immediately, then on every interval or source wake-up, until ctx
// is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	var wake <-chan struct{}
	if w, ok := p.source.(Waker); ok {
		wake = w.Wake()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		stats, err := p.PollOnce(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("poll failed", zap.Error(err))
		} else if stats.Seen > 0 {
			p.logger.Info("poll finished",
				zap.Int("created", stats.Created),
				zap.Int("duplicates", stats.Duplicates),
				zap.Int("errors", stats.Errors))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}
