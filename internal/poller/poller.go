// Package poller drives reconciliation cycles: fetch one page of pending
// events, hand it to the engine, wait, repeat.
//
// Cycles never overlap. Run executes them on the calling goroutine and only
// starts the next one after the previous batch is fully applied.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/reconcile"
)

const (
	// DefaultBatchSize is the page size requested when none is configured.
	DefaultBatchSize = 50
	// DefaultInterval is used when the configured interval is not positive.
	DefaultInterval = 60 * time.Second
)

// Fetcher returns pending events. *upstream.Client implements it.
type Fetcher interface {
	FetchPendingEvents(ctx context.Context, limit int) ([]event.Envelope, error)
}

// Processor applies a batch. *reconcile.Engine implements it.
type Processor interface {
	ProcessBatch(ctx context.Context, envs []event.Envelope) (reconcile.BatchReport, error)
}

// Recorder observes finished cycles. *metrics.Metrics implements it.
type Recorder interface {
	ObserveCycle(d time.Duration, events int)
}

// Cycle summarizes one RunOnce.
type Cycle struct {
	ID       string
	Events   int
	Report   reconcile.BatchReport
	Duration time.Duration
}

// Poller runs cycles.
type Poller struct {
	fetcher   Fetcher
	processor Processor
	interval  time.Duration
	batchSize int
	ids       IDGenerator
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Poller.
type Option func(*Poller)

// WithBatchSize sets how many events one cycle fetches.
func WithBatchSize(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithIDGenerator replaces the UUIDv7 cycle ID source.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Poller) {
		p.ids = g
	}
}

// WithRecorder records cycle metrics.
func WithRecorder(r Recorder) Option {
	return func(p *Poller) {
		p.recorder = r
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = l
	}
}

// WithNow replaces the clock used to time cycles.
func WithNow(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// New creates a poller that runs a cycle every interval.
func New(f Fetcher, proc Processor, interval time.Duration, opts ...Option) *Poller {
	p := &Poller{
		fetcher:   f,
		processor: proc,
		interval:  interval,
		batchSize: DefaultBatchSize,
		ids:       UUIDv7Generator{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOnce fetches one page and applies it. The returned error is either the
// fetch failure or the error that aborted the batch; the Cycle is filled in
// as far as the cycle got.
func (p *Poller) RunOnce(ctx context.Context) (Cycle, error) {
	c := Cycle{ID: p.ids.Generate()}
	start := p.now()
	log := p.logger.With("cycle_id", c.ID)

	envs, err := p.fetcher.FetchPendingEvents(ctx, p.batchSize)
	if err != nil {
		c.Duration = p.now().Sub(start)
		log.Warn("fetch pending events failed",
			"class", fault.ClassOf(err),
			"error", err,
		)
		return c, fmt.Errorf("fetch events: %w", err)
	}
	c.Events = len(envs)

	if len(envs) > 0 {
		log.Info("cycle started", "events", len(envs))
	}
	c.Report, err = p.processor.ProcessBatch(ctx, envs)
	c.Duration = p.now().Sub(start)
	if p.recorder != nil {
		p.recorder.ObserveCycle(c.Duration, c.Events)
	}

	if err != nil {
		log.Error("cycle aborted",
			"class", fault.ClassOf(err),
			"processed", len(c.Report.Outcomes),
			"error", err,
		)
		return c, err
	}
	if len(envs) > 0 {
		actions := c.Report.Actions()
		log.Info("cycle finished",
			"outcomes", len(c.Report.Outcomes),
			"created", actions[reconcile.ActionCreate],
			"updated", actions[reconcile.ActionUpdate],
			"deleted", actions[reconcile.ActionDelete],
			"transient", c.Report.Count(fault.ClassTransient),
			"rejected", c.Report.Count(fault.ClassRejected),
			"malformed", c.Report.Count(fault.ClassMalformed),
			"duration", c.Duration,
		)
	}
	return c, nil
}

// Run executes a cycle immediately and then one per interval until ctx is
// cancelled. A failed cycle is logged and the next one runs on schedule; a
// ledger failure only ends the cycle it happened in. Run returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller starting",
		"interval", p.interval,
		"batch_size", p.batchSize,
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info("poller stopping: context cancelled")
			return err
		}
		// Failures are logged by RunOnce; the next tick retries.
		_, _ = p.RunOnce(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
