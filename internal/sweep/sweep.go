// Package sweep drives the engine's periodic pass on a cron cadence,
// optionally gated behind a leader lease so only one replica sweeps.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/propflow/upkeep/internal/engine"
)

// Sweeper is the slice of the engine the runner needs.
type Sweeper interface {
	SweepOnce(ctx context.Context) (engine.SweepReport, error)
}

// Leader gates sweep passes in multi-replica deployments. A nil Leader
// means every pass runs.
type Leader interface {
	AcquireOrRenew(ctx context.Context) bool
}

// Runner fires the sweep on a standard cron schedule. It runs one pass
// immediately on start so a fresh deployment does not wait a full period
// before generating anything.
type Runner struct {
	sweeper  Sweeper
	schedule cron.Schedule
	leader   Leader
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

func WithLeader(l Leader) Option {
	return func(r *Runner) { r.leader = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner parses expr as a standard five-field cron expression
// (descriptors like "@hourly" also work) and returns a runner on that
// cadence.
func NewRunner(sweeper Sweeper, expr string, opts ...Option) (*Runner, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", expr, err)
	}
	r := &Runner{
		sweeper:  sweeper,
		schedule: schedule,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run blocks until ctx is cancelled, firing a pass at each schedule
// boundary.
func (r *Runner) Run(ctx context.Context) {
	r.tick(ctx)

	for {
		now := r.now()
		next := r.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("sweep runner stopped")
			return
		case <-timer.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if r.leader != nil && !r.leader.AcquireOrRenew(ctx) {
		r.logger.Debug("skipping sweep pass, not leader")
		return
	}
	if _, err := r.sweeper.SweepOnce(ctx); err != nil {
		r.logger.Error("sweep pass failed", slog.String("error", err.Error()))
	}
}
