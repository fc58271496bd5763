package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/pkg/telemetry"
)

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	Scanned   int
	Generated int
	Missed    int
	Errors    int
}

// SweepOnce runs a single sweep pass: it generates instances for every
// Active subscription whose cursor falls inside the lookahead window, then
// marks overdue Scheduled/Confirmed instances as Missed. Per-item failures
// are logged and counted, never propagated; the sweep is a best-effort
// batch job. Only listing failures abort the pass.
func (e *Engine) SweepOnce(ctx context.Context) (SweepReport, error) {
	timer := prometheus.NewTimer(telemetry.SweepDurationSeconds)
	defer timer.ObserveDuration()
	telemetry.SweepRunsTotal.Inc()

	var report SweepReport
	now := e.now()
	horizon := now.Add(e.lookahead)

	due, err := e.subs.ListDueSubscriptions(ctx, horizon)
	if err != nil {
		return report, fmt.Errorf("list due subscriptions: %w", err)
	}
	report.Scanned = len(due)

	for _, sub := range due {
		inst, err := e.GenerateNext(ctx, sub.ID)
		if err != nil {
			report.Errors++
			telemetry.SweepItemFailures.Inc()
			e.logger.Error("sweep generation failed",
				slog.String("subscription_id", sub.ID),
				slog.String("error", err.Error()))
			continue
		}
		if inst != nil {
			report.Generated++
		}
	}

	cutoff := now.Add(-e.missedGrace)
	overdue, err := e.insts.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("list overdue instances: %w", err)
	}
	for _, inst := range overdue {
		marked, err := e.markMissed(ctx, inst.ID)
		if err != nil {
			report.Errors++
			telemetry.SweepItemFailures.Inc()
			e.logger.Error("sweep missed marking failed",
				slog.String("instance_id", inst.ID),
				slog.String("error", err.Error()))
			continue
		}
		if marked {
			report.Missed++
		}
	}

	e.logger.Info("sweep pass finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("generated", report.Generated),
		slog.Int("missed", report.Missed),
		slog.Int("errors", report.Errors))
	return report, nil
}

// markMissed transitions one overdue instance to Missed and reports
// whether it did. Instances that moved on since listing (started,
// completed, cancelled) are left alone; work that is InProgress is never
// auto-missed.
func (e *Engine) markMissed(ctx context.Context, instanceID string) (bool, error) {
	inst, unlock, err := e.loadInstanceLocked(ctx, instanceID)
	if err != nil {
		return false, err
	}
	defer unlock()

	if inst.Status != domain.InstScheduled && inst.Status != domain.InstConfirmed {
		return false, nil
	}

	inst.Status = domain.InstMissed
	inst.Notes = "not reconciled within the grace period"
	inst.UpdatedAt = e.now()
	if err := e.insts.UpdateInstance(ctx, inst); err != nil {
		return false, fmt.Errorf("mark missed: %w", err)
	}
	telemetry.EngineInstancesFinished.WithLabelValues(string(domain.InstMissed)).Inc()

	e.logger.Warn("instance missed",
		slog.String("subscription_id", inst.SubscriptionID),
		slog.String("instance_id", inst.ID),
		slog.Time("scheduled_date", inst.ScheduledDate))
	return true, nil
}

// Stats is the read-only aggregate used by operational dashboards.
type Stats struct {
	TotalSubscriptions  int                      `json:"total_subscriptions"`
	ActiveSubscriptions int                      `json:"active_subscriptions"`
	TotalInstances      int                      `json:"total_instances"`
	CompletedInstances  int                      `json:"completed_instances"`
	CompletionRate      float64                  `json:"completion_rate"`
	Frequencies         map[domain.Frequency]int `json:"frequencies"`
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Frequencies: make(map[domain.Frequency]int)}

	subs, err := e.subs.ListSubscriptions(ctx, "")
	if err != nil {
		return stats, fmt.Errorf("list subscriptions: %w", err)
	}
	stats.TotalSubscriptions = len(subs)
	for _, sub := range subs {
		if sub.Status == domain.SubActive {
			stats.ActiveSubscriptions++
			stats.Frequencies[sub.Frequency]++
		}
	}

	total, completed, err := e.insts.CountInstances(ctx)
	if err != nil {
		return stats, fmt.Errorf("count instances: %w", err)
	}
	stats.TotalInstances = total
	stats.CompletedInstances = completed
	if total > 0 {
		stats.CompletionRate = float64(completed) / float64(total)
	}
	return stats, nil
}
