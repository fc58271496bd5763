package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/estimate"
	"github.com/propflow/upkeep/internal/notify"
	"github.com/propflow/upkeep/internal/pricing"
	"github.com/propflow/upkeep/internal/recurrence"
	"github.com/propflow/upkeep/pkg/telemetry"
)

// GenerateNext produces the next instance for an Active subscription and
// advances its scheduling cursor. It is safe to call repeatedly: at most
// one instance results per invocation, and while a prior instance is
// still pending no new one is created. Non-Active subscriptions are a
// silent no-op; the only caller-visible error condition besides storage
// failures is an unknown id.
//
// Returns the created instance, or nil if nothing was generated.
func (e *Engine) GenerateNext(ctx context.Context, subscriptionID string) (*domain.Instance, error) {
	unlock := e.lockSubscription(subscriptionID)

	sub, err := e.subs.GetSubscription(ctx, subscriptionID)
	if err != nil {
		unlock()
		return nil, err
	}
	if sub.Status != domain.SubActive {
		unlock()
		return nil, nil
	}

	inst, events, err := e.generateLocked(ctx, sub)
	unlock()
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events)
	return inst, nil
}

// generateLocked runs steps 1-5 of the generation algorithm. The caller
// must hold the subscription's lock; events are returned for dispatch
// after the lock is released.
func (e *Engine) generateLocked(ctx context.Context, sub *domain.Subscription) (*domain.Instance, []notify.Event, error) {
	now := e.now()

	// End of the subscription's life: the cursor reached the end date.
	if sub.EndDate != nil && !sub.NextScheduledDate.Before(*sub.EndDate) {
		sub.Status = domain.SubCompleted
		sub.UpdatedAt = now
		if err := e.subs.UpdateSubscription(ctx, sub); err != nil {
			return nil, nil, fmt.Errorf("complete subscription: %w", err)
		}
		e.logger.Info("subscription completed",
			slog.String("subscription_id", sub.ID),
			slog.Time("end_date", *sub.EndDate))
		return nil, nil, nil
	}

	pending, err := e.insts.HasPendingInstance(ctx, sub.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("check pending instance: %w", err)
	}
	if pending {
		return nil, nil, nil
	}

	price, clamped := pricing.Total(sub.BasePrice, sub.Adjustments)
	if clamped {
		e.logger.Warn("computed price was negative, clamped to zero",
			slog.String("subscription_id", sub.ID),
			slog.Int64("base_price", sub.BasePrice))
	}

	inst := &domain.Instance{
		ID:                uuid.NewString(),
		SubscriptionID:    sub.ID,
		ScheduledDate:     sub.NextScheduledDate,
		Status:            domain.InstScheduled,
		EstimatedDuration: estimate.Duration(sub.ServiceType),
		Price:             price,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.insts.CreateInstance(ctx, inst); err != nil {
		return nil, nil, fmt.Errorf("create instance: %w", err)
	}

	sub.TotalInstances++
	sub.NextScheduledDate = recurrence.Next(sub.NextScheduledDate, sub.Frequency)
	sub.UpdatedAt = now
	if err := e.subs.UpdateSubscription(ctx, sub); err != nil {
		return nil, nil, fmt.Errorf("advance scheduling cursor: %w", err)
	}

	telemetry.EngineInstancesGenerated.WithLabelValues(string(sub.Frequency)).Inc()
	e.logger.Info("instance generated",
		slog.String("subscription_id", sub.ID),
		slog.String("instance_id", inst.ID),
		slog.Time("scheduled_date", inst.ScheduledDate),
		slog.Int64("price", inst.Price))

	return inst, []notify.Event{scheduledEvent(sub, inst, now)}, nil
}
