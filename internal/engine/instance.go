package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/notify"
	"github.com/propflow/upkeep/pkg/telemetry"
)

// loadInstanceLocked resolves the instance's owning subscription, takes
// that subscription's lock, and re-reads the instance under it. The
// returned unlock func must be called once the mutation is committed.
func (e *Engine) loadInstanceLocked(ctx context.Context, instanceID string) (*domain.Instance, func(), error) {
	inst, err := e.insts.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	unlock := e.lockSubscription(inst.SubscriptionID)
	inst, err = e.insts.GetInstance(ctx, instanceID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return inst, unlock, nil
}

// ConfirmInstance moves a Scheduled instance to Confirmed.
func (e *Engine) ConfirmInstance(ctx context.Context, instanceID string) error {
	inst, unlock, err := e.loadInstanceLocked(ctx, instanceID)
	if err != nil {
		return err
	}
	defer unlock()

	if inst.Status != domain.InstScheduled {
		return &domain.InvalidStateError{Op: "confirm instance", Status: string(inst.Status)}
	}
	inst.Status = domain.InstConfirmed
	inst.UpdatedAt = e.now()
	if err := e.insts.UpdateInstance(ctx, inst); err != nil {
		return fmt.Errorf("confirm instance: %w", err)
	}
	return nil
}

// StartInstance moves a Scheduled or Confirmed instance to InProgress.
// InProgress instances are never auto-missed by the sweep.
func (e *Engine) StartInstance(ctx context.Context, instanceID string) error {
	inst, unlock, err := e.loadInstanceLocked(ctx, instanceID)
	if err != nil {
		return err
	}
	defer unlock()

	if inst.Status != domain.InstScheduled && inst.Status != domain.InstConfirmed {
		return &domain.InvalidStateError{Op: "start instance", Status: string(inst.Status)}
	}
	inst.Status = domain.InstInProgress
	inst.UpdatedAt = e.now()
	if err := e.insts.UpdateInstance(ctx, inst); err != nil {
		return fmt.Errorf("start instance: %w", err)
	}
	return nil
}

// CompleteInstance records the completion payload on a non-terminal
// instance, bumps the subscription's completed counter, and immediately
// generates the next instance so the schedule keeps rolling without
// waiting for the sweep.
func (e *Engine) CompleteInstance(ctx context.Context, instanceID string, report domain.CompletionReport) error {
	inst, unlock, err := e.loadInstanceLocked(ctx, instanceID)
	if err != nil {
		return err
	}

	if inst.Status.IsTerminal() {
		unlock()
		return &domain.InvalidStateError{Op: "complete instance", Status: string(inst.Status)}
	}

	now := e.now()
	if report.ActualDate.IsZero() {
		report.ActualDate = now
	}
	actual := report.ActualDate
	inst.Status = domain.InstCompleted
	inst.ActualDate = &actual
	inst.ActualDuration = report.ActualDuration
	inst.Completion = &report
	inst.UpdatedAt = now
	if err := e.insts.UpdateInstance(ctx, inst); err != nil {
		unlock()
		return fmt.Errorf("complete instance: %w", err)
	}
	telemetry.EngineInstancesFinished.WithLabelValues(string(domain.InstCompleted)).Inc()

	sub, err := e.subs.GetSubscription(ctx, inst.SubscriptionID)
	if err != nil {
		unlock()
		return fmt.Errorf("complete instance: %w", err)
	}
	sub.CompletedInstances++
	sub.UpdatedAt = now
	if err := e.subs.UpdateSubscription(ctx, sub); err != nil {
		unlock()
		return fmt.Errorf("complete instance: %w", err)
	}

	events := []notify.Event{completedEvent(sub, inst, now)}

	// Event-driven generation: the next instance follows the completion
	// directly, independent of the sweep cadence.
	if sub.Status == domain.SubActive {
		_, genEvents, genErr := e.generateLocked(ctx, sub)
		if genErr != nil {
			e.logger.Error("follow-up generation failed",
				slog.String("subscription_id", sub.ID),
				slog.String("error", genErr.Error()))
		}
		events = append(events, genEvents...)
	}
	unlock()

	e.publish(ctx, events)
	e.logger.Info("instance completed",
		slog.String("subscription_id", sub.ID),
		slog.String("instance_id", inst.ID))
	return nil
}

// CancelInstance cancels a single non-terminal instance. Unlike
// completion this does not trigger replacement generation; the sweep will
// produce the next instance at its natural calendar date.
func (e *Engine) CancelInstance(ctx context.Context, instanceID, reason string) error {
	inst, unlock, err := e.loadInstanceLocked(ctx, instanceID)
	if err != nil {
		return err
	}
	defer unlock()

	if inst.Status.IsTerminal() {
		return &domain.InvalidStateError{Op: "cancel instance", Status: string(inst.Status)}
	}

	now := e.now()
	inst.Status = domain.InstCancelled
	if reason != "" {
		inst.Notes = reason
	}
	inst.UpdatedAt = now
	if err := e.insts.UpdateInstance(ctx, inst); err != nil {
		return fmt.Errorf("cancel instance: %w", err)
	}
	telemetry.EngineInstancesFinished.WithLabelValues(string(domain.InstCancelled)).Inc()

	sub, err := e.subs.GetSubscription(ctx, inst.SubscriptionID)
	if err != nil {
		return fmt.Errorf("cancel instance: %w", err)
	}
	sub.CancelledInstances++
	sub.UpdatedAt = now
	if err := e.subs.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("cancel instance: %w", err)
	}

	e.logger.Info("instance cancelled",
		slog.String("subscription_id", sub.ID),
		slog.String("instance_id", inst.ID),
		slog.String("reason", reason))
	return nil
}
