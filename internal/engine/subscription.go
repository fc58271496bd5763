package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/pricing"
	"github.com/propflow/upkeep/internal/recurrence"
	"github.com/propflow/upkeep/pkg/telemetry"
)

// CreateSpec is the input for CreateSubscription. Property, client and
// provider identifiers are opaque foreign keys; their existence is the
// caller's concern.
type CreateSpec struct {
	PropertyID  string
	ClientID    string
	ProviderID  string
	ServiceType string
	Title       string
	Description string

	Frequency Frequency
	StartDate time.Time
	EndDate   *time.Time

	BasePrice   int64
	Adjustments domain.PriceAdjustments

	Reminders      domain.ReminderSettings
	PreferredSlots []string
	Notes          string
}

// Frequency aliases the domain type so callers constructing a CreateSpec
// only need this package.
type Frequency = domain.Frequency

func (s CreateSpec) validate() error {
	if s.PropertyID == "" {
		return &domain.ValidationError{Field: "property_id", Reason: "must not be empty"}
	}
	if s.ClientID == "" {
		return &domain.ValidationError{Field: "client_id", Reason: "must not be empty"}
	}
	if !s.Frequency.Valid() {
		return &domain.ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", s.Frequency)}
	}
	if s.StartDate.IsZero() {
		return &domain.ValidationError{Field: "start_date", Reason: "must be set"}
	}
	if s.EndDate != nil && !s.EndDate.After(s.StartDate) {
		return &domain.ValidationError{Field: "end_date", Reason: "must be after start_date"}
	}
	if s.BasePrice < 0 {
		return &domain.ValidationError{Field: "base_price", Reason: "must not be negative"}
	}
	if _, clamped := pricing.Total(s.BasePrice, s.Adjustments); clamped {
		return &domain.ValidationError{Field: "adjustments", Reason: "computed price is negative"}
	}
	return nil
}

// CreateSubscription validates the spec, persists a new Active
// subscription with its scheduling cursor at the start date, and eagerly
// generates the first instance. The first instance is therefore dated at
// StartDate itself, not one period after it.
func (e *Engine) CreateSubscription(ctx context.Context, spec CreateSpec) (*domain.Subscription, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	now := e.now()
	sub := &domain.Subscription{
		ID:                uuid.NewString(),
		PropertyID:        spec.PropertyID,
		ClientID:          spec.ClientID,
		ProviderID:        spec.ProviderID,
		ServiceType:       spec.ServiceType,
		Title:             spec.Title,
		Description:       spec.Description,
		Frequency:         spec.Frequency,
		StartDate:         spec.StartDate,
		EndDate:           spec.EndDate,
		NextScheduledDate: spec.StartDate,
		Status:            domain.SubActive,
		BasePrice:         spec.BasePrice,
		Adjustments:       spec.Adjustments,
		Reminders:         spec.Reminders,
		PreferredSlots:    spec.PreferredSlots,
		Notes:             spec.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.subs.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	telemetry.EngineSubscriptionsCreated.WithLabelValues(string(sub.Frequency)).Inc()

	e.logger.Info("subscription created",
		slog.String("subscription_id", sub.ID),
		slog.String("property_id", sub.PropertyID),
		slog.String("frequency", string(sub.Frequency)))

	unlock := e.lockSubscription(sub.ID)
	_, events, err := e.generateLocked(ctx, sub)
	unlock()
	if err != nil {
		// The subscription exists; the first instance will be picked up
		// by the next sweep pass.
		e.logger.Error("eager first generation failed",
			slog.String("subscription_id", sub.ID),
			slog.String("error", err.Error()))
	}
	e.publish(ctx, events)

	return sub.Clone(), nil
}

// Patch describes a partial subscription update. Nil fields are left
// untouched. Changing Frequency or StartDate re-anchors the scheduling
// cursor; already-generated instances are never altered.
type Patch struct {
	ProviderID  *string
	Title       *string
	Description *string

	Frequency *domain.Frequency
	StartDate *time.Time
	EndDate   *time.Time

	BasePrice   *int64
	Adjustments *domain.PriceAdjustments

	Reminders      *domain.ReminderSettings
	PreferredSlots []string
	Notes          *string
}

func (e *Engine) UpdateSubscription(ctx context.Context, id string, patch Patch) (*domain.Subscription, error) {
	unlock := e.lockSubscription(id)
	defer unlock()

	sub, err := e.subs.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, &domain.InvalidStateError{Op: "update subscription", Status: string(sub.Status)}
	}

	reanchor := false
	if patch.Frequency != nil && *patch.Frequency != sub.Frequency {
		if !patch.Frequency.Valid() {
			return nil, &domain.ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", *patch.Frequency)}
		}
		sub.Frequency = *patch.Frequency
		reanchor = true
	}
	if patch.StartDate != nil && !patch.StartDate.Equal(sub.StartDate) {
		if patch.StartDate.IsZero() {
			return nil, &domain.ValidationError{Field: "start_date", Reason: "must be set"}
		}
		sub.StartDate = *patch.StartDate
		reanchor = true
	}
	if patch.EndDate != nil {
		if !patch.EndDate.After(sub.StartDate) {
			return nil, &domain.ValidationError{Field: "end_date", Reason: "must be after start_date"}
		}
		end := *patch.EndDate
		sub.EndDate = &end
	}
	if patch.BasePrice != nil {
		if *patch.BasePrice < 0 {
			return nil, &domain.ValidationError{Field: "base_price", Reason: "must not be negative"}
		}
		sub.BasePrice = *patch.BasePrice
	}
	if patch.Adjustments != nil {
		sub.Adjustments = *patch.Adjustments
	}
	if _, clamped := pricing.Total(sub.BasePrice, sub.Adjustments); clamped {
		return nil, &domain.ValidationError{Field: "adjustments", Reason: "computed price is negative"}
	}
	if patch.ProviderID != nil {
		sub.ProviderID = *patch.ProviderID
	}
	if patch.Title != nil {
		sub.Title = *patch.Title
	}
	if patch.Description != nil {
		sub.Description = *patch.Description
	}
	if patch.Reminders != nil {
		sub.Reminders = *patch.Reminders
	}
	if patch.PreferredSlots != nil {
		sub.PreferredSlots = append([]string(nil), patch.PreferredSlots...)
	}
	if patch.Notes != nil {
		sub.Notes = *patch.Notes
	}

	if reanchor {
		// A subscription that has not generated anything yet keeps the
		// eager-first behavior; otherwise the cursor restarts one period
		// from now, same as resume.
		if sub.TotalInstances == 0 {
			sub.NextScheduledDate = sub.StartDate
		} else {
			sub.NextScheduledDate = recurrence.Next(e.now(), sub.Frequency)
		}
	}

	sub.UpdatedAt = e.now()
	if err := e.subs.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return sub.Clone(), nil
}

// PauseSubscription makes the subscription invisible to the sweep and to
// event-driven generation. Pausing an already-paused subscription is a
// no-op; pausing a terminal one is an error.
func (e *Engine) PauseSubscription(ctx context.Context, id string) error {
	unlock := e.lockSubscription(id)
	defer unlock()

	sub, err := e.subs.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if sub.Status == domain.SubPaused {
		return nil
	}
	if sub.Status.IsTerminal() {
		return &domain.InvalidStateError{Op: "pause subscription", Status: string(sub.Status)}
	}

	sub.Status = domain.SubPaused
	sub.UpdatedAt = e.now()
	if err := e.subs.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("pause subscription: %w", err)
	}
	e.logger.Info("subscription paused", slog.String("subscription_id", id))
	return nil
}

// ResumeSubscription reactivates a paused subscription. Missed occurrences
// are not replayed: the cursor re-anchors to one period from now.
func (e *Engine) ResumeSubscription(ctx context.Context, id string) error {
	unlock := e.lockSubscription(id)
	defer unlock()

	sub, err := e.subs.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if sub.Status != domain.SubPaused {
		return &domain.InvalidStateError{Op: "resume subscription", Status: string(sub.Status)}
	}

	sub.Status = domain.SubActive
	sub.NextScheduledDate = recurrence.Next(e.now(), sub.Frequency)
	sub.UpdatedAt = e.now()
	if err := e.subs.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("resume subscription: %w", err)
	}
	e.logger.Info("subscription resumed",
		slog.String("subscription_id", id),
		slog.Time("next_scheduled_date", sub.NextScheduledDate))
	return nil
}

// CancelSubscription terminally cancels the subscription and cascades to
// every instance of it still in a non-terminal state, recording reason as
// each instance's note.
func (e *Engine) CancelSubscription(ctx context.Context, id, reason string) error {
	unlock := e.lockSubscription(id)
	defer unlock()

	sub, err := e.subs.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if sub.Status.IsTerminal() {
		return &domain.InvalidStateError{Op: "cancel subscription", Status: string(sub.Status)}
	}

	now := e.now()
	insts, err := e.insts.ListInstances(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	cascaded := 0
	for _, inst := range insts {
		if inst.Status.IsTerminal() {
			continue
		}
		inst.Status = domain.InstCancelled
		if reason != "" {
			inst.Notes = reason
		}
		inst.UpdatedAt = now
		if err := e.insts.UpdateInstance(ctx, inst); err != nil {
			return fmt.Errorf("cancel instance %s: %w", inst.ID, err)
		}
		telemetry.EngineInstancesFinished.WithLabelValues(string(domain.InstCancelled)).Inc()
		cascaded++
	}

	sub.Status = domain.SubCancelled
	sub.CancelReason = reason
	sub.CancelledInstances += cascaded
	sub.UpdatedAt = now
	if err := e.subs.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	e.logger.Info("subscription cancelled",
		slog.String("subscription_id", id),
		slog.Int("cascaded_instances", cascaded),
		slog.String("reason", reason))
	return nil
}
