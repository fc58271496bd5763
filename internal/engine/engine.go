// Package engine implements the recurring service scheduler: it turns
// subscriptions (standing recurrence rules) into concrete, priced service
// instances, tracks both through their lifecycles, and exposes the sweep
// pass that pre-generates upcoming work inside a lookahead window.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/notify"
	"github.com/propflow/upkeep/internal/store"
)

const (
	defaultLookahead   = 72 * time.Hour
	defaultMissedGrace = 24 * time.Hour
)

// Engine is the scheduling core. All state lives in the injected stores;
// the engine itself only holds per-subscription locks, so independent
// instances can be constructed freely in tests.
type Engine struct {
	subs     store.SubscriptionStore
	insts    store.InstanceStore
	notifier notify.Dispatcher
	logger   *slog.Logger

	now         func() time.Time
	lookahead   time.Duration
	missedGrace time.Duration

	// Per-subscription locks serialize generation, completion and the
	// sweep for one subscription while leaving others fully parallel.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLookahead sets how far ahead of their due date the sweep
// pre-generates instances.
func WithLookahead(d time.Duration) Option {
	return func(e *Engine) { e.lookahead = d }
}

// WithMissedGrace sets how long past its scheduled date an instance may
// stay Scheduled/Confirmed before the sweep marks it Missed.
func WithMissedGrace(d time.Duration) Option {
	return func(e *Engine) { e.missedGrace = d }
}

func New(subs store.SubscriptionStore, insts store.InstanceStore, notifier notify.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		subs:        subs,
		insts:       insts,
		notifier:    notifier,
		logger:      slog.Default(),
		now:         time.Now,
		lookahead:   defaultLookahead,
		missedGrace: defaultMissedGrace,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lockSubscription acquires the per-subscription lock and returns its
// release func. Locks are created on demand and kept for the engine's
// lifetime; the map is bounded by the number of subscriptions seen.
func (e *Engine) lockSubscription(id string) func() {
	e.mu.Lock()
	m, ok := e.locks[id]
	if !ok {
		m = &sync.Mutex{}
		e.locks[id] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// publish delivers events collected during a locked section. Dispatch
// failures are logged, never propagated: by the time an event exists the
// state transition it describes has already been committed.
func (e *Engine) publish(ctx context.Context, events []notify.Event) {
	for _, ev := range events {
		if err := e.notifier.Dispatch(ctx, ev); err != nil {
			e.logger.Error("notification dispatch failed",
				slog.String("type", string(ev.Type)),
				slog.String("subscription_id", ev.SubscriptionID),
				slog.String("instance_id", ev.InstanceID),
				slog.String("error", err.Error()))
		}
	}
}

func scheduledEvent(sub *domain.Subscription, inst *domain.Instance, now time.Time) notify.Event {
	return notify.Event{
		Type:           notify.EventScheduled,
		SubscriptionID: sub.ID,
		InstanceID:     inst.ID,
		PropertyID:     sub.PropertyID,
		ClientID:       sub.ClientID,
		ProviderID:     sub.ProviderID,
		ServiceType:    sub.ServiceType,
		ScheduledDate:  inst.ScheduledDate,
		Price:          inst.Price,
		Reminders:      sub.Reminders,
		EmittedAt:      now,
	}
}

func completedEvent(sub *domain.Subscription, inst *domain.Instance, now time.Time) notify.Event {
	return notify.Event{
		Type:           notify.EventCompleted,
		SubscriptionID: sub.ID,
		InstanceID:     inst.ID,
		PropertyID:     sub.PropertyID,
		ClientID:       sub.ClientID,
		ProviderID:     sub.ProviderID,
		ServiceType:    sub.ServiceType,
		ScheduledDate:  inst.ScheduledDate,
		ActualDate:     inst.ActualDate,
		Price:          inst.Price,
		Reminders:      sub.Reminders,
		EmittedAt:      now,
	}
}

// ─── Read-side queries ───────────────────────────────────────────────────────

func (e *Engine) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	return e.subs.GetSubscription(ctx, id)
}

func (e *Engine) ListSubscriptions(ctx context.Context, status domain.SubscriptionStatus) ([]*domain.Subscription, error) {
	return e.subs.ListSubscriptions(ctx, status)
}

func (e *Engine) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	return e.insts.GetInstance(ctx, id)
}

func (e *Engine) ListInstances(ctx context.Context, subscriptionID string) ([]*domain.Instance, error) {
	return e.insts.ListInstances(ctx, subscriptionID)
}
