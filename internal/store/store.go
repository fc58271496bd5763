// Package store defines the persistence contracts for the scheduling engine
// and provides an in-memory implementation of them.
package store

import (
	"context"
	"time"

	"github.com/propflow/upkeep/internal/domain"
)

// SubscriptionStore owns recurring-service subscriptions.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) error
	// ListSubscriptions returns all subscriptions, optionally filtered by
	// status ("" = all), ordered by creation time.
	ListSubscriptions(ctx context.Context, status domain.SubscriptionStatus) ([]*domain.Subscription, error)
	// ListDueSubscriptions returns active subscriptions whose scheduling
	// cursor falls at or before the given horizon.
	ListDueSubscriptions(ctx context.Context, before time.Time) ([]*domain.Subscription, error)
}

// InstanceStore owns the generated service instances.
type InstanceStore interface {
	CreateInstance(ctx context.Context, inst *domain.Instance) error
	GetInstance(ctx context.Context, id string) (*domain.Instance, error)
	UpdateInstance(ctx context.Context, inst *domain.Instance) error
	// ListInstances returns a subscription's instances ordered by scheduled
	// date ascending.
	ListInstances(ctx context.Context, subscriptionID string) ([]*domain.Instance, error)
	// HasPendingInstance reports whether the subscription has an instance
	// in a non-terminal state.
	HasPendingInstance(ctx context.Context, subscriptionID string) (bool, error)
	// ListPendingBefore returns Scheduled/Confirmed/InProgress instances
	// with a scheduled date strictly before the cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Instance, error)
	// CountInstances returns total and completed instance counts across all
	// subscriptions.
	CountInstances(ctx context.Context) (total, completed int, err error)
}
