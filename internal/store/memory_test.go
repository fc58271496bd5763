package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newSub(id string, status domain.SubscriptionStatus, due time.Time) *domain.Subscription {
	return &domain.Subscription{
		ID:                id,
		Status:            status,
		Frequency:         domain.FreqWeekly,
		StartDate:         due,
		NextScheduledDate: due,
	}
}

func TestMemory_SubscriptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	sub := newSub("sub-1", domain.SubActive, date(2024, 1, 1))
	require.NoError(t, m.CreateSubscription(ctx, sub))

	got, err := m.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", got.ID)

	// Mutating the returned copy must not affect stored state.
	got.Status = domain.SubCancelled
	again, err := m.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubActive, again.Status)
}

func TestMemory_GetSubscription_NotFound(t *testing.T) {
	m := store.NewMemory()
	_, err := m.GetSubscription(context.Background(), "nope")
	var notFound *domain.SubscriptionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.SubscriptionID)
}

func TestMemory_UpdateSubscription_NotFound(t *testing.T) {
	m := store.NewMemory()
	err := m.UpdateSubscription(context.Background(), newSub("ghost", domain.SubActive, date(2024, 1, 1)))
	var notFound *domain.SubscriptionNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestMemory_ListDueSubscriptions(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.CreateSubscription(ctx, newSub("due", domain.SubActive, date(2024, 1, 1))))
	require.NoError(t, m.CreateSubscription(ctx, newSub("future", domain.SubActive, date(2024, 6, 1))))
	require.NoError(t, m.CreateSubscription(ctx, newSub("paused", domain.SubPaused, date(2024, 1, 1))))

	due, err := m.ListDueSubscriptions(ctx, date(2024, 1, 4))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}

func TestMemory_ListSubscriptions_StatusFilter(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.CreateSubscription(ctx, newSub("a", domain.SubActive, date(2024, 1, 1))))
	require.NoError(t, m.CreateSubscription(ctx, newSub("p", domain.SubPaused, date(2024, 1, 1))))

	all, err := m.ListSubscriptions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paused, err := m.ListSubscriptions(ctx, domain.SubPaused)
	require.NoError(t, err)
	require.Len(t, paused, 1)
	assert.Equal(t, "p", paused[0].ID)
}

func TestMemory_InstanceQueries(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	mk := func(id string, status domain.InstanceStatus, scheduled time.Time) *domain.Instance {
		return &domain.Instance{
			ID:             id,
			SubscriptionID: "sub-1",
			Status:         status,
			ScheduledDate:  scheduled,
		}
	}

	require.NoError(t, m.CreateInstance(ctx, mk("later", domain.InstScheduled, date(2024, 2, 1))))
	require.NoError(t, m.CreateInstance(ctx, mk("earlier", domain.InstCompleted, date(2024, 1, 1))))

	insts, err := m.ListInstances(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "earlier", insts[0].ID, "instances should be ordered by scheduled date")

	pending, err := m.HasPendingInstance(ctx, "sub-1")
	require.NoError(t, err)
	assert.True(t, pending)

	overdue, err := m.ListPendingBefore(ctx, date(2024, 3, 1))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "later", overdue[0].ID)

	total, completed, err := m.CountInstances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, completed)
}

func TestMemory_GetInstance_NotFound(t *testing.T) {
	m := store.NewMemory()
	_, err := m.GetInstance(context.Background(), "nope")
	var notFound *domain.InstanceNotFoundError
	require.ErrorAs(t, err, &notFound)
}
