//go:build integration

package postgres_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/postgres"
	"github.com/propflow/upkeep/internal/postgres/migrations"
)

var testDSN string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	ctr, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("upkeep"),
		tcPostgres.WithUsername("upkeep"),
		tcPostgres.WithPassword("upkeep"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	defer ctr.Terminate(ctx) //nolint:errcheck

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("postgres connection string: %v", err)
	}
	testDSN = dsn

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	for _, f := range migrations.Files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			log.Fatalf("read migration %s: %v", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			log.Fatalf("apply migration %s: %v", f, err)
		}
	}
	pool.Close()

	return m.Run()
}

// newStore connects to the test container and truncates tables on cleanup.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE service_instances, subscriptions CASCADE") //nolint:errcheck
		pool.Close()
	})
	return postgres.NewStore(pool)
}

func makeSubscription() *domain.Subscription {
	now := time.Now().UTC().Truncate(time.Microsecond)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Subscription{
		ID:                uuid.New().String(),
		PropertyID:        "prop-1",
		ClientID:          "client-1",
		ProviderID:        "provider-1",
		ServiceType:       "cleaning",
		Title:             "Weekly clean",
		Frequency:         domain.FreqWeekly,
		StartDate:         start,
		NextScheduledDate: start,
		Status:            domain.SubActive,
		BasePrice:         35000,
		PreferredSlots:    []string{"morning"},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestStore_SubscriptionRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sub := makeSubscription()
	require.NoError(t, s.CreateSubscription(ctx, sub))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Title, got.Title)
	assert.Equal(t, domain.FreqWeekly, got.Frequency)
	assert.Equal(t, domain.SubActive, got.Status)
	assert.Equal(t, int64(35000), got.BasePrice)
	assert.Equal(t, []string{"morning"}, got.PreferredSlots)
	assert.True(t, got.NextScheduledDate.Equal(sub.NextScheduledDate))
}

func TestStore_GetSubscription_NotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.GetSubscription(context.Background(), "missing")
	var notFound *domain.SubscriptionNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestStore_ListDueSubscriptions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	due := makeSubscription()
	require.NoError(t, s.CreateSubscription(ctx, due))

	future := makeSubscription()
	future.NextScheduledDate = time.Now().UTC().AddDate(0, 1, 0)
	require.NoError(t, s.CreateSubscription(ctx, future))

	paused := makeSubscription()
	paused.Status = domain.SubPaused
	require.NoError(t, s.CreateSubscription(ctx, paused))

	got, err := s.ListDueSubscriptions(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}

func TestStore_InstanceLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sub := makeSubscription()
	require.NoError(t, s.CreateSubscription(ctx, sub))

	now := time.Now().UTC().Truncate(time.Microsecond)
	inst := &domain.Instance{
		ID:                uuid.New().String(),
		SubscriptionID:    sub.ID,
		ScheduledDate:     sub.NextScheduledDate,
		Status:            domain.InstScheduled,
		EstimatedDuration: 2 * time.Hour,
		Price:             35000,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, s.CreateInstance(ctx, inst))

	pending, err := s.HasPendingInstance(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	actual := now
	inst.Status = domain.InstCompleted
	inst.ActualDate = &actual
	inst.ActualDuration = 90 * time.Minute
	inst.Completion = &domain.CompletionReport{
		WorkDescription: "full clean",
		Materials:       []string{"detergent"},
	}
	inst.UpdatedAt = now
	require.NoError(t, s.UpdateInstance(ctx, inst))

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstCompleted, got.Status)
	assert.Equal(t, 90*time.Minute, got.ActualDuration)
	require.NotNil(t, got.Completion)
	assert.Equal(t, "full clean", got.Completion.WorkDescription)

	pending, err = s.HasPendingInstance(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, pending)

	total, completed, err := s.CountInstances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, completed)
}
