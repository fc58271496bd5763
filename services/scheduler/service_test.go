package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/engine"
	"github.com/propflow/upkeep/internal/kafka"
	"github.com/propflow/upkeep/internal/notify"
	"github.com/propflow/upkeep/internal/store"
	"github.com/propflow/upkeep/internal/sweep"
)

func newService(t *testing.T) (*Service, *engine.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory()
	eng := engine.New(mem, mem, notify.Nop{}, engine.WithLogger(logger))
	return &Service{engine: eng, logger: logger}, eng
}

func createWithOpenInstance(t *testing.T, eng *engine.Engine) *domain.Instance {
	t.Helper()
	ctx := context.Background()
	sub, err := eng.CreateSubscription(ctx, engine.CreateSpec{
		PropertyID:  "prop-1",
		ClientID:    "client-1",
		ServiceType: "cleaning",
		Frequency:   domain.FreqWeekly,
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		BasePrice:   35000,
	})
	require.NoError(t, err)

	insts, err := eng.ListInstances(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, insts, 1)
	return insts[0]
}

func reportMessage(t *testing.T, rep completionReport) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(rep)
	require.NoError(t, err)
	return kafka.Message{Topic: "upkeep.reports", Value: payload}
}

type brokenConsumer struct {
	err error
}

func (c *brokenConsumer) Subscribe(context.Context, kafka.HandlerFunc) error { return c.err }
func (c *brokenConsumer) Close() error                                       { return nil }

func TestRunStopsWhenConsumerDies(t *testing.T) {
	svc, _ := newService(t)
	runner, err := sweep.NewRunner(svc.engine, "@hourly", sweep.WithLogger(svc.logger))
	require.NoError(t, err)
	svc.runner = runner
	svc.reports = &brokenConsumer{err: errors.New("broker unreachable")}

	done := make(chan error, 1)
	go func() {
		done <- svc.Run(context.Background())
	}()

	// Without any outside cancellation the dead consumer must bring Run
	// down, sweep runner included.
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker unreachable")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after consumer failure")
	}
}

func TestHandleReportCompletesInstance(t *testing.T) {
	svc, eng := newService(t)
	inst := createWithOpenInstance(t, eng)
	ctx := context.Background()

	actual := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	msg := reportMessage(t, completionReport{
		InstanceID:      inst.ID,
		WorkDescription: "deep cleaned kitchen",
		Materials:       []string{"degreaser"},
		ActualMinutes:   95,
		ActualDate:      &actual,
	})
	require.NoError(t, svc.handleReport(ctx, msg))

	got, err := eng.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstCompleted, got.Status)
	require.NotNil(t, got.Completion)
	assert.Equal(t, "deep cleaned kitchen", got.Completion.WorkDescription)
	assert.Equal(t, 95*time.Minute, got.ActualDuration)
	require.NotNil(t, got.ActualDate)
	assert.True(t, got.ActualDate.Equal(actual))

	// Event-driven generation followed the completion.
	insts, err := eng.ListInstances(ctx, inst.SubscriptionID)
	require.NoError(t, err)
	assert.Len(t, insts, 2)
}

func TestHandleReportCommitsPoisonPayloads(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// Malformed JSON and missing instance ids are committed, not retried.
	assert.NoError(t, svc.handleReport(ctx, kafka.Message{Value: []byte("{not json")}))
	assert.NoError(t, svc.handleReport(ctx, reportMessage(t, completionReport{WorkDescription: "no id"})))
}

func TestHandleReportCommitsRejectedReports(t *testing.T) {
	svc, eng := newService(t)
	inst := createWithOpenInstance(t, eng)
	ctx := context.Background()

	// Unknown instance: committed.
	assert.NoError(t, svc.handleReport(ctx, reportMessage(t, completionReport{InstanceID: "nope"})))

	// Duplicate report for an already-completed instance: committed.
	msg := reportMessage(t, completionReport{InstanceID: inst.ID, WorkDescription: "done"})
	require.NoError(t, svc.handleReport(ctx, msg))
	assert.NoError(t, svc.handleReport(ctx, msg))

	got, err := eng.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstCompleted, got.Status)
}
