package notify

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
)

type fakeProducer struct {
	published []publishedMsg
	failures  int
}

type publishedMsg struct {
	topic string
	key   string
	value []byte
}

func (f *fakeProducer) Publish(_ context.Context, topic, key string, value []byte) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, publishedMsg{topic: topic, key: key, value: value})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKafkaDispatcherPublishes(t *testing.T) {
	prod := &fakeProducer{}
	d := NewKafkaDispatcher(prod, "upkeep.notifications", discard())

	ev := Event{
		Type:           EventScheduled,
		SubscriptionID: "sub-1",
		InstanceID:     "inst-1",
		PropertyID:     "prop-1",
		ScheduledDate:  time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		Price:          35000,
		Reminders:      domain.ReminderSettings{ClientHoursBefore: 24},
		EmittedAt:      time.Now(),
	}
	require.NoError(t, d.Dispatch(context.Background(), ev))

	require.Len(t, prod.published, 1)
	assert.Equal(t, "upkeep.notifications", prod.published[0].topic)
	assert.Equal(t, "sub-1", prod.published[0].key)

	var got Event
	require.NoError(t, json.Unmarshal(prod.published[0].value, &got))
	assert.Equal(t, EventScheduled, got.Type)
	assert.Equal(t, int64(35000), got.Price)
	assert.Equal(t, 24, got.Reminders.ClientHoursBefore)
}

func TestKafkaDispatcherRetriesTransientFailures(t *testing.T) {
	prod := &fakeProducer{failures: 2}
	d := NewKafkaDispatcher(prod, "upkeep.notifications", discard())
	d.retry.BaseDelay = time.Millisecond
	d.retry.MaxDelay = time.Millisecond

	err := d.Dispatch(context.Background(), Event{Type: EventCompleted, SubscriptionID: "sub-2", InstanceID: "inst-2"})
	require.NoError(t, err)
	assert.Len(t, prod.published, 1)
}

func TestKafkaDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	prod := &fakeProducer{failures: 10}
	d := NewKafkaDispatcher(prod, "upkeep.notifications", discard())
	d.retry.BaseDelay = time.Millisecond
	d.retry.MaxDelay = time.Millisecond

	err := d.Dispatch(context.Background(), Event{Type: EventCompleted, SubscriptionID: "sub-3", InstanceID: "inst-3"})
	require.Error(t, err)
	assert.Empty(t, prod.published)
}

func TestNopDispatcher(t *testing.T) {
	assert.NoError(t, Nop{}.Dispatch(context.Background(), Event{}))
}
