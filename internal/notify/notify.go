// Package notify publishes lifecycle events for scheduled services so the
// reminder pipeline can fan out client and provider notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/kafka"
	"github.com/propflow/upkeep/pkg/retry"
	"github.com/propflow/upkeep/pkg/telemetry"
)

// EventType identifies the lifecycle transition an event describes.
type EventType string

const (
	EventScheduled EventType = "service.scheduled"
	EventCompleted EventType = "service.completed"
)

// Event is the payload published for a service instance transition. It
// carries enough context for downstream reminder workers to schedule
// notifications without a lookup.
type Event struct {
	Type           EventType               `json:"type"`
	SubscriptionID string                  `json:"subscription_id"`
	InstanceID     string                  `json:"instance_id"`
	PropertyID     string                  `json:"property_id"`
	ClientID       string                  `json:"client_id"`
	ProviderID     string                  `json:"provider_id"`
	ServiceType    string                  `json:"service_type"`
	ScheduledDate  time.Time               `json:"scheduled_date"`
	ActualDate     *time.Time              `json:"actual_date,omitempty"`
	Price          int64                   `json:"price"`
	Reminders      domain.ReminderSettings `json:"reminders"`
	EmittedAt      time.Time               `json:"emitted_at"`
}

// Dispatcher delivers lifecycle events to interested consumers.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// Nop discards all events. Useful in tests and when no broker is configured.
type Nop struct{}

func (Nop) Dispatch(context.Context, Event) error { return nil }

// KafkaDispatcher publishes events to a Kafka topic, keyed by subscription
// so events for one subscription stay ordered.
type KafkaDispatcher struct {
	producer kafka.Producer
	topic    string
	logger   *slog.Logger
	retry    retry.Config
}

func NewKafkaDispatcher(producer kafka.Producer, topic string, logger *slog.Logger) *KafkaDispatcher {
	d := &KafkaDispatcher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
	d.retry = retry.Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		OnRetry: func(attempt int, err error) {
			logger.Warn("event publish retry",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		},
	}
	return d
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = retry.Do(ctx, d.retry, func() error {
		return d.producer.Publish(ctx, d.topic, ev.SubscriptionID, payload)
	})
	if err != nil {
		telemetry.NotifyFailures.Inc()
		return fmt.Errorf("dispatch %s for instance %s: %w", ev.Type, ev.InstanceID, err)
	}

	telemetry.NotifyPublished.WithLabelValues(string(ev.Type)).Inc()
	d.logger.Debug("event published",
		slog.String("type", string(ev.Type)),
		slog.String("subscription_id", ev.SubscriptionID),
		slog.String("instance_id", ev.InstanceID))
	return nil
}
