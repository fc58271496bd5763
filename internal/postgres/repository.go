// Package postgres implements the engine's store contracts on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propflow/upkeep/internal/domain"
)

// Store implements store.SubscriptionStore and store.InstanceStore against
// a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgxpool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

const subscriptionColumns = `
	id, property_id, client_id, provider_id, service_type, title, description,
	frequency, start_date, end_date, next_scheduled_date, status,
	total_instances, completed_instances, cancelled_instances,
	base_price, seasonal_adj, urgency_adj, complexity_adj,
	remind_client_hours, remind_provider_hours, remind_follow_up_hours,
	preferred_slots, notes, cancel_reason, created_at, updated_at`

func (s *Store) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`,
		sub.ID, sub.PropertyID, sub.ClientID, sub.ProviderID, sub.ServiceType,
		sub.Title, sub.Description,
		string(sub.Frequency), sub.StartDate, sub.EndDate, sub.NextScheduledDate,
		string(sub.Status),
		sub.TotalInstances, sub.CompletedInstances, sub.CancelledInstances,
		sub.BasePrice, sub.Adjustments.Seasonal, sub.Adjustments.Urgency,
		sub.Adjustments.Complexity,
		sub.Reminders.ClientHoursBefore, sub.Reminders.ProviderHoursBefore,
		sub.Reminders.FollowUpHoursAfter,
		sub.PreferredSlots, sub.Notes, sub.CancelReason,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create subscription %s: %w", sub.ID, err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1
	`, id)
	return scanSubscription(row, id)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *domain.Subscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			property_id = $2, client_id = $3, provider_id = $4,
			service_type = $5, title = $6, description = $7,
			frequency = $8, start_date = $9, end_date = $10,
			next_scheduled_date = $11, status = $12,
			total_instances = $13, completed_instances = $14,
			cancelled_instances = $15, base_price = $16,
			seasonal_adj = $17, urgency_adj = $18, complexity_adj = $19,
			remind_client_hours = $20, remind_provider_hours = $21,
			remind_follow_up_hours = $22, preferred_slots = $23,
			notes = $24, cancel_reason = $25, updated_at = $26
		WHERE id = $1
	`,
		sub.ID, sub.PropertyID, sub.ClientID, sub.ProviderID,
		sub.ServiceType, sub.Title, sub.Description,
		string(sub.Frequency), sub.StartDate, sub.EndDate,
		sub.NextScheduledDate, string(sub.Status),
		sub.TotalInstances, sub.CompletedInstances,
		sub.CancelledInstances, sub.BasePrice,
		sub.Adjustments.Seasonal, sub.Adjustments.Urgency, sub.Adjustments.Complexity,
		sub.Reminders.ClientHoursBefore, sub.Reminders.ProviderHoursBefore,
		sub.Reminders.FollowUpHoursAfter, sub.PreferredSlots,
		sub.Notes, sub.CancelReason, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.SubscriptionNotFoundError{SubscriptionID: sub.ID}
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, status domain.SubscriptionStatus) ([]*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *Store) ListDueSubscriptions(ctx context.Context, before time.Time) ([]*domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = $1 AND next_scheduled_date <= $2
		ORDER BY next_scheduled_date ASC
	`, string(domain.SubActive), before)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

const instanceColumns = `
	id, subscription_id, scheduled_date, actual_date, status,
	estimated_minutes, actual_minutes, price, completion,
	rating_score, rating_comment, notes, created_at, updated_at`

func (s *Store) CreateInstance(ctx context.Context, inst *domain.Instance) error {
	completion, err := marshalCompletion(inst.Completion)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO service_instances (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		inst.ID, inst.SubscriptionID, inst.ScheduledDate, inst.ActualDate,
		string(inst.Status),
		int(inst.EstimatedDuration/time.Minute), int(inst.ActualDuration/time.Minute),
		inst.Price, completion,
		inst.RatingScore, inst.RatingComment, inst.Notes,
		inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create instance %s: %w", inst.ID, err)
	}
	return nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+` FROM service_instances WHERE id = $1
	`, id)
	return scanInstance(row, id)
}

func (s *Store) UpdateInstance(ctx context.Context, inst *domain.Instance) error {
	completion, err := marshalCompletion(inst.Completion)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE service_instances SET
			actual_date = $2, status = $3, actual_minutes = $4,
			completion = $5, rating_score = $6, rating_comment = $7,
			notes = $8, updated_at = $9
		WHERE id = $1
	`,
		inst.ID, inst.ActualDate, string(inst.Status),
		int(inst.ActualDuration/time.Minute),
		completion, inst.RatingScore, inst.RatingComment,
		inst.Notes, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update instance %s: %w", inst.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.InstanceNotFoundError{InstanceID: inst.ID}
	}
	return nil
}

func (s *Store) ListInstances(ctx context.Context, subscriptionID string) ([]*domain.Instance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+instanceColumns+`
		FROM service_instances
		WHERE subscription_id = $1
		ORDER BY scheduled_date ASC
	`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list instances for %s: %w", subscriptionID, err)
	}
	defer rows.Close()
	return collectInstances(rows)
}

func (s *Store) HasPendingInstance(ctx context.Context, subscriptionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM service_instances
			WHERE subscription_id = $1
			  AND status IN ('SCHEDULED', 'CONFIRMED', 'IN_PROGRESS')
		)
	`, subscriptionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pending check for %s: %w", subscriptionID, err)
	}
	return exists, nil
}

func (s *Store) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Instance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+instanceColumns+`
		FROM service_instances
		WHERE status IN ('SCHEDULED', 'CONFIRMED', 'IN_PROGRESS')
		  AND scheduled_date < $1
		ORDER BY scheduled_date ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list pending before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return collectInstances(rows)
}

func (s *Store) CountInstances(ctx context.Context) (total, completed int, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'COMPLETED')
		FROM service_instances
	`).Scan(&total, &completed)
	if err != nil {
		return 0, 0, fmt.Errorf("count instances: %w", err)
	}
	return total, completed, nil
}

// ── row scanning ─────────────────────────────────────────────────────────────

type scannable interface {
	Scan(...any) error
}

func scanSubscription(row scannable, id string) (*domain.Subscription, error) {
	var sub domain.Subscription
	var frequency, status string
	err := row.Scan(
		&sub.ID, &sub.PropertyID, &sub.ClientID, &sub.ProviderID,
		&sub.ServiceType, &sub.Title, &sub.Description,
		&frequency, &sub.StartDate, &sub.EndDate, &sub.NextScheduledDate,
		&status,
		&sub.TotalInstances, &sub.CompletedInstances, &sub.CancelledInstances,
		&sub.BasePrice, &sub.Adjustments.Seasonal, &sub.Adjustments.Urgency,
		&sub.Adjustments.Complexity,
		&sub.Reminders.ClientHoursBefore, &sub.Reminders.ProviderHoursBefore,
		&sub.Reminders.FollowUpHoursAfter,
		&sub.PreferredSlots, &sub.Notes, &sub.CancelReason,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.SubscriptionNotFoundError{SubscriptionID: id}
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Frequency = domain.Frequency(frequency)
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}

func scanInstance(row scannable, id string) (*domain.Instance, error) {
	var inst domain.Instance
	var status string
	var estimatedMin, actualMin int
	var completion []byte
	err := row.Scan(
		&inst.ID, &inst.SubscriptionID, &inst.ScheduledDate, &inst.ActualDate,
		&status, &estimatedMin, &actualMin, &inst.Price, &completion,
		&inst.RatingScore, &inst.RatingComment, &inst.Notes,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.InstanceNotFoundError{InstanceID: id}
		}
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	inst.Status = domain.InstanceStatus(status)
	inst.EstimatedDuration = time.Duration(estimatedMin) * time.Minute
	inst.ActualDuration = time.Duration(actualMin) * time.Minute
	if len(completion) > 0 {
		var report domain.CompletionReport
		if err := json.Unmarshal(completion, &report); err != nil {
			return nil, fmt.Errorf("unmarshal completion for %s: %w", inst.ID, err)
		}
		inst.Completion = &report
	}
	return &inst, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*domain.Subscription, error) {
	var out []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func collectInstances(rows pgx.Rows) ([]*domain.Instance, error) {
	var out []*domain.Instance
	for rows.Next() {
		inst, err := scanInstance(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func marshalCompletion(report *domain.CompletionReport) ([]byte, error) {
	if report == nil {
		return nil, nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal completion report: %w", err)
	}
	return data, nil
}
