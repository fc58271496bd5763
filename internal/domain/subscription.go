package domain

import "time"

// Frequency is the recurrence interval of a subscription.
type Frequency string

const (
	FreqDaily     Frequency = "DAILY"
	FreqWeekly    Frequency = "WEEKLY"
	FreqBiweekly  Frequency = "BIWEEKLY"
	FreqMonthly   Frequency = "MONTHLY"
	FreqQuarterly Frequency = "QUARTERLY"
	FreqBiannual  Frequency = "BIANNUAL"
	FreqAnnual    Frequency = "ANNUAL"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqBiweekly, FreqMonthly,
		FreqQuarterly, FreqBiannual, FreqAnnual:
		return true
	}
	return false
}

// SubscriptionStatus represents the states a subscription can be in.
type SubscriptionStatus string

const (
	SubActive    SubscriptionStatus = "ACTIVE"
	SubPaused    SubscriptionStatus = "PAUSED"
	SubCancelled SubscriptionStatus = "CANCELLED"
	SubCompleted SubscriptionStatus = "COMPLETED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubCancelled || s == SubCompleted
}

// PriceAdjustments are optional additive components on top of the base
// price, in minor currency units. A zero value means no adjustment.
type PriceAdjustments struct {
	Seasonal   int64 `json:"seasonal,omitempty"`
	Urgency    int64 `json:"urgency,omitempty"`
	Complexity int64 `json:"complexity,omitempty"`
}

// ReminderSettings are hour offsets consumed by the notification
// dispatcher; the engine carries them through but never interprets them.
type ReminderSettings struct {
	ClientHoursBefore   int `json:"client_hours_before"`
	ProviderHoursBefore int `json:"provider_hours_before"`
	FollowUpHoursAfter  int `json:"follow_up_hours_after"`
}

// Subscription is a standing recurrence rule for a property service.
// NextScheduledDate is the single scheduling cursor: the date the next
// generated instance will carry.
type Subscription struct {
	ID          string `json:"id"`
	PropertyID  string `json:"property_id"`
	ClientID    string `json:"client_id"`
	ProviderID  string `json:"provider_id"`
	ServiceType string `json:"service_type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Frequency         Frequency  `json:"frequency"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	NextScheduledDate time.Time  `json:"next_scheduled_date"`

	Status SubscriptionStatus `json:"status"`

	TotalInstances     int `json:"total_instances"`
	CompletedInstances int `json:"completed_instances"`
	CancelledInstances int `json:"cancelled_instances"`

	// BasePrice is in minor currency units. Instances lock their price at
	// generation time; later changes here never touch existing instances.
	BasePrice   int64            `json:"base_price"`
	Adjustments PriceAdjustments `json:"adjustments"`

	Reminders      ReminderSettings `json:"reminders"`
	PreferredSlots []string         `json:"preferred_slots,omitempty"`
	Notes          string           `json:"notes,omitempty"`

	CancelReason string `json:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can hand out subscriptions without
// exposing shared slices or the end-date pointer.
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.EndDate != nil {
		end := *s.EndDate
		c.EndDate = &end
	}
	if s.PreferredSlots != nil {
		c.PreferredSlots = append([]string(nil), s.PreferredSlots...)
	}
	return &c
}
