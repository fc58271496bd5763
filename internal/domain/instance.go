package domain

import "time"

// InstanceStatus represents the states a service instance can be in.
type InstanceStatus string

const (
	InstScheduled  InstanceStatus = "SCHEDULED"
	InstConfirmed  InstanceStatus = "CONFIRMED"
	InstInProgress InstanceStatus = "IN_PROGRESS"
	InstCompleted  InstanceStatus = "COMPLETED"
	InstCancelled  InstanceStatus = "CANCELLED"
	InstMissed     InstanceStatus = "MISSED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstCompleted || s == InstCancelled || s == InstMissed
}

// IsPending reports whether the instance still represents open work.
func (s InstanceStatus) IsPending() bool { return !s.IsTerminal() }

// CompletionReport is the payload recorded when an instance is completed.
type CompletionReport struct {
	WorkDescription string        `json:"work_description"`
	Materials       []string      `json:"materials,omitempty"`
	PhotoURLs       []string      `json:"photo_urls,omitempty"`
	Issues          []string      `json:"issues,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	ActualDate      time.Time     `json:"actual_date"`
	ActualDuration  time.Duration `json:"actual_duration"`
}

// Instance is one concrete, dated occurrence generated from a subscription.
// Instances are never deleted; they only transition to a terminal status and
// are retained for history and statistics.
type Instance struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`

	ScheduledDate time.Time  `json:"scheduled_date"`
	ActualDate    *time.Time `json:"actual_date,omitempty"`

	Status InstanceStatus `json:"status"`

	EstimatedDuration time.Duration `json:"estimated_duration"`
	ActualDuration    time.Duration `json:"actual_duration,omitempty"`

	// Price is locked at generation time, in minor currency units.
	Price int64 `json:"price"`

	Completion *CompletionReport `json:"completion,omitempty"`

	// Rating fields are written by an external rating workflow after
	// completion; the engine only carries them.
	RatingScore   int    `json:"rating_score,omitempty"`
	RatingComment string `json:"rating_comment,omitempty"`

	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the instance.
func (i *Instance) Clone() *Instance {
	c := *i
	if i.ActualDate != nil {
		d := *i.ActualDate
		c.ActualDate = &d
	}
	if i.Completion != nil {
		r := *i.Completion
		r.Materials = append([]string(nil), i.Completion.Materials...)
		r.PhotoURLs = append([]string(nil), i.Completion.PhotoURLs...)
		r.Issues = append([]string(nil), i.Completion.Issues...)
		c.Completion = &r
	}
	return &c
}
