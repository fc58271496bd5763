package domain

import "fmt"

// SubscriptionNotFoundError is returned when a subscription ID does not exist.
type SubscriptionNotFoundError struct {
	SubscriptionID string
}

func (e *SubscriptionNotFoundError) Error() string {
	return fmt.Sprintf("subscription not found: %s", e.SubscriptionID)
}

// InstanceNotFoundError is returned when an instance ID does not exist.
type InstanceNotFoundError struct {
	InstanceID string
}

func (e *InstanceNotFoundError) Error() string {
	return fmt.Sprintf("service instance not found: %s", e.InstanceID)
}

// InvalidStateError is returned when an operation is requested against a
// subscription or instance whose current lifecycle state does not permit it.
type InvalidStateError struct {
	Op     string
	Status string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: current status is %s", e.Op, e.Status)
}

// ValidationError is returned for malformed input, before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
