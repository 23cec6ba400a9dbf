package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusDelivered WebhookEventStatus = "delivered"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// ParseWebhookEventStatus rejects values outside the closed status set.
func ParseWebhookEventStatus(s string) (WebhookEventStatus, error) {
	switch WebhookEventStatus(s) {
	case WebhookEventStatusPending, WebhookEventStatusDelivered, WebhookEventStatusFailed:
		return WebhookEventStatus(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidEventStatus)
}

type WebhookEventType string

const (
	WebhookEventTypePaymentCreated   WebhookEventType = "payment.created"
	WebhookEventTypePaymentPending   WebhookEventType = "payment.pending"
	WebhookEventTypePaymentApproved  WebhookEventType = "payment.approved"
	WebhookEventTypePaymentCompleted WebhookEventType = "payment.completed"
	WebhookEventTypePaymentFailed    WebhookEventType = "payment.failed"
	WebhookEventTypePaymentRejected  WebhookEventType = "payment.rejected"
	WebhookEventTypePaymentCancelled WebhookEventType = "payment.cancelled"
)

// ParseWebhookEventType rejects values outside the closed event-type set.
func ParseWebhookEventType(s string) (WebhookEventType, error) {
	switch WebhookEventType(s) {
	case WebhookEventTypePaymentCreated,
		WebhookEventTypePaymentPending,
		WebhookEventTypePaymentApproved,
		WebhookEventTypePaymentCompleted,
		WebhookEventTypePaymentFailed,
		WebhookEventTypePaymentRejected,
		WebhookEventTypePaymentCancelled:
		return WebhookEventType(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidEventType)
}

const DefaultMaxAttempts = 5

// WebhookEvent is a queued intent to notify a client of a payment state change.
// The payload is frozen at creation time; later changes to the payment never
// touch an already-created event.
type WebhookEvent struct {
	ID               uuid.UUID
	ClientID         uuid.UUID
	PaymentID        uuid.UUID
	EventType        WebhookEventType
	Status           WebhookEventStatus
	Attempts         int
	MaxAttempts      int
	NextAttemptAt    *time.Time
	Payload          json.RawMessage
	LastError        *string
	LastResponseCode *int
	DeliveredAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsDeliverable reports whether the event is currently eligible for a delivery
// attempt: still pending, retry budget left, and not scheduled for the future.
func (e *WebhookEvent) IsDeliverable(now time.Time) bool {
	if e.Status != WebhookEventStatusPending {
		return false
	}
	if e.Attempts >= e.MaxAttempts {
		return false
	}
	if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
		return false
	}
	return true
}

// retryDelays is keyed by the attempts value before the failure is recorded.
// A fixed table rather than a formula: the total window is a deliberate
// operational choice, not something to smooth out.
var retryDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute,
	240 * time.Minute,
}

// RetryDelay returns how long to wait before the attempt after the given one.
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(retryDelays) {
		return retryDelays[len(retryDelays)-1]
	}
	return retryDelays[attempts]
}

// NextAttempt computes the retry time for a failure recorded at the event's
// current attempt count.
func (e *WebhookEvent) NextAttempt(now time.Time) time.Time {
	return now.Add(RetryDelay(e.Attempts))
}
