package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paycrypt-tech/webhook-dispatch/internal/domain"
	"github.com/paycrypt-tech/webhook-dispatch/internal/logging"
	"github.com/paycrypt-tech/webhook-dispatch/internal/signing"
)

type eventStore interface {
	Due(ctx context.Context, limit int) ([]domain.WebhookEvent, error)
	MarkDelivered(ctx context.Context, event *domain.WebhookEvent, responseCode int) error
	MarkFailed(ctx context.Context, event *domain.WebhookEvent, message string, responseCode *int) error
}

type clientStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Client, error)
}

type webhookSender interface {
	Deliver(ctx context.Context, req DeliveryRequest) (*WebhookResponse, error)
}

// Outcome classifies a single dispatch. Skipped means no attempt was
// recorded: the event was ineligible at re-check, or a concurrent run claimed
// it first. Failed always corresponds to a recorded attempt.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeDelivered
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// maxStoredBody bounds how much of a non-2xx response body goes into the
// stored error message.
const maxStoredBody = 200

// Dispatcher performs one delivery attempt per event: eligibility re-check,
// signing, the HTTP POST, and the resulting state transition.
type Dispatcher struct {
	events  eventStore
	clients clientStore
	sender  webhookSender
	now     func() time.Time
}

func NewDispatcher(events eventStore, clients clientStore, sender webhookSender) *Dispatcher {
	return &Dispatcher{
		events:  events,
		clients: clients,
		sender:  sender,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch attempts delivery of a single event. It never returns an error: a
// bad event must not abort the batch, so every failure mode collapses into an
// Outcome, with panics recovered into a recorded failed attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.WebhookEvent) (outcome Outcome) {
	log := logging.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during webhook dispatch", "webhook_event_id", event.ID, "panic", r)
			outcome = d.recordFailure(ctx, event, fmt.Sprintf("unexpected error: %v", r), nil)
		}
	}()

	// Guards against stale batch membership: the event may have been handled
	// by an overlapping run between fetch and dispatch.
	if !event.IsDeliverable(d.now()) {
		return OutcomeSkipped
	}

	client, err := d.clients.GetByID(ctx, event.ClientID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error("failed to load client for webhook", "webhook_event_id", event.ID, "error", err)
		return OutcomeSkipped
	}
	if err != nil || client.WebhookURL == nil || *client.WebhookURL == "" {
		// A persistently misconfigured client must consume its retry budget
		// and reach the terminal failed state rather than retry forever.
		return d.recordFailure(ctx, event, "no delivery URL configured", nil)
	}

	timestamp := d.now().Format(time.RFC3339)

	var signature string
	if client.WebhookSecret != nil && *client.WebhookSecret != "" {
		signature, err = signing.Sign(*client.WebhookSecret, timestamp, event.Payload)
		if err != nil {
			// Never send unsigned when a secret is configured.
			return d.recordFailure(ctx, event, fmt.Sprintf("failed to sign payload: %v", err), nil)
		}
	}

	resp, err := d.sender.Deliver(ctx, DeliveryRequest{
		URL:       *client.WebhookURL,
		EventType: string(event.EventType),
		EventID:   event.ID.String(),
		Timestamp: timestamp,
		Signature: signature,
		Body:      event.Payload,
	})
	if err != nil {
		return d.recordFailure(ctx, event, err.Error(), nil)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := d.events.MarkDelivered(ctx, event, resp.StatusCode); err != nil {
			if errors.Is(err, domain.ErrEventStale) {
				log.Info("webhook event claimed by concurrent run", "webhook_event_id", event.ID)
				return OutcomeSkipped
			}
			log.Error("delivered but failed to record, event will be re-sent",
				"webhook_event_id", event.ID, "error", err)
			return OutcomeSkipped
		}
		log.Info("webhook delivered",
			"webhook_event_id", event.ID,
			"client_id", event.ClientID,
			"event_type", event.EventType,
			"status", resp.StatusCode,
		)
		return OutcomeDelivered
	}

	message := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(resp.Body, maxStoredBody))
	code := resp.StatusCode
	return d.recordFailure(ctx, event, message, &code)
}

// recordFailure books one failed attempt. A stale-event conflict means a
// concurrent run already transitioned the row, and this dispatcher lost the
// race: skipped, not failed.
func (d *Dispatcher) recordFailure(ctx context.Context, event *domain.WebhookEvent, message string, responseCode *int) Outcome {
	log := logging.FromContext(ctx)

	if err := d.events.MarkFailed(ctx, event, message, responseCode); err != nil {
		if errors.Is(err, domain.ErrEventStale) {
			log.Info("webhook event claimed by concurrent run", "webhook_event_id", event.ID)
			return OutcomeSkipped
		}
		log.Error("failed to record webhook attempt", "webhook_event_id", event.ID, "error", err)
		return OutcomeSkipped
	}

	log.Warn("webhook delivery attempt failed",
		"webhook_event_id", event.ID,
		"client_id", event.ClientID,
		"attempts", event.Attempts,
		"status", event.Status,
		"error", message,
	)
	return OutcomeFailed
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
