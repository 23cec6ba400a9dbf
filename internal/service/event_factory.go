package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paycrypt-tech/webhook-dispatch/internal/domain"
	"github.com/paycrypt-tech/webhook-dispatch/internal/logging"
)

type factoryEventStore interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
}

type factoryClientStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Client, error)
}

// EventFactory is the sole writer of new webhook events. It filters out
// payments whose client has no webhook configured and freezes the payment
// snapshot into the event payload.
type EventFactory struct {
	events  factoryEventStore
	clients factoryClientStore
	now     func() time.Time
}

func NewEventFactory(events factoryEventStore, clients factoryClientStore) *EventFactory {
	return &EventFactory{
		events:  events,
		clients: clients,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// eventPayload is the wire shape delivered to clients. Monetary values are
// sent as JSON numbers, matching what integrations already parse.
type eventPayload struct {
	EventType string          `json:"event_type"`
	Payment   paymentSnapshot `json:"payment"`
	Timestamp string          `json:"timestamp"`
}

type paymentSnapshot struct {
	ID             string   `json:"id"`
	ClientID       string   `json:"client_id"`
	Amount         *float64 `json:"amount"`
	Currency       *string  `json:"currency"`
	FiatAmount     *float64 `json:"fiat_amount"`
	FiatCurrency   *string  `json:"fiat_currency"`
	CryptoAmount   *float64 `json:"crypto_amount"`
	CryptoCurrency *string  `json:"crypto_currency"`
	Status         string   `json:"status"`
	PaymentMethod  *string  `json:"payment_method"`
	TransactionID  *string  `json:"transaction_id"`
	Description    *string  `json:"description"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

// CreateEvent persists a pending webhook event for a payment state change.
// It returns (nil, nil) when the owning client cannot receive webhooks:
// the domain operation that triggered the change must not fail because
// webhooks are unconfigured.
func (f *EventFactory) CreateEvent(ctx context.Context, payment *domain.Payment, eventType domain.WebhookEventType) (*domain.WebhookEvent, error) {
	log := logging.FromContext(ctx)

	if _, err := domain.ParseWebhookEventType(string(eventType)); err != nil {
		return nil, fmt.Errorf("CreateEvent: %w", err)
	}
	if payment == nil {
		return nil, nil
	}

	client, err := f.clients.GetByID(ctx, payment.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("CreateEvent: load client: %w", err)
	}
	if !client.WebhookConfigured() {
		log.Debug("webhook event suppressed, client not configured",
			"client_id", client.ID,
			"payment_id", payment.ID,
			"event_type", eventType,
		)
		return nil, nil
	}

	now := f.now()
	payload, err := json.Marshal(eventPayload{
		EventType: string(eventType),
		Payment:   snapshotPayment(payment),
		Timestamp: now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("CreateEvent: marshal payload: %w", err)
	}

	event := &domain.WebhookEvent{
		ID:            uuid.New(),
		ClientID:      payment.ClientID,
		PaymentID:     payment.ID,
		EventType:     eventType,
		Status:        domain.WebhookEventStatusPending,
		Attempts:      0,
		MaxAttempts:   domain.DefaultMaxAttempts,
		NextAttemptAt: &now,
		Payload:       payload,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := f.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("CreateEvent: %w", err)
	}

	log.Info("webhook event created",
		"webhook_event_id", event.ID,
		"client_id", event.ClientID,
		"payment_id", event.PaymentID,
		"event_type", event.EventType,
	)
	return event, nil
}

func snapshotPayment(p *domain.Payment) paymentSnapshot {
	return paymentSnapshot{
		ID:             p.ID.String(),
		ClientID:       p.ClientID.String(),
		Amount:         decimalToFloat(p.Amount),
		Currency:       p.Currency,
		FiatAmount:     decimalToFloat(p.FiatAmount),
		FiatCurrency:   p.FiatCurrency,
		CryptoAmount:   decimalToFloat(p.CryptoAmount),
		CryptoCurrency: p.CryptoCurrency,
		Status:         string(p.Status),
		PaymentMethod:  p.PaymentMethod,
		TransactionID:  p.TransactionID,
		Description:    p.Description,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      p.UpdatedAt.Format(time.RFC3339),
	}
}

func decimalToFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
