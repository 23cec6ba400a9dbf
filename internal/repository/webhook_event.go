package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paycrypt-tech/webhook-dispatch/internal/domain"
)

const webhookEventColumns = `id, client_id, payment_id, event_type, status, attempts,
	max_attempts, next_attempt_at, payload, last_error, last_response_code,
	delivered_at, created_at, updated_at`

// maxErrorLen bounds stored delivery error messages.
const maxErrorLen = 500

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(ctx context.Context, event *domain.WebhookEvent) error {
	// payload goes over as a string: pq encodes []byte as bytea, which the
	// jsonb column rejects
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (
			id, client_id, payment_id, event_type, status, attempts, max_attempts,
			next_attempt_at, payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.ClientID, event.PaymentID, event.EventType, event.Status,
		event.Attempts, event.MaxAttempts, event.NextAttemptAt, string(event.Payload),
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Due returns up to limit events eligible for a delivery attempt, oldest
// first so a backlog cannot starve early events.
func (r *WebhookEventRepository) Due(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events
		WHERE status = $1
		  AND attempts < max_attempts
		  AND (next_attempt_at IS NULL OR next_attempt_at <= now())
		ORDER BY created_at
		LIMIT $2`,
		domain.WebhookEventStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("Due: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("Due: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Due: rows: %w", err)
	}
	return events, nil
}

func (r *WebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events WHERE id = $1`, id,
	)
	e, err := scanWebhookEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return e, nil
}

// ListByPayment returns every event emitted for a payment, oldest first.
func (r *WebhookEventRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events
		WHERE payment_id = $1 ORDER BY created_at`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByPayment: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByPayment: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByPayment: rows: %w", err)
	}
	return events, nil
}

// MarkDelivered transitions the event to its terminal delivered state. The
// WHERE clause pins status and attempts to the values read at selection time;
// zero rows affected means a concurrent run got there first and the caller
// must treat the event as skipped, not delivered.
func (r *WebhookEventRepository) MarkDelivered(ctx context.Context, event *domain.WebhookEvent, responseCode int) error {
	now := time.Now().UTC()

	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events
		SET status = $1, delivered_at = $2, last_response_code = $3, last_error = NULL, updated_at = $2
		WHERE id = $4 AND status = $5 AND attempts = $6`,
		domain.WebhookEventStatusDelivered, now, responseCode,
		event.ID, domain.WebhookEventStatusPending, event.Attempts,
	)
	if err != nil {
		return fmt.Errorf("MarkDelivered: %w", err)
	}
	if err := requireOneRow(res); err != nil {
		return fmt.Errorf("MarkDelivered: %w", err)
	}

	event.Status = domain.WebhookEventStatusDelivered
	event.DeliveredAt = &now
	event.LastResponseCode = &responseCode
	event.LastError = nil
	event.UpdatedAt = now
	return nil
}

// MarkFailed records one failed delivery attempt: increments attempts, stores
// the truncated error, and either schedules the retry or, once the budget is
// spent, parks the event in its terminal failed state. The same optimistic
// guard as MarkDelivered protects against overlapping dispatch runs.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, event *domain.WebhookEvent, message string, responseCode *int) error {
	now := time.Now().UTC()
	message = truncate(message, maxErrorLen)

	attempts := event.Attempts + 1
	status := domain.WebhookEventStatusPending
	var nextAttemptAt *time.Time
	if attempts >= event.MaxAttempts {
		status = domain.WebhookEventStatusFailed
	} else {
		next := event.NextAttempt(now)
		nextAttemptAt = &next
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events
		SET attempts = $1, status = $2, next_attempt_at = $3, last_error = $4,
			last_response_code = $5, updated_at = $6
		WHERE id = $7 AND status = $8 AND attempts = $9`,
		attempts, status, nextAttemptAt, message, responseCode, now,
		event.ID, domain.WebhookEventStatusPending, event.Attempts,
	)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	if err := requireOneRow(res); err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}

	event.Attempts = attempts
	event.Status = status
	event.NextAttemptAt = nextAttemptAt
	event.LastError = &message
	event.LastResponseCode = responseCode
	event.UpdatedAt = now
	return nil
}

func requireOneRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrEventStale
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func scanWebhookEvent(s scanner) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var eventType, status string
	err := s.Scan(
		&e.ID, &e.ClientID, &e.PaymentID, &eventType, &status, &e.Attempts,
		&e.MaxAttempts, &e.NextAttemptAt, &e.Payload, &e.LastError,
		&e.LastResponseCode, &e.DeliveredAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.EventType, err = domain.ParseWebhookEventType(eventType); err != nil {
		return nil, err
	}
	if e.Status, err = domain.ParseWebhookEventStatus(status); err != nil {
		return nil, err
	}
	return &e, nil
}
