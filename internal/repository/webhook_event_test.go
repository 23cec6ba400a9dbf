package repository

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paycrypt-tech/webhook-dispatch/internal/domain"
	"github.com/paycrypt-tech/webhook-dispatch/internal/testutil"
)

func seedEventOwner(t *testing.T, db *sql.DB) (uuid.UUID, uuid.UUID) {
	t.Helper()
	client := testutil.SeedClient(t, db, true, "https://client.example/webhook", "secret")
	payment := testutil.SeedPayment(t, db, client.ID)
	return client.ID, payment.ID
}

func newPendingEvent(clientID, paymentID uuid.UUID, createdAt time.Time) *domain.WebhookEvent {
	next := createdAt
	return &domain.WebhookEvent{
		ID:            uuid.New(),
		ClientID:      clientID,
		PaymentID:     paymentID,
		EventType:     domain.WebhookEventTypePaymentCompleted,
		Status:        domain.WebhookEventStatusPending,
		Attempts:      0,
		MaxAttempts:   domain.DefaultMaxAttempts,
		NextAttemptAt: &next,
		Payload:       []byte(`{"event_type":"payment.completed","payment":{"id":"p1"}}`),
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestDueReturnsOldestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewWebhookEventRepository(db)
	clientID, paymentID := seedEventOwner(t, db)

	base := time.Now().UTC().Add(-time.Hour)
	newest := newPendingEvent(clientID, paymentID, base.Add(2*time.Minute))
	oldest := newPendingEvent(clientID, paymentID, base)
	middle := newPendingEvent(clientID, paymentID, base.Add(time.Minute))
	for _, e := range []*domain.WebhookEvent{newest, oldest, middle} {
		require.NoError(t, repo.Create(ctx, e))
	}

	due, err := repo.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, oldest.ID, due[0].ID)
	assert.Equal(t, middle.ID, due[1].ID)
	assert.Equal(t, newest.ID, due[2].ID)

	limited, err := repo.Due(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, oldest.ID, limited[0].ID)
}

func TestDueExcludesIneligibleEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewWebhookEventRepository(db)
	clientID, paymentID := seedEventOwner(t, db)

	now := time.Now().UTC()

	scheduled := newPendingEvent(clientID, paymentID, now)
	future := now.Add(time.Hour)
	scheduled.NextAttemptAt = &future

	delivered := newPendingEvent(clientID, paymentID, now)
	delivered.Status = domain.WebhookEventStatusDelivered

	exhausted := newPendingEvent(clientID, paymentID, now)
	exhausted.Attempts = exhausted.MaxAttempts

	eligible := newPendingEvent(clientID, paymentID, now)
	eligible.NextAttemptAt = nil // NULL means eligible now

	for _, e := range []*domain.WebhookEvent{scheduled, delivered, exhausted, eligible} {
		require.NoError(t, repo.Create(ctx, e))
	}

	due, err := repo.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, eligible.ID, due[0].ID)
}

func TestMarkDelivered(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewWebhookEventRepository(db)
	clientID, paymentID := seedEventOwner(t, db)

	event := newPendingEvent(clientID, paymentID, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, event))

	require.NoError(t, repo.MarkDelivered(ctx, event, 204))

	assert.Equal(t, domain.WebhookEventStatusDelivered, event.Status)
	require.NotNil(t, event.DeliveredAt)
	require.NotNil(t, event.LastResponseCode)
	assert.Equal(t, 204, *event.LastResponseCode)
	assert.Nil(t, event.LastError)

	stored, err := repo.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusDelivered, stored.Status)
	assert.NotNil(t, stored.DeliveredAt)
	assert.Nil(t, stored.LastError)
	assert.Equal(t, 0, stored.Attempts)
}

func TestMarkFailedSchedulesRetry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewWebhookEventRepository(db)
	clientID, paymentID := seedEventOwner(t, db)

	event := newPendingEvent(clientID, paymentID, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, event))

	code := 500
	require.NoError(t, repo.MarkFailed(ctx, event, "HTTP 500: boom", &code))

	assert.Equal(t, 1, event.Attempts)
	assert.Equal(t, domain.WebhookEventStatusPending, event.Status)
	require.NotNil(t, event.NextAttemptAt)
	// first failure schedules the retry one minute out
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), *event.NextAttemptAt, 10*time.Second)

	stored, err := repo.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "HTTP 500: boom", *stored.LastError)
	require.NotNil(t, stored.LastResponseCode)
	assert.Equal(t, 500, *stored.LastResponseCode)

	// a retried event is not due until its schedule elapses
	due, err := repo.Due(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkFailedTruncatesError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewWebhookEventRepository(db)
	clientID, paymentID := seedEventOwner(t, db)

	event := newPendingEvent(clientID, paymentID, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, event))

	require.NoError(t, repo.MarkFailed(ctx, event, strings.Repeat("x", 900), nil))

	stored, err := repo.GetByID(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastError)
	assert.Len(t, *stored.LastError, 500)
}

func TestMarkFailedExhaustsBudget(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewWebhookEventRepository(db)
	clientID, paymentID := seedEventOwner(t, db)

	event := newPendingEvent(clientID, paymentID, time.Now().UTC())
	event.Attempts = 4
	require.NoError(t, repo.Create(ctx, event))

	code := 500
	require.NoError(t, repo.MarkFailed(ctx, event, "HTTP 500: still down", &code))

	assert.Equal(t, 5, event.Attempts)
	assert.Equal(t, domain.WebhookEventStatusFailed, event.Status)
	assert.Nil(t, event.NextAttemptAt)

	stored, err := repo.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusFailed, stored.Status)
	assert.Nil(t, stored.NextAttemptAt)

	// terminal events never come back
	due, err := repo.Due(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkOperationsRejectStaleState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewWebhookEventRepository(db)
	clientID, paymentID := seedEventOwner(t, db)

	event := newPendingEvent(clientID, paymentID, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, event))

	// Two overlapping runs read the same row state.
	first := *event
	second := *event

	require.NoError(t, repo.MarkFailed(ctx, &first, "HTTP 502: upstream", nil))

	// The loser of the race must observe a conflict, not double-book the attempt.
	err := repo.MarkFailed(ctx, &second, "connection error", nil)
	assert.ErrorIs(t, err, domain.ErrEventStale)
	err = repo.MarkDelivered(ctx, &second, 200)
	assert.ErrorIs(t, err, domain.ErrEventStale)

	stored, err := repo.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "HTTP 502: upstream", *stored.LastError)
}

func TestListByPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewWebhookEventRepository(db)
	clientID, paymentID := seedEventOwner(t, db)

	base := time.Now().UTC().Add(-time.Minute)
	created := newPendingEvent(clientID, paymentID, base)
	created.EventType = domain.WebhookEventTypePaymentCreated
	completed := newPendingEvent(clientID, paymentID, base.Add(time.Second))
	require.NoError(t, repo.Create(ctx, created))
	require.NoError(t, repo.Create(ctx, completed))

	events, err := repo.ListByPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.WebhookEventTypePaymentCreated, events[0].EventType)
	assert.Equal(t, domain.WebhookEventTypePaymentCompleted, events[1].EventType)
}
