package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paycrypt-tech/webhook-dispatch/internal/domain"
	"github.com/paycrypt-tech/webhook-dispatch/internal/repository"
	"github.com/paycrypt-tech/webhook-dispatch/internal/testutil"
)

func stubEvent(clientID uuid.UUID, status domain.WebhookEventStatus) domain.WebhookEvent {
	now := time.Now().UTC()
	return domain.WebhookEvent{
		ID:            uuid.New(),
		ClientID:      clientID,
		PaymentID:     uuid.New(),
		EventType:     domain.WebhookEventTypePaymentCompleted,
		Status:        status,
		MaxAttempts:   domain.DefaultMaxAttempts,
		NextAttemptAt: &now,
		Payload:       []byte(`{"event_type":"payment.completed"}`),
		CreatedAt:     now,
	}
}

func TestRunOnceTalliesOutcomes(t *testing.T) {
	url := "https://client.example/webhook"
	client := &domain.Client{ID: uuid.New(), WebhookEnabled: true, WebhookURL: &url}

	// One deliverable event, one already handled by an overlapping run: the
	// latter fails the eligibility re-check and counts as skipped.
	events := &stubEventStore{due: []domain.WebhookEvent{
		stubEvent(client.ID, domain.WebhookEventStatusPending),
		stubEvent(client.ID, domain.WebhookEventStatusDelivered),
	}}
	sender := &stubSender{resp: &WebhookResponse{StatusCode: http.StatusOK}}

	runner := NewBatchRunner(events, NewDispatcher(events, &stubClientStore{client: client}, sender), 10, time.Minute)
	summary, err := runner.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 2, Delivered: 1, Failed: 0, Skipped: 1}, summary)
	assert.Equal(t, 1, sender.calls)
}

func TestRunOnceCountsFailures(t *testing.T) {
	url := "https://client.example/webhook"
	client := &domain.Client{ID: uuid.New(), WebhookEnabled: true, WebhookURL: &url}

	events := &stubEventStore{due: []domain.WebhookEvent{
		stubEvent(client.ID, domain.WebhookEventStatusPending),
	}}
	sender := &stubSender{err: errors.New("connection error: refused")}

	runner := NewBatchRunner(events, NewDispatcher(events, &stubClientStore{client: client}, sender), 10, time.Minute)
	summary, err := runner.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Failed: 1}, summary)
	require.Len(t, events.failedMessages, 1)
}

func TestRunOncePropagatesFetchFailure(t *testing.T) {
	events := &stubEventStore{dueErr: errors.New("connection reset")}
	runner := NewBatchRunner(events, NewDispatcher(events, &stubClientStore{}, &stubSender{}), 10, time.Minute)

	_, err := runner.RunOnce(context.Background())
	assert.ErrorContains(t, err, "fetch due events")
}

func TestRunOnceEndToEnd(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := repository.NewWebhookEventRepository(db)

	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer badServer.Close()

	factory := NewEventFactory(repo, repository.NewClientRepository(db))

	okClient := testutil.SeedClient(t, db, true, okServer.URL, "s1")
	okPayment := testutil.SeedPayment(t, db, okClient.ID)
	_, err := factory.CreateEvent(ctx, okPayment, domain.WebhookEventTypePaymentCompleted)
	require.NoError(t, err)

	badClient := testutil.SeedClient(t, db, true, badServer.URL, "s2")
	badPayment := testutil.SeedPayment(t, db, badClient.ID)
	_, err = factory.CreateEvent(ctx, badPayment, domain.WebhookEventTypePaymentFailed)
	require.NoError(t, err)

	runner := NewBatchRunner(repo, newDispatcher(db, repo, 5*time.Second), 100, time.Minute)

	summary, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 2, Delivered: 1, Failed: 1}, summary)

	// The failed event is backed off, the delivered one is terminal: an
	// immediate second cycle has nothing to do.
	summary, err = runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}
