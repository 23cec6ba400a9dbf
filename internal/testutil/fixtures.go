package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paycrypt-tech/webhook-dispatch/internal/domain"
)

// SeedClient inserts a client with the given webhook configuration. Pass an
// empty url or secret to leave the column NULL.
func SeedClient(t *testing.T, db *sql.DB, enabled bool, url, secret string) *domain.Client {
	t.Helper()

	c := &domain.Client{
		ID:             uuid.New(),
		Name:           "Test Client",
		WebhookEnabled: enabled,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if url != "" {
		c.WebhookURL = &url
	}
	if secret != "" {
		c.WebhookSecret = &secret
	}

	_, err := db.Exec(
		`INSERT INTO clients (id, name, webhook_enabled, webhook_url, webhook_secret, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.WebhookEnabled, c.WebhookURL, c.WebhookSecret, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return c
}

// SeedPayment inserts a completed payment owned by clientID.
func SeedPayment(t *testing.T, db *sql.DB, clientID uuid.UUID) *domain.Payment {
	t.Helper()

	amount := decimal.NewFromFloat(100.50)
	fiatAmount := decimal.NewFromFloat(100.50)
	cryptoAmount := decimal.NewFromFloat(0.0025)
	currency := "USD"
	fiatCurrency := "USD"
	cryptoCurrency := "BTC"
	method := "crypto"
	txID := "0xabc123"
	description := "test payment"
	now := time.Now().UTC()

	p := &domain.Payment{
		ID:             uuid.New(),
		ClientID:       clientID,
		Amount:         &amount,
		Currency:       &currency,
		FiatAmount:     &fiatAmount,
		FiatCurrency:   &fiatCurrency,
		CryptoAmount:   &cryptoAmount,
		CryptoCurrency: &cryptoCurrency,
		Status:         domain.PaymentStatusCompleted,
		PaymentMethod:  &method,
		TransactionID:  &txID,
		Description:    &description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := db.Exec(
		`INSERT INTO payments (
			id, client_id, amount, currency, fiat_amount, fiat_currency,
			crypto_amount, crypto_currency, status, payment_method,
			transaction_id, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.ClientID, p.Amount, p.Currency, p.FiatAmount, p.FiatCurrency,
		p.CryptoAmount, p.CryptoCurrency, p.Status, p.PaymentMethod,
		p.TransactionID, p.Description, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}
