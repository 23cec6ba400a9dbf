package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/paycrypt-tech/webhook-dispatch/internal/domain"
)

const paymentColumns = `id, client_id, amount, currency, fiat_amount, fiat_currency,
	crypto_amount, crypto_currency, status, payment_method, transaction_id,
	description, created_at, updated_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)

	var p domain.Payment
	var status string
	err := row.Scan(
		&p.ID, &p.ClientID, &p.Amount, &p.Currency, &p.FiatAmount, &p.FiatCurrency,
		&p.CryptoAmount, &p.CryptoCurrency, &status, &p.PaymentMethod,
		&p.TransactionID, &p.Description, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}
