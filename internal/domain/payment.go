package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRejected  PaymentStatus = "rejected"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Payment is a read-only snapshot of the payment domain object. This core
// never mutates payments; it only reads them to build event payloads.
type Payment struct {
	ID             uuid.UUID
	ClientID       uuid.UUID
	Amount         *decimal.Decimal
	Currency       *string
	FiatAmount     *decimal.Decimal
	FiatCurrency   *string
	CryptoAmount   *decimal.Decimal
	CryptoCurrency *string
	Status         PaymentStatus
	PaymentMethod  *string
	TransactionID  *string
	Description    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
