package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service is the payment record store. Writes take the caller's transaction.
type Service interface {
	CreatePending(ctx context.Context, tx *gorm.DB, input CreatePendingInput) (*Payment, error)
	FindByReference(ctx context.Context, reference string) (*Payment, error)
	FindByReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*Payment, error)
	MarkTerminal(ctx context.Context, tx *gorm.DB, payment *Payment, status PaymentStatus, paidAt *time.Time, patch GatewayData) (bool, error)
	LinkSubscription(ctx context.Context, tx *gorm.DB, payment *Payment, subscriptionID snowflake.ID) error
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Payment, error)
	CountStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}

type CreatePendingInput struct {
	OwnerID   snowflake.ID
	PackageID snowflake.ID
	Reference string
	Amount    int64
	Currency  string
	Gateway   GatewayData
	CreatedAt time.Time
}

var (
	ErrPaymentNotFound      = errors.New("payment_not_found")
	ErrDuplicateReference   = errors.New("duplicate_payment_reference")
	ErrInvalidReference     = errors.New("invalid_payment_reference")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidStatus        = errors.New("invalid_payment_status")
	ErrPaymentNotPending    = errors.New("payment_not_pending")
	ErrInvalidGatewayFields = errors.New("invalid_gateway_data")
)
