package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
	FindByReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
	// CompareAndSetStatus moves a pending payment to a terminal status.
	// It reports false when the row was no longer pending.
	CompareAndSetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status PaymentStatus, paidAt *time.Time, gateway datatypes.JSON, updatedAt time.Time) (bool, error)
	SetSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID snowflake.ID, updatedAt time.Time) error
	ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Payment, error)
	CountPendingBefore(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)
}
