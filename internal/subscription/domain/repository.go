package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository exposes only the narrow transitions the ledger needs.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindActiveByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Subscription, error)
	FindActiveByOwnerForUpdate(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Subscription, error)
	UpdateExpiry(ctx context.Context, db *gorm.DB, id snowflake.ID, expiresAt time.Time, updatedAt time.Time) (bool, error)
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, cancelledAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, updatedAt time.Time) (bool, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
}
