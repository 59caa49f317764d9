package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"gorm.io/gorm"
)

// Ledger owns every subscription state transition. Mutations run on the
// caller's transaction so settlement can commit them with the payment.
type Ledger interface {
	Activate(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, pkg catalogdomain.PackageDefinition, now time.Time) (*Subscription, error)
	Renew(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, pkg catalogdomain.PackageDefinition, now time.Time) (*Subscription, error)
	Upgrade(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, target catalogdomain.PackageDefinition, now time.Time) (*Subscription, error)
	Cancel(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, now time.Time) (*Subscription, error)

	IsEntitled(sub *Subscription, now time.Time) bool
	FindCurrent(ctx context.Context, ownerID snowflake.ID, now time.Time) (*Subscription, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

var (
	ErrAlreadyActive         = errors.New("subscription_already_active")
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrSubscriptionNotActive = errors.New("subscription_not_active")
	ErrPackageMismatch       = errors.New("subscription_package_mismatch")
	ErrInvalidDuration       = errors.New("invalid_package_duration")
	ErrInvalidOwner          = errors.New("invalid_owner")
)

// IsRuleViolation reports whether err is a ledger business rule rejection
// rather than a storage failure.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrSubscriptionNotActive) ||
		errors.Is(err, ErrPackageMismatch) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidOwner)
}
