package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is one entitlement window for an owner on one package tier.
type Subscription struct {
	ID          snowflake.ID       `json:"id" gorm:"primaryKey"`
	OwnerID     snowflake.ID       `json:"owner_id" gorm:"not null;index"`
	PackageID   snowflake.ID       `json:"package_id" gorm:"not null"`
	Status      SubscriptionStatus `json:"status" gorm:"type:text;not null"`
	StartsAt    time.Time          `json:"starts_at" gorm:"not null"`
	ExpiresAt   time.Time          `json:"expires_at" gorm:"not null"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time          `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// IsEntitled treats a lapsed expires_at as expired regardless of the stored status.
func (s *Subscription) IsEntitled(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.Status == SubscriptionStatusActive && s.ExpiresAt.After(now)
}

// EffectiveStatus is the status a reader should observe at now.
func (s *Subscription) EffectiveStatus(now time.Time) SubscriptionStatus {
	if s.Status == SubscriptionStatusActive && !s.ExpiresAt.After(now) {
		return SubscriptionStatusExpired
	}
	return s.Status
}
