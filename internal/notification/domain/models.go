package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionRenewed   = "subscription.renewed"
	EventSubscriptionUpgraded  = "subscription.upgraded"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// SettlementEvent is an outbox row written in the same transaction as the
// state change it describes.
type SettlementEvent struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	OwnerID     snowflake.ID      `json:"owner_id" gorm:"not null;index"`
	EventType   string            `json:"event_type" gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `json:"payload" gorm:"type:jsonb;not null"`
	DedupeKey   string            `json:"dedupe_key" gorm:"type:text;not null;uniqueIndex"`
	Published   bool              `json:"published" gorm:"not null;default:false"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
}

func (SettlementEvent) TableName() string { return "settlement_events" }

// Event is what callers hand to the outbox.
type Event struct {
	OwnerID   snowflake.ID
	Type      string
	DedupeKey string
	Payload   map[string]any
	CreatedAt time.Time
}

// Publisher delivers one event to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event SettlementEvent) error
}

// PaymentDedupeKey scopes an event to exactly one settled payment.
func PaymentDedupeKey(reference string) string {
	return "payment:" + reference
}
