package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PackageDefinition is a purchasable subscription tier.
type PackageDefinition struct {
	ID           snowflake.ID                `json:"id" gorm:"primaryKey"`
	Code         string                      `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name         string                      `json:"name" gorm:"type:text;not null"`
	Price        int64                       `json:"price" gorm:"not null"`
	Currency     string                      `json:"currency" gorm:"type:text;not null"`
	DurationDays int                         `json:"duration_days" gorm:"not null"`
	Features     datatypes.JSONSlice[string] `json:"features,omitempty" gorm:"type:jsonb"`
	Active       bool                        `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PackageDefinition) TableName() string { return "packages" }

// Snapshot is the frozen view of a package used for one transaction.
type Snapshot struct {
	ID           snowflake.ID `json:"id"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Price        int64        `json:"price"`
	Currency     string       `json:"currency"`
	DurationDays int          `json:"duration_days"`
}

func (p PackageDefinition) Snapshot() Snapshot {
	return Snapshot{
		ID:           p.ID,
		Code:         p.Code,
		Name:         p.Name,
		Price:        p.Price,
		Currency:     p.Currency,
		DurationDays: p.DurationDays,
	}
}
