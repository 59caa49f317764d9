// Package account answers whether an owner can be charged.
package account

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const StatusLinked = "linked"

// Checker is consumed by settlement before any payment is initiated.
type Checker interface {
	HasPayableAccount(ctx context.Context, ownerID snowflake.ID) (bool, error)
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type dbChecker struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewChecker(p Params) Checker {
	return &dbChecker{
		db:  p.DB,
		log: p.Log.Named("account.checker"),
	}
}

func (c *dbChecker) HasPayableAccount(ctx context.Context, ownerID snowflake.ID) (bool, error) {
	if ownerID == 0 {
		return false, nil
	}
	var count int64
	err := c.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payable_accounts WHERE owner_id = ? AND status = ?`,
		ownerID,
		StatusLinked,
	).Scan(&count).Error
	if err != nil {
		c.log.Error("payable account lookup failed", zap.String("owner_id", ownerID.String()), zap.Error(err))
		return false, err
	}
	return count > 0, nil
}

var Module = fx.Module("account",
	fx.Provide(NewChecker),
)
