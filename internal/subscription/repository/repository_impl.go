package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlr/internal/subscription/domain"
	dbutil "github.com/smallbiznis/settlr/pkg/db"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, owner_id, package_id, status, starts_at, expires_at, cancelled_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.OwnerID,
		sub.PackageID,
		sub.Status,
		sub.StartsAt,
		sub.ExpiresAt,
		sub.CancelledAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, dbutil.ForUpdate(db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`), id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Subscription, error) {
	var item domain.Subscription
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindActiveByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]domain.Subscription, error) {
	return r.findActive(ctx, db, false, ownerID)
}

func (r *repo) FindActiveByOwnerForUpdate(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]domain.Subscription, error) {
	return r.findActive(ctx, db, true, ownerID)
}

func (r *repo) findActive(ctx context.Context, db *gorm.DB, lock bool, ownerID snowflake.ID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		 FROM subscriptions
		 WHERE owner_id = ? AND status = ?
		 ORDER BY expires_at DESC, id DESC`
	if lock {
		query = dbutil.ForUpdate(db, query)
	}

	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(query, ownerID, domain.SubscriptionStatusActive).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateExpiry(ctx context.Context, db *gorm.DB, id snowflake.ID, expiresAt time.Time, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, expires_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?) AND expires_at <= ?`,
		domain.SubscriptionStatusActive,
		expiresAt,
		updatedAt,
		id,
		domain.SubscriptionStatusActive,
		domain.SubscriptionStatusExpired,
		expiresAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, cancelledAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.SubscriptionStatusCancelled,
		cancelledAt,
		cancelledAt,
		id,
		domain.SubscriptionStatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND expires_at <= ?`,
		domain.SubscriptionStatusExpired,
		updatedAt,
		id,
		domain.SubscriptionStatusActive,
		updatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE status = ? AND expires_at <= ?
		 ORDER BY expires_at ASC, id ASC
		 LIMIT ?`,
		domain.SubscriptionStatusActive,
		now,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
