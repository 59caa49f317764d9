package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlr/internal/payment/domain"
	dbutil "github.com/smallbiznis/settlr/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const paymentColumns = `id, owner_id, subscription_id, package_id, reference, method, amount, currency,
	status, gateway, paid_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.OwnerID,
		payment.SubscriptionID,
		payment.PackageID,
		payment.Reference,
		payment.Method,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.Gateway,
		payment.PaidAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `SELECT `+paymentColumns+` FROM payments WHERE reference = ?`, reference)
}

func (r *repo) FindByReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string) (*domain.Payment, error) {
	return r.findOne(ctx, db, dbutil.ForUpdate(db, `SELECT `+paymentColumns+` FROM payments WHERE reference = ?`), reference)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Payment, error) {
	var item domain.Payment
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CompareAndSetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.PaymentStatus, paidAt *time.Time, gateway datatypes.JSON, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, paid_at = ?, gateway = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		paidAt,
		gateway,
		updatedAt,
		id,
		domain.PaymentStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET subscription_id = ?, updated_at = ?
		 WHERE id = ?`,
		subscriptionID,
		updatedAt,
		id,
	).Error
}

func (r *repo) ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		domain.PaymentStatusPending,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountPendingBefore(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payments WHERE status = ? AND created_at < ?`,
		domain.PaymentStatusPending,
		before,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
