package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"github.com/smallbiznis/settlr/internal/subscription/domain"
	dbutil "github.com/smallbiznis/settlr/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Ledger struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewLedger(p Params) domain.Ledger {
	return &Ledger{
		db:    p.DB,
		log:   p.Log.Named("subscription.ledger"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (l *Ledger) Activate(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, pkg catalogdomain.PackageDefinition, now time.Time) (*domain.Subscription, error) {
	if ownerID == 0 {
		return nil, domain.ErrInvalidOwner
	}
	duration, err := packageDuration(pkg)
	if err != nil {
		return nil, err
	}
	tx = l.conn(tx)

	rows, err := l.repo.FindActiveByOwnerForUpdate(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		row := rows[i]
		if row.IsEntitled(now) {
			return nil, domain.ErrAlreadyActive
		}
		// Stored active but already lapsed; retire it so the new row is the only active one.
		if _, err := l.repo.MarkExpired(ctx, tx, row.ID, now); err != nil {
			return nil, err
		}
	}

	sub := &domain.Subscription{
		ID:        l.genID.Generate(),
		OwnerID:   ownerID,
		PackageID: pkg.ID,
		Status:    domain.SubscriptionStatusActive,
		StartsAt:  now,
		ExpiresAt: now.Add(duration),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.repo.Insert(ctx, tx, sub); err != nil {
		if dbutil.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyActive
		}
		return nil, err
	}

	l.log.Info("subscription activated",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.String("package_id", pkg.ID.String()),
		zap.Time("expires_at", sub.ExpiresAt),
	)
	return sub, nil
}

func (l *Ledger) Renew(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, pkg catalogdomain.PackageDefinition, now time.Time) (*domain.Subscription, error) {
	duration, err := packageDuration(pkg)
	if err != nil {
		return nil, err
	}
	tx = l.conn(tx)

	sub, err := l.lock(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	// A row the expiry sweep already flipped is renewed like a lapsed active one.
	switch sub.Status {
	case domain.SubscriptionStatusActive, domain.SubscriptionStatusExpired:
	default:
		return nil, domain.ErrSubscriptionNotActive
	}
	if sub.PackageID != pkg.ID {
		return nil, domain.ErrPackageMismatch
	}
	if !sub.IsEntitled(now) {
		if err := l.retireOthers(ctx, tx, sub, now); err != nil {
			return nil, err
		}
	}

	base := sub.ExpiresAt
	if now.After(base) {
		base = now
	}
	expiresAt := base.Add(duration)

	updated, err := l.repo.UpdateExpiry(ctx, tx, sub.ID, expiresAt, now)
	if err != nil {
		if dbutil.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyActive
		}
		return nil, err
	}
	if !updated {
		return nil, domain.ErrSubscriptionNotActive
	}
	sub.Status = domain.SubscriptionStatusActive
	sub.ExpiresAt = expiresAt
	sub.UpdatedAt = now

	l.log.Info("subscription renewed",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("owner_id", sub.OwnerID.String()),
		zap.Time("expires_at", sub.ExpiresAt),
	)
	return sub, nil
}

func (l *Ledger) Upgrade(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, target catalogdomain.PackageDefinition, now time.Time) (*domain.Subscription, error) {
	if _, err := packageDuration(target); err != nil {
		return nil, err
	}
	tx = l.conn(tx)

	current, err := l.lock(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !current.IsEntitled(now) {
		return nil, domain.ErrSubscriptionNotActive
	}

	cancelled, err := l.repo.MarkCancelled(ctx, tx, current.ID, now)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, domain.ErrSubscriptionNotActive
	}

	next := &domain.Subscription{
		ID:        l.genID.Generate(),
		OwnerID:   current.OwnerID,
		PackageID: target.ID,
		Status:    domain.SubscriptionStatusActive,
		StartsAt:  now,
		ExpiresAt: current.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.repo.Insert(ctx, tx, next); err != nil {
		if dbutil.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyActive
		}
		return nil, err
	}

	l.log.Info("subscription upgraded",
		zap.String("from_subscription_id", current.ID.String()),
		zap.String("subscription_id", next.ID.String()),
		zap.String("owner_id", next.OwnerID.String()),
		zap.String("package_id", target.ID.String()),
	)
	return next, nil
}

func (l *Ledger) Cancel(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, now time.Time) (*domain.Subscription, error) {
	tx = l.conn(tx)

	sub, err := l.lock(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionStatusCancelled {
		return sub, nil
	}
	if !sub.IsEntitled(now) {
		return nil, domain.ErrSubscriptionNotActive
	}

	ok, err := l.repo.MarkCancelled(ctx, tx, sub.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSubscriptionNotActive
	}
	sub.Status = domain.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.UpdatedAt = now
	return sub, nil
}

func (l *Ledger) IsEntitled(sub *domain.Subscription, now time.Time) bool {
	return sub.IsEntitled(now)
}

// FindCurrent returns the owner's entitled subscription, or nil.
func (l *Ledger) FindCurrent(ctx context.Context, ownerID snowflake.ID, now time.Time) (*domain.Subscription, error) {
	rows, err := l.repo.FindActiveByOwner(ctx, l.db, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].IsEntitled(now) {
			return &rows[i], nil
		}
	}
	return nil, nil
}

func (l *Ledger) FindByID(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	sub, err := l.repo.FindByID(ctx, l.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// ExpireDue flips lapsed active rows to expired. Entitlement never depends on it.
func (l *Ledger) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := l.repo.ListDue(ctx, l.db, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sub := range due {
		ok, err := l.repo.MarkExpired(ctx, l.db, sub.ID, now)
		if err != nil {
			return expired, fmt.Errorf("expire subscription %s: %w", sub.ID, err)
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// retireOthers makes sub the owner's only candidate for the active slot.
// Another entitled row wins; lapsed ones are expired.
func (l *Ledger) retireOthers(ctx context.Context, tx *gorm.DB, sub *domain.Subscription, now time.Time) error {
	rows, err := l.repo.FindActiveByOwnerForUpdate(ctx, tx, sub.OwnerID)
	if err != nil {
		return err
	}
	for i := range rows {
		row := rows[i]
		if row.ID == sub.ID {
			continue
		}
		if row.IsEntitled(now) {
			return domain.ErrAlreadyActive
		}
		if _, err := l.repo.MarkExpired(ctx, tx, row.ID, now); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	if id == 0 {
		return nil, domain.ErrSubscriptionNotFound
	}
	sub, err := l.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (l *Ledger) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}

func packageDuration(pkg catalogdomain.PackageDefinition) (time.Duration, error) {
	if pkg.DurationDays <= 0 {
		return 0, domain.ErrInvalidDuration
	}
	return time.Duration(pkg.DurationDays) * 24 * time.Hour, nil
}
