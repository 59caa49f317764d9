package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"github.com/smallbiznis/settlr/internal/subscription/domain"
	"github.com/smallbiznis/settlr/internal/subscription/repository"
	"github.com/smallbiznis/settlr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	basicPkg = catalogdomain.PackageDefinition{ID: 11, Code: "basic", Price: 100000, Currency: "VND", DurationDays: 30, Active: true}
	proPkg   = catalogdomain.PackageDefinition{ID: 12, Code: "pro", Price: 400000, Currency: "VND", DurationDays: 30, Active: true}
)

func setupLedger(t *testing.T) (domain.Ledger, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	testutil.InsertPackage(t, db, basicPkg.ID, basicPkg.Code, basicPkg.Price, basicPkg.DurationDays)
	testutil.InsertPackage(t, db, proPkg.ID, proPkg.Code, proPkg.Price, proPkg.DurationDays)
	ledger := NewLedger(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Repo:  repository.Provide(),
	})
	return ledger, db
}

func baseTime() time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func TestActivateCreatesEntitledSubscription(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, snowflake.ID(7), basicPkg, now)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.ExpiresAt.Equal(now.Add(30*24*time.Hour)))
	assert.True(t, ledger.IsEntitled(sub, now))

	current, err := ledger.FindCurrent(ctx, 7, now)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, sub.ID, current.ID)
}

func TestActivateRejectsSecondActive(t *testing.T) {
	ledger, db := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	_, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	_, err = ledger.Activate(ctx, nil, 7, proPkg, now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrAlreadyActive)
	assert.Equal(t, int64(1), testutil.Count(t, db, `SELECT COUNT(1) FROM subscriptions WHERE owner_id = ? AND status = 'active'`, 7))
}

func TestActivateRetiresLapsedRow(t *testing.T) {
	ledger, db := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	first, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	later := now.Add(31 * 24 * time.Hour)
	second, err := ledger.Activate(ctx, nil, 7, basicPkg, later)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	stored, err := ledger.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusExpired, stored.Status)
	assert.Equal(t, int64(1), testutil.Count(t, db, `SELECT COUNT(1) FROM subscriptions WHERE owner_id = ? AND status = 'active'`, 7))
}

func TestActivateValidation(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Activate(ctx, nil, 0, basicPkg, baseTime())
	require.ErrorIs(t, err, domain.ErrInvalidOwner)

	broken := basicPkg
	broken.DurationDays = 0
	_, err = ledger.Activate(ctx, nil, 7, broken, baseTime())
	require.ErrorIs(t, err, domain.ErrInvalidDuration)
}

func TestRenewExtendsFromExpiry(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)
	original := sub.ExpiresAt

	renewed, err := ledger.Renew(ctx, nil, sub.ID, basicPkg, now.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, sub.ID, renewed.ID)
	assert.True(t, renewed.ExpiresAt.Equal(original.Add(30*24*time.Hour)))

	stored, err := ledger.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Equal(renewed.ExpiresAt))
}

func TestRenewLapsedExtendsFromNow(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	later := now.Add(40 * 24 * time.Hour)
	renewed, err := ledger.Renew(ctx, nil, sub.ID, basicPkg, later)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.Equal(later.Add(30*24*time.Hour)))
	assert.True(t, ledger.IsEntitled(renewed, later))
}

func TestRenewAfterExpirySweep(t *testing.T) {
	ledger, db := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	later := sub.ExpiresAt.Add(5 * time.Minute)
	n, err := ledger.ExpireDue(ctx, later, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	renewed, err := ledger.Renew(ctx, nil, sub.ID, basicPkg, later)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, renewed.ID)
	assert.Equal(t, domain.SubscriptionStatusActive, renewed.Status)
	assert.True(t, renewed.ExpiresAt.Equal(later.Add(30*24*time.Hour)))

	stored, err := ledger.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, stored.Status)
	assert.True(t, ledger.IsEntitled(stored, later))
	assert.Equal(t, int64(1), testutil.Count(t, db, `SELECT COUNT(1) FROM subscriptions WHERE owner_id = ? AND status = 'active'`, 7))
}

func TestRenewLapsedYieldsToNewerSubscription(t *testing.T) {
	ledger, db := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	old, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	later := old.ExpiresAt.Add(time.Hour)
	_, err = ledger.ExpireDue(ctx, later, 10)
	require.NoError(t, err)
	_, err = ledger.Activate(ctx, nil, 7, proPkg, later)
	require.NoError(t, err)

	_, err = ledger.Renew(ctx, nil, old.ID, basicPkg, later.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrAlreadyActive)

	stored, err := ledger.FindByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusExpired, stored.Status)
	assert.Equal(t, int64(1), testutil.Count(t, db, `SELECT COUNT(1) FROM subscriptions WHERE owner_id = ? AND status = 'active'`, 7))
}

func TestRenewRejectsCancelled(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)
	_, err = ledger.Cancel(ctx, nil, sub.ID, now.Add(time.Hour))
	require.NoError(t, err)

	_, err = ledger.Renew(ctx, nil, sub.ID, basicPkg, now.Add(2*time.Hour))
	require.ErrorIs(t, err, domain.ErrSubscriptionNotActive)
}

func TestRenewRejectsPackageMismatch(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, baseTime())
	require.NoError(t, err)

	_, err = ledger.Renew(ctx, nil, sub.ID, proPkg, baseTime())
	require.ErrorIs(t, err, domain.ErrPackageMismatch)

	_, err = ledger.Renew(ctx, nil, 999, basicPkg, baseTime())
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestUpgradeKeepsExpiry(t *testing.T) {
	ledger, db := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	at := now.Add(10 * 24 * time.Hour)
	next, err := ledger.Upgrade(ctx, nil, sub.ID, proPkg, at)
	require.NoError(t, err)
	assert.NotEqual(t, sub.ID, next.ID)
	assert.Equal(t, proPkg.ID, next.PackageID)
	assert.True(t, next.ExpiresAt.Equal(sub.ExpiresAt))
	assert.True(t, next.StartsAt.Equal(at))

	old, err := ledger.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, old.Status)
	assert.Equal(t, int64(1), testutil.Count(t, db, `SELECT COUNT(1) FROM subscriptions WHERE owner_id = ? AND status = 'active'`, 7))
}

func TestUpgradeRejectsLapsed(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	_, err = ledger.Upgrade(ctx, nil, sub.ID, proPkg, now.Add(31*24*time.Hour))
	require.ErrorIs(t, err, domain.ErrSubscriptionNotActive)
}

func TestCancel(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	cancelled, err := ledger.Cancel(ctx, nil, sub.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.False(t, ledger.IsEntitled(cancelled, now.Add(time.Hour)))

	again, err := ledger.Cancel(ctx, nil, sub.ID, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, again.Status)

	current, err := ledger.FindCurrent(ctx, 7, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestCancelRejectsExpired(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)
	later := now.Add(31 * 24 * time.Hour)
	n, err := ledger.ExpireDue(ctx, later, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = ledger.Cancel(ctx, nil, sub.ID, later)
	require.ErrorIs(t, err, domain.ErrSubscriptionNotActive)
}

func TestCancelRejectsLapsedActiveRow(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	later := now.Add(31 * 24 * time.Hour)
	_, err = ledger.Cancel(ctx, nil, sub.ID, later)
	require.ErrorIs(t, err, domain.ErrSubscriptionNotActive)

	stored, err := ledger.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, stored.Status)
	assert.Nil(t, stored.CancelledAt)
}

func TestExpireDueSkipsEntitled(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	early, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)
	late, err := ledger.Activate(ctx, nil, 8, basicPkg, now.Add(10*24*time.Hour))
	require.NoError(t, err)

	n, err := ledger.ExpireDue(ctx, now.Add(31*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := ledger.FindByID(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusExpired, stored.Status)

	stored, err = ledger.FindByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, stored.Status)
}

func TestFindCurrentIgnoresLapsedActiveRow(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	now := baseTime()

	sub, err := ledger.Activate(ctx, nil, 7, basicPkg, now)
	require.NoError(t, err)

	later := sub.ExpiresAt
	current, err := ledger.FindCurrent(ctx, 7, later)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Equal(t, domain.SubscriptionStatusExpired, sub.EffectiveStatus(later))
}
