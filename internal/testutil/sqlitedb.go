// Package testutil provides an in-memory settlement database for tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE packages (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		price BIGINT NOT NULL,
		currency TEXT NOT NULL,
		duration_days INTEGER NOT NULL,
		features TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payable_accounts (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		provider TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE subscriptions (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		package_id BIGINT NOT NULL,
		status TEXT NOT NULL,
		starts_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		cancelled_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_subscriptions_owner_active ON subscriptions(owner_id) WHERE status = 'active'`,
	`CREATE TABLE payments (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		subscription_id BIGINT,
		package_id BIGINT NOT NULL,
		reference TEXT NOT NULL UNIQUE,
		method TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway TEXT,
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE settlement_events (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		dedupe_key TEXT NOT NULL UNIQUE,
		published BOOLEAN NOT NULL DEFAULT FALSE,
		published_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		ip_address TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// OpenDB returns an isolated in-memory database with the settlement schema.
// A single connection is used so transactions serialize like row locks would.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// NewNode returns a snowflake node for tests.
func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// InsertPackage writes a sellable package row.
func InsertPackage(t *testing.T, db *gorm.DB, id snowflake.ID, code string, price int64, days int) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO packages (id, code, name, price, currency, duration_days, features, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, code, code+" plan", price, "VND", days, `["listing"]`, true, now, now,
	).Error
	if err != nil {
		t.Fatalf("insert package: %v", err)
	}
}

// LinkAccount gives ownerID a linked payable account.
func LinkAccount(t *testing.T, db *gorm.DB, id, ownerID snowflake.ID) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO payable_accounts (id, owner_id, provider, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, ownerID, "bank", "linked", now, now,
	).Error
	if err != nil {
		t.Fatalf("link account: %v", err)
	}
}

// Count runs a COUNT query and fails the test on error.
func Count(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}
