package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/settlr/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite":
		name := strings.TrimSpace(cfg.DBName)
		if name == "" {
			name = "settlr.db"
		}
		return sqlite.Open(name), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

// IsSQLite reports whether row locking clauses must be omitted.
func IsSQLite(conn *gorm.DB) bool {
	return conn != nil && conn.Dialector != nil && strings.EqualFold(conn.Dialector.Name(), "sqlite")
}

// IsMySQL reports whether conflict handling needs the MySQL spelling.
func IsMySQL(conn *gorm.DB) bool {
	return conn != nil && conn.Dialector != nil && strings.EqualFold(conn.Dialector.Name(), "mysql")
}

// InsertIgnoringDuplicate turns insert into a statement that inserts
// nothing when conflictColumn already holds the value.
func InsertIgnoringDuplicate(conn *gorm.DB, insert, conflictColumn string) string {
	if IsMySQL(conn) {
		return strings.Replace(insert, "INSERT INTO", "INSERT IGNORE INTO", 1)
	}
	return insert + " ON CONFLICT (" + conflictColumn + ") DO NOTHING"
}

// ForUpdate appends a row lock clause where the dialect supports it.
func ForUpdate(conn *gorm.DB, query string) string {
	if IsSQLite(conn) {
		return query
	}
	return query + " FOR UPDATE"
}

// ForUpdateSkipLocked appends a non-blocking row lock clause where supported.
func ForUpdateSkipLocked(conn *gorm.DB, query string) string {
	if IsSQLite(conn) {
		return query
	}
	return query + " FOR UPDATE SKIP LOCKED"
}
