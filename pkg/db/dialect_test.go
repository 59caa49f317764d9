package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func connFor(dialector gorm.Dialector) *gorm.DB {
	return &gorm.DB{Config: &gorm.Config{Dialector: dialector}}
}

func TestInsertIgnoringDuplicate(t *testing.T) {
	insert := `INSERT INTO settlement_events (id, dedupe_key) VALUES (?, ?)`

	mysqlConn := connFor(gormmysql.New(gormmysql.Config{DSN: "user:pass@tcp(localhost:3306)/settlr"}))
	assert.True(t, IsMySQL(mysqlConn))
	assert.Equal(t,
		`INSERT IGNORE INTO settlement_events (id, dedupe_key) VALUES (?, ?)`,
		InsertIgnoringDuplicate(mysqlConn, insert, "dedupe_key"),
	)

	for _, conn := range []*gorm.DB{
		connFor(postgres.New(postgres.Config{DSN: "host=localhost dbname=settlr"})),
		connFor(sqlite.Open("file::memory:")),
	} {
		assert.False(t, IsMySQL(conn))
		assert.Equal(t,
			insert+` ON CONFLICT (dedupe_key) DO NOTHING`,
			InsertIgnoringDuplicate(conn, insert, "dedupe_key"),
		)
	}

	assert.False(t, IsMySQL(nil))
}

func TestForUpdateSkipsSQLite(t *testing.T) {
	query := `SELECT id FROM payments WHERE reference = ?`
	assert.Equal(t, query, ForUpdate(connFor(sqlite.Open("file::memory:")), query))
	assert.Equal(t, query+" FOR UPDATE", ForUpdate(connFor(postgres.New(postgres.Config{DSN: "host=localhost"})), query))
	assert.Equal(t, query+" FOR UPDATE SKIP LOCKED", ForUpdateSkipLocked(connFor(gormmysql.New(gormmysql.Config{DSN: "x"})), query))
}
