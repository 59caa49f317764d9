package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", gorm.ErrDuplicatedKey, true},
		{"pgx", fmt.Errorf("insert payment: %w", &pgconn.PgError{Code: "23505"}), true},
		{"lib/pq", &pq.Error{Code: "23505"}, true},
		{"mysql", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"sqlite", errors.New("UNIQUE constraint failed: payments.reference"), true},
		{"other pg", &pgconn.PgError{Code: "23503"}, false},
		{"plain", errors.New("connection reset by peer"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestIsRetryableErr(t *testing.T) {
	assert.True(t, IsRetryableErr(&pgconn.PgError{Code: "55P03"}))
	assert.True(t, IsRetryableErr(&pq.Error{Code: "40001"}))
	assert.True(t, IsRetryableErr(&mysql.MySQLError{Number: 1213}))
	assert.True(t, IsRetryableErr(errors.New("database is locked")))
	assert.False(t, IsRetryableErr(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsRetryableErr(nil))
}
