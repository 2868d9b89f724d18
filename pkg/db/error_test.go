package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: class_performance.class_id")))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection reset")))
}

func TestIsUndefinedTable(t *testing.T) {
	assert.False(t, IsUndefinedTable(nil))
	assert.True(t, IsUndefinedTable(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, IsUndefinedTable(errors.New("no such table: invoices_2024_q1")))
	assert.False(t, IsUndefinedTable(errors.New("syntax error")))
}

func TestDialect(t *testing.T) {
	for _, kind := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialect(Config{Type: kind, Name: "scholara"})
		assert.NoError(t, err)
		assert.Equal(t, kind, d.Name())
	}
	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
