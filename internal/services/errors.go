package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Vendor codes for uniqueness violations.
const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// isUniqueConstraintError reports whether err was caused by a uniqueness
// violation. Postgres and MySQL carry structured codes, so any other code
// from those drivers is definitively not a duplicate. SQLite leaks the
// failure only through its message text.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
