// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the rating service to distinguish between different
// failure scenarios without inspecting driver errors themselves.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist (or, for
// owner-scoped lookups, is not visible to the caller).
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert or update collides with the
// unique email index of users or stores.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict is returned when a write is refused because other rows still
// depend on the current state, such as demoting a user who owns stores.
var ErrConflict = errors.New("conflict")

// DBTX is satisfied by both *sql.DB and *sql.Tx so that statements which
// must run inside the rating transaction can share code with pool reads.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQL server error numbers the repositories react to.
const (
	mysqlDuplicateEntry  = 1062
	mysqlNoReferencedRow = 1452
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

func mysqlCode(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool { return mysqlCode(err) == mysqlDuplicateEntry }

func isMissingReference(err error) bool { return mysqlCode(err) == mysqlNoReferencedRow }

// IsRetryable reports whether err is a deadlock or lock wait timeout, after
// which the whole transaction may be replayed.
func IsRetryable(err error) bool {
	switch mysqlCode(err) {
	case mysqlDeadlock, mysqlLockWaitTimeout:
		return true
	}
	return false
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Offset converts the page into a row offset.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

func orderDir(s string) string {
	if s == "desc" || s == "DESC" {
		return "DESC"
	}
	return "ASC"
}
