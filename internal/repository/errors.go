// Package repository holds the SQL data access layer.  Every statement is
// written in the subset of SQL shared by MySQL and SQLite, with `?`
// placeholders, so the same repositories serve production and tests.
//
// Methods with a Tx suffix run on the caller's transaction; the others run
// on the pool and are intended for read paths.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/court-booking/internal/database"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with a unique key, for
// example a second active reservation for the same user and slot.
var ErrDuplicate = errors.New("duplicate")

// ErrConflict is returned when an optimistic update lost a race with a
// concurrent writer.  It wraps database.ErrRetry so the transaction runner
// retries the whole unit of work.
var ErrConflict = fmt.Errorf("conflict: %w", database.ErrRetry)

// querier is the part of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowsAffected returns the affected row count of res or the error.
func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func insertID(res sql.Result, err error) (int64, error) {
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return res.LastInsertId()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
