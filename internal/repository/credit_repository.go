package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/court-booking/internal/model"
)

// CreditRepo appends to and reads credit_logs.  Rows are never updated or
// deleted.
type CreditRepo struct{ DB *sql.DB }

func NewCreditRepo(db *sql.DB) *CreditRepo { return &CreditRepo{DB: db} }

// AppendTx writes one log entry.
func (r *CreditRepo) AppendTx(ctx context.Context, tx *sql.Tx, account string, delta int, reason string, at time.Time) error {
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO credit_logs (user_account, delta, reason, created_at) VALUES (?,?,?,?)",
		account, delta, reason, at.UTC()); err != nil {
		return fmt.Errorf("insert credit log: %w", err)
	}
	return nil
}

// LastPenaltyTx returns the most recent entry with a negative delta, or
// ErrNotFound when the user has never been penalised.
func (r *CreditRepo) LastPenaltyTx(ctx context.Context, tx *sql.Tx, account string) (*model.CreditLog, error) {
	var l model.CreditLog
	err := tx.QueryRowContext(ctx,
		"SELECT id, user_account, delta, reason, created_at FROM credit_logs WHERE user_account = ? AND delta < 0 ORDER BY created_at DESC, id DESC LIMIT 1",
		account).Scan(&l.ID, &l.UserAccount, &l.Delta, &l.Reason, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select last penalty: %w", err)
	}
	return &l, nil
}

// ListByUser returns a user's log, newest first.
func (r *CreditRepo) ListByUser(ctx context.Context, account string, limit int) ([]model.CreditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, user_account, delta, reason, created_at FROM credit_logs WHERE user_account = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		account, limit)
	if err != nil {
		return nil, fmt.Errorf("select credit logs: %w", err)
	}
	defer rows.Close()
	out := make([]model.CreditLog, 0)
	for rows.Next() {
		var l model.CreditLog
		if err := rows.Scan(&l.ID, &l.UserAccount, &l.Delta, &l.Reason, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
