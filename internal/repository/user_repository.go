package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/court-booking/internal/database"
	"github.com/iliyamo/court-booking/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "account, password_hash, name, role, phone, credit_score, created_at"

// Create inserts a user.  A taken account returns ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?)",
		strings.TrimSpace(u.Account), u.PasswordHash, u.Name, string(u.Role), u.Phone, u.CreditScore, u.CreatedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByAccount fetches a user outside a transaction.
func (r *UserRepo) GetByAccount(ctx context.Context, account string) (*model.User, error) {
	return getUser(ctx, r.DB, account)
}

// GetByAccountTx fetches a user inside tx.
func (r *UserRepo) GetByAccountTx(ctx context.Context, tx *sql.Tx, account string) (*model.User, error) {
	return getUser(ctx, tx, account)
}

func getUser(ctx context.Context, q querier, account string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE account = ? LIMIT 1",
		strings.TrimSpace(account)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// SetCreditTx replaces a user's credit score if it still equals expected.
// A mismatch means another transaction moved the score first and yields
// ErrConflict.
func (r *UserRepo) SetCreditTx(ctx context.Context, tx *sql.Tx, account string, expected, score int) error {
	n, err := rowsAffected(tx.ExecContext(ctx,
		"UPDATE users SET credit_score = ? WHERE account = ? AND credit_score = ?",
		score, account, expected))
	if err != nil {
		return fmt.Errorf("update credit: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ListAtOrBelowCreditTx returns every user whose score is at or below
// threshold, ordered by account.
func (r *UserRepo) ListAtOrBelowCreditTx(ctx context.Context, tx *sql.Tx, threshold int) ([]model.User, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE credit_score <= ? ORDER BY account", threshold)
	if err != nil {
		return nil, fmt.Errorf("select suspended users: %w", err)
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := s.Scan(&u.Account, &u.PasswordHash, &u.Name, &role, &u.Phone, &u.CreditScore, &u.CreatedAt); err != nil {
		return nil, err
	}
	if r, ok := model.ParseRole(role); ok {
		u.Role = r
	} else {
		u.Role = model.Role(role)
	}
	return &u, nil
}
