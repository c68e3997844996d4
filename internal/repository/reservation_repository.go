package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/court-booking/internal/model"
)

// ReservationRepo persists reservations.  active_slot_id mirrors slot_id
// while a reservation is confirmed or checked in and is NULL otherwise;
// the unique (user_account, active_slot_id) key therefore forbids two
// active reservations by one user on one slot.
type ReservationRepo struct{ DB *sql.DB }

func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{DB: db} }

const reservationColumns = "id, user_account, slot_id, status, created_at, cancelled_at"

// CreateTx inserts a confirmed reservation and returns it.  ErrDuplicate
// means the user already holds an active reservation on the slot.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, account string, slotID int64, at time.Time) (*model.Reservation, error) {
	at = at.UTC()
	id, err := insertID(tx.ExecContext(ctx,
		"INSERT INTO reservations (user_account, slot_id, status, active_slot_id, created_at) VALUES (?,?,?,?,?)",
		account, slotID, string(model.StatusConfirmed), slotID, at))
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	return &model.Reservation{
		ID:          id,
		UserAccount: account,
		SlotID:      slotID,
		Status:      model.StatusConfirmed,
		CreatedAt:   at,
	}, nil
}

// GetTx loads a reservation or returns ErrNotFound.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select reservation: %w", err)
	}
	return res, nil
}

// FindActiveTx returns the user's confirmed or checked-in reservation on a
// slot, or ErrNotFound.
func (r *ReservationRepo) FindActiveTx(ctx context.Context, tx *sql.Tx, account string, slotID int64) (*model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE user_account = ? AND active_slot_id = ? LIMIT 1",
		account, slotID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select active reservation: %w", err)
	}
	return res, nil
}

// CountActiveTx counts confirmed and checked-in reservations on a slot.
func (r *ReservationRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, slotID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reservations WHERE slot_id = ? AND status IN ('confirmed','checked_in')",
		slotID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active reservations: %w", err)
	}
	return n, nil
}

// TransitionTx moves a reservation out of `from` into `to`.  It reports
// false when the reservation was no longer in `from`, which happens when a
// concurrent transaction got there first.  Leaving an active status clears
// active_slot_id and, for cancellations, stamps cancelled_at.
func (r *ReservationRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id int64, from, to model.Status, at time.Time) (bool, error) {
	var (
		q    string
		args []any
	)
	switch {
	case to.Active():
		q = "UPDATE reservations SET status = ? WHERE id = ? AND status = ?"
		args = []any{string(to), id, string(from)}
	case to == model.StatusCancelled || to == model.StatusCancelledByTeacher:
		q = "UPDATE reservations SET status = ?, active_slot_id = NULL, cancelled_at = ? WHERE id = ? AND status = ?"
		args = []any{string(to), at.UTC(), id, string(from)}
	default:
		q = "UPDATE reservations SET status = ?, active_slot_id = NULL WHERE id = ? AND status = ?"
		args = []any{string(to), id, string(from)}
	}
	n, err := rowsAffected(tx.ExecContext(ctx, q, args...))
	if err != nil {
		return false, fmt.Errorf("update reservation status: %w", err)
	}
	return n == 1, nil
}

// ListConfirmedOnSlotTx returns confirmed reservations on a slot held by
// anyone other than except.
func (r *ReservationRepo) ListConfirmedOnSlotTx(ctx context.Context, tx *sql.Tx, slotID int64, except string) ([]model.Reservation, error) {
	return listReservations(ctx, tx,
		"SELECT "+reservationColumns+" FROM reservations WHERE slot_id = ? AND status = 'confirmed' AND user_account <> ? ORDER BY id",
		slotID, except)
}

// ListExpiredConfirmedTx returns confirmed reservations whose slot ended
// strictly before the given wall-clock date and time.
func (r *ReservationRepo) ListExpiredConfirmedTx(ctx context.Context, tx *sql.Tx, date, timeOfDay string) ([]model.Reservation, error) {
	return listReservations(ctx, tx,
		`SELECT r.id, r.user_account, r.slot_id, r.status, r.created_at, r.cancelled_at
		FROM reservations r
		JOIN time_slots s ON s.id = r.slot_id
		WHERE r.status = 'confirmed' AND (s.slot_date < ? OR (s.slot_date = ? AND s.end_time < ?))
		ORDER BY r.id`,
		date, date, timeOfDay)
}

func listReservations(ctx context.Context, q querier, query string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res       model.Reservation
		status    string
		cancelled sql.NullTime
	)
	if err := s.Scan(&res.ID, &res.UserAccount, &res.SlotID, &status, &res.CreatedAt, &cancelled); err != nil {
		return nil, err
	}
	res.Status = model.Status(status)
	res.CancelledAt = timePtr(cancelled)
	return &res, nil
}
