package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/court-booking/internal/model"
)

// SlotRepo manages time_slots.  Counter changes are conditional single
// statements so that no read-modify-write window exists between the check
// and the update.
type SlotRepo struct{ DB *sql.DB }

func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{DB: db} }

const slotColumns = "id, court_id, slot_date, start_time, end_time, max_capacity, current_count, is_hot, is_locked"

// Create inserts a slot outside a transaction (seeding, tests).
func (r *SlotRepo) Create(ctx context.Context, s *model.Slot) (int64, error) {
	return createSlot(ctx, r.DB, s)
}

// CreateTx inserts a slot inside tx.  A slot with the same court, date and
// times returns ErrDuplicate.
func (r *SlotRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.Slot) (int64, error) {
	return createSlot(ctx, tx, s)
}

func createSlot(ctx context.Context, q querier, s *model.Slot) (int64, error) {
	return insertID(q.ExecContext(ctx,
		"INSERT INTO time_slots (court_id, slot_date, start_time, end_time, max_capacity, current_count, is_hot, is_locked) VALUES (?,?,?,?,?,?,?,?)",
		s.CourtID, s.Date, s.StartTime, s.EndTime, s.MaxCapacity, s.CurrentCount, s.IsHot, s.IsLocked))
}

// GetByID reads a slot outside a transaction.
func (r *SlotRepo) GetByID(ctx context.Context, id int64) (*model.Slot, error) {
	return getSlot(ctx, r.DB, "id = ?", id)
}

// GetTx reads a slot inside tx or returns ErrNotFound.
func (r *SlotRepo) GetTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Slot, error) {
	return getSlot(ctx, tx, "id = ?", id)
}

// FindTx looks a slot up by its natural key.
func (r *SlotRepo) FindTx(ctx context.Context, tx *sql.Tx, courtID int64, date, start, end string) (*model.Slot, error) {
	return getSlot(ctx, tx, "court_id = ? AND slot_date = ? AND start_time = ? AND end_time = ?", courtID, date, start, end)
}

func getSlot(ctx context.Context, q querier, where string, args ...any) (*model.Slot, error) {
	s, err := scanSlot(q.QueryRowContext(ctx, "SELECT "+slotColumns+" FROM time_slots WHERE "+where+" LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select slot: %w", err)
	}
	return s, nil
}

// TakeSeatTx increments current_count only while the slot is unlocked and
// below capacity.  It reports false when no seat was taken.
func (r *SlotRepo) TakeSeatTx(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	n, err := rowsAffected(tx.ExecContext(ctx,
		"UPDATE time_slots SET current_count = current_count + 1 WHERE id = ? AND is_locked = 0 AND current_count < max_capacity",
		id))
	if err != nil {
		return false, fmt.Errorf("take seat: %w", err)
	}
	return n == 1, nil
}

// ReleaseSeatTx decrements current_count, never below zero.
func (r *SlotRepo) ReleaseSeatTx(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE time_slots SET current_count = CASE WHEN current_count > 0 THEN current_count - 1 ELSE 0 END WHERE id = ?",
		id)
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

// RecountTx sets the lock flag and recomputes current_count from the
// active reservations on the slot.
func (r *SlotRepo) RecountTx(ctx context.Context, tx *sql.Tx, id int64, locked bool) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE time_slots SET is_locked = ?, current_count = (
			SELECT COUNT(*) FROM reservations WHERE slot_id = ? AND status IN ('confirmed','checked_in')
		) WHERE id = ?`,
		locked, id, id)
	if err != nil {
		return fmt.Errorf("recount slot: %w", err)
	}
	return nil
}

// ListByCourtBetweenTx returns a court's slots with slot_date in
// [from, to], ordered by date and start time.
func (r *SlotRepo) ListByCourtBetweenTx(ctx context.Context, tx *sql.Tx, courtID int64, from, to string) ([]model.Slot, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+slotColumns+" FROM time_slots WHERE court_id = ? AND slot_date >= ? AND slot_date <= ? ORDER BY slot_date, start_time",
		courtID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select court slots: %w", err)
	}
	defer rows.Close()
	var out []model.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSlot(s rowScanner) (*model.Slot, error) {
	var sl model.Slot
	if err := s.Scan(&sl.ID, &sl.CourtID, &sl.Date, &sl.StartTime, &sl.EndTime,
		&sl.MaxCapacity, &sl.CurrentCount, &sl.IsHot, &sl.IsLocked); err != nil {
		return nil, err
	}
	return &sl, nil
}
