package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/court-booking/internal/model"
)

type ScheduleRepo struct{ DB *sql.DB }

func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{DB: db} }

const scheduleColumns = "id, instructor_account, venue_id, day_of_week, start_time, end_time, horizon_end_date, created_at"

// CreateTx inserts a schedule and returns its id.
func (r *ScheduleRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.RecurringSchedule) (int64, error) {
	var horizon any
	if s.HorizonEndDate != "" {
		horizon = s.HorizonEndDate
	}
	id, err := insertID(tx.ExecContext(ctx,
		"INSERT INTO recurring_schedules (instructor_account, venue_id, day_of_week, start_time, end_time, horizon_end_date, created_at) VALUES (?,?,?,?,?,?,?)",
		s.InstructorAccount, s.VenueID, s.DayOfWeek, s.StartTime, s.EndTime, horizon, s.CreatedAt.UTC()))
	if err != nil {
		return 0, fmt.Errorf("insert schedule: %w", err)
	}
	return id, nil
}

// GetTx loads a schedule or returns ErrNotFound.
func (r *ScheduleRepo) GetTx(ctx context.Context, tx *sql.Tx, id int64) (*model.RecurringSchedule, error) {
	return getSchedule(ctx, tx, "id = ?", id)
}

// FindIdenticalTx returns the instructor's schedule with exactly these
// parameters, or ErrNotFound.
func (r *ScheduleRepo) FindIdenticalTx(ctx context.Context, tx *sql.Tx, account string, venueID int64, dow int, start, end string) (*model.RecurringSchedule, error) {
	return getSchedule(ctx, tx,
		"instructor_account = ? AND venue_id = ? AND day_of_week = ? AND start_time = ? AND end_time = ? ORDER BY id",
		account, venueID, dow, start, end)
}

// SetHorizonTx records a new horizon end date for a schedule.
func (r *ScheduleRepo) SetHorizonTx(ctx context.Context, tx *sql.Tx, id int64, horizon string) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE recurring_schedules SET horizon_end_date = ? WHERE id = ?", horizon, id); err != nil {
		return fmt.Errorf("update schedule horizon: %w", err)
	}
	return nil
}

// DeleteTx removes a schedule.  Deleting a missing row returns ErrNotFound.
func (r *ScheduleRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id int64) error {
	n, err := rowsAffected(tx.ExecContext(ctx, "DELETE FROM recurring_schedules WHERE id = ?", id))
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByVenueWeekdayTx returns the schedules of a venue on one weekday.
func (r *ScheduleRepo) ListByVenueWeekdayTx(ctx context.Context, tx *sql.Tx, venueID int64, dow int) ([]model.RecurringSchedule, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+scheduleColumns+" FROM recurring_schedules WHERE venue_id = ? AND day_of_week = ? ORDER BY id",
		venueID, dow)
	if err != nil {
		return nil, fmt.Errorf("select venue schedules: %w", err)
	}
	defer rows.Close()
	var out []model.RecurringSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func getSchedule(ctx context.Context, q querier, where string, args ...any) (*model.RecurringSchedule, error) {
	s, err := scanSchedule(q.QueryRowContext(ctx, "SELECT "+scheduleColumns+" FROM recurring_schedules WHERE "+where+" LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select schedule: %w", err)
	}
	return s, nil
}

func scanSchedule(r rowScanner) (*model.RecurringSchedule, error) {
	var (
		s       model.RecurringSchedule
		horizon sql.NullString
	)
	if err := r.Scan(&s.ID, &s.InstructorAccount, &s.VenueID, &s.DayOfWeek, &s.StartTime, &s.EndTime, &horizon, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.HorizonEndDate = horizon.String
	return &s, nil
}
