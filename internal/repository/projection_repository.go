package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ProjectionRepo serves the read-only views shown to users.  Each view is
// one explicit join over the booking tables; nothing here writes.
type ProjectionRepo struct{ DB *sql.DB }

func NewProjectionRepo(db *sql.DB) *ProjectionRepo { return &ProjectionRepo{DB: db} }

// SlotAvailability is one row of a venue's daily slot board.
type SlotAvailability struct {
	SlotID       int64  `json:"slot_id"`
	CourtID      int64  `json:"court_id"`
	CourtName    string `json:"court_name"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	MaxCapacity  int    `json:"max_capacity"`
	CurrentCount int    `json:"current_count"`
	Remaining    int    `json:"remaining"`
	IsHot        bool   `json:"is_hot"`
	IsLocked     bool   `json:"is_locked"`
}

// ReservationView is a reservation joined with where and when it is.
type ReservationView struct {
	ReservationID int64      `json:"reservation_id"`
	UserAccount   string     `json:"user_account"`
	SlotID        int64      `json:"slot_id"`
	VenueName     string     `json:"venue_name"`
	CourtName     string     `json:"court_name"`
	Date          string     `json:"date"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

// ScheduleView is an instructor's recurring schedule with its venue name.
type ScheduleView struct {
	ScheduleID     int64  `json:"schedule_id"`
	VenueID        int64  `json:"venue_id"`
	VenueName      string `json:"venue_name"`
	DayOfWeek      int    `json:"day_of_week"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	HorizonEndDate string `json:"horizon_end_date,omitempty"`
}

// AvailableSlots lists every slot of a venue on a date, ordered by start
// time then court name.
func (r *ProjectionRepo) AvailableSlots(ctx context.Context, venueID int64, date string) ([]SlotAvailability, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT s.id, c.id, c.name, s.slot_date, s.start_time, s.end_time,
		       s.max_capacity, s.current_count, s.is_hot, s.is_locked
		FROM time_slots s
		JOIN courts c ON c.id = s.court_id
		WHERE c.venue_id = ? AND s.slot_date = ?
		ORDER BY s.start_time, c.name`, venueID, date)
	if err != nil {
		return nil, fmt.Errorf("select available slots: %w", err)
	}
	defer rows.Close()
	out := make([]SlotAvailability, 0)
	for rows.Next() {
		var a SlotAvailability
		if err := rows.Scan(&a.SlotID, &a.CourtID, &a.CourtName, &a.Date, &a.StartTime, &a.EndTime,
			&a.MaxCapacity, &a.CurrentCount, &a.IsHot, &a.IsLocked); err != nil {
			return nil, err
		}
		if !a.IsLocked && a.MaxCapacity > a.CurrentCount {
			a.Remaining = a.MaxCapacity - a.CurrentCount
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const reservationViewSelect = `
	SELECT r.id, r.user_account, r.slot_id, v.name, c.name, s.slot_date, s.start_time, s.end_time,
	       r.status, r.created_at, r.cancelled_at
	FROM reservations r
	JOIN time_slots s ON s.id = r.slot_id
	JOIN courts c ON c.id = s.court_id
	JOIN venues v ON v.id = c.venue_id`

// UserReservations lists a user's reservations, newest first.
func (r *ProjectionRepo) UserReservations(ctx context.Context, account string) ([]ReservationView, error) {
	return r.reservationViews(ctx, reservationViewSelect+" WHERE r.user_account = ? ORDER BY r.created_at DESC, r.id DESC", account)
}

// AllReservations lists the most recent reservations across all users.
func (r *ProjectionRepo) AllReservations(ctx context.Context, limit int) ([]ReservationView, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	return r.reservationViews(ctx, reservationViewSelect+" ORDER BY r.created_at DESC, r.id DESC LIMIT ?", limit)
}

func (r *ProjectionRepo) reservationViews(ctx context.Context, query string, args ...any) ([]ReservationView, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select reservation views: %w", err)
	}
	defer rows.Close()
	out := make([]ReservationView, 0)
	for rows.Next() {
		var (
			v         ReservationView
			cancelled sql.NullTime
		)
		if err := rows.Scan(&v.ReservationID, &v.UserAccount, &v.SlotID, &v.VenueName, &v.CourtName,
			&v.Date, &v.StartTime, &v.EndTime, &v.Status, &v.CreatedAt, &cancelled); err != nil {
			return nil, err
		}
		v.CancelledAt = timePtr(cancelled)
		out = append(out, v)
	}
	return out, rows.Err()
}

// InstructorSchedules lists an instructor's recurring schedules by id.
func (r *ProjectionRepo) InstructorSchedules(ctx context.Context, account string) ([]ScheduleView, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT rs.id, rs.venue_id, v.name, rs.day_of_week, rs.start_time, rs.end_time, rs.horizon_end_date
		FROM recurring_schedules rs
		JOIN venues v ON v.id = rs.venue_id
		WHERE rs.instructor_account = ?
		ORDER BY rs.id`, account)
	if err != nil {
		return nil, fmt.Errorf("select schedules: %w", err)
	}
	defer rows.Close()
	out := make([]ScheduleView, 0)
	for rows.Next() {
		var (
			v       ScheduleView
			horizon sql.NullString
		)
		if err := rows.Scan(&v.ScheduleID, &v.VenueID, &v.VenueName, &v.DayOfWeek, &v.StartTime, &v.EndTime, &horizon); err != nil {
			return nil, err
		}
		v.HorizonEndDate = horizon.String
		out = append(out, v)
	}
	return out, rows.Err()
}
