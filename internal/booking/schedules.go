package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/court-booking/internal/clock"
	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/queue"
	"github.com/iliyamo/court-booking/internal/repository"
)

// ScheduleRequest describes a weekly lock.  DayOfWeek is Monday-based and
// the times accept HH:MM or HH:MM:SS.
type ScheduleRequest struct {
	InstructorAccount string
	VenueID           int64
	DayOfWeek         int
	StartTime         string
	EndTime           string
}

// ScheduleResult reports what AddRecurringSchedule did.  Extended is true
// when an identical schedule already existed and was reused.
type ScheduleResult struct {
	ScheduleID     int64  `json:"schedule_id"`
	HorizonEndDate string `json:"horizon_end_date"`
	SlotsLocked    int    `json:"slots_locked"`
	Displaced      int    `json:"displaced"`
	Extended       bool   `json:"extended"`
}

func (r *ScheduleRequest) normalize() error {
	r.InstructorAccount = strings.TrimSpace(r.InstructorAccount)
	if r.InstructorAccount == "" {
		return invalid("instructor_account", "is required")
	}
	if r.VenueID <= 0 {
		return invalid("venue_id", "must be positive")
	}
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return invalid("day_of_week", "must be between 0 (Monday) and 6 (Sunday)")
	}
	start, err := parseTimeOfDay(r.StartTime)
	if err != nil {
		return invalid("start_time", "must be HH:MM or HH:MM:SS")
	}
	end, err := parseTimeOfDay(r.EndTime)
	if err != nil {
		return invalid("end_time", "must be HH:MM or HH:MM:SS")
	}
	if end <= start {
		return invalid("end_time", "must be after start_time")
	}
	r.StartTime, r.EndTime = start, end
	return nil
}

// parseTimeOfDay returns s in the persisted HH:MM:SS form.
func parseTimeOfDay(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.TimeOnly, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return clock.TimeOfDay(t), nil
		}
	}
	return "", fmt.Errorf("invalid time of day %q", s)
}

// hourMinute truncates an HH:MM:SS value to HH:MM.
func hourMinute(s string) string {
	if len(s) >= 5 {
		return s[:5]
	}
	return s
}

// AddRecurringSchedule locks the slot (date, start, end) on every court of
// the venue for every matching weekday from today until the horizon.  Other
// users' confirmed reservations on those slots are displaced.  Calling it
// again with the same parameters changes nothing beyond extending the
// horizon, and the whole expansion commits or rolls back as one.
func (s *Service) AddRecurringSchedule(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	var out *ScheduleResult
	err := s.run(ctx, "booking.AddRecurringSchedule", func(ctx context.Context, tx *sql.Tx, fx *effects) error {
		if _, err := s.requireRole(ctx, tx, req.InstructorAccount, model.RoleInstructor, ErrNotInstructor); err != nil {
			return err
		}
		if _, err := s.venues.GetByIDTx(ctx, tx, req.VenueID); errors.Is(err, repository.ErrNotFound) {
			return ErrVenueNotFound
		} else if err != nil {
			return err
		}
		courts, err := s.venues.ListCourtsTx(ctx, tx, req.VenueID)
		if err != nil {
			return err
		}
		if len(courts) == 0 {
			return ErrNoCourts
		}

		now := s.now()
		today := clock.Midnight(now)
		horizon := clock.AddMonthsClamped(today, s.policy.HorizonMonths)
		res := &ScheduleResult{HorizonEndDate: clock.DateOnly(horizon)}

		existing, err := s.schedules.FindIdenticalTx(ctx, tx, req.InstructorAccount, req.VenueID, req.DayOfWeek, req.StartTime, req.EndTime)
		switch {
		case err == nil:
			res.ScheduleID, res.Extended = existing.ID, true
			if existing.HorizonEndDate >= res.HorizonEndDate {
				res.HorizonEndDate = existing.HorizonEndDate
			} else if err := s.schedules.SetHorizonTx(ctx, tx, existing.ID, res.HorizonEndDate); err != nil {
				return err
			}
		case errors.Is(err, repository.ErrNotFound):
			id, err := s.schedules.CreateTx(ctx, tx, &model.RecurringSchedule{
				InstructorAccount: req.InstructorAccount,
				VenueID:           req.VenueID,
				DayOfWeek:         req.DayOfWeek,
				StartTime:         req.StartTime,
				EndTime:           req.EndTime,
				HorizonEndDate:    res.HorizonEndDate,
				CreatedAt:         now,
			})
			if err != nil {
				return err
			}
			res.ScheduleID = id
		default:
			return err
		}

		for day := nextWeekday(today, req.DayOfWeek); !day.After(horizon); day = day.AddDate(0, 0, 7) {
			date := clock.DateOnly(day)
			for _, c := range courts {
				displaced, err := s.lockSlot(ctx, tx, fx, req, c.ID, date)
				if err != nil {
					return err
				}
				res.SlotsLocked++
				res.Displaced += displaced
			}
		}

		ev := queue.NewEvent(queue.EventScheduleAdded, now)
		ev.Account = req.InstructorAccount
		ev.ScheduleID = res.ScheduleID
		ev.Count = res.SlotsLocked
		ev.Detail = scheduleDetail(req.VenueID, req.DayOfWeek, req.StartTime, req.EndTime, res.HorizonEndDate)
		fx.emit(ev)
		out = res
		return nil
	},
		attribute.String("booking.instructor", req.InstructorAccount),
		attribute.Int64("booking.venue_id", req.VenueID),
		attribute.Int("booking.day_of_week", req.DayOfWeek),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// nextWeekday returns the first day on or after from whose Monday-based
// weekday is dow.
func nextWeekday(from time.Time, dow int) time.Time {
	return from.AddDate(0, 0, (dow-clock.Weekday(from)+7)%7)
}

// lockSlot locks one (court, date) occurrence and returns how many
// reservations it displaced.  A new slot is created with capacity 1.  The
// instructor gets a reservation unless they already hold one or the slot
// has no capacity left after displacement, which happens only when other
// users have already checked in.
func (s *Service) lockSlot(ctx context.Context, tx *sql.Tx, fx *effects, req ScheduleRequest, courtID int64, date string) (int, error) {
	slot, err := s.slots.FindTx(ctx, tx, courtID, date, req.StartTime, req.EndTime)
	displaced := 0
	switch {
	case errors.Is(err, repository.ErrNotFound):
		slot = &model.Slot{
			CourtID:     courtID,
			Date:        date,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			MaxCapacity: 1,
			IsLocked:    true,
		}
		id, err := s.slots.CreateTx(ctx, tx, slot)
		if errors.Is(err, repository.ErrDuplicate) {
			// a concurrent booking or schedule created it first
			return 0, repository.ErrConflict
		}
		if err != nil {
			return 0, err
		}
		slot.ID = id
	case err != nil:
		return 0, err
	default:
		others, err := s.reservations.ListConfirmedOnSlotTx(ctx, tx, slot.ID, req.InstructorAccount)
		if err != nil {
			return 0, err
		}
		now := s.now()
		for i := range others {
			r := &others[i]
			ok, err := s.reservations.TransitionTx(ctx, tx, r.ID, model.StatusConfirmed, model.StatusCancelledByTeacher, now)
			if err != nil {
				return 0, err
			}
			if !ok {
				continue
			}
			displaced++
			r.Status = model.StatusCancelledByTeacher
			ev := reservationEvent(queue.EventReservationDisplaced, r, s)
			ev.Detail = "slot locked by " + req.InstructorAccount
			fx.emit(ev)
		}
	}

	if _, err := s.reservations.FindActiveTx(ctx, tx, req.InstructorAccount, slot.ID); errors.Is(err, repository.ErrNotFound) {
		active, err := s.reservations.CountActiveTx(ctx, tx, slot.ID)
		if err != nil {
			return 0, err
		}
		if active < slot.MaxCapacity {
			if _, err := s.reservations.CreateTx(ctx, tx, req.InstructorAccount, slot.ID, s.now()); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return 0, repository.ErrConflict
				}
				return 0, err
			}
		}
	} else if err != nil {
		return 0, err
	}

	if err := s.slots.RecountTx(ctx, tx, slot.ID, true); err != nil {
		return 0, err
	}
	fx.touch(date)
	return displaced, nil
}

// RemoveRecurringSchedule deletes a schedule and releases the slots it
// locked.  Only slots of the schedule's venue whose date lies in
// [today, horizon], whose weekday matches and whose start and end agree to
// the minute are considered.  On those the instructor's confirmed
// reservation is cancelled and the lock is cleared, even where the
// instructor holds nothing because the slot was already full.  A slot that
// another remaining schedule still covers keeps its lock.  The owner or an
// administrator may remove a schedule.
func (s *Service) RemoveRecurringSchedule(ctx context.Context, actor string, scheduleID int64) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return invalid("account", "is required")
	}
	if scheduleID <= 0 {
		return invalid("schedule_id", "must be positive")
	}
	return s.run(ctx, "booking.RemoveRecurringSchedule", func(ctx context.Context, tx *sql.Tx, fx *effects) error {
		user, err := s.loadUser(ctx, tx, actor)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		sch, err := s.schedules.GetTx(ctx, tx, scheduleID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrScheduleNotFound
		}
		if err != nil {
			return err
		}
		if sch.InstructorAccount != actor && user.Role != model.RoleAdministrator {
			return ErrNotScheduleOwner
		}

		now := s.now()
		today := clock.Midnight(now)
		horizon := sch.HorizonEndDate
		if horizon == "" {
			horizon = clock.DateOnly(clock.AddMonthsClamped(today, s.policy.HorizonMonths))
		}
		if err := s.schedules.DeleteTx(ctx, tx, sch.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrScheduleNotFound
			}
			return err
		}

		remaining, err := s.schedules.ListByVenueWeekdayTx(ctx, tx, sch.VenueID, sch.DayOfWeek)
		if err != nil {
			return err
		}
		courts, err := s.venues.ListCourtsTx(ctx, tx, sch.VenueID)
		if err != nil {
			return err
		}
		released := 0
		for _, c := range courts {
			slots, err := s.slots.ListByCourtBetweenTx(ctx, tx, c.ID, clock.DateOnly(today), horizon)
			if err != nil {
				return err
			}
			for i := range slots {
				if !scheduleMatches(sch, &slots[i]) {
					continue
				}
				covered := s.coveredBy(remaining, &slots[i], today)
				ok, err := s.releaseLock(ctx, tx, sch.InstructorAccount, &slots[i], covered, now)
				if err != nil {
					return err
				}
				if ok {
					released++
					fx.touch(slots[i].Date)
				}
			}
		}

		ev := queue.NewEvent(queue.EventScheduleRemoved, now)
		ev.Account = sch.InstructorAccount
		ev.ScheduleID = sch.ID
		ev.Count = released
		ev.Detail = scheduleDetail(sch.VenueID, sch.DayOfWeek, sch.StartTime, sch.EndTime, horizon)
		if actor != sch.InstructorAccount {
			ev.Detail += " removed_by=" + actor
		}
		fx.emit(ev)
		return nil
	}, attribute.String("booking.actor", actor), attribute.Int64("booking.schedule_id", scheduleID))
}

// scheduleMatches compares weekday and times at minute precision.
func scheduleMatches(sch *model.RecurringSchedule, slot *model.Slot) bool {
	if hourMinute(slot.StartTime) != hourMinute(sch.StartTime) || hourMinute(slot.EndTime) != hourMinute(sch.EndTime) {
		return false
	}
	d, err := time.Parse(time.DateOnly, slot.Date)
	if err != nil {
		return false
	}
	return clock.Weekday(d) == sch.DayOfWeek
}

// coveredBy reports whether one of schedules still locks slot.
func (s *Service) coveredBy(schedules []model.RecurringSchedule, slot *model.Slot, today time.Time) bool {
	for i := range schedules {
		horizon := schedules[i].HorizonEndDate
		if horizon == "" {
			horizon = clock.DateOnly(clock.AddMonthsClamped(today, s.policy.HorizonMonths))
		}
		if slot.Date <= horizon && scheduleMatches(&schedules[i], slot) {
			return true
		}
	}
	return false
}

// releaseLock cancels the instructor's confirmed reservation on slot and,
// unless covered, unlocks it.  It reports false when neither happened.
func (s *Service) releaseLock(ctx context.Context, tx *sql.Tx, instructor string, slot *model.Slot, covered bool, now time.Time) (bool, error) {
	cancelled := false
	res, err := s.reservations.FindActiveTx(ctx, tx, instructor, slot.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return false, err
	case res.Status == model.StatusConfirmed:
		cancelled, err = s.reservations.TransitionTx(ctx, tx, res.ID, model.StatusConfirmed, model.StatusCancelled, now)
		if err != nil {
			return false, err
		}
	}
	if !cancelled && (covered || !slot.IsLocked) {
		return false, nil
	}
	if err := s.slots.RecountTx(ctx, tx, slot.ID, covered); err != nil {
		return false, err
	}
	return true, nil
}

func scheduleDetail(venueID int64, dow int, start, end, horizon string) string {
	return fmt.Sprintf("venue=%d day_of_week=%d %s-%s until %s", venueID, dow, start, end, horizon)
}
