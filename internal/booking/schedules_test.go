package booking

import (
	"errors"
	"testing"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/queue"
)

// Tuesdays from 2025-03-11 up to the horizon 2025-07-10.
const tuesdaysInHorizon = 18

func tuesdayEvening(coach string, venue int64) ScheduleRequest {
	return ScheduleRequest{
		InstructorAccount: coach,
		VenueID:           venue,
		DayOfWeek:         1,
		StartTime:         "18:00",
		EndTime:           "19:00",
	}
}

func TestAddRecurringScheduleLocksEveryOccurrence(t *testing.T) {
	f := newFixture(t, 2)
	f.user("coach", model.RoleInstructor, 100)
	f.user("alice", model.RoleMember, 100)
	f.user("bob", model.RoleMember, 100)

	// A pre-existing open slot on the first Tuesday with two members on it,
	// one of whom has already checked in.
	slot := f.slot(f.courts[0], "2025-03-11", "18:00:00", "19:00:00", 4, false)
	a, err := f.svc.Book(f.ctx, "alice", slot)
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.Book(f.ctx, "bob", slot)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.CheckIn(f.ctx, "bob", b.ID); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.HorizonEndDate != "2025-07-10" {
		t.Fatalf("horizon = %s, want 2025-07-10", res.HorizonEndDate)
	}
	if want := tuesdaysInHorizon * 2; res.SlotsLocked != want {
		t.Fatalf("slots locked = %d, want %d", res.SlotsLocked, want)
	}
	if res.Displaced != 1 || res.Extended {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.status(a.ID); got != model.StatusCancelledByTeacher {
		t.Fatalf("alice status = %s, want cancelled_by_teacher", got)
	}
	if got := f.status(b.ID); got != model.StatusCheckedIn {
		t.Fatalf("checked-in reservation was touched: %s", got)
	}

	pre := f.getSlot(slot)
	if !pre.IsLocked || pre.CurrentCount != 2 {
		t.Fatalf("pre-existing slot = %+v, want locked with bob and coach", pre)
	}
	coachActive := f.countRows("SELECT COUNT(*) FROM reservations WHERE user_account = 'coach' AND status = 'confirmed'")
	if coachActive != res.SlotsLocked {
		t.Fatalf("coach reservations = %d, want %d", coachActive, res.SlotsLocked)
	}
	created := f.countRows("SELECT COUNT(*) FROM time_slots WHERE max_capacity = 1 AND current_count = 1 AND is_locked = 1")
	if created != res.SlotsLocked-1 {
		t.Fatalf("new locked slots = %d, want %d", created, res.SlotsLocked-1)
	}
	if n := f.countRows("SELECT COUNT(*) FROM time_slots WHERE slot_date > '2025-07-10'"); n != 0 {
		t.Fatalf("slots beyond horizon: %d", n)
	}
	if f.rec.count(queue.EventScheduleAdded) != 1 || f.rec.count(queue.EventReservationDisplaced) != 1 {
		t.Fatalf("events = %v", f.rec.types())
	}
	f.checkInvariant()

	if _, err := f.svc.Book(f.ctx, "alice", slot); !errors.Is(err, ErrSlotFull) {
		t.Fatalf("booking a locked slot = %v, want ErrSlotFull", err)
	}
}

func TestAddRecurringScheduleIsIdempotent(t *testing.T) {
	f := newFixture(t, 2)
	f.user("coach", model.RoleInstructor, 100)

	first, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	slots := f.countRows("SELECT COUNT(*) FROM time_slots")
	reservations := f.countRows("SELECT COUNT(*) FROM reservations")

	second, err := f.svc.AddRecurringSchedule(f.ctx, ScheduleRequest{
		InstructorAccount: "coach",
		VenueID:           f.venue,
		DayOfWeek:         1,
		StartTime:         "18:00:00",
		EndTime:           "19:00:00",
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.ScheduleID != first.ScheduleID || !second.Extended || second.Displaced != 0 {
		t.Fatalf("second add = %+v, first = %+v", second, first)
	}
	if got := f.countRows("SELECT COUNT(*) FROM recurring_schedules"); got != 1 {
		t.Fatalf("schedules = %d, want 1", got)
	}
	if got := f.countRows("SELECT COUNT(*) FROM time_slots"); got != slots {
		t.Fatalf("slots = %d, want %d", got, slots)
	}
	if got := f.countRows("SELECT COUNT(*) FROM reservations"); got != reservations {
		t.Fatalf("reservations = %d, want %d", got, reservations)
	}
	if got := f.countRows("SELECT COUNT(*) FROM time_slots WHERE current_count <> 1 OR is_locked <> 1"); got != 0 {
		t.Fatalf("%d slots not locked exactly once", got)
	}
	f.checkInvariant()
}

func TestAddRecurringScheduleExtendsHorizon(t *testing.T) {
	f := newFixture(t, 1)
	f.user("coach", model.RoleInstructor, 100)
	first, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	f.clk.Set(monday.AddDate(0, 0, 14))
	second, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	if second.ScheduleID != first.ScheduleID || second.HorizonEndDate != "2025-07-24" {
		t.Fatalf("second = %+v", second)
	}
	var horizon string
	if err := f.db.QueryRow("SELECT horizon_end_date FROM recurring_schedules WHERE id = ?", first.ScheduleID).Scan(&horizon); err != nil {
		t.Fatal(err)
	}
	if horizon != "2025-07-24" {
		t.Fatalf("stored horizon = %s", horizon)
	}
	f.checkInvariant()
}

func TestAddRecurringScheduleDenials(t *testing.T) {
	f := newFixture(t, 1)
	f.user("coach", model.RoleInstructor, 100)
	f.user("alice", model.RoleMember, 100)

	empty := newFixture(t, 0)
	empty.user("coach", model.RoleInstructor, 100)

	if _, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("alice", f.venue)); !errors.Is(err, ErrNotInstructor) {
		t.Fatalf("member add = %v, want ErrNotInstructor", err)
	}
	if _, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("nobody", f.venue)); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown add = %v, want ErrUserNotFound", err)
	}
	if _, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", 999)); !errors.Is(err, ErrVenueNotFound) {
		t.Fatalf("missing venue = %v, want ErrVenueNotFound", err)
	}
	if _, err := empty.svc.AddRecurringSchedule(empty.ctx, tuesdayEvening("coach", empty.venue)); !errors.Is(err, ErrNoCourts) {
		t.Fatalf("no courts = %v, want ErrNoCourts", err)
	}
	if n := empty.countRows("SELECT COUNT(*) FROM recurring_schedules"); n != 0 {
		t.Fatalf("denied add left %d schedules", n)
	}

	bad := []ScheduleRequest{
		{InstructorAccount: "coach", VenueID: f.venue, DayOfWeek: 7, StartTime: "18:00", EndTime: "19:00"},
		{InstructorAccount: "coach", VenueID: f.venue, DayOfWeek: -1, StartTime: "18:00", EndTime: "19:00"},
		{InstructorAccount: "coach", VenueID: f.venue, DayOfWeek: 1, StartTime: "19:00", EndTime: "18:00"},
		{InstructorAccount: "coach", VenueID: f.venue, DayOfWeek: 1, StartTime: "6pm", EndTime: "19:00"},
		{InstructorAccount: "coach", VenueID: 0, DayOfWeek: 1, StartTime: "18:00", EndTime: "19:00"},
		{InstructorAccount: "", VenueID: f.venue, DayOfWeek: 1, StartTime: "18:00", EndTime: "19:00"},
	}
	for i, req := range bad {
		if _, err := f.svc.AddRecurringSchedule(f.ctx, req); !IsValidation(err) {
			t.Errorf("case %d: %v, want validation error", i, err)
		}
	}
}

func TestRemoveRecurringScheduleIsScoped(t *testing.T) {
	f := newFixture(t, 1)
	f.user("coach", model.RoleInstructor, 100)
	f.user("alice", model.RoleMember, 100)

	evening, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	overlap, err := f.svc.AddRecurringSchedule(f.ctx, ScheduleRequest{
		InstructorAccount: "coach",
		VenueID:           f.venue,
		DayOfWeek:         1,
		StartTime:         "18:30",
		EndTime:           "19:30",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.RemoveRecurringSchedule(f.ctx, "coach", evening.ScheduleID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	released := f.countRows("SELECT COUNT(*) FROM time_slots WHERE start_time = '18:00:00' AND is_locked = 0 AND current_count = 0")
	if released != tuesdaysInHorizon {
		t.Fatalf("released slots = %d, want %d", released, tuesdaysInHorizon)
	}
	kept := f.countRows("SELECT COUNT(*) FROM time_slots WHERE start_time = '18:30:00' AND is_locked = 1 AND current_count = 1")
	if kept != overlap.SlotsLocked {
		t.Fatalf("overlapping schedule slots still locked = %d, want %d", kept, overlap.SlotsLocked)
	}
	if n := f.countRows("SELECT COUNT(*) FROM recurring_schedules WHERE id = ?", evening.ScheduleID); n != 0 {
		t.Fatalf("schedule row not deleted")
	}
	f.checkInvariant()

	var freed int64
	if err := f.db.QueryRow("SELECT id FROM time_slots WHERE slot_date = '2025-03-18' AND start_time = '18:00:00'").Scan(&freed); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Book(f.ctx, "alice", freed); err != nil {
		t.Fatalf("booking a released slot: %v", err)
	}
	if err := f.svc.RemoveRecurringSchedule(f.ctx, "coach", evening.ScheduleID); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("second remove = %v, want ErrScheduleNotFound", err)
	}
	f.checkInvariant()
}

func TestRemoveRecurringScheduleUnlocksSlotItCouldNotReserve(t *testing.T) {
	f := newFixture(t, 1)
	f.user("coach", model.RoleInstructor, 100)
	f.user("alice", model.RoleMember, 100)
	f.user("bob", model.RoleMember, 100)

	full := f.slot(f.courts[0], "2025-03-11", "18:00:00", "19:00:00", 1, false)
	r, err := f.svc.Book(f.ctx, "alice", full)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.CheckIn(f.ctx, "alice", r.ID); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	if sl := f.getSlot(full); !sl.IsLocked || sl.CurrentCount != 1 {
		t.Fatalf("full slot after add = %+v, want locked with alice only", sl)
	}
	if n := f.countRows("SELECT COUNT(*) FROM reservations WHERE user_account = 'coach' AND slot_id = ?", full); n != 0 {
		t.Fatalf("coach got %d reservations on a full slot", n)
	}

	if err := f.svc.RemoveRecurringSchedule(f.ctx, "coach", res.ScheduleID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	sl := f.getSlot(full)
	if sl.IsLocked || sl.CurrentCount != 1 {
		t.Fatalf("full slot after remove = %+v, want unlocked with alice", sl)
	}
	if n := f.countRows("SELECT COUNT(*) FROM time_slots WHERE is_locked = 1"); n != 0 {
		t.Fatalf("locked slots left = %d", n)
	}
	if got := f.status(r.ID); got != model.StatusCheckedIn {
		t.Fatalf("alice status = %s, want checked_in", got)
	}

	// The slot is bookable again once capacity frees up.
	if _, err := f.db.Exec("UPDATE time_slots SET max_capacity = 2 WHERE id = ?", full); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Book(f.ctx, "bob", full); err != nil {
		t.Fatalf("booking a released slot: %v", err)
	}
	f.checkInvariant()
}

func TestRemoveRecurringScheduleKeepsLockOfSharedSlot(t *testing.T) {
	f := newFixture(t, 1)
	f.user("coach", model.RoleInstructor, 100)
	f.user("other", model.RoleInstructor, 100)

	first, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("other", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	if second.Displaced != tuesdaysInHorizon {
		t.Fatalf("displaced = %d, want %d", second.Displaced, tuesdaysInHorizon)
	}

	if err := f.svc.RemoveRecurringSchedule(f.ctx, "coach", first.ScheduleID); err != nil {
		t.Fatal(err)
	}
	if n := f.countRows("SELECT COUNT(*) FROM time_slots WHERE is_locked = 1 AND current_count = 1"); n != tuesdaysInHorizon {
		t.Fatalf("slots still held by other = %d, want %d", n, tuesdaysInHorizon)
	}

	if err := f.svc.RemoveRecurringSchedule(f.ctx, "other", second.ScheduleID); err != nil {
		t.Fatal(err)
	}
	if n := f.countRows("SELECT COUNT(*) FROM time_slots WHERE is_locked = 1"); n != 0 {
		t.Fatalf("locked slots left = %d", n)
	}
	f.checkInvariant()
}

func TestRemoveRecurringScheduleLeavesPastSlots(t *testing.T) {
	f := newFixture(t, 1)
	f.user("coach", model.RoleInstructor, 100)
	res, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	// Three weeks later the first three Tuesdays are in the past.
	f.clk.Set(monday.AddDate(0, 0, 21))
	if err := f.svc.RemoveRecurringSchedule(f.ctx, "coach", res.ScheduleID); err != nil {
		t.Fatal(err)
	}
	if n := f.countRows("SELECT COUNT(*) FROM time_slots WHERE is_locked = 1"); n != 3 {
		t.Fatalf("locked slots left = %d, want 3 past ones", n)
	}
	f.checkInvariant()
}

func TestRemoveRecurringScheduleOwnership(t *testing.T) {
	f := newFixture(t, 1)
	f.user("coach", model.RoleInstructor, 100)
	f.user("other", model.RoleInstructor, 100)
	f.user("root", model.RoleAdministrator, 100)

	res, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RemoveRecurringSchedule(f.ctx, "other", res.ScheduleID); !errors.Is(err, ErrNotScheduleOwner) {
		t.Fatalf("remove by other = %v, want ErrNotScheduleOwner", err)
	}
	if err := f.svc.RemoveRecurringSchedule(f.ctx, "root", res.ScheduleID); err != nil {
		t.Fatalf("remove by administrator: %v", err)
	}
	if n := f.countRows("SELECT COUNT(*) FROM reservations WHERE user_account = 'coach' AND status = 'confirmed'"); n != 0 {
		t.Fatalf("coach still holds %d reservations", n)
	}
	f.checkInvariant()
}

func TestRemoveRecurringScheduleLegacyHorizon(t *testing.T) {
	f := newFixture(t, 1)
	f.user("coach", model.RoleInstructor, 100)
	res, err := f.svc.AddRecurringSchedule(f.ctx, tuesdayEvening("coach", f.venue))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.Exec("UPDATE recurring_schedules SET horizon_end_date = NULL WHERE id = ?", res.ScheduleID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RemoveRecurringSchedule(f.ctx, "coach", res.ScheduleID); err != nil {
		t.Fatal(err)
	}
	if n := f.countRows("SELECT COUNT(*) FROM time_slots WHERE is_locked = 1"); n != 0 {
		t.Fatalf("locked slots left = %d", n)
	}
	f.checkInvariant()
}

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]string{"9:05": "09:05:00", "18:00": "18:00:00", "07:30:15": "07:30:15"}
	for in, want := range cases {
		got, err := parseTimeOfDay(in)
		if err != nil || got != want {
			t.Errorf("parseTimeOfDay(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := parseTimeOfDay("25:00"); err == nil {
		t.Errorf("25:00 accepted")
	}
}
