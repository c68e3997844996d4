package booking

import (
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/queue"
)

func TestBookSecondUserGetsSlotFull(t *testing.T) {
	f := newFixture(t, 1)
	f.user("alice", model.RoleMember, 100)
	f.user("bob", model.RoleMember, 100)
	slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 1, false)

	res, err := f.svc.Book(f.ctx, "alice", slot)
	if err != nil {
		t.Fatalf("alice book: %v", err)
	}
	if res.Status != model.StatusConfirmed || res.SlotID != slot {
		t.Fatalf("unexpected reservation %+v", res)
	}
	if got := f.getSlot(slot).CurrentCount; got != 1 {
		t.Fatalf("current_count = %d, want 1", got)
	}

	if _, err := f.svc.Book(f.ctx, "bob", slot); !errors.Is(err, ErrSlotFull) {
		t.Fatalf("bob book = %v, want ErrSlotFull", err)
	}
	if got := f.getSlot(slot).CurrentCount; got != 1 {
		t.Fatalf("current_count after denial = %d, want 1", got)
	}
	if got := f.rec.count(queue.EventReservationBooked); got != 1 {
		t.Fatalf("booked events = %d, want 1", got)
	}
	f.checkInvariant()
}

func TestBookConcurrentLastSeat(t *testing.T) {
	for round := 0; round < 5; round++ {
		f := newFixture(t, 1)
		f.user("alice", model.RoleMember, 100)
		f.user("bob", model.RoleMember, 100)
		slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 1, false)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, 2)
		)
		for i, acct := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(i int, acct string) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.Book(f.ctx, acct, slot)
			}(i, acct)
		}
		close(start)
		wg.Wait()

		ok, full := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrSlotFull):
				full++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || full != 1 {
			t.Fatalf("round %d: successes=%d full=%d, want 1 and 1", round, ok, full)
		}
		if got := f.getSlot(slot).CurrentCount; got != 1 {
			t.Fatalf("current_count = %d, want 1", got)
		}
		f.checkInvariant()
	}
}

func TestBookConcurrentManySeats(t *testing.T) {
	f := newFixture(t, 1)
	accounts := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	for _, a := range accounts {
		f.user(a, model.RoleMember, 100)
	}
	slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 3, false)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, a := range accounts {
		wg.Add(1)
		go func(a string) {
			defer wg.Done()
			_, err := f.svc.Book(f.ctx, a, slot)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrSlotFull) {
				t.Errorf("book %s: %v", a, err)
			}
		}(a)
	}
	wg.Wait()
	if wins != 3 {
		t.Fatalf("successful bookings = %d, want 3", wins)
	}
	f.checkInvariant()
}

func TestBookDenials(t *testing.T) {
	f := newFixture(t, 1)
	f.user("ok", model.RoleMember, 100)
	f.user("edge", model.RoleMember, 61)
	f.user("low", model.RoleMember, 60)
	f.user("mid", model.RoleMember, 75)
	normal := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 4, false)
	hot := f.slot(f.courts[0], "2025-03-11", "19:00:00", "20:00:00", 4, true)

	cases := []struct {
		name    string
		account string
		slot    int64
		want    error
	}{
		{"unknown user", "ghost", normal, ErrUserNotFound},
		{"score 60 normal", "low", normal, ErrSuspended},
		{"score 60 hot", "low", hot, ErrSuspended},
		{"score 60 missing slot", "low", 999, ErrSuspended},
		{"missing slot", "ok", 999, ErrSlotNotFound},
		{"score 75 hot", "mid", hot, ErrHotSlotCredit},
		{"score 61 normal", "edge", normal, nil},
		{"score 75 normal", "mid", normal, nil},
		{"score 100 hot", "ok", hot, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(f.ctx, tc.account, tc.slot)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Book = %v, want %v", err, tc.want)
			}
		})
	}
	f.checkInvariant()
}

func TestBookDuplicate(t *testing.T) {
	f := newFixture(t, 1)
	f.user("alice", model.RoleMember, 100)
	slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 4, false)

	res, err := f.svc.Book(f.ctx, "alice", slot)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Book(f.ctx, "alice", slot); !errors.Is(err, ErrDuplicateBooking) {
		t.Fatalf("second book = %v, want ErrDuplicateBooking", err)
	}
	if err := f.svc.CheckIn(f.ctx, "alice", res.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Book(f.ctx, "alice", slot); !errors.Is(err, ErrDuplicateBooking) {
		t.Fatalf("book while checked in = %v, want ErrDuplicateBooking", err)
	}
	f.checkInvariant()
}

func TestBookAfterCancelIsAllowed(t *testing.T) {
	f := newFixture(t, 1)
	f.user("alice", model.RoleMember, 100)
	slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 1, false)

	res, err := f.svc.Book(f.ctx, "alice", slot)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Cancel(f.ctx, "alice", res.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Book(f.ctx, "alice", slot); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
	f.checkInvariant()
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t, 1)
	if _, err := f.svc.Book(f.ctx, " ", 1); !IsValidation(err) {
		t.Fatalf("empty account = %v, want validation error", err)
	}
	if _, err := f.svc.Book(f.ctx, "alice", 0); !IsValidation(err) {
		t.Fatalf("zero slot = %v, want validation error", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, 1)
	f.user("alice", model.RoleMember, 100)
	f.user("bob", model.RoleMember, 100)
	slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 2, false)
	res, err := f.svc.Book(f.ctx, "alice", slot)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Cancel(f.ctx, "bob", res.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("cancel by bob = %v, want ErrNotOwner", err)
	}
	if err := f.svc.Cancel(f.ctx, "alice", 999); !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("cancel missing = %v, want ErrReservationNotFound", err)
	}
	if err := f.svc.Cancel(f.ctx, "alice", res.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.status(res.ID); got != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
	if got := f.getSlot(slot).CurrentCount; got != 0 {
		t.Fatalf("current_count = %d, want 0", got)
	}
	var cancelledAt sql.NullTime
	if err := f.db.QueryRow("SELECT cancelled_at FROM reservations WHERE id = ?", res.ID).Scan(&cancelledAt); err != nil || !cancelledAt.Valid {
		t.Fatalf("cancelled_at not recorded: %v", err)
	}

	err = f.svc.Cancel(f.ctx, "alice", res.ID)
	var d *DenialError
	if !errors.As(err, &d) || d.Code != "invalid_status" {
		t.Fatalf("second cancel = %v, want invalid_status denial", err)
	}
	f.checkInvariant()
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t, 1)
	f.user("alice", model.RoleMember, 100)
	f.user("bob", model.RoleMember, 100)
	slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 2, false)
	res, err := f.svc.Book(f.ctx, "alice", slot)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.CheckIn(f.ctx, "bob", res.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("check-in by bob = %v, want ErrNotOwner", err)
	}
	if err := f.svc.CheckIn(f.ctx, "alice", res.ID); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if got := f.status(res.ID); got != model.StatusCheckedIn {
		t.Fatalf("status = %s, want checked_in", got)
	}
	if got := f.getSlot(slot).CurrentCount; got != 1 {
		t.Fatalf("check-in changed current_count to %d", got)
	}
	err = f.svc.Cancel(f.ctx, "alice", res.ID)
	if !IsDenial(err) || err.Error() != "reservation is checked_in and cannot be cancelled" {
		t.Fatalf("cancel after check-in = %v", err)
	}
	if err := f.svc.CheckIn(f.ctx, "alice", res.ID); !IsDenial(err) {
		t.Fatalf("second check-in = %v, want denial", err)
	}
	f.checkInvariant()
}

func TestAdminCancel(t *testing.T) {
	f := newFixture(t, 1)
	f.user("alice", model.RoleMember, 100)
	f.user("root", model.RoleAdministrator, 100)
	slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 1, false)
	res, err := f.svc.Book(f.ctx, "alice", slot)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.AdminCancel(f.ctx, "alice", res.ID); !errors.Is(err, ErrNotAdministrator) {
		t.Fatalf("member admin-cancel = %v, want ErrNotAdministrator", err)
	}
	if err := f.svc.AdminCancel(f.ctx, "root", res.ID); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if got := f.status(res.ID); got != model.StatusCancelled {
		t.Fatalf("status = %s", got)
	}
	f.checkInvariant()
}

func TestDeniedOperationsPublishNothing(t *testing.T) {
	f := newFixture(t, 1)
	f.user("low", model.RoleMember, 10)
	slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 1, false)
	if _, err := f.svc.Book(f.ctx, "low", slot); !errors.Is(err, ErrSuspended) {
		t.Fatalf("book = %v", err)
	}
	if n := len(f.rec.types()); n != 0 {
		t.Fatalf("events after denial = %v", f.rec.types())
	}
}

func TestBookInvalidatesSlotDate(t *testing.T) {
	f := newFixture(t, 1)
	f.user("alice", model.RoleMember, 100)
	slot := f.slot(f.courts[0], "2025-03-11", "09:00:00", "10:00:00", 1, false)
	if _, err := f.svc.Book(f.ctx, "alice", slot); err != nil {
		t.Fatal(err)
	}
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.dates) != 1 || f.rec.dates[0] != "2025-03-11" {
		t.Fatalf("invalidated dates = %v", f.rec.dates)
	}
}
