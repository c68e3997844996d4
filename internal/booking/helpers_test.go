package booking

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/court-booking/internal/clock"
	"github.com/iliyamo/court-booking/internal/database"
	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/queue"
	"github.com/iliyamo/court-booking/internal/repository"
)

// monday is the instant every test starts at: Monday 2025-03-10 12:00 UTC.
var monday = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []queue.Event
	dates  []string
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) InvalidateDate(_ context.Context, date string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dates = append(r.dates, date)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) count(typ string) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	db     *sql.DB
	clk    *clock.Fixed
	rec    *recorder
	svc    *Service
	venue  int64
	courts []int64
}

// newFixture migrates a fresh SQLite database holding one venue with the
// given number of courts.
func newFixture(t *testing.T, courts int) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "booking.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := database.Migrate(ctx, db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f := &fixture{
		t:   t,
		ctx: ctx,
		db:  db,
		clk: clock.NewFixed(monday),
		rec: &recorder{},
	}
	f.svc = NewService(Deps{
		Tx:         database.NewTxRunner(db, 5*time.Second, 5),
		Clock:      f.clk,
		Policy:     DefaultPolicy(),
		Events:     f.rec,
		Cache:      f.rec,
		BcryptCost: 4,
	})
	venues := repository.NewVenueRepo(db)
	f.venue, err = venues.Create(ctx, &model.Venue{Name: "North Hall"})
	if err != nil {
		t.Fatalf("create venue: %v", err)
	}
	for i := 0; i < courts; i++ {
		id, err := venues.CreateCourt(ctx, &model.Court{VenueID: f.venue, Name: string(rune('A' + i))})
		if err != nil {
			t.Fatalf("create court: %v", err)
		}
		f.courts = append(f.courts, id)
	}
	return f
}

func (f *fixture) user(account string, role model.Role, score int) {
	f.t.Helper()
	err := repository.NewUserRepo(f.db).Create(f.ctx, &model.User{
		Account:      account,
		PasswordHash: "x",
		Name:         account,
		Role:         role,
		CreditScore:  score,
		CreatedAt:    monday,
	})
	if err != nil {
		f.t.Fatalf("create user %s: %v", account, err)
	}
}

func (f *fixture) slot(courtID int64, date, start, end string, capacity int, hot bool) int64 {
	f.t.Helper()
	id, err := repository.NewSlotRepo(f.db).Create(f.ctx, &model.Slot{
		CourtID:     courtID,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		MaxCapacity: capacity,
		IsHot:       hot,
	})
	if err != nil {
		f.t.Fatalf("create slot: %v", err)
	}
	return id
}

func (f *fixture) getSlot(id int64) *model.Slot {
	f.t.Helper()
	s, err := repository.NewSlotRepo(f.db).GetByID(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get slot %d: %v", id, err)
	}
	return s
}

func (f *fixture) status(id int64) model.Status {
	f.t.Helper()
	var s string
	if err := f.db.QueryRow("SELECT status FROM reservations WHERE id = ?", id).Scan(&s); err != nil {
		f.t.Fatalf("status of %d: %v", id, err)
	}
	return model.Status(s)
}

func (f *fixture) score(account string) int {
	f.t.Helper()
	u, err := repository.NewUserRepo(f.db).GetByAccount(f.ctx, account)
	if err != nil {
		f.t.Fatalf("get user %s: %v", account, err)
	}
	return u.CreditScore
}

func (f *fixture) logs(account string) []model.CreditLog {
	f.t.Helper()
	l, err := repository.NewCreditRepo(f.db).ListByUser(f.ctx, account, 0)
	if err != nil {
		f.t.Fatalf("credit logs: %v", err)
	}
	return l
}

func (f *fixture) penalty(account string, delta int, at time.Time) {
	f.t.Helper()
	tx, err := f.db.BeginTx(f.ctx, nil)
	if err != nil {
		f.t.Fatal(err)
	}
	if err := repository.NewCreditRepo(f.db).AppendTx(f.ctx, tx, account, delta, ReasonNoShow, at); err != nil {
		_ = tx.Rollback()
		f.t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) countRows(q string, args ...any) int {
	f.t.Helper()
	var n int
	if err := f.db.QueryRow(q, args...).Scan(&n); err != nil {
		f.t.Fatalf("count %q: %v", q, err)
	}
	return n
}

// checkInvariant fails the test unless every slot's counter equals its
// active reservations and stays within capacity.
func (f *fixture) checkInvariant() {
	f.t.Helper()
	rows, err := f.db.Query(`
		SELECT s.id, s.current_count, s.max_capacity,
		       (SELECT COUNT(*) FROM reservations r WHERE r.slot_id = s.id AND r.status IN ('confirmed','checked_in'))
		FROM time_slots s`)
	if err != nil {
		f.t.Fatalf("invariant query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var count, capacity, active int
		if err := rows.Scan(&id, &count, &capacity, &active); err != nil {
			f.t.Fatal(err)
		}
		if count != active || count < 0 || count > capacity {
			f.t.Errorf("slot %d: current_count=%d active=%d max=%d", id, count, active, capacity)
		}
	}
	if err := rows.Err(); err != nil {
		f.t.Fatal(err)
	}
}
