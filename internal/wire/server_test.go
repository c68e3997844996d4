package wire

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iliyamo/court-booking/internal/booking"
	"github.com/iliyamo/court-booking/internal/cache"
	"github.com/iliyamo/court-booking/internal/clock"
	"github.com/iliyamo/court-booking/internal/config"
	"github.com/iliyamo/court-booking/internal/database"
	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/repository"
	"github.com/iliyamo/court-booking/internal/utils"
)

var monday = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	clk   *clock.Fixed
	venue int64
	slot  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "wire.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := database.Migrate(ctx, db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clk := clock.NewFixed(monday)
	svc := booking.NewService(booking.Deps{
		Tx:         database.NewTxRunner(db, 5*time.Second, 5),
		Clock:      clk,
		Policy:     booking.DefaultPolicy(),
		BcryptCost: 4,
	})
	views := repository.NewProjectionRepo(db)

	venues := repository.NewVenueRepo(db)
	venue, err := venues.Create(ctx, &model.Venue{Name: "North Hall"})
	if err != nil {
		t.Fatalf("create venue: %v", err)
	}
	court, err := venues.CreateCourt(ctx, &model.Court{VenueID: venue, Name: "A"})
	if err != nil {
		t.Fatalf("create court: %v", err)
	}
	slot, err := repository.NewSlotRepo(db).Create(ctx, &model.Slot{
		CourtID: court, Date: "2025-03-11", StartTime: "10:00:00", EndTime: "11:00:00", MaxCapacity: 1,
	})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	err = repository.NewUserRepo(db).Create(ctx, &model.User{
		Account: "root", PasswordHash: mustHash(t, "rootpass"), Name: "Root",
		Role: model.RoleAdministrator, CreditScore: 100, CreatedAt: monday,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	return &testEnv{
		srv: &Server{
			Service:     svc,
			Views:       views,
			Slots:       cache.NewAvailability(config.CacheConfig{}, nil, views.AvailableSlots),
			MaxConns:    2,
			IdleTimeout: 5 * time.Second,
		},
		clk:   clk,
		venue: venue,
		slot:  slot,
	}
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	h, err := utils.HashPassword(plain, 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

// client drives one side of a connection served by ServeConn.
type client struct {
	t   *testing.T
	enc *json.Encoder
	dec *json.Decoder
}

func (e *testEnv) dial(t *testing.T) *client {
	t.Helper()
	srvSide, cliSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		e.srv.ServeConn(context.Background(), srvSide)
		close(done)
	}()
	t.Cleanup(func() {
		_ = cliSide.Close()
		<-done
	})
	return &client{t: t, enc: json.NewEncoder(cliSide), dec: json.NewDecoder(cliSide)}
}

func (c *client) call(act string, data any) Reply {
	c.t.Helper()
	req := map[string]any{"action": act}
	if data != nil {
		req["data"] = data
	}
	if err := c.enc.Encode(req); err != nil {
		c.t.Fatalf("send %s: %v", act, err)
	}
	var r Reply
	if err := c.dec.Decode(&r); err != nil {
		c.t.Fatalf("read reply to %s: %v", act, err)
	}
	return r
}

func expect(t *testing.T, r Reply, status string) {
	t.Helper()
	if r.Status != status {
		t.Fatalf("status = %q (%s), want %q", r.Status, r.Message, status)
	}
}

func TestActionFlow(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	expect(t, c.call("book_venue", map[string]any{"slot_id": env.slot}), StatusError)

	r := c.call("register", map[string]any{"account": "alice", "password": "secret1", "name": "Alice"})
	expect(t, r, StatusSuccess)

	r = c.call("get_available_slots", map[string]any{"venue_id": env.venue, "date": "2025-03-11"})
	expect(t, r, StatusSuccess)
	if slots, _ := r.Data.([]any); len(slots) != 1 {
		t.Fatalf("slots = %v", r.Data)
	}

	r = c.call("book_venue", map[string]any{"slot_id": env.slot})
	expect(t, r, StatusSuccess)
	id := int64(r.Data.(map[string]any)["reservation_id"].(float64))

	expect(t, c.call("book_venue", map[string]any{"slot_id": env.slot}), StatusFail)

	r = c.call("get_my_reservations", nil)
	expect(t, r, StatusSuccess)
	if rows, _ := r.Data.([]any); len(rows) != 1 {
		t.Fatalf("reservations = %v", r.Data)
	}

	expect(t, c.call("check_in", map[string]any{"reservation_id": id}), StatusSuccess)
	r = c.call("cancel_booking", map[string]any{"reservation_id": id})
	expect(t, r, StatusFail)
	if r.Message != "reservation is checked_in and cannot be cancelled" {
		t.Fatalf("message = %q", r.Message)
	}
}

func TestScheduleActions(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	expect(t, c.call("register", map[string]any{"account": "coach", "password": "secret1", "role": "teacher"}), StatusSuccess)

	r := c.call("add_schedule", map[string]any{
		"venue_id": env.venue, "day_of_week": 1, "start_time": "18:00", "end_time": "20:00",
	})
	expect(t, r, StatusSuccess)
	id := int64(r.Data.(map[string]any)["schedule_id"].(float64))

	r = c.call("get_my_schedules", nil)
	expect(t, r, StatusSuccess)
	if rows, _ := r.Data.([]any); len(rows) != 1 {
		t.Fatalf("schedules = %v", r.Data)
	}

	expect(t, c.call("add_schedule", map[string]any{"venue_id": env.venue, "day_of_week": 9}), StatusError)
	expect(t, c.call("remove_schedule", map[string]any{"schedule_id": id}), StatusSuccess)
	expect(t, c.call("remove_schedule", map[string]any{"schedule_id": id}), StatusFail)
}

func TestRunDailyTasksRequiresAdministrator(t *testing.T) {
	env := newTestEnv(t)
	member := env.dial(t)
	expect(t, member.call("register", map[string]any{"account": "bob", "password": "secret1"}), StatusSuccess)
	expect(t, member.call("run_daily_tasks", nil), StatusFail)

	admin := env.dial(t)
	expect(t, admin.call("login", map[string]any{"account": "root", "password": "wrong"}), StatusFail)
	expect(t, admin.call("login", map[string]any{"account": "root", "password": "rootpass"}), StatusSuccess)
	r := admin.call("run_daily_tasks", nil)
	expect(t, r, StatusSuccess)
	if m := r.Data.(map[string]any); m["no_shows"].(float64) != 0 {
		t.Fatalf("result = %v", m)
	}
}

func TestMalformedRequests(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	expect(t, c.call("dance", nil), StatusError)
	expect(t, c.call("login", "not-an-object"), StatusError)
	expect(t, c.call("get_available_slots", map[string]any{"venue_id": env.venue, "date": "11/03/2025"}), StatusError)
}

func TestInvalidJSONClosesConnection(t *testing.T) {
	env := newTestEnv(t)
	srvSide, cliSide := net.Pipe()
	defer cliSide.Close()
	go env.srv.ServeConn(context.Background(), srvSide)

	go func() { _, _ = cliSide.Write([]byte("{not json}\n")) }()
	var r Reply
	if err := json.NewDecoder(cliSide).Decode(&r); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	expect(t, r, StatusError)
}

func TestServeBoundsConnections(t *testing.T) {
	env := newTestEnv(t)
	env.srv.MaxConns = 1
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- env.srv.Serve(ctx, ln) }()

	first, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c1 := &client{t: t, enc: json.NewEncoder(first), dec: json.NewDecoder(first)}
	expect(t, c1.call("dance", nil), StatusError)

	second, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	if err := json.NewEncoder(second).Encode(Request{Action: "dance"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := second.Read(make([]byte, 1)); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("second connection served while first is open: %v", err)
	}

	_ = first.Close()
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	var r Reply
	if err := json.NewDecoder(second).Decode(&r); err != nil {
		t.Fatalf("second connection never served: %v", err)
	}
	expect(t, r, StatusError)

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not stop")
	}
}
