package wire

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/iliyamo/court-booking/internal/booking"
	"github.com/iliyamo/court-booking/internal/model"
)

// session is the per-connection login state.
type session struct {
	account string
	role    model.Role
}

type actionFunc func(s *Server, ctx context.Context, sess *session, data json.RawMessage) (string, any, error)

type action struct {
	fn   actionFunc
	auth bool
}

var actions = map[string]action{
	"login":               {fn: (*Server).login},
	"register":            {fn: (*Server).register},
	"get_available_slots": {fn: (*Server).availableSlots},
	"book_venue":          {fn: (*Server).book, auth: true},
	"get_my_reservations": {fn: (*Server).myReservations, auth: true},
	"cancel_booking":      {fn: (*Server).cancel, auth: true},
	"check_in":            {fn: (*Server).checkIn, auth: true},
	"add_schedule":        {fn: (*Server).addSchedule, auth: true},
	"remove_schedule":     {fn: (*Server).removeSchedule, auth: true},
	"get_my_schedules":    {fn: (*Server).mySchedules, auth: true},
	"run_daily_tasks":     {fn: (*Server).runDailyTasks, auth: true},
}

type userData struct {
	Account     string `json:"account"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Phone       string `json:"phone,omitempty"`
	CreditScore int    `json:"credit_score"`
}

func toUserData(u *model.User) userData {
	return userData{
		Account:     u.Account,
		Name:        u.Name,
		Role:        string(u.Role),
		Phone:       u.Phone,
		CreditScore: u.CreditScore,
	}
}

type reservationData struct {
	ReservationID int64     `json:"reservation_id"`
	SlotID        int64     `json:"slot_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// decode unmarshals the request payload into v.  A missing payload leaves
// v at its zero value so the operation's own validation reports it.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &booking.ValidationError{Field: "data", Reason: "is not a valid object for this action"}
	}
	return nil
}

func (s *Server) bind(sess *session, u *model.User) {
	sess.account = u.Account
	sess.role = u.Role
}

func (s *Server) login(ctx context.Context, sess *session, data json.RawMessage) (string, any, error) {
	var in struct {
		Account  string `json:"account"`
		Password string `json:"password"`
	}
	if err := decode(data, &in); err != nil {
		return "", nil, err
	}
	u, err := s.Service.Authenticate(ctx, in.Account, in.Password)
	if err != nil {
		return "", nil, err
	}
	s.bind(sess, u)
	return "login successful", toUserData(u), nil
}

func (s *Server) register(ctx context.Context, sess *session, data json.RawMessage) (string, any, error) {
	var in struct {
		Account  string `json:"account"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Role     string `json:"role"`
		Phone    string `json:"phone"`
	}
	if err := decode(data, &in); err != nil {
		return "", nil, err
	}
	u, err := s.Service.Register(ctx, booking.RegisterRequest{
		Account:  in.Account,
		Password: in.Password,
		Name:     in.Name,
		Role:     in.Role,
		Phone:    in.Phone,
	})
	if err != nil {
		return "", nil, err
	}
	s.bind(sess, u)
	return "registration successful", toUserData(u), nil
}

func (s *Server) availableSlots(ctx context.Context, _ *session, data json.RawMessage) (string, any, error) {
	var in struct {
		VenueID int64  `json:"venue_id"`
		Date    string `json:"date"`
	}
	if err := decode(data, &in); err != nil {
		return "", nil, err
	}
	if in.VenueID <= 0 {
		return "", nil, &booking.ValidationError{Field: "venue_id", Reason: "must be positive"}
	}
	in.Date = strings.TrimSpace(in.Date)
	if _, err := time.Parse(time.DateOnly, in.Date); err != nil {
		return "", nil, &booking.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	slots, _, err := s.Slots.Slots(ctx, in.VenueID, in.Date)
	if err != nil {
		return "", nil, err
	}
	return "ok", slots, nil
}

type reservationRef struct {
	ReservationID int64 `json:"reservation_id"`
}

func (s *Server) book(ctx context.Context, sess *session, data json.RawMessage) (string, any, error) {
	var in struct {
		SlotID int64 `json:"slot_id"`
	}
	if err := decode(data, &in); err != nil {
		return "", nil, err
	}
	res, err := s.Service.Book(ctx, sess.account, in.SlotID)
	if err != nil {
		return "", nil, err
	}
	return "booking confirmed", reservationData{
		ReservationID: res.ID,
		SlotID:        res.SlotID,
		Status:        string(res.Status),
		CreatedAt:     res.CreatedAt,
	}, nil
}

func (s *Server) myReservations(ctx context.Context, sess *session, _ json.RawMessage) (string, any, error) {
	views, err := s.Views.UserReservations(ctx, sess.account)
	if err != nil {
		return "", nil, err
	}
	return "ok", views, nil
}

func (s *Server) cancel(ctx context.Context, sess *session, data json.RawMessage) (string, any, error) {
	var in reservationRef
	if err := decode(data, &in); err != nil {
		return "", nil, err
	}
	if err := s.Service.Cancel(ctx, sess.account, in.ReservationID); err != nil {
		return "", nil, err
	}
	return "reservation cancelled", nil, nil
}

func (s *Server) checkIn(ctx context.Context, sess *session, data json.RawMessage) (string, any, error) {
	var in reservationRef
	if err := decode(data, &in); err != nil {
		return "", nil, err
	}
	if err := s.Service.CheckIn(ctx, sess.account, in.ReservationID); err != nil {
		return "", nil, err
	}
	return "checked in", nil, nil
}

func (s *Server) addSchedule(ctx context.Context, sess *session, data json.RawMessage) (string, any, error) {
	var in struct {
		VenueID   int64  `json:"venue_id"`
		DayOfWeek int    `json:"day_of_week"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := decode(data, &in); err != nil {
		return "", nil, err
	}
	res, err := s.Service.AddRecurringSchedule(ctx, booking.ScheduleRequest{
		InstructorAccount: sess.account,
		VenueID:           in.VenueID,
		DayOfWeek:         in.DayOfWeek,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
	})
	if err != nil {
		return "", nil, err
	}
	return "schedule added", res, nil
}

func (s *Server) removeSchedule(ctx context.Context, sess *session, data json.RawMessage) (string, any, error) {
	var in struct {
		ScheduleID int64 `json:"schedule_id"`
	}
	if err := decode(data, &in); err != nil {
		return "", nil, err
	}
	if err := s.Service.RemoveRecurringSchedule(ctx, sess.account, in.ScheduleID); err != nil {
		return "", nil, err
	}
	return "schedule removed", nil, nil
}

func (s *Server) mySchedules(ctx context.Context, sess *session, _ json.RawMessage) (string, any, error) {
	views, err := s.Views.InstructorSchedules(ctx, sess.account)
	if err != nil {
		return "", nil, err
	}
	return "ok", views, nil
}

func (s *Server) runDailyTasks(ctx context.Context, sess *session, _ json.RawMessage) (string, any, error) {
	if sess.role != model.RoleAdministrator {
		return "", nil, booking.ErrNotAdministrator
	}
	res, err := s.Service.RunDailyReconciliation(ctx)
	if err != nil {
		return "", nil, err
	}
	return "daily tasks finished", map[string]int{
		"no_shows": res.NoShows,
		"restored": res.Restored,
	}, nil
}
