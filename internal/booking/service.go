// Package booking is the booking engine: admission control, the
// reservation ledger, recurring schedules, the credit ledger and the daily
// reconciliation.  Every mutating operation runs as one transaction through
// database.TxRunner; domain events are published and cached availability is
// invalidated only after that transaction commits.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/court-booking/internal/clock"
	"github.com/iliyamo/court-booking/internal/database"
	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/queue"
	"github.com/iliyamo/court-booking/internal/repository"
)

// Publisher receives domain events after a successful commit.
type Publisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Invalidator drops cached availability for a slot date.
type Invalidator interface {
	InvalidateDate(ctx context.Context, date string)
}

// Deps are the collaborators of a Service.  Tx is required; a nil Clock
// means the system clock, a zero Policy means DefaultPolicy, and nil
// Events or Cache disable that concern.  ReconcileTimeout bounds one
// reconciliation transaction in place of the runner's interactive timeout;
// zero means 5 minutes.
type Deps struct {
	Tx               *database.TxRunner
	Clock            clock.Clock
	Policy           Policy
	Events           Publisher
	Cache            Invalidator
	BcryptCost       int
	ReconcileTimeout time.Duration
}

// Service exposes the booking operations.  It is safe for concurrent use;
// all shared state lives in the store.
type Service struct {
	tx           *database.TxRunner
	users        *repository.UserRepo
	venues       *repository.VenueRepo
	slots        *repository.SlotRepo
	reservations *repository.ReservationRepo
	schedules    *repository.ScheduleRepo
	credits      *repository.CreditRepo

	clock            clock.Clock
	policy           Policy
	events           Publisher
	cache            Invalidator
	bcryptCost       int
	reconcileTimeout time.Duration
	tracer           trace.Tracer
}

func NewService(d Deps) *Service {
	db := d.Tx.DB()
	c := d.Clock
	if c == nil {
		c = clock.Real{}
	}
	p := d.Policy
	if p == (Policy{}) {
		p = DefaultPolicy()
	}
	rt := d.ReconcileTimeout
	if rt <= 0 {
		rt = 5 * time.Minute
	}
	return &Service{
		tx:               d.Tx,
		users:            repository.NewUserRepo(db),
		venues:           repository.NewVenueRepo(db),
		slots:            repository.NewSlotRepo(db),
		reservations:     repository.NewReservationRepo(db),
		schedules:        repository.NewScheduleRepo(db),
		credits:          repository.NewCreditRepo(db),
		clock:            c,
		policy:           p,
		events:           d.Events,
		cache:            d.Cache,
		bcryptCost:       d.BcryptCost,
		reconcileTimeout: rt,
		tracer:           otel.Tracer("github.com/iliyamo/court-booking/internal/booking"),
	}
}

// Policy returns the credit rules in force.
func (s *Service) Policy() Policy { return s.policy }

// effects collects what a transaction wants done after it commits.  It is
// reset at the start of every attempt, so a retried transaction never
// leaks the effects of an attempt that rolled back.
type effects struct {
	events []queue.Event
	dates  map[string]struct{}
}

func (e *effects) emit(ev queue.Event) { e.events = append(e.events, ev) }

func (e *effects) touch(date string) {
	if e.dates == nil {
		e.dates = make(map[string]struct{})
	}
	e.dates[date] = struct{}{}
}

// run executes fn in a transaction under a span named op and applies the
// collected effects once it commits.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx, fx *effects) error, attrs ...attribute.KeyValue) error {
	return s.runWithin(ctx, op, 0, fn, attrs...)
}

// runWithin is run with a per-attempt timeout; zero keeps the runner's.
func (s *Service) runWithin(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context, tx *sql.Tx, fx *effects) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	defer span.End()

	var fx effects
	err := s.tx.WithTxTimeout(ctx, timeout, func(tx *sql.Tx) error {
		fx = effects{}
		return fn(ctx, tx, &fx)
	})
	if err != nil {
		span.RecordError(err)
		if IsDenial(err) || IsValidation(err) {
			span.SetAttributes(attribute.String("booking.outcome", "denied"))
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
	s.afterCommit(ctx, &fx)
	return nil
}

func (s *Service) afterCommit(ctx context.Context, fx *effects) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if s.cache != nil {
		for d := range fx.dates {
			s.cache.InvalidateDate(ctx, d)
		}
	}
	if s.events == nil {
		return
	}
	for _, ev := range fx.events {
		if err := s.events.Publish(ctx, ev); err != nil {
			log.Printf("booking: publish %s failed: %v", ev.Type, err)
		}
	}
}

// loadUser returns the user or nil when the account does not exist.
func (s *Service) loadUser(ctx context.Context, tx *sql.Tx, account string) (*model.User, error) {
	u, err := s.users.GetByAccountTx(ctx, tx, account)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// requireRole loads the actor and checks its role, denying with deny when
// the role does not match.
func (s *Service) requireRole(ctx context.Context, tx *sql.Tx, account string, role model.Role, deny error) (*model.User, error) {
	u, err := s.loadUser(ctx, tx, account)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if u.Role != role {
		return nil, deny
	}
	return u, nil
}

func (s *Service) now() time.Time { return s.clock.Now() }
