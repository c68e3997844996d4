package booking

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/queue"
	"github.com/iliyamo/court-booking/internal/repository"
)

// Book reserves one seat of slotID for account.  The seat is taken with a
// conditional increment, so two bookings racing for the last seat cannot
// both succeed; the loser is denied with ErrSlotFull.
func (s *Service) Book(ctx context.Context, account string, slotID int64) (*model.Reservation, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, invalid("account", "is required")
	}
	if slotID <= 0 {
		return nil, invalid("slot_id", "must be positive")
	}
	var out *model.Reservation
	err := s.run(ctx, "booking.Book", func(ctx context.Context, tx *sql.Tx, fx *effects) error {
		user, err := s.loadUser(ctx, tx, account)
		if err != nil {
			return err
		}
		slot, err := s.slots.GetTx(ctx, tx, slotID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := s.policy.CanBook(user, slot); err != nil {
			return err
		}
		if slot.Full() {
			return ErrSlotFull
		}
		if _, err := s.reservations.FindActiveTx(ctx, tx, account, slotID); err == nil {
			return ErrDuplicateBooking
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		took, err := s.slots.TakeSeatTx(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if !took {
			return ErrSlotFull
		}
		res, err := s.reservations.CreateTx(ctx, tx, account, slotID, s.now())
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrDuplicateBooking
		}
		if err != nil {
			return err
		}
		out = res
		fx.touch(slot.Date)
		fx.emit(reservationEvent(queue.EventReservationBooked, res, s))
		return nil
	}, attribute.String("booking.account", account), attribute.Int64("booking.slot_id", slotID))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel cancels the caller's own confirmed reservation and frees its seat.
func (s *Service) Cancel(ctx context.Context, account string, reservationID int64) error {
	account = strings.TrimSpace(account)
	if err := validateReservationArgs(account, reservationID); err != nil {
		return err
	}
	return s.run(ctx, "booking.Cancel", func(ctx context.Context, tx *sql.Tx, fx *effects) error {
		return s.cancelTx(ctx, tx, fx, reservationID, account)
	}, attribute.String("booking.account", account), attribute.Int64("booking.reservation_id", reservationID))
}

// AdminCancel lets an administrator cancel anyone's confirmed reservation.
func (s *Service) AdminCancel(ctx context.Context, actor string, reservationID int64) error {
	actor = strings.TrimSpace(actor)
	if err := validateReservationArgs(actor, reservationID); err != nil {
		return err
	}
	return s.run(ctx, "booking.AdminCancel", func(ctx context.Context, tx *sql.Tx, fx *effects) error {
		if _, err := s.requireRole(ctx, tx, actor, model.RoleAdministrator, ErrNotAdministrator); err != nil {
			return err
		}
		return s.cancelTx(ctx, tx, fx, reservationID, "")
	}, attribute.String("booking.actor", actor), attribute.Int64("booking.reservation_id", reservationID))
}

// cancelTx cancels a confirmed reservation.  An empty owner skips the
// ownership check.
func (s *Service) cancelTx(ctx context.Context, tx *sql.Tx, fx *effects, id int64, owner string) error {
	res, err := s.loadOwned(ctx, tx, id, owner)
	if err != nil {
		return err
	}
	if res.Status != model.StatusConfirmed {
		return StatusDenial("cancelled", res.Status)
	}
	if err := s.transition(ctx, tx, res, model.StatusCancelled, "cancelled"); err != nil {
		return err
	}
	if err := s.slots.ReleaseSeatTx(ctx, tx, res.SlotID); err != nil {
		return err
	}
	if err := s.touchSlot(ctx, tx, fx, res.SlotID); err != nil {
		return err
	}
	res.Status = model.StatusCancelled
	fx.emit(reservationEvent(queue.EventReservationCancelled, res, s))
	return nil
}

// CheckIn marks the caller's confirmed reservation as attended.  The seat
// stays taken; a checked-in reservation is excluded from no-show scans.
func (s *Service) CheckIn(ctx context.Context, account string, reservationID int64) error {
	account = strings.TrimSpace(account)
	if err := validateReservationArgs(account, reservationID); err != nil {
		return err
	}
	return s.run(ctx, "booking.CheckIn", func(ctx context.Context, tx *sql.Tx, fx *effects) error {
		res, err := s.loadOwned(ctx, tx, reservationID, account)
		if err != nil {
			return err
		}
		if res.Status != model.StatusConfirmed {
			return StatusDenial("checked in", res.Status)
		}
		if err := s.transition(ctx, tx, res, model.StatusCheckedIn, "checked in"); err != nil {
			return err
		}
		res.Status = model.StatusCheckedIn
		fx.emit(reservationEvent(queue.EventReservationCheckedIn, res, s))
		return nil
	}, attribute.String("booking.account", account), attribute.Int64("booking.reservation_id", reservationID))
}

func validateReservationArgs(account string, id int64) error {
	if account == "" {
		return invalid("account", "is required")
	}
	if id <= 0 {
		return invalid("reservation_id", "must be positive")
	}
	return nil
}

func (s *Service) loadOwned(ctx context.Context, tx *sql.Tx, id int64, owner string) (*model.Reservation, error) {
	res, err := s.reservations.GetTx(ctx, tx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if owner != "" && res.UserAccount != owner {
		return nil, ErrNotOwner
	}
	return res, nil
}

// transition moves res from confirmed to `to`.  When a concurrent writer
// moved it first, the current status is reloaded and reported as a denial.
func (s *Service) transition(ctx context.Context, tx *sql.Tx, res *model.Reservation, to model.Status, action string) error {
	ok, err := s.reservations.TransitionTx(ctx, tx, res.ID, model.StatusConfirmed, to, s.now())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	cur, err := s.reservations.GetTx(ctx, tx, res.ID)
	if err != nil {
		return err
	}
	return StatusDenial(action, cur.Status)
}

func (s *Service) touchSlot(ctx context.Context, tx *sql.Tx, fx *effects, slotID int64) error {
	slot, err := s.slots.GetTx(ctx, tx, slotID)
	if err != nil {
		return err
	}
	fx.touch(slot.Date)
	return nil
}

func reservationEvent(typ string, res *model.Reservation, s *Service) queue.Event {
	ev := queue.NewEvent(typ, s.now())
	ev.Account = res.UserAccount
	ev.ReservationID = res.ID
	ev.SlotID = res.SlotID
	return ev
}
