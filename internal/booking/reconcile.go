package booking

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/iliyamo/court-booking/internal/clock"
	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/queue"
	"github.com/iliyamo/court-booking/internal/repository"
)

// ReconcileResult counts what one reconciliation run changed.
type ReconcileResult struct {
	NoShows  int `json:"no_shows"`
	Restored int `json:"restored"`
}

// RunDailyReconciliation runs both sweeps in one transaction, bounded by
// the reconcile timeout rather than the interactive one.
//
// The no-show sweep moves every confirmed reservation whose slot ended
// strictly before now to no_show, frees its seat and applies the no-show
// penalty.  The restoration sweep lifts the suspension of users at or below
// the threshold whose latest penalty is at least PenaltyCooldown old.
// Users with no penalty on record stay suspended.
//
// A second run right after the first changes nothing: no-shows are no
// longer confirmed and restored users are above the threshold.
func (s *Service) RunDailyReconciliation(ctx context.Context) (ReconcileResult, error) {
	var out ReconcileResult
	err := s.runWithin(ctx, "booking.RunDailyReconciliation", s.reconcileTimeout, func(ctx context.Context, tx *sql.Tx, fx *effects) error {
		out = ReconcileResult{}
		now := s.now()

		expired, err := s.reservations.ListExpiredConfirmedTx(ctx, tx, clock.DateOnly(now), clock.TimeOfDay(now))
		if err != nil {
			return err
		}
		for i := range expired {
			r := &expired[i]
			ok, err := s.reservations.TransitionTx(ctx, tx, r.ID, model.StatusConfirmed, model.StatusNoShow, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := s.slots.ReleaseSeatTx(ctx, tx, r.SlotID); err != nil {
				return err
			}
			if err := s.touchSlot(ctx, tx, fx, r.SlotID); err != nil {
				return err
			}
			score, err := s.applyCredit(ctx, tx, r.UserAccount, -s.policy.NoShowPenalty, ReasonNoShow)
			if err != nil {
				return err
			}
			out.NoShows++
			r.Status = model.StatusNoShow
			ev := reservationEvent(queue.EventReservationNoShow, r, s)
			ev.CreditDelta = -s.policy.NoShowPenalty
			ev.CreditScore = &score
			fx.emit(ev)
		}

		suspended, err := s.users.ListAtOrBelowCreditTx(ctx, tx, s.policy.SuspensionThreshold)
		if err != nil {
			return err
		}
		for _, u := range suspended {
			last, err := s.credits.LastPenaltyTx(ctx, tx, u.Account)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if now.Sub(last.CreatedAt) < s.policy.PenaltyCooldown {
				continue
			}
			delta := s.policy.RestoreScore - u.CreditScore
			score, err := s.applyCredit(ctx, tx, u.Account, delta, ReasonRestored)
			if err != nil {
				return err
			}
			out.Restored++
			ev := queue.NewEvent(queue.EventCreditRestored, now)
			ev.Account = u.Account
			ev.CreditDelta = delta
			ev.CreditScore = &score
			fx.emit(ev)
		}

		ev := queue.NewEvent(queue.EventReconciliationFinished, now)
		ev.Count = out.NoShows
		ev.Detail = "restored=" + strconv.Itoa(out.Restored)
		fx.emit(ev)
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	return out, nil
}
