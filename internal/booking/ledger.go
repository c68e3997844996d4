package booking

import (
	"context"
	"database/sql"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/queue"
)

// applyCredit is the only writer of users.credit_score.  The new score is
// score+delta clamped to [0, MaxCredit]; the log row records delta as the
// rule asked for it, so a penalty at score 0 still restarts the cooldown.
// The write is guarded by the score just read and yields a retryable
// conflict if another transaction changed it first.
func (s *Service) applyCredit(ctx context.Context, tx *sql.Tx, account string, delta int, reason string) (int, error) {
	u, err := s.users.GetByAccountTx(ctx, tx, account)
	if err != nil {
		return 0, err
	}
	score := clampCredit(u.CreditScore + delta)
	if score != u.CreditScore {
		if err := s.users.SetCreditTx(ctx, tx, account, u.CreditScore, score); err != nil {
			return 0, err
		}
	}
	if err := s.credits.AppendTx(ctx, tx, account, delta, reason, s.now()); err != nil {
		return 0, err
	}
	return score, nil
}

func clampCredit(n int) int {
	switch {
	case n < 0:
		return 0
	case n > MaxCredit:
		return MaxCredit
	}
	return n
}

// AdjustCredit lets an administrator move a user's score by delta.  It
// returns the resulting score.
func (s *Service) AdjustCredit(ctx context.Context, actor, account string, delta int, reason string) (int, error) {
	actor, account = strings.TrimSpace(actor), strings.TrimSpace(account)
	if account == "" {
		return 0, invalid("account", "is required")
	}
	if delta == 0 {
		return 0, invalid("delta", "must not be zero")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = ReasonAdjusted
	}
	var score int
	err := s.run(ctx, "booking.AdjustCredit", func(ctx context.Context, tx *sql.Tx, fx *effects) error {
		if _, err := s.requireRole(ctx, tx, actor, model.RoleAdministrator, ErrNotAdministrator); err != nil {
			return err
		}
		target, err := s.loadUser(ctx, tx, account)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrUserNotFound
		}
		score, err = s.applyCredit(ctx, tx, account, delta, reason)
		if err != nil {
			return err
		}
		ev := queue.NewEvent(queue.EventCreditAdjusted, s.now())
		ev.Account = account
		ev.CreditDelta = delta
		ev.CreditScore = &score
		ev.Detail = reason
		fx.emit(ev)
		return nil
	}, attribute.String("booking.account", account))
	return score, err
}

// CreditHistory returns a user's credit log, newest first.
func (s *Service) CreditHistory(ctx context.Context, account string, limit int) ([]model.CreditLog, error) {
	return s.credits.ListByUser(ctx, strings.TrimSpace(account), limit)
}
