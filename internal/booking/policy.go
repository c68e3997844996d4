package booking

import (
	"time"

	"github.com/iliyamo/court-booking/internal/config"
	"github.com/iliyamo/court-booking/internal/model"
)

// MaxCredit is the ceiling of the credit scale.
const MaxCredit = 100

// Credit log reasons.
const (
	ReasonNoShow   = "no-show penalty"
	ReasonRestored = "suspension lifted"
	ReasonAdjusted = "manual adjustment"
)

// Policy is the set of credit rules the engine enforces.  A score at or
// below SuspensionThreshold may not book at all; a score at or below
// HotSlotMinCredit may not book hot slots.  PenaltyCooldown is how long
// after the latest penalty a suspended user is restored.
type Policy struct {
	SuspensionThreshold int
	HotSlotMinCredit    int
	NoShowPenalty       int
	RestoreScore        int
	PenaltyCooldown     time.Duration
	HorizonMonths       int
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		SuspensionThreshold: 60,
		HotSlotMinCredit:    80,
		NoShowPenalty:       10,
		RestoreScore:        MaxCredit,
		PenaltyCooldown:     7 * 24 * time.Hour,
		HorizonMonths:       4,
	}
}

// PolicyFromConfig converts the environment-backed settings.
func PolicyFromConfig(pc config.PolicyConfig) Policy {
	return Policy{
		SuspensionThreshold: pc.SuspensionThreshold,
		HotSlotMinCredit:    pc.HotSlotMinCredit,
		NoShowPenalty:       pc.NoShowPenalty,
		RestoreScore:        pc.RestoreScore,
		PenaltyCooldown:     pc.PenaltyCooldown,
		HorizonMonths:       pc.HorizonMonths,
	}
}

// CanBook decides whether user may book slot.  A nil user or slot means
// the lookup found nothing.  Rules apply in order: unknown user,
// suspension, unknown slot, hot-slot threshold.  It has no side effects.
func (p Policy) CanBook(user *model.User, slot *model.Slot) error {
	if user == nil {
		return ErrUserNotFound
	}
	if user.CreditScore <= p.SuspensionThreshold {
		return ErrSuspended
	}
	if slot == nil {
		return ErrSlotNotFound
	}
	if slot.IsHot && user.CreditScore <= p.HotSlotMinCredit {
		return ErrHotSlotCredit
	}
	return nil
}
