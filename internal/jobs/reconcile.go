// Package jobs runs the periodic background work of the server.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/court-booking/internal/booking"
	"github.com/iliyamo/court-booking/internal/clock"
)

// Reconciler is the part of booking.Service the daily job drives.
type Reconciler interface {
	RunDailyReconciliation(ctx context.Context) (booking.ReconcileResult, error)
}

// DailyReconciliation triggers the reconciliation once a day at Hour:Minute
// on the clock's wall time.  A run that fails is logged and retried at the
// next daily trigger; the sweep is idempotent so a late run is harmless.
type DailyReconciliation struct {
	Service Reconciler
	Clock   clock.Clock
	Hour    int
	Minute  int
	Timeout time.Duration
}

// NextRun returns the first instant at hour:minute strictly after now, in
// now's location.
func NextRun(now time.Time, hour, minute int) time.Time {
	y, m, d := now.Date()
	next := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(y, m, d+1, hour, minute, 0, 0, now.Location())
	}
	return next
}

// Run blocks until ctx is cancelled.
func (j *DailyReconciliation) Run(ctx context.Context) {
	for {
		next := NextRun(j.Clock.Now(), j.Hour, j.Minute)
		wait := next.Sub(j.Clock.Now())
		log.Printf("reconcile-job: next run at %s", next.Format(time.RFC3339))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		j.RunOnce(ctx)
	}
}

// RunOnce executes one reconciliation under the job timeout.
func (j *DailyReconciliation) RunOnce(ctx context.Context) (booking.ReconcileResult, error) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	started := time.Now()
	res, err := j.Service.RunDailyReconciliation(ctx)
	if err != nil {
		log.Printf("reconcile-job: run failed: %v", err)
		return res, err
	}
	log.Printf("reconcile-job: no_shows=%d restored=%d took=%s", res.NoShows, res.Restored, time.Since(started).Round(time.Millisecond))
	return res, nil
}
