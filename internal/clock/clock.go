// Package clock supplies the current time to the booking engine.  Every
// "today", "now" and "seven days ago" computation reads from a Clock so
// tests can pin time to a known instant.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant in the venue's time zone.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.  A nil Location means time.Local.
type Real struct {
	Location *time.Location
}

func (r Real) Now() time.Time {
	if r.Location == nil {
		return time.Now()
	}
	return time.Now().In(r.Location)
}

// Fixed always returns the same instant until Set or Advance moves it.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed returns a Fixed clock pinned at t.
func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// DateOnly formats t as YYYY-MM-DD, the persisted slot date form.
func DateOnly(t time.Time) string { return t.Format(time.DateOnly) }

// TimeOfDay formats t as HH:MM:SS, the persisted slot time form.
func TimeOfDay(t time.Time) string { return t.Format(time.TimeOnly) }

// Midnight truncates t to the start of its calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AddMonthsClamped adds n calendar months to t.  When the target month is
// shorter than t's day of month the day is clamped to the last day of that
// month (Jan 31 + 1 month = Feb 28/29), unlike time.AddDate which overflows.
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	ty := y + total/12
	tm := total % 12
	if tm < 0 {
		tm += 12
		ty--
	}
	month := time.Month(tm + 1)
	last := time.Date(ty, month+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(ty, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// Weekday returns the Monday-based day index (0 = Monday … 6 = Sunday)
// used by recurring schedules.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
