package signedtime

import "time"

// Interval fires at most once per period. A missed tick doesn't accumulate
// drift: each fire advances the anchor by exactly one period rather than
// resetting to now, so catching up after a stall still lands on the
// original cadence.
type Interval struct {
	last  *time.Time
	every time.Duration
}

// NewInterval builds an Interval that fires immediately on its first
// IsTime call and every `every` thereafter.
func NewInterval(every time.Duration) *Interval {
	return &Interval{every: every}
}

// IsTime reports whether the period has elapsed since the last fire,
// arming the timer on first use.
func (iv *Interval) IsTime() bool {
	now := time.Now()

	if iv.last == nil {
		iv.last = &now
		return true
	}

	if now.Sub(*iv.last) < iv.every {
		return false
	}

	next := iv.last.Add(iv.every)
	iv.last = &next
	return true
}
