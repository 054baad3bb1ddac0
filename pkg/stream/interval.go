// Package stream reconciles a historical snapshot with the live tick stream
// into monotonically advancing per-metric series.
package stream

import (
	"time"
)

// FloorToGrid truncates t to a multiple of granularity counted from the Unix epoch.
func FloorToGrid(t time.Time, granularity time.Duration) time.Time {
	if granularity <= 0 {
		return t
	}
	ns := t.UnixNano()
	g := int64(granularity)
	q := ns / g
	if ns%g < 0 {
		q--
	}
	return time.Unix(0, q*g).UTC()
}

// Boundary is the outcome of Detect.
type Boundary struct {
	ClosesInterval  bool
	NewIntervalTime time.Time
}

// Detect reports whether a tick at tickTime closes a new interval after
// last. A tick closes one when tickTime - last >= granularity; the new
// interval time is the grid-aligned floor of the tick time. A zero last
// means the state was never seeded and nothing can close.
func Detect(tickTime time.Time, granularity time.Duration, last time.Time) Boundary {
	if last.IsZero() || granularity <= 0 {
		return Boundary{}
	}
	if tickTime.Sub(last) < granularity {
		return Boundary{}
	}
	return Boundary{
		ClosesInterval:  true,
		NewIntervalTime: FloorToGrid(tickTime, granularity),
	}
}

// IntervalState tracks the last completed interval of a session.
type IntervalState struct {
	granularity time.Duration
	last        time.Time
}

// NewIntervalState creates an unseeded state.
func NewIntervalState(granularity time.Duration) *IntervalState {
	return &IntervalState{granularity: granularity}
}

// Seed sets the last completed interval to the grid-aligned t.
func (s *IntervalState) Seed(t time.Time) {
	s.last = FloorToGrid(t, s.granularity)
}

// Seeded reports whether Seed has been called with a real time.
func (s *IntervalState) Seeded() bool {
	return !s.last.IsZero()
}

// Last returns the last completed interval time (zero when unseeded).
func (s *IntervalState) Last() time.Time {
	return s.last
}

// Granularity returns the configured interval length.
func (s *IntervalState) Granularity() time.Duration {
	return s.granularity
}

// Check runs Detect against the current state without mutating it.
func (s *IntervalState) Check(tickTime time.Time) Boundary {
	return Detect(tickTime, s.granularity, s.last)
}

// Advance moves the state to b.NewIntervalTime. It only ever moves forward.
func (s *IntervalState) Advance(b Boundary) bool {
	if !b.ClosesInterval || !b.NewIntervalTime.After(s.last) {
		return false
	}
	s.last = b.NewIntervalTime
	return true
}
