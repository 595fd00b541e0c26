// Package clock provides the daemon's single source of wall-clock time.
//
// Every wall-clock decision in the system (slot resolution, remaining-hour
// durations, condition evaluation) funnels through a Service so that tests
// can substitute a fake clock. Components must never call time.Now directly.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Service provides the current time in a fixed IANA timezone.
//
// Now is monotonic across calls within a process: successive values are
// non-decreasing even if the underlying clock steps backwards.
type Service struct {
	clk clockwork.Clock
	loc *time.Location

	mu   sync.Mutex
	last time.Time
}

// New creates a Service for the given IANA timezone, backed by the real clock.
// An unknown timezone is a configuration error and fails construction.
func New(timezone string) (*Service, error) {
	return NewWithClock(timezone, clockwork.NewRealClock())
}

// NewWithClock creates a Service with an injected clock. Tests pass a
// clockwork.FakeClock here to drive time explicitly.
func NewWithClock(timezone string, clk clockwork.Clock) (*Service, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Service{clk: clk, loc: loc}, nil
}

// Now returns the current time in the configured timezone.
// Successive calls never go backwards.
func (s *Service) Now() time.Time {
	now := s.clk.Now().In(s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.last) {
		return s.last
	}
	s.last = now
	return now
}

// Location returns the configured timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// SecondsUntilNextHour returns the whole seconds remaining until the next
// wall-clock hour boundary, always in [1, 3600]. It never returns 0, so a
// loop sleeping on it cannot busy-wait across a boundary.
func (s *Service) SecondsUntilNextHour() int {
	now := s.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, s.loc)
	secs := int((next.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if secs > 3600 {
		secs = 3600
	}
	return secs
}

// DayHour converts a time to the weekly grid coordinates (day, hour),
// where day 0 is Monday and hour is 0..23, in the configured timezone.
func (s *Service) DayHour(t time.Time) (day, hour int) {
	t = t.In(s.loc)
	day = (int(t.Weekday()) + 6) % 7 // time.Weekday has Sunday=0
	return day, t.Hour()
}

// After returns a channel that fires after d, using the injected clock.
// The orchestrator uses this for its interruptible sleeps so tests can
// advance time without waiting.
func (s *Service) After(d time.Duration) <-chan time.Time {
	return s.clk.After(d)
}
