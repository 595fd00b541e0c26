// Package notify provides wake-up primitives for long-sleeping loops.
package notify

// Signal is a sticky wake-up flag for a single waiter. Notify sets the
// flag; receiving from C() consumes it. A Notify that lands while the
// waiter is busy between waits is held until the next receive, so one
// notification is never dropped. Notifies before a receive coalesce.
//
// The orchestrator waits on a Signal during its inter-hour sleep so that
// Resume() and schedule mutations can cut the sleep short.
type Signal struct {
	ch chan struct{}
}

// NewSignal creates a ready-to-use Signal.
func NewSignal() *Signal { return &Signal{ch: make(chan struct{}, 1)} }

// Notify wakes the waiter, or marks the signal pending when nobody is
// waiting. Never blocks.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the waiter receives from. Each receive consumes
// one pending notification.
func (s *Signal) C() <-chan struct{} { return s.ch }
