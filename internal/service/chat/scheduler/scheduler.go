// Package scheduler provides the engine's single timer service: named,
// replaceable, cancellable timers behind a Clock so tests fast-forward
// virtual time deterministically. Timer names are conventions owned by
// the orchestrator ("session-renew", "plan-autoconfirm:<stepID>").
package scheduler

import (
	"sync"
	"time"
)

// Clock abstracts time for the scheduler and the session keep-alive loop.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired.
	Stop() bool
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// RealClock returns the wall-clock implementation.
func RealClock() Clock { return realClock{} }

// Scheduler owns all named timers. Scheduling under an existing name
// replaces (stops) the previous timer, so a timer can never fire twice
// for the same logical event.
type Scheduler struct {
	mu      sync.Mutex
	clock   Clock
	timers  map[string]Timer
	stopped bool
}

// New creates a scheduler on the given clock.
func New(clock Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]Timer),
	}
}

// Clock exposes the scheduler's clock for deadline arithmetic.
func (s *Scheduler) Clock() Clock { return s.clock }

// Schedule arms (or re-arms) the named timer. fn runs on the clock's
// callback goroutine after d elapses, unless cancelled first.
func (s *Scheduler) Schedule(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	s.timers[name] = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, name)
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

// Cancel stops the named timer. Returns true if a pending timer was
// cancelled.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[name]
	if !ok {
		return false
	}
	delete(s.timers, name)
	return t.Stop()
}

// Stop cancels every pending timer and rejects further scheduling.
// Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
}
