package scheduler

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock for tests. Advance moves virtual
// time forward and fires due timers and ticker ticks synchronously, in
// deadline order, on the calling goroutine.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFakeClock creates a fake clock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{
		clock:    c,
		interval: d,
		next:     c.now.Add(d),
		ch:       make(chan time.Time, 64),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves virtual time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		next, ok := c.nextEventLocked(target)
		if !ok {
			break
		}
		c.now = next
		c.fireDueLocked()
	}
	c.now = target
	c.mu.Unlock()
}

// nextEventLocked finds the earliest pending deadline at or before target.
func (c *FakeClock) nextEventLocked(target time.Time) (time.Time, bool) {
	var deadlines []time.Time
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.deadline.After(target) {
			deadlines = append(deadlines, t.deadline)
		}
	}
	for _, t := range c.tickers {
		if !t.stopped && !t.next.After(target) {
			deadlines = append(deadlines, t.next)
		}
	}
	if len(deadlines) == 0 {
		return time.Time{}, false
	}
	sort.Slice(deadlines, func(i, j int) bool { return deadlines[i].Before(deadlines[j]) })
	return deadlines[0], true
}

// fireDueLocked fires everything due at the current virtual instant.
// Timer callbacks run without the lock so they may re-schedule.
func (c *FakeClock) fireDueLocked() {
	var fns []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.deadline.After(c.now) {
			t.fired = true
			fns = append(fns, t.fn)
		}
	}
	for _, t := range c.tickers {
		for !t.stopped && !t.next.After(c.now) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	c.mu.Lock()
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeTicker struct {
	clock    *FakeClock
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
