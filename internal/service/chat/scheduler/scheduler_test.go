package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleFiresAfterDelay(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	s := New(clock)

	var fired atomic.Int32
	s.Schedule("t", 5*time.Second, func() { fired.Add(1) })

	clock.Advance(4 * time.Second)
	if fired.Load() != 0 {
		t.Fatal("timer fired before its deadline")
	}
	clock.Advance(time.Second)
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
	clock.Advance(time.Minute)
	if fired.Load() != 1 {
		t.Fatalf("timer fired again: %d", fired.Load())
	}
}

func TestScheduleSameNameReplaces(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	s := New(clock)

	var first, second atomic.Int32
	s.Schedule("t", 2*time.Second, func() { first.Add(1) })
	s.Schedule("t", 5*time.Second, func() { second.Add(1) })

	clock.Advance(10 * time.Second)
	if first.Load() != 0 {
		t.Error("replaced timer still fired")
	}
	if second.Load() != 1 {
		t.Errorf("replacement fired %d times, want 1", second.Load())
	}
}

func TestCancel(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	s := New(clock)

	var fired atomic.Int32
	s.Schedule("t", time.Second, func() { fired.Add(1) })

	if !s.Cancel("t") {
		t.Error("Cancel of pending timer should return true")
	}
	if s.Cancel("t") {
		t.Error("second Cancel should return false")
	}
	if s.Cancel("unknown") {
		t.Error("Cancel of unknown name should return false")
	}

	clock.Advance(time.Minute)
	if fired.Load() != 0 {
		t.Error("cancelled timer fired")
	}
}

func TestStopRejectsFurtherScheduling(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	s := New(clock)

	var fired atomic.Int32
	s.Schedule("a", time.Second, func() { fired.Add(1) })
	s.Stop()
	s.Schedule("b", time.Second, func() { fired.Add(1) })

	clock.Advance(time.Minute)
	if fired.Load() != 0 {
		t.Errorf("timers fired after Stop: %d", fired.Load())
	}
}

func TestTimersFireInDeadlineOrder(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	s := New(clock)

	var order []string
	s.Schedule("late", 3*time.Second, func() { order = append(order, "late") })
	s.Schedule("early", time.Second, func() { order = append(order, "early") })
	s.Schedule("mid", 2*time.Second, func() { order = append(order, "mid") })

	clock.Advance(5 * time.Second)
	want := []string{"early", "mid", "late"}
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("fired %v, want %v", order, want)
		}
	}
}

func TestTimerCallbackMayReschedule(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	s := New(clock)

	var fired atomic.Int32
	s.Schedule("t", time.Second, func() {
		fired.Add(1)
		s.Schedule("t", time.Second, func() { fired.Add(1) })
	})

	clock.Advance(2 * time.Second)
	if fired.Load() != 2 {
		t.Errorf("fired = %d, want 2 (rescheduled timer must run)", fired.Load())
	}
}

func TestFakeTickerDeliversTicks(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	clock.Advance(3 * time.Second)

	got := 0
	for {
		select {
		case <-ticker.C():
			got++
			continue
		default:
		}
		break
	}
	if got != 3 {
		t.Errorf("received %d ticks, want 3", got)
	}
}

func TestFakeClockNowAdvances(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewFakeClock(start)

	clock.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if !clock.Now().Equal(want) {
		t.Errorf("Now = %v, want %v", clock.Now(), want)
	}
}
