package looptest

import (
	"testing"
	"time"
)

func TestManualTimersFireInOrder(t *testing.T) {
	m := New()
	var got []string

	m.After(3*time.Second, func() { got = append(got, "c") })
	m.After(1*time.Second, func() { got = append(got, "a") })
	m.After(2*time.Second, func() { got = append(got, "b") })

	m.Advance(2 * time.Second)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("after 2s got %v", got)
	}

	m.Advance(time.Second)
	if len(got) != 3 || got[2] != "c" {
		t.Fatalf("after 3s got %v", got)
	}
}

func TestManualTimerArmedByTimer(t *testing.T) {
	m := New()
	fired := 0
	var tick func()
	tick = func() {
		fired++
		if fired < 3 {
			m.After(time.Second, tick)
		}
	}
	m.After(time.Second, tick)

	m.Advance(10 * time.Second)
	if fired != 3 {
		t.Errorf("chained timers fired %d times, want 3", fired)
	}
	if m.PendingTimers() != 0 {
		t.Errorf("PendingTimers() = %d, want 0", m.PendingTimers())
	}
}

func TestManualCancel(t *testing.T) {
	m := New()
	fired := false
	cancel := m.After(time.Second, func() { fired = true })
	cancel()
	m.Advance(time.Minute)
	if fired {
		t.Error("cancelled timer fired")
	}
}

func TestManualOffloadTakesTwoSteps(t *testing.T) {
	m := New()
	var order []string
	m.Offload(func() { order = append(order, "work") }, func() { order = append(order, "done") })

	if len(order) != 0 {
		t.Fatal("offload ran synchronously")
	}
	if n := m.Drain(); n != 2 {
		t.Errorf("Drain() ran %d closures, want 2", n)
	}
	if len(order) != 2 || order[0] != "work" || order[1] != "done" {
		t.Errorf("order = %v", order)
	}
}

func TestManualNowAdvances(t *testing.T) {
	m := New()
	start := m.Now()
	m.Advance(90 * time.Second)
	if got := m.Now().Sub(start); got != 90*time.Second {
		t.Errorf("clock moved %v, want 90s", got)
	}
}
