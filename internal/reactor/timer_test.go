package reactor

import "testing"

func TestTimersFireInDeadlineOrder(t *testing.T) {
	tm := newTimers()
	var fired []string

	tm.add(0, 30, 0, func() { fired = append(fired, "c") })
	tm.add(0, 10, 0, func() { fired = append(fired, "a") })
	tm.add(0, 20, 0, func() { fired = append(fired, "b") })

	tm.drainExpired(100)

	if len(fired) != 3 || fired[0] != "a" || fired[1] != "b" || fired[2] != "c" {
		t.Fatalf("expected strict deadline order [a b c], got %v", fired)
	}
}

func TestTimersOnlyFireExpiredOnes(t *testing.T) {
	tm := newTimers()
	var fired []string

	tm.add(0, 10, 0, func() { fired = append(fired, "soon") })
	tm.add(0, 1000, 0, func() { fired = append(fired, "later") })

	tm.drainExpired(15)

	if len(fired) != 1 || fired[0] != "soon" {
		t.Fatalf("expected only the earlier timer to fire, got %v", fired)
	}

	deadline, ok := tm.nextDeadline()
	if !ok || deadline != 1000 {
		t.Fatalf("expected remaining deadline 1000, got %v (ok=%v)", deadline, ok)
	}
}

func TestTimerPeriodicReschedulesFromPreviousDeadlineNotNow(t *testing.T) {
	tm := newTimers()
	count := 0

	tm.add(0, 10, 10, func() { count++ })

	// Draining late (now=35 instead of 10) must catch the timer up by
	// adding the period to each previous deadline in turn (10->20->30->40)
	// rather than rebasing off "now", so it fires three times (at 10, 20,
	// 30) and lands on deadline 40 — drift stays bounded instead of the
	// timer sliding forward to 35+10=45.
	tm.drainExpired(35)
	if count != 3 {
		t.Fatalf("expected three catch-up fires, got %d", count)
	}
	deadline, ok := tm.nextDeadline()
	if !ok || deadline != 40 {
		t.Fatalf("expected rescheduled deadline 40, got %v", deadline)
	}
}

func TestTimerRemoveCancelsPending(t *testing.T) {
	tm := newTimers()
	fired := false
	id := tm.add(0, 10, 0, func() { fired = true })
	tm.remove(id)
	tm.drainExpired(100)
	if fired {
		t.Fatal("expected removed timer not to fire")
	}
}
