// Timer subsystem: a deadline-ordered heap, adapted from the teacher's
// TimerWheel (src/utility/timer/timer.go) down to the plain binary heap
// spec.md §4.4 calls for ("a timer heap keyed by next-fire timestamp").
// No third-party heap/priority-queue library appears anywhere in the
// retrieval pack, so this stays on container/heap — a deliberate
// stdlib choice, not an oversight (see DESIGN.md).
package reactor

import "container/heap"

// TimerID identifies a scheduled timer for Remove.
type TimerID uint64

type timerEntry struct {
	id       TimerID
	deadline int64 // unix nanoseconds, monotonic-derived
	period   int64 // 0 = one-shot
	cb       func()
	canceled bool
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline < h[j].deadline }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timers owns the heap plus an id→entry index so Remove is O(log n)
// instead of a linear scan.
type timers struct {
	h      timerHeap
	byID   map[TimerID]*timerEntry
	nextID TimerID
}

func newTimers() *timers {
	return &timers{byID: make(map[TimerID]*timerEntry)}
}

// add schedules cb to fire timeoutNanos from nowNanos; if periodNanos > 0
// it reschedules by adding periodNanos to the previous deadline (not to
// the fire-time "now"), keeping long-run drift bounded per spec.md §4.4.
func (t *timers) add(nowNanos, timeoutNanos, periodNanos int64, cb func()) TimerID {
	t.nextID++
	id := t.nextID
	e := &timerEntry{
		id:       id,
		deadline: nowNanos + timeoutNanos,
		period:   periodNanos,
		cb:       cb,
	}
	heap.Push(&t.h, e)
	t.byID[id] = e
	return id
}

// remove cancels a pending timer. Removing an already-fired or unknown id
// is a no-op.
func (t *timers) remove(id TimerID) {
	e, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	if e.index >= 0 {
		heap.Remove(&t.h, e.index)
	}
}

// nextDeadline reports the earliest pending deadline, if any.
func (t *timers) nextDeadline() (int64, bool) {
	if len(t.h) == 0 {
		return 0, false
	}
	return t.h[0].deadline, true
}

// drainExpired fires, in strict deadline order, every timer whose deadline
// is <= now. Periodic timers are re-armed before their callback runs so a
// callback that adds a new timer never observes a stale heap.
func (t *timers) drainExpired(now int64) {
	for len(t.h) > 0 && t.h[0].deadline <= now {
		e := heap.Pop(&t.h).(*timerEntry)
		delete(t.byID, e.id)
		if e.period > 0 {
			e.deadline += e.period
			e.index = -1
			heap.Push(&t.h, e)
			t.byID[e.id] = e
		}
		e.cb()
	}
}
