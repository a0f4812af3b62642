package worker

import (
	"github.com/eapache/queue"

	"github.com/ouyang506/gamenetcore/internal/spinlock"
)

// Request is a unit of work submitted by the main thread. A Qid of zero
// means fire-and-forget: the worker still executes it but Result delivery
// is skipped (spec.md §3: "a zero qid means fire and forget").
type Request struct {
	Qid     uint64
	Payload interface{}
}

// Result is a unit of work posted back by the worker thread, paired to its
// Request by Qid.
type Result struct {
	Qid     uint64
	Err     error
	Payload interface{}
}

// fifo is the spin-lock-guarded queue shared between the submitting thread
// and the worker thread. Per spec.md §5 the lock is held only across
// enqueue, dequeue and size reads — never across the worker's blocking
// external call and never across a Reactor tick.
type fifo struct {
	lock *spinlock.SpinLock
	q    *queue.Queue
}

func newFifo() *fifo {
	return &fifo{lock: spinlock.New(), q: queue.New()}
}

func (f *fifo) push(v interface{}) {
	f.lock.Lock()
	f.q.Add(v)
	f.lock.Unlock()
}

func (f *fifo) pop() (interface{}, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.q.Length() == 0 {
		return nil, false
	}
	return f.q.Remove(), true
}

func (f *fifo) len() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.q.Length()
}
