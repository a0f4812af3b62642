// Package spinlock provides a short critical-section lock for hand-offs
// between pools, buffers and worker queues. It is referenced by name in
// the workpool generation this package is modeled on (worker_queue.go calls
// NewSpinLock) but never shipped there; this is that missing piece, built
// in the same idiom: a sync.Locker so it drops straight into sync.Cond.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

const maxBackoff = 16

// SpinLock is a test-and-set busy-wait lock. Not reentrant. Callers must
// never hold it across a syscall that may block — it exists only to guard
// enqueue/dequeue/size bookkeeping.
type SpinLock struct {
	state int32
}

// New returns an unlocked SpinLock satisfying sync.Locker.
func New() *SpinLock {
	return &SpinLock{}
}

func (l *SpinLock) Lock() {
	backoff := 1
	for !atomic.CompareAndSwapInt32(&l.state, 0, 1) {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (l *SpinLock) Unlock() {
	atomic.StoreInt32(&l.state, 0)
}

// TryLock attempts to acquire the lock without blocking.
func (l *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapInt32(&l.state, 0, 1)
}
