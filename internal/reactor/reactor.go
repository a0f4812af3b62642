// Package reactor implements the Reactor (C5) and its pluggable Backend
// (C4): a single-main-thread event loop that multiplexes fd readiness and
// timers and dispatches worker wake signals as one more event source.
// Grounded on the teacher's Poll/NetPollCore main loop
// (common/network/net_poll_linux.go's loopEpollWait), generalized from one
// fixed epoll backend into a swappable Backend interface per spec.md §4.4,
// and its TimerWheel (src/utility/timer/timer.go), generalized to the
// heap-based timer spec.md names.
package reactor

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// DefaultIdleCapMs bounds how long a tick's Wait blocks when no timer is
// pending (spec.md §4.4 step 2).
const DefaultIdleCapMs = 100

// WorkerSource is a Reactor event source backed by a worker thread's
// signal-bit wake channel (spec.md §4.8, §5). Its Fd is watched for
// readability like any other fd, but its readiness is drained into a bit
// mask and its MainRoutine runs only after every ordinary fd event has
// been dispatched for the tick (spec.md §4.4's ordering guarantee).
type WorkerSource interface {
	Fd() int
	// TakeBits drains the wake fd and atomically reads and clears the
	// pending signal bits, returning what was pending. The Reactor calls it
	// for each tick in which Fd became readable and does not read the fd
	// itself.
	TakeBits() uint32
	// MainRoutine handles the bits that were pending when TakeBits was
	// called. Runs on the reactor's main thread.
	MainRoutine(bits uint32)
}

var ErrStopped = errors.New("reactor: stopped")

// Reactor owns the fd-keyed watcher map, the timer heap, and the set of
// worker wake sources, and runs the single cooperative main loop.
type Reactor struct {
	backend Backend
	timers  *timers

	watchers map[int]*watcher
	workers  map[int]WorkerSource
	pending  []WorkerSource // worker sources that became readable this tick

	idleCapMs int
	stopping  bool
	now       int64 // unix nanoseconds, refreshed once per tick
	debug     bool  // controls InvalidFd's panic-vs-log behavior
}

// New creates a Reactor bound to the given Backend.
func New(backend Backend) *Reactor {
	return &Reactor{
		backend:   backend,
		timers:    newTimers(),
		watchers:  make(map[int]*watcher),
		workers:   make(map[int]WorkerSource),
		idleCapMs: DefaultIdleCapMs,
	}
}

// SetDebugMode controls whether InvalidFd panics (debug) or just logs
// (release, the default).
func (r *Reactor) SetDebugMode(on bool) { r.debug = on }

// Now returns the clock sample most recently taken by Tick (at the start of
// the tick, and again after the backend wait), as unix nanoseconds that
// advance with the monotonic clock.
func (r *Reactor) Now() int64 { return r.now }

// Watch registers or updates fd's interest mask, routing its readiness to
// cb. newMask of 0 deregisters the watcher entirely.
func (r *Reactor) Watch(fd int, newMask EventMask, cb Callback) error {
	w, existed := r.watchers[fd]
	old := EventMask(0)
	if existed {
		old = w.interest
	}
	if newMask == 0 {
		if existed {
			delete(r.watchers, fd)
		}
		return r.backend.Modify(fd, old, 0)
	}
	if !existed {
		w = &watcher{fd: fd, cb: cb}
		r.watchers[fd] = w
	}
	w.interest = newMask
	w.cb = cb
	return r.backend.Modify(fd, old, newMask)
}

// Unwatch deregisters fd entirely.
func (r *Reactor) Unwatch(fd int) error {
	return r.Watch(fd, 0, nil)
}

// AddTimer schedules cb to fire after timeout, optionally repeating every
// period (period == 0 means one-shot). Returns an id usable with
// RemoveTimer.
func (r *Reactor) AddTimer(timeout, period time.Duration, cb func()) TimerID {
	return r.timers.add(r.clockNow(), int64(timeout), int64(period), cb)
}

// RemoveTimer cancels a pending timer. A no-op if id already fired or is
// unknown.
func (r *Reactor) RemoveTimer(id TimerID) {
	r.timers.remove(id)
}

// RegisterWorker adds a WorkerSource as a Reactor event source, watching
// its Fd for readability.
func (r *Reactor) RegisterWorker(ws WorkerSource) error {
	r.workers[ws.Fd()] = ws
	return r.backend.Modify(ws.Fd(), 0, EventRead)
}

// UnregisterWorker removes a previously registered WorkerSource.
func (r *Reactor) UnregisterWorker(ws WorkerSource) error {
	delete(r.workers, ws.Fd())
	return r.backend.Modify(ws.Fd(), EventRead, 0)
}

// Stop requests the main loop exit after the current tick's shutdown pass.
func (r *Reactor) Stop() { r.stopping = true }

// clockBase anchors clockNow: a reading is clockBase's wall time plus the
// monotonic time elapsed since then, so it never steps with wall-clock changes.
var clockBase = time.Now()

func (r *Reactor) clockNow() int64 { return clockBase.UnixNano() + int64(time.Since(clockBase)) }

// fdEvent is invoked by the Backend, inline during Wait, once per ready fd
// for the tick. Worker-source fds are recorded for post-tick draining
// instead of being handled immediately, so worker main routines always run
// after every ordinary fd callback for the tick (spec.md §4.4 ordering).
func (r *Reactor) fdEvent(fd int, mask EventMask) {
	if ws, ok := r.workers[fd]; ok {
		r.pending = append(r.pending, ws)
		return
	}
	if w, ok := r.watchers[fd]; ok {
		w.cb.OnFdEvent(fd, mask)
	}
}

// InvalidFd is invoked by a Backend when it observes an invalid-fd
// condition (POLLNVAL) — distinct from an ordinary error/hangup, per
// spec.md §4.4: fatal in debug mode, logged and torn down like an error
// in release mode.
func (r *Reactor) InvalidFd(fd int) {
	if r.debug {
		panic(fmt.Sprintf("reactor: invalid fd %d (POLLNVAL)", fd))
	}
	log.Printf("reactor: invalid fd %d (POLLNVAL)", fd)
	r.fdEvent(fd, EventRead|EventWrite)
}

// Tick runs exactly one iteration of the main loop: read the clock,
// compute the next timeout, wait for readiness (which dispatches fd
// events inline), drain expired timers in deadline order, then drain
// pending worker main routines.
func (r *Reactor) Tick() error {
	r.now = r.clockNow()

	timeoutMs := r.idleCapMs
	if deadline, ok := r.timers.nextDeadline(); ok {
		remaining := (deadline - r.now) / int64(time.Millisecond)
		if remaining < 0 {
			remaining = 0
		}
		if int(remaining) < timeoutMs {
			timeoutMs = int(remaining)
		}
	}

	r.pending = r.pending[:0]
	if err := r.backend.Wait(r, timeoutMs); err != nil {
		return err
	}

	r.now = r.clockNow()
	r.timers.drainExpired(r.now)

	for _, ws := range r.pending {
		bits := ws.TakeBits()
		ws.MainRoutine(bits)
	}

	return nil
}

// Run drives Tick in a loop until Stop is called, then performs the
// shutdown callback (typically closing all sockets) before returning.
func (r *Reactor) Run(onShutdown func()) error {
	for !r.stopping {
		if err := r.Tick(); err != nil {
			return err
		}
	}
	if onShutdown != nil {
		onShutdown()
	}
	return r.backend.Close()
}
