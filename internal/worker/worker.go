// Package worker implements the Worker Thread (C9): a harness that owns an
// external blocking resource (exemplified by dbworker's database/sql
// connection) on a dedicated goroutine and communicates with the Reactor's
// main thread via a request queue, a result queue, and a self-pipe wake
// signal consumed as one more reactor.WorkerSource.
//
// Grounded on the teacher's src/utility/workpool (Pool/Worker/WorkerQueue)
// for the queue-plus-wake shape, with the worker's internal state machine
// driven by looplab/fsm (see below) — generalized from workpool's task-closure model
// (which has no handshake phase, no busy accounting, and no cross-thread
// signal bits at all) to spec.md §4.8's connect/service/disconnect
// lifecycle.
package worker

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
)

// State is the worker's internal lifecycle stage (spec.md §3).
type State int32

const (
	StateUnstarted State = iota
	StateConnecting
	StateReady
	StateServicing
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return stUnstarted
	case StateConnecting:
		return stConnecting
	case StateReady:
		return stReady
	case StateServicing:
		return stServicing
	case StateStopping:
		return stStopping
	case StateStopped:
		return stStopped
	default:
		return "unknown"
	}
}

// State name strings and event names for the looplab/fsm machine below.
// The mockclient generation (src/clients/mockclient/robot/robot.go) already
// reaches for looplab/fsm for a client-side state machine; the worker's
// unstarted/connecting/ready/servicing/stopping/stopped lifecycle
// (spec.md §3) is driven by the same library instead of the
// src/utility/fsm generation, which has no transition-table validation and
// would let a bug silently assign an impossible state.
const (
	stUnstarted  = "unstarted"
	stConnecting = "connecting"
	stReady      = "ready"
	stServicing  = "servicing"
	stStopping   = "stopping"
	stStopped    = "stopped"
)

const (
	evConnect = "connect"
	evReady   = "become_ready"
	evService = "start_servicing"
	evStop    = "stop"
	evStopped = "finish_stopping"
)

// newWorkerFSM builds the transition table for one Worker. All Event calls
// happen only from the worker's own goroutine (run, handshake, service) —
// never from the main thread — per spec.md §5's rule that a worker's
// internal state is owned by its own thread. The main thread only ever
// reads the atomic mirror State() publishes via the enter_state callback.
func newWorkerFSM(mirror *int32) *fsm.FSM {
	return fsm.NewFSM(
		stUnstarted,
		fsm.Events{
			{Name: evConnect, Src: []string{stUnstarted, stServicing}, Dst: stConnecting},
			{Name: evReady, Src: []string{stConnecting}, Dst: stReady},
			{Name: evService, Src: []string{stReady}, Dst: stServicing},
			{Name: evStop, Src: []string{stUnstarted, stConnecting, stReady, stServicing}, Dst: stStopping},
			{Name: evStopped, Src: []string{stConnecting, stStopping}, Dst: stStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				atomic.StoreInt32(mirror, int32(parseState(e.Dst)))
			},
		},
	)
}

func parseState(name string) State {
	switch name {
	case stUnstarted:
		return StateUnstarted
	case stConnecting:
		return StateConnecting
	case stReady:
		return StateReady
	case stServicing:
		return StateServicing
	case stStopping:
		return StateStopping
	case stStopped:
		return StateStopped
	default:
		return StateUnstarted
	}
}

const (
	bitReady uint32 = 1 << iota
	bitData
)

// ErrDisconnected, when returned (directly or wrapped) by Connector.Connect
// or Connector.Execute, tells the Worker the resource itself needs
// re-handshaking rather than that only the one request failed (spec.md §7:
// "worker_disconnected (recoverable, triggers re-handshake)").
var ErrDisconnected = errors.New("worker: resource disconnected")

// ErrStopped is the error attached to every result-wanting request still
// queued when the worker stops.
var ErrStopped = errors.New("worker: stopped")

// Connector is the external blocking resource a Worker drives. All three
// methods run only on the worker's own goroutine and may block freely.
type Connector interface {
	// Connect establishes the resource. Any returned error, whether it
	// wraps ErrDisconnected or not, causes the worker to retry per
	// Config's handshake cadence.
	Connect() error
	// Execute runs one request against the established resource.
	Execute(req interface{}) (interface{}, error)
	// Close releases the resource on shutdown.
	Close() error
}

// Config tunes the handshake retry cadence. Per spec.md §9's design note,
// polling via sleep is acceptable as long as the wait honors the worker's
// stopping flag at each sleep boundary, which is what HandshakePollStep
// bounds.
type Config struct {
	HandshakeRetryDelay time.Duration
	HandshakePollStep   time.Duration
}

// DefaultConfig mirrors internal/config's WorkerConfig defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeRetryDelay: time.Second,
		HandshakePollStep:   50 * time.Millisecond,
	}
}

// Worker is the generic harness of spec.md §4.8. Go has no unit cheaper
// than a goroutine that can block on a foreign call without stalling the
// reactor, so "its own OS thread" is realized here as a long-lived
// goroutine parked for the worker's entire lifetime — it never yields back
// to a shared pool, matching the one-thread-per-resource model the spec
// describes.
type Worker struct {
	conn Connector
	cfg  Config

	requests *fifo
	results  *fifo

	rFile, wFile *os.File
	bits         uint32 // atomic, OR'd by signal, swapped to 0 by TakeBits

	fsm        *fsm.FSM
	state      int32 // atomic mirror of fsm's current state, set via its enter_state callback
	stopping   int32 // atomic bool
	unfinished int32 // atomic: requests submitted but not yet resulted

	onReady  func()
	onResult func(Result)

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Worker bound to conn. onReady fires exactly once, the
// first time the handshake succeeds. onResult fires once per non-fire-and-
// forget Request, on the Reactor's main thread, from MainRoutine.
func New(conn Connector, cfg Config, onReady func(), onResult func(Result)) (*Worker, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	if err := setNonblock(r); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	worker := &Worker{
		conn:     conn,
		cfg:      cfg,
		requests: newFifo(),
		results:  newFifo(),
		rFile:    r,
		wFile:    w,
		onReady:  onReady,
		onResult: onResult,
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	worker.fsm = newWorkerFSM(&worker.state)
	return worker, nil
}

// Fd implements reactor.WorkerSource.
func (w *Worker) Fd() int { return int(w.rFile.Fd()) }

// TakeBits implements reactor.WorkerSource: drains the wake pipe and
// atomically swaps out the pending signal bits.
func (w *Worker) TakeBits() uint32 {
	drainAll(w.rFile)
	return atomic.SwapUint32(&w.bits, 0)
}

// MainRoutine implements reactor.WorkerSource, running on the Reactor's
// main thread (spec.md §4.4: "worker main routines fire after all fd
// events for that tick").
func (w *Worker) MainRoutine(bits uint32) {
	if bits&bitReady != 0 && w.onReady != nil {
		w.onReady()
	}
	if bits&bitData != 0 {
		for {
			v, ok := w.results.pop()
			if !ok {
				break
			}
			res := v.(Result)
			atomic.AddInt32(&w.unfinished, -1)
			if w.onResult != nil {
				w.onResult(res)
			}
		}
	}
}

// State returns the worker's last-observed lifecycle stage.
func (w *Worker) State() State {
	return State(atomic.LoadInt32(&w.state))
}

// BusyJob reports outstanding work per spec.md §8: "at quiescence
// busy_job().unfinished == 0 iff the request queue is empty AND the worker
// is not processing." unfinished is submitted-but-not-yet-resulted.
// finished is always reported as 0: completed requests are not counted.
func (w *Worker) BusyJob() (finished, unfinished int) {
	return 0, int(atomic.LoadInt32(&w.unfinished))
}

// Submit enqueues req for the worker. Qid of 0 means fire-and-forget.
func (w *Worker) Submit(req Request) {
	atomic.AddInt32(&w.unfinished, 1)
	w.requests.push(req)
	w.nudgeWake()
}

// nudgeWake pokes the worker's condvar-equivalent without blocking if it's
// already pending a wake.
func (w *Worker) nudgeWake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// Start launches the worker's goroutine: initialize() then the service
// loop, per spec.md §4.8.
func (w *Worker) Start() {
	go w.run()
}

// Stop requests the worker finish its in-flight call, drain as errors, and
// exit; it does not block for that to happen (spec.md §5: "the worker
// finishes its current external call, drains its request queue as errors
// ... and exits").
func (w *Worker) Stop() {
	if atomic.CompareAndSwapInt32(&w.stopping, 0, 1) {
		close(w.stopCh)
	}
}

// Wait blocks until the worker's goroutine has fully exited.
func (w *Worker) Wait() {
	<-w.doneCh
}

func (w *Worker) signal(bit uint32) {
	for {
		old := atomic.LoadUint32(&w.bits)
		if atomic.CompareAndSwapUint32(&w.bits, old, old|bit) {
			break
		}
	}
	w.wFile.Write([]byte{1})
}

func (w *Worker) isStopping() bool {
	return atomic.LoadInt32(&w.stopping) != 0
}

func (w *Worker) fire(event string) {
	// Invalid transitions only happen if this harness's own bookkeeping is
	// wrong; there is no recovery action a caller could take, so the error
	// is discarded rather than plumbed through every call site.
	_ = w.fsm.Event(context.Background(), event)
}

// run is the worker's entire goroutine body: handshake, then service loop,
// then uninitialize. It never touches w.requests/w.results without going
// through the fifo's spin lock, and never holds that lock across Execute.
func (w *Worker) run() {
	defer close(w.doneCh)
	defer w.conn.Close()

	if !w.handshake() {
		w.fire(evStopped)
		return
	}
	w.fire(evReady)
	w.signal(bitReady)

	w.fire(evService)
	for {
		if w.isStopping() {
			w.requeueAsErrors(ErrStopped)
			w.fire(evStop)
			w.fire(evStopped)
			return
		}
		req, ok := w.requests.pop()
		if !ok {
			select {
			case <-w.wakeCh:
			case <-w.stopCh:
			}
			continue
		}
		w.service(req.(Request))
	}
}

// handshake implements initialize(): retry Connect at HandshakeRetryDelay,
// polling in HandshakePollStep increments so Stop is observed promptly
// (spec.md §9). Returns false if stopped before a successful connect.
func (w *Worker) handshake() bool {
	w.fire(evConnect)
	for {
		if err := w.conn.Connect(); err == nil {
			return true
		}
		if !w.sleepRetryDelay() {
			return false
		}
	}
}

// service runs one request: drop the lock for the blocking Execute call,
// then classify the outcome per spec.md §4.8 step 2.
func (w *Worker) service(req Request) {
	payload, err := w.conn.Execute(req.Payload)
	if err != nil && errors.Is(err, ErrDisconnected) {
		if req.Qid != 0 {
			w.postResult(Result{Qid: req.Qid, Err: err})
		} else {
			atomic.AddInt32(&w.unfinished, -1)
		}
		w.requeueAsErrors(ErrDisconnected)
		if !w.handshake() {
			w.fire(evStopped)
			return
		}
		w.fire(evReady)
		w.fire(evService)
		return
	}
	if req.Qid != 0 {
		w.postResult(Result{Qid: req.Qid, Err: err, Payload: payload})
	} else {
		atomic.AddInt32(&w.unfinished, -1)
	}
}

// requeueAsErrors drains the remaining request queue, posting reason as
// the error for every request that wanted a result (spec.md §5: "drains
// its request queue as errors").
func (w *Worker) requeueAsErrors(reason error) {
	for {
		v, ok := w.requests.pop()
		if !ok {
			return
		}
		req := v.(Request)
		if req.Qid != 0 {
			w.postResult(Result{Qid: req.Qid, Err: reason})
		} else {
			atomic.AddInt32(&w.unfinished, -1)
		}
	}
}

func (w *Worker) postResult(res Result) {
	w.results.push(res)
	w.signal(bitData)
}

// sleepRetryDelay waits a jittered HandshakeRetryDelay in HandshakePollStep
// slices, returning false the moment stopping is observed. The jitter
// keeps a Group's shards from retrying a shared outage in lockstep.
func (w *Worker) sleepRetryDelay() bool {
	return w.sleepBounded(jitter(w.cfg.HandshakeRetryDelay))
}

func (w *Worker) sleepBounded(total time.Duration) bool {
	step := w.cfg.HandshakePollStep
	if step <= 0 {
		step = 50 * time.Millisecond
	}
	elapsed := time.Duration(0)
	for elapsed < total {
		select {
		case <-w.stopCh:
			return false
		case <-time.After(step):
			elapsed += step
		}
	}
	return !w.isStopping()
}
