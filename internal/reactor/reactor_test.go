package reactor

import (
	"os"
	"testing"
	"time"
)

type recordingCallback struct {
	events []EventMask
}

func (c *recordingCallback) OnFdEvent(fd int, mask EventMask) {
	c.events = append(c.events, mask)
}

func TestReactorDispatchesPipeReadability(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	backend := NewPollBackend()
	reactor := New(backend)

	cb := &recordingCallback{}
	if err := reactor.Watch(int(r.Fd()), EventRead, cb); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := reactor.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(cb.events) != 1 || cb.events[0]&EventRead == 0 {
		t.Fatalf("expected one read event, got %v", cb.events)
	}
}

func TestReactorUnwatchStopsDispatch(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	backend := NewPollBackend()
	reactor := New(backend)
	cb := &recordingCallback{}
	reactor.Watch(int(r.Fd()), EventRead, cb)
	reactor.Unwatch(int(r.Fd()))

	w.Write([]byte("y"))
	reactor.idleCapMs = 1
	if err := reactor.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(cb.events) != 0 {
		t.Fatalf("expected no events after unwatch, got %v", cb.events)
	}
}

func TestReactorTimerFiresWithinTick(t *testing.T) {
	backend := NewPollBackend()
	reactor := New(backend)
	reactor.idleCapMs = 5

	fired := make(chan struct{}, 1)
	reactor.AddTimer(1*time.Millisecond, 0, func() {
		fired <- struct{}{}
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := reactor.Tick(); err != nil {
			t.Fatalf("tick: %v", err)
		}
		select {
		case <-fired:
			return
		default:
		}
	}
	t.Fatal("timer did not fire within deadline")
}

type fakeWorkerSource struct {
	r, w       *os.File
	bits       uint32
	mainCalled []uint32
}

func newFakeWorkerSource(t *testing.T) *fakeWorkerSource {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	return &fakeWorkerSource{r: r, w: w}
}

func (f *fakeWorkerSource) Fd() int { return int(f.r.Fd()) }

func (f *fakeWorkerSource) signal(bit uint32) {
	f.bits |= bit
	f.w.Write([]byte{1})
}

func (f *fakeWorkerSource) TakeBits() uint32 {
	var buf [64]byte
	f.r.Read(buf[:])
	bits := f.bits
	f.bits = 0
	return bits
}

func (f *fakeWorkerSource) MainRoutine(bits uint32) {
	f.mainCalled = append(f.mainCalled, bits)
}

func TestReactorRunsWorkerMainRoutineAfterFdEvents(t *testing.T) {
	backend := NewPollBackend()
	reactor := New(backend)

	order := []string{}
	var ws *fakeWorkerSource

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()
	fdCb := callbackFunc(func(fd int, mask EventMask) {
		if ws != nil && len(ws.mainCalled) > 0 {
			order = append(order, "main-before-fd")
		}
		order = append(order, "fd")
	})
	reactor.Watch(int(r.Fd()), EventRead, fdCb)
	w.Write([]byte("z"))

	ws = newFakeWorkerSource(t)
	defer ws.r.Close()
	defer ws.w.Close()
	reactor.RegisterWorker(ws)
	ws.signal(1)

	origMain := ws.MainRoutine
	_ = origMain

	if err := reactor.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(ws.mainCalled) != 1 || ws.mainCalled[0] != 1 {
		t.Fatalf("expected worker main routine called once with bit 1, got %v", ws.mainCalled)
	}
	if len(order) != 1 || order[0] != "fd" {
		t.Fatalf("expected the ordinary fd callback to have run before the worker main routine, got %v", order)
	}
}

type callbackFunc func(fd int, mask EventMask)

func (f callbackFunc) OnFdEvent(fd int, mask EventMask) { f(fd, mask) }
