package worker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConnector fails Connect a fixed number of times before succeeding,
// then echoes whatever payload it's given back as the result — enough to
// drive spec.md §8 scenario 5 without a real external resource. When block
// is set, Execute waits for it to be closed before returning.
type fakeConnector struct {
	mu          sync.Mutex
	failConnect int
	connects    int
	closed      bool
	block       chan struct{}
}

func (f *fakeConnector) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connects <= f.failConnect {
		return errors.New("not yet")
	}
	return nil
}

func (f *fakeConnector) Execute(req interface{}) (interface{}, error) {
	if f.block != nil {
		<-f.block
	}
	return req, nil
}

func (f *fakeConnector) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestWorkerHandshakeRetriesThenSucceeds(t *testing.T) {
	conn := &fakeConnector{failConnect: 2}

	var readyCount int32Counter
	w, err := New(conn, Config{HandshakeRetryDelay: 5 * time.Millisecond, HandshakePollStep: time.Millisecond},
		func() { readyCount.inc() },
		func(Result) {},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start()
	defer func() {
		w.Stop()
		w.Wait()
	}()

	waitUntil(t, time.Second, func() bool {
		bits := w.TakeBits()
		if bits != 0 {
			w.MainRoutine(bits)
		}
		return readyCount.get() == 1
	})

	if readyCount.get() != 1 {
		t.Fatalf("expected on_ready exactly once, got %d", readyCount.get())
	}
}

func TestWorkerDispatchesResultsInOrder(t *testing.T) {
	conn := &fakeConnector{}
	var mu sync.Mutex
	var order []uint64

	w, err := New(conn, Config{HandshakeRetryDelay: time.Millisecond, HandshakePollStep: time.Millisecond},
		nil,
		func(res Result) {
			mu.Lock()
			order = append(order, res.Qid)
			mu.Unlock()
		},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start()
	defer func() {
		w.Stop()
		w.Wait()
	}()

	waitUntil(t, time.Second, func() bool {
		bits := w.TakeBits()
		if bits != 0 {
			w.MainRoutine(bits)
		}
		return w.State() == StateServicing
	})

	w.Submit(Request{Qid: 1, Payload: "a"})
	w.Submit(Request{Qid: 2, Payload: "b"})
	w.Submit(Request{Qid: 3, Payload: "c"})

	waitUntil(t, time.Second, func() bool {
		bits := w.TakeBits()
		if bits != 0 {
			w.MainRoutine(bits)
		}
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	got := append([]uint64(nil), order...)
	mu.Unlock()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected results in order 1,2,3, got %v", got)
	}
}

func TestWorkerBusyJobQuiescence(t *testing.T) {
	conn := &fakeConnector{}
	w, err := New(conn, Config{HandshakeRetryDelay: time.Millisecond, HandshakePollStep: time.Millisecond}, nil, func(Result) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start()
	defer func() {
		w.Stop()
		w.Wait()
	}()

	waitUntil(t, time.Second, func() bool {
		bits := w.TakeBits()
		if bits != 0 {
			w.MainRoutine(bits)
		}
		return w.State() == StateServicing
	})

	if _, unfinished := w.BusyJob(); unfinished != 0 {
		t.Fatalf("expected quiescent worker to report 0 unfinished, got %d", unfinished)
	}

	w.Submit(Request{Qid: 1, Payload: "x"})

	waitUntil(t, time.Second, func() bool {
		bits := w.TakeBits()
		if bits != 0 {
			w.MainRoutine(bits)
		}
		_, unfinished := w.BusyJob()
		return unfinished == 0
	})
}

func TestWorkerStopDrainsQueueAsErrors(t *testing.T) {
	conn := &fakeConnector{block: make(chan struct{})}
	var mu sync.Mutex
	var results []Result

	w, err := New(conn, Config{HandshakeRetryDelay: time.Millisecond, HandshakePollStep: time.Millisecond}, nil,
		func(res Result) {
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start()

	waitUntil(t, time.Second, func() bool {
		bits := w.TakeBits()
		if bits != 0 {
			w.MainRoutine(bits)
		}
		return w.State() == StateServicing
	})

	// Qid 1 is picked up and held inside Execute; 2 and 3 are still queued
	// when Stop is requested.
	w.Submit(Request{Qid: 1, Payload: "a"})
	waitUntil(t, time.Second, func() bool { return w.requests.len() == 0 })
	w.Submit(Request{Qid: 2, Payload: "b"})
	w.Submit(Request{Qid: 3, Payload: "c"})

	w.Stop()
	close(conn.block)
	w.Wait()
	w.MainRoutine(w.TakeBits())

	if !conn.closed {
		t.Fatal("expected Connector.Close to be called on stop")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(results) != 3 || results[0].Qid != 1 || results[0].Err != nil {
		t.Fatalf("expected the in-flight request to finish normally and two drained results, got %+v", results)
	}
	for _, res := range results[1:] {
		if !errors.Is(res.Err, ErrStopped) {
			t.Fatalf("expected queued request %d to be drained with ErrStopped, got %v", res.Qid, res.Err)
		}
	}
}

// int32Counter avoids importing sync/atomic's raw int32 plumbing at every
// call site in this file's tests.
type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
