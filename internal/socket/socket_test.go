//go:build linux

package socket

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ouyang506/gamenetcore/internal/buffer"
	"github.com/ouyang506/gamenetcore/internal/framer"
	"github.com/ouyang506/gamenetcore/internal/ioadapter"
	"github.com/ouyang506/gamenetcore/internal/reactor"
)

type capturingCallbacks struct {
	messages [][]byte
	closedAs []CloseReason
}

func (c *capturingCallbacks) OnMessage(connID string, msg []byte) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.messages = append(c.messages, cp)
}

func (c *capturingCallbacks) OnClose(connID string, reason CloseReason) {
	c.closedAs = append(c.closedAs, reason)
}

func newSocketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

func TestSocketDeliversFramedMessageToOnMessage(t *testing.T) {
	peerFd, socketFd := newSocketPair(t)
	defer unix.Close(peerFd)

	backend := reactor.NewPollBackend()
	rr := reactor.New(backend)

	cbs := &capturingCallbacks{}
	sock := New(Params{
		ConnID:         "conn-1",
		Fd:             socketFd,
		SendChunkMax:   1024,
		RecvChunkMax:   1024,
		ChunkCap:       buffer.DefaultChunkCapacity,
		OverflowPolicy: buffer.OverflowDisconnect,
		Adapter:        ioadapter.NewPlain(socketFd),
		Framer:         framer.NewLengthPrefix(2, 0),
		Reactor:        rr,
		Callbacks:      cbs,
	})
	_ = sock

	payload := []byte("hi")
	hdr := []byte{0, byte(len(payload))}
	unix.Write(peerFd, hdr)
	unix.Write(peerFd, payload)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(cbs.messages) == 0 {
		rr.Tick()
	}

	if len(cbs.messages) != 1 || string(cbs.messages[0]) != "hi" {
		t.Fatalf("expected one message %q, got %v", "hi", cbs.messages)
	}
}

func TestSocketStopTermClosesImmediately(t *testing.T) {
	peerFd, socketFd := newSocketPair(t)
	defer unix.Close(peerFd)

	backend := reactor.NewPollBackend()
	rr := reactor.New(backend)
	cbs := &capturingCallbacks{}

	sock := New(Params{
		ConnID:         "conn-2",
		Fd:             socketFd,
		SendChunkMax:   1024,
		RecvChunkMax:   1024,
		ChunkCap:       buffer.DefaultChunkCapacity,
		OverflowPolicy: buffer.OverflowDisconnect,
		Adapter:        ioadapter.NewPlain(socketFd),
		Framer:         framer.NewLengthPrefix(2, 0),
		Reactor:        rr,
		Callbacks:      cbs,
	})

	sock.Stop(false, true)

	if sock.State() != StateClosed {
		t.Fatalf("expected immediate close on term, got state %v", sock.State())
	}
	if len(cbs.closedAs) != 1 || cbs.closedAs[0] != CloseReasonLocal {
		t.Fatalf("expected one local close callback, got %v", cbs.closedAs)
	}
}

// stuckAdapter never completes a Send, simulating a peer that stops
// reading — used to exercise Stop(flush=true)'s bounded grace period.
type stuckAdapter struct{}

func (stuckAdapter) Recv(buf *buffer.Buffer) ioadapter.Result {
	return ioadapter.Result{Status: ioadapter.StatusRetryRead}
}
func (stuckAdapter) Send(buf *buffer.Buffer) ioadapter.Result {
	return ioadapter.Result{Status: ioadapter.StatusRetryWrite}
}
func (stuckAdapter) Close() error { return nil }

func TestSocketStopFlushForceTerminatesAfterGracePeriod(t *testing.T) {
	peerFd, socketFd := newSocketPair(t)
	defer unix.Close(peerFd)

	backend := reactor.NewPollBackend()
	rr := reactor.New(backend)
	cbs := &capturingCallbacks{}

	sock := New(Params{
		ConnID:         "conn-4",
		Fd:             socketFd,
		SendChunkMax:   1024,
		RecvChunkMax:   1024,
		ChunkCap:       buffer.DefaultChunkCapacity,
		OverflowPolicy: buffer.OverflowDisconnect,
		Adapter:        stuckAdapter{},
		Framer:         framer.NewLengthPrefix(2, 0),
		Reactor:        rr,
		Callbacks:      cbs,
		FlushGrace:     20 * time.Millisecond,
	})

	if err := sock.Send([]byte("never drains")); err != nil {
		t.Fatalf("send: %v", err)
	}
	sock.Stop(true, false)

	if sock.State() != StateClosing {
		t.Fatalf("expected state closing immediately after Stop, got %v", sock.State())
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sock.State() != StateClosed {
		rr.Tick()
	}

	if sock.State() != StateClosed {
		t.Fatal("expected the flush grace period to force-terminate the socket")
	}
	if len(cbs.closedAs) != 1 || cbs.closedAs[0] != CloseReasonLocal {
		t.Fatalf("expected one local close callback, got %v", cbs.closedAs)
	}
}

func TestSocketStopFlushWaitsForSendBufferDrain(t *testing.T) {
	peerFd, socketFd := newSocketPair(t)
	defer unix.Close(peerFd)

	backend := reactor.NewPollBackend()
	rr := reactor.New(backend)
	cbs := &capturingCallbacks{}

	sock := New(Params{
		ConnID:         "conn-3",
		Fd:             socketFd,
		SendChunkMax:   1024,
		RecvChunkMax:   1024,
		ChunkCap:       buffer.DefaultChunkCapacity,
		OverflowPolicy: buffer.OverflowDisconnect,
		Adapter:        ioadapter.NewPlain(socketFd),
		Framer:         framer.NewLengthPrefix(2, 0),
		Reactor:        rr,
		Callbacks:      cbs,
	})

	if err := sock.Send([]byte("queued")); err != nil {
		t.Fatalf("send: %v", err)
	}
	sock.Stop(true, false)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sock.State() != StateClosed {
		rr.Tick()
		// Drain the peer side so the send buffer can empty.
		var buf [256]byte
		unix.Read(peerFd, buf[:])
	}

	if sock.State() != StateClosed {
		t.Fatal("expected socket to close after flushing its send buffer")
	}
	if len(cbs.closedAs) != 1 || cbs.closedAs[0] != CloseReasonLocal {
		t.Fatalf("expected one local close callback, got %v", cbs.closedAs)
	}
}
