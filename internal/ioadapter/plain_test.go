//go:build linux

package ioadapter

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/ouyang506/gamenetcore/internal/buffer"
)

func TestPlainAdapterSendRecvRoundTrip(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	sender := NewPlain(fds[0])
	receiver := NewPlain(fds[1])

	sendBuf := buffer.New("test-send", buffer.DefaultChunkCapacity, 1024)
	sendBuf.Append([]byte("hello over socketpair"))

	res := sender.Send(sendBuf)
	if res.Status != StatusOK {
		t.Fatalf("expected ok send, got %v (err=%v)", res.Status, res.Err)
	}
	if !sendBuf.IsEmpty() {
		t.Fatal("expected send buffer drained")
	}

	recvBuf := buffer.New("test-recv", buffer.DefaultChunkCapacity, 1024)
	res = receiver.Recv(recvBuf)
	if res.Status != StatusOK && res.Status != StatusOKPartial {
		t.Fatalf("expected a successful recv, got %v (err=%v)", res.Status, res.Err)
	}

	scratch := make([]byte, 64)
	out, n := recvBuf.AllToContinuous(scratch)
	if string(out[:n]) != "hello over socketpair" {
		t.Fatalf("expected round-tripped payload, got %q", out[:n])
	}
}

func TestPlainAdapterRecvRetriesWhenNothingPending(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	receiver := NewPlain(fds[1])
	recvBuf := buffer.New("test-recv-empty", buffer.DefaultChunkCapacity, 1024)

	res := receiver.Recv(recvBuf)
	if res.Status != StatusRetryRead {
		t.Fatalf("expected retry_read on an idle non-blocking socket, got %v (err=%v)", res.Status, res.Err)
	}
}

func TestPlainAdapterPeerClosedDetected(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[1])

	unix.Close(fds[0]) // close the peer before reading

	receiver := NewPlain(fds[1])
	recvBuf := buffer.New("test-recv-closed", buffer.DefaultChunkCapacity, 1024)

	res := receiver.Recv(recvBuf)
	if res.Status != StatusPeerClosed {
		t.Fatalf("expected peer_closed, got %v (err=%v)", res.Status, res.Err)
	}
}
