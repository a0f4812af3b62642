package ioadapter

import (
	"golang.org/x/sys/unix"

	"github.com/ouyang506/gamenetcore/internal/buffer"
)

// PlainAdapter reads/writes a non-blocking raw fd directly, grounded on the
// teacher's Poll.loopRead / loopWrite (common/network/net_poll_linux.go),
// generalized from the teacher's inline connection-map lookups into an
// Adapter that only ever touches the Buffer handed to it.
type PlainAdapter struct {
	Fd int
}

func NewPlain(fd int) *PlainAdapter {
	return &PlainAdapter{Fd: fd}
}

func (a *PlainAdapter) Recv(buf *buffer.Buffer) Result {
	space := buf.SpacePtr()
	if len(space) == 0 {
		buf.AddUsedOffset(0)
		return Result{Status: StatusOK, N: 0}
	}
	n, err := unix.Read(a.Fd, space)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return Result{Status: StatusRetryRead}
		}
		return Result{Status: StatusError, Err: err}
	}
	if n == 0 {
		return Result{Status: StatusPeerClosed}
	}
	buf.AddUsedOffset(n)
	if n < len(space) {
		return Result{Status: StatusOK, N: n}
	}
	return Result{Status: StatusOKPartial, N: n}
}

func (a *PlainAdapter) Send(buf *buffer.Buffer) Result {
	pending := buf.UsedPtr()
	if len(pending) == 0 {
		return Result{Status: StatusOK, N: 0}
	}
	n, err := unix.Write(a.Fd, pending)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return Result{Status: StatusRetryWrite}
		}
		return Result{Status: StatusError, Err: err}
	}
	buf.Remove(n)
	if n < len(pending) {
		return Result{Status: StatusOKPartial, N: n}
	}
	return Result{Status: StatusOK, N: n}
}

func (a *PlainAdapter) Close() error {
	return unix.Close(a.Fd)
}
