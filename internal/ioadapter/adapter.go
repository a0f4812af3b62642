// Package ioadapter implements the I/O Adapter (C6): the per-socket
// read/write strategy that drains/fills a Socket's Buffers at the syscall
// boundary. Two variants share one contract: Plain (raw non-blocking
// syscalls, grounded on the teacher's Poll.loopRead/loopWrite in
// common/network/net_poll_linux.go) and TLS (crypto/tls over a short
// read/write deadline, grounded on the teacher's Windows generation
// net_core_windows.go, which already polls via SetReadDeadline/
// SetWriteDeadline and treats os.ErrDeadlineExceeded as "try again").
package ioadapter

import "github.com/ouyang506/gamenetcore/internal/buffer"

// Status tags the outcome of one Recv/Send attempt (spec.md §4.5).
type Status int

const (
	StatusOK Status = iota
	StatusOKPartial
	StatusRetryRead
	StatusRetryWrite
	StatusPeerClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOKPartial:
		return "ok_partial"
	case StatusRetryRead:
		return "retry_read"
	case StatusRetryWrite:
		return "retry_write"
	case StatusPeerClosed:
		return "peer_closed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Result reports the outcome of one Recv or Send attempt.
type Result struct {
	Status Status
	N      int
	Err    error
}

// Adapter drains a Socket's receive Buffer from, or fills its send Buffer
// to, the underlying transport. Adapters hold no buffering of their own;
// all state lives in the Buffer passed in.
type Adapter interface {
	// Recv attempts to fill buf's tail free region directly from the
	// transport, reporting bytes actually received via AddUsedOffset
	// before returning.
	Recv(buf *buffer.Buffer) Result
	// Send attempts to drain buf's head pending region to the transport,
	// calling buf.Remove for bytes actually written before returning.
	Send(buf *buffer.Buffer) Result
	// Close releases the adapter's transport-level resources. Does not
	// touch the Socket's Buffers.
	Close() error
}
