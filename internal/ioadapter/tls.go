package ioadapter

import (
	"crypto/tls"
	"errors"
	"net"
	"os"
	"time"

	"github.com/ouyang506/gamenetcore/internal/buffer"
)

// pollDeadline is how long a single non-blocking-emulated Read/Write
// attempt is allowed to wait before reporting retry. crypto/tls has no
// non-blocking mode of its own, so a short deadline stands in for it —
// the same technique the teacher's Windows generation uses in
// net_core_windows.go's loopRead/loopWrite (SetReadDeadline/
// SetWriteDeadline, treating os.ErrDeadlineExceeded as "try again").
const pollDeadline = time.Millisecond

// TLSAdapter wraps a *tls.Conn, offering the same Recv/Send contract as
// PlainAdapter over an encrypted transport. crypto/tls is the stdlib
// package, not a third-party dependency — used here because it is also
// what the pack's own TLS-capable repo (azhai-gozzo-net/http/client.go)
// reaches for; there is no third-party TLS stack in the retrieval pack to
// adapt instead (see DESIGN.md).
type TLSAdapter struct {
	conn *tls.Conn
}

func NewTLSServer(raw net.Conn, config *tls.Config) *TLSAdapter {
	return &TLSAdapter{conn: tls.Server(raw, config)}
}

func NewTLSClient(raw net.Conn, config *tls.Config) *TLSAdapter {
	return &TLSAdapter{conn: tls.Client(raw, config)}
}

func (a *TLSAdapter) Recv(buf *buffer.Buffer) Result {
	space := buf.SpacePtr()
	if len(space) == 0 {
		return Result{Status: StatusOK, N: 0}
	}
	a.conn.SetReadDeadline(time.Now().Add(pollDeadline))
	n, err := a.conn.Read(space)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return Result{Status: StatusRetryRead}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Result{Status: StatusRetryRead}
		}
		if err.Error() == "EOF" {
			return Result{Status: StatusPeerClosed}
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

func (a *TLSAdapter) Send(buf *buffer.Buffer) Result {
	pending := buf.UsedPtr()
	if len(pending) == 0 {
		return Result{Status: StatusOK, N: 0}
	}
	a.conn.SetWriteDeadline(time.Now().Add(pollDeadline))
	n, err := a.conn.Write(pending)
	if err != nil {
		if n > 0 {
			buf.Remove(n)
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return Result{Status: StatusRetryWrite, N: n}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Result{Status: StatusRetryWrite, N: n}
		}
		return Result{Status: StatusError, Err: err}
	}
	buf.Remove(n)
	if n < len(pending) {
		return Result{Status: StatusOKPartial, N: n}
	}
	return Result{Status: StatusOK, N: n}
}

func (a *TLSAdapter) Close() error {
	return a.conn.Close()
}
