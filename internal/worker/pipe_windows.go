//go:build windows

package worker

import (
	"os"
	"time"
)

// setNonblock is a no-op on Windows: the stub reactor backend (see
// internal/reactor/backend_stub.go) never truly multiplexes readiness, so
// the self-pipe only needs to be readable at all, not non-blocking.
func setNonblock(f *os.File) error {
	return nil
}

// drainAll does a single best-effort read; StubBackend polls on a fixed
// tick budget rather than edge-triggered readiness, so an unread byte
// doesn't silence future notifications the way it would under epoll.
func drainAll(f *os.File) {
	var buf [64]byte
	f.SetReadDeadline(time.Now().Add(time.Millisecond))
	for {
		n, err := f.Read(buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
