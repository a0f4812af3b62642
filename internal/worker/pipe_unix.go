//go:build !windows

package worker

import (
	"os"

	"golang.org/x/sys/unix"
)

// setNonblock puts the self-pipe's read end in non-blocking mode at
// construction. Each later f.Fd() call switches it back to blocking, so
// drainAll sets it again before reading.
func setNonblock(f *os.File) error {
	return unix.SetNonblock(int(f.Fd()), true)
}

// drainAll empties the self-pipe without blocking: it reads the raw fd in
// non-blocking mode until the pipe reports EAGAIN. The epoll backend is
// edge-triggered, so a wake byte left unread would silence further
// notifications on this fd until something else happens to touch it.
func drainAll(f *os.File) {
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return
	}
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
