//go:build linux

package socket

import "golang.org/x/sys/unix"

// defaultUserTimeoutMs bounds how long unacknowledged transmitted data may
// sit before the kernel reports ETIMEDOUT, per spec.md §6.
const defaultUserTimeoutMs = 30_000

func applyUserTimeout(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, defaultUserTimeoutMs)
}
