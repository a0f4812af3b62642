//go:build !linux && !windows

package socket

// TCP_USER_TIMEOUT is Linux-specific; other Unix targets skip it.
func applyUserTimeout(fd int) error {
	return nil
}
