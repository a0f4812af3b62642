//go:build !windows

package socket

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/felixge/tcpkeepalive"
	reuseport "github.com/kavu/go_reuseport"
	"golang.org/x/sys/unix"
)

// ApplyAcceptOptions applies the socket options spec.md §6 requires at
// accept/connect time: O_NONBLOCK, TCP_NODELAY=1, SO_KEEPALIVE=1, and (on
// Linux) TCP_USER_TIMEOUT. Grounded on the teacher's loopAccept/tcpConnect
// (common/network/net_poll_linux.go), which applies the same set inline.
func ApplyAcceptOptions(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	return applyUserTimeout(fd)
}

// ApplyKeepAliveTuning sets the idle/interval/count keepalive parameters
// via felixge/tcpkeepalive, which only operates on a *net.TCPConn —
// grounded on azhai-gozzo-net's network/conn_unix.go ApplyTo. os.NewFile
// does not dup fd, so fd is dup'd first: f.Close() (and conn.Close(), which
// closes the same fd) then only ever touches the dup, leaving the
// caller's original fd open.
func ApplyKeepAliveTuning(fd int, idle time.Duration, count int, interval time.Duration) error {
	if idle <= 0 {
		return nil
	}
	dupFd, err := unix.Dup(fd)
	if err != nil {
		return err
	}
	f := os.NewFile(uintptr(dupFd), "")
	defer f.Close()
	conn, err := net.FileConn(f)
	if err != nil {
		return err
	}
	defer conn.Close()
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return errors.New("socket: fd is not a TCP connection")
	}
	return tcpkeepalive.SetKeepAlive(tcpConn, idle, count, interval)
}

// ListenReusable binds a SO_REUSEPORT listener, grounded on
// azhai-gozzo-net's tcp/server_unix.go ListenTCP.
func ListenReusable(network, address string) (net.Listener, error) {
	return reuseport.Listen(network, address)
}

// SetIPv6DualStack clears IPV6_V6ONLY so a "::" listener also accepts IPv4
// clients, per spec.md §6.
func SetIPv6DualStack(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
}
