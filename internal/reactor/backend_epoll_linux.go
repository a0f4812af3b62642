//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// EpollBackend is the edge-triggered Backend variant, grounded directly on
// the teacher's Poll.loopEpollWait / addRead / addReadWrite / modDetach
// (common/network/net_poll_linux.go), generalized from a fixed connection
// map into the Reactor's fd-agnostic Modify/Wait contract.
type EpollBackend struct {
	epfd   int
	events []unix.EpollEvent
}

func NewEpollBackend() (*EpollBackend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &EpollBackend{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 1024),
	}, nil
}

func epollEvents(mask EventMask) uint32 {
	ev := uint32(unix.EPOLLET)
	if mask&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (b *EpollBackend) Modify(fd int, oldMask, newMask EventMask) error {
	if newMask == 0 {
		if oldMask == 0 {
			return nil
		}
		return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	op := unix.EPOLL_CTL_MOD
	if oldMask == 0 {
		op = unix.EPOLL_CTL_ADD
	}
	ev := &unix.EpollEvent{Fd: int32(fd), Events: epollEvents(newMask)}
	return unix.EpollCtl(b.epfd, op, fd, ev)
}

func (b *EpollBackend) Wait(r *Reactor, timeoutMs int) error {
	n, err := unix.EpollWait(b.epfd, b.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		fd := int(b.events[i].Fd)
		ev := b.events[i].Events

		var mask EventMask
		if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			mask = EventRead | EventWrite
		} else {
			if ev&unix.EPOLLIN != 0 {
				mask |= EventRead
			}
			if ev&unix.EPOLLOUT != 0 {
				mask |= EventWrite
			}
		}
		if mask != 0 {
			r.fdEvent(fd, mask)
		}
	}
	return nil
}

func (b *EpollBackend) Close() error {
	return unix.Close(b.epfd)
}
