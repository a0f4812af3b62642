//go:build !windows

package reactor

import (
	"golang.org/x/sys/unix"
)

// PollBackend is the level-triggered Backend variant spec.md §4.4 calls
// for: "a slot table indexed by fd maps to a compact pollfd array
// (vacated slots are filled by swapping the last entry in; the fd→slot
// index is maintained accordingly)". No source repo in the retrieval pack
// ships a true POSIX-poll backend (the teacher and pack both reach for
// epoll/kqueue directly), so this is built in the teacher's idiom from
// golang.org/x/sys/unix's Poll wrapper rather than adapted from a
// specific file.
type PollBackend struct {
	fds    []unix.PollFd
	slotOf map[int]int // fd -> index into fds
}

func NewPollBackend() *PollBackend {
	return &PollBackend{
		slotOf: make(map[int]int),
	}
}

func toPollEvents(mask EventMask) int16 {
	var ev int16
	if mask&EventRead != 0 {
		ev |= unix.POLLIN
	}
	if mask&EventWrite != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func (b *PollBackend) Modify(fd int, oldMask, newMask EventMask) error {
	slot, existed := b.slotOf[fd]
	if newMask == 0 {
		if !existed {
			return nil
		}
		b.removeSlot(slot)
		return nil
	}
	if existed {
		b.fds[slot].Events = toPollEvents(newMask)
		return nil
	}
	b.slotOf[fd] = len(b.fds)
	b.fds = append(b.fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(newMask)})
	return nil
}

// removeSlot evicts slot by swapping the last entry into its place,
// keeping fds compact without shifting the whole tail.
func (b *PollBackend) removeSlot(slot int) {
	last := len(b.fds) - 1
	removedFd := b.fds[slot].Fd
	if slot != last {
		b.fds[slot] = b.fds[last]
		b.slotOf[int(b.fds[slot].Fd)] = slot
	}
	b.fds = b.fds[:last]
	delete(b.slotOf, int(removedFd))
}

func (b *PollBackend) Wait(r *Reactor, timeoutMs int) error {
	if len(b.fds) == 0 {
		if timeoutMs > 0 {
			// Nothing to wait on; avoid spinning the idle cap away on a
			// backend with zero registrations.
			unix.Poll(nil, timeoutMs)
		}
		return nil
	}
	n, err := unix.Poll(b.fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	if n == 0 {
		return nil
	}
	// Snapshot ready fds before dispatch: a callback may call Modify and
	// mutate b.fds/b.slotOf via swap-remove, which would otherwise
	// invalidate the index we're iterating.
	type ready struct {
		fd      int
		mask    EventMask
		invalid bool
	}
	var readyList []ready
	for _, pfd := range b.fds {
		if pfd.Revents == 0 {
			continue
		}
		if pfd.Revents&unix.POLLNVAL != 0 {
			readyList = append(readyList, ready{fd: int(pfd.Fd), invalid: true})
			continue
		}
		var mask EventMask
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
			mask = EventRead | EventWrite
		} else {
			if pfd.Revents&unix.POLLIN != 0 {
				mask |= EventRead
			}
			if pfd.Revents&unix.POLLOUT != 0 {
				mask |= EventWrite
			}
		}
		if mask != 0 {
			readyList = append(readyList, ready{fd: int(pfd.Fd), mask: mask})
		}
	}
	for i := range b.fds {
		b.fds[i].Revents = 0
	}
	for _, rd := range readyList {
		if rd.invalid {
			r.InvalidFd(rd.fd)
			continue
		}
		r.fdEvent(rd.fd, rd.mask)
	}
	return nil
}

func (b *PollBackend) Close() error {
	b.fds = nil
	b.slotOf = make(map[int]int)
	return nil
}
