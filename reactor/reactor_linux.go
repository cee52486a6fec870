//go:build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) poller backend: EpollCreate1/EpollCtl/EpollWait over
// golang.org/x/sys/unix, with an eventfd-based wake-up primitive.

package reactor

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/nioreactor/api"
)

func newPlatformPoller() (poller, error) {
	return newEpollPoller()
}

type epollPoller struct {
	epfd   int
	wakeFd int
	raw    []unix.EpollEvent // reused across doWait calls, resized on demand
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: epoll_ctl add waker: %w", err)
	}
	return &epollPoller{epfd: epfd, wakeFd: wakeFd}, nil
}

func epollEventsFor(flags api.IOFlags) uint32 {
	var ev uint32
	if flags&api.IORead != 0 {
		ev |= unix.EPOLLIN
	}
	if flags&api.IOWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) register(fd uintptr, flags api.IOFlags) error {
	ev := &unix.EpollEvent{Events: epollEventsFor(flags), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, int(fd), ev)
}

func (p *epollPoller) modify(fd uintptr, flags api.IOFlags) error {
	ev := &unix.EpollEvent{Events: epollEventsFor(flags), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, int(fd), ev)
}

func (p *epollPoller) unregister(fd uintptr) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

func (p *epollPoller) wait(timeoutMs int, events []api.Event) ([]api.Event, error) {
	return p.doWait(timeoutMs, events)
}

func (p *epollPoller) waitNow(events []api.Event) ([]api.Event, error) {
	return p.doWait(0, events)
}

func (p *epollPoller) doWait(timeoutMs int, events []api.Event) ([]api.Event, error) {
	bufSize := cap(events)
	if bufSize == 0 {
		bufSize = 128
	}
	if cap(p.raw) < bufSize {
		p.raw = make([]unix.EpollEvent, bufSize)
	}
	raw := p.raw[:bufSize]
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return events[:0], errInterrupted
		}
		return nil, err
	}
	out := events[:0]
	for i := 0; i < n; i++ {
		fd := uintptr(raw[i].Fd)
		if int(fd) == p.wakeFd {
			p.drainWaker()
			continue
		}
		var flags api.IOFlags
		if raw[i].Events&unix.EPOLLIN != 0 {
			flags |= api.IORead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			flags |= api.IOWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			flags |= api.IOError
		}
		out = append(out, api.Event{Fd: fd, Flags: flags})
	}
	return out, nil
}

func (p *epollPoller) drainWaker() {
	buf := make([]byte, 8)
	for {
		_, err := unix.Read(p.wakeFd, buf)
		if err != nil {
			return
		}
	}
}

func (p *epollPoller) wake() error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	_, err := unix.Write(p.wakeFd, buf)
	return err
}

// rebuild opens a fresh epoll instance and re-registers every entry in
// regs, preserving interest flags -- epoll itself has no key enumeration
// API (unlike NIO's Selector.keys()), so the reactor's own registration
// table is the source of truth during recovery.
func (p *epollPoller) rebuild(regs map[uintptr]*registration) (poller, error) {
	np, err := newEpollPoller()
	if err != nil {
		return nil, err
	}
	for fd, reg := range regs {
		if err := np.register(fd, reg.flags); err != nil {
			np.close()
			return nil, fmt.Errorf("reactor: rebuild re-register fd %d: %w", fd, err)
		}
	}
	p.close()
	return np, nil
}

func (p *epollPoller) close() error {
	unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}
