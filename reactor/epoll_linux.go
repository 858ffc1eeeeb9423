//go:build linux

// File: reactor/epoll_linux.go
// Package reactor - Linux epoll implementation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollReactor implements Reactor using level-triggered epoll. Level
// triggering lets the loop leave data in kernel buffers when a connection is
// backpressured and still get woken on the next tick.
type epollReactor struct {
	epfd      int
	callbacks map[int]FDCallback
}

func newReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollReactor{
		epfd:      epfd,
		callbacks: make(map[int]FDCallback),
	}, nil
}

func toEpollEvents(events FDEventType) uint32 {
	var ev uint32
	if events&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Register adds a file descriptor to the epoll watch list.
func (r *epollReactor) Register(fd int, events FDEventType, cb FDCallback) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	r.callbacks[fd] = cb
	return nil
}

// Modify replaces the interest set of a registered descriptor.
func (r *epollReactor) Modify(fd int, events FDEventType) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Unregister removes a file descriptor from the epoll watch list.
func (r *epollReactor) Unregister(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	delete(r.callbacks, fd)
	return nil
}

// Poll blocks up to timeoutMs and dispatches readiness callbacks.
func (r *epollReactor) Poll(timeoutMs int) (int, error) {
	const maxEvents = 128
	var events [maxEvents]unix.EpollEvent

	n, err := unix.EpollWait(r.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		cb, ok := r.callbacks[fd]
		if !ok {
			continue
		}
		var et FDEventType
		if events[i].Events&unix.EPOLLIN != 0 {
			et |= EventRead
		}
		if events[i].Events&unix.EPOLLOUT != 0 {
			et |= EventWrite
		}
		if events[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			et |= EventError
		}
		cb(fd, et)
	}
	return n, nil
}

// Close releases the epoll descriptor.
func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
