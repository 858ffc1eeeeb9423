//go:build linux

// File: internal/transport/transport_linux.go
// Package transport wraps the non-blocking socket syscalls used by the
// reactor loop: listener setup, accept batches, reads and writes that report
// would-block instead of blocking.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const listenBacklog = 512

// Listen opens a non-blocking IPv4 listening socket and returns its fd and
// the actually bound port (meaningful when port is 0).
func Listen(host string, port int) (int, int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, 0, fmt.Errorf("socket create: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	var addr [4]byte
	if host != "" && host != "0.0.0.0" {
		ip := net.ParseIP(host)
		if ip == nil {
			if resolved, rerr := net.ResolveIPAddr("ip4", host); rerr == nil {
				ip = resolved.IP
			}
		}
		ip4 := ip.To4()
		if ip4 == nil {
			unix.Close(fd)
			return -1, 0, fmt.Errorf("listen: cannot resolve %q to an IPv4 address", host)
		}
		copy(addr[:], ip4)
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("bind %s:%d: %w", host, port, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("listen: %w", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("getsockname: %w", err)
	}
	boundPort := port
	if sa4, ok := bound.(*unix.SockaddrInet4); ok {
		boundPort = sa4.Port
	}
	return fd, boundPort, nil
}

// Accept takes one pending connection. again=true means the backlog is
// drained. Accepted sockets are non-blocking with Nagle disabled.
func Accept(lfd int) (fd int, remote string, again bool, err error) {
	fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return -1, "", true, nil
		}
		return -1, "", false, fmt.Errorf("accept: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		remote = fmt.Sprintf("%s:%d", net.IP(sa4.Addr[:]).String(), sa4.Port)
	}
	return fd, remote, false, nil
}

// Read fills buf. again=true means would-block, eof=true means orderly close.
func Read(fd int, buf []byte) (n int, again, eof bool, err error) {
	n, err = unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, true, false, nil
		}
		return 0, false, false, fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		return 0, false, true, nil
	}
	return n, false, false, nil
}

// Write sends buf. again=true means the kernel buffer is full; retry on the
// next write-ready notification.
func Write(fd int, buf []byte) (n int, again bool, err error) {
	n, err = unix.Write(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, true, nil
		}
		return 0, false, fmt.Errorf("write: %w", err)
	}
	return n, false, nil
}

// Close releases the descriptor.
func Close(fd int) {
	_ = unix.Close(fd)
}

// Pipe creates the non-blocking self-pipe that wakes the poller when work is
// posted from another goroutine.
func Pipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, fmt.Errorf("pipe: %w", err)
	}
	return fds[0], fds[1], nil
}

// Wake writes one byte into the self-pipe; a full pipe already wakes.
func Wake(w int) {
	_, _ = unix.Write(w, []byte{1})
}

// Drain empties the self-pipe after a wakeup.
func Drain(r int) {
	var buf [64]byte
	for {
		n, err := unix.Read(r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
