// File: reactor/reactor.go
// Package reactor provides the readiness multiplexer behind the server's
// single-threaded event loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

// FDEventType is a bitmask of readiness conditions.
type FDEventType uint32

const (
	// EventRead signals the descriptor is readable.
	EventRead FDEventType = 1 << iota
	// EventWrite signals the descriptor is writable.
	EventWrite
	// EventError signals an error or hangup condition.
	EventError
)

// FDCallback handles a readiness notification for one descriptor.
type FDCallback func(fd int, events FDEventType)

// Reactor multiplexes non-blocking descriptors. Implementations are not
// thread-safe beyond what the platform poller allows; all calls happen on the
// reactor goroutine.
type Reactor interface {
	// Register adds fd with an interest set and its callback.
	Register(fd int, events FDEventType, cb FDCallback) error
	// Modify replaces the interest set of a registered fd.
	Modify(fd int, events FDEventType) error
	// Unregister removes fd from the watch list.
	Unregister(fd int) error
	// Poll waits up to timeoutMs (-1 blocks) and invokes callbacks for every
	// ready descriptor. Returns the number of events handled.
	Poll(timeoutMs int) (int, error)
	// Close releases the poller.
	Close() error
}

// New returns the platform reactor.
func New() (Reactor, error) {
	return newReactor()
}
