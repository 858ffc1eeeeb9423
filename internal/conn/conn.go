// File: internal/conn/conn.go
// Package conn holds the per-connection state machine: buffers, protocol
// kind detection, WebSocket reassembly and outbound flow control.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Client is owned by the reactor goroutine exclusively. The outbound side
// is a FIFO of prebuilt byte chunks so a broadcast can enqueue the same
// encoded frame into many clients without re-encoding.

package conn

import (
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/roomcast-ws/api"
	"github.com/momentics/roomcast-ws/httpcodec"
	"github.com/momentics/roomcast-ws/protocol"
)

// State is the connection FSM state.
type State int

const (
	// StateReadingHTTP accumulates bytes until one full HTTP request.
	StateReadingHTTP State = iota
	// StateUpgrading runs the WebSocket handshake chain.
	StateUpgrading
	// StateHTTPResponding flushes a plain HTTP response.
	StateHTTPResponding
	// StateWSOpen exchanges WebSocket frames.
	StateWSOpen
	// StateWSClosing drains the outgoing buffer, then closes.
	StateWSClosing
	// StateClosed is terminal.
	StateClosed
)

// Limits are the per-connection resource bounds.
type Limits struct {
	MaxFrameBytes    int64
	MaxMessageBytes  int64
	WriteBufferBytes int
	MaxHeaderBytes   int
}

// Client is one accepted socket with its protocol state.
type Client struct {
	ID         api.ClientID
	FD         int
	RemoteAddr string
	Kind       api.ConnKind
	// Attrs is the per-client attribute bag. Only api.AttrAuthUserID is read
	// by the core.
	Attrs map[string]any
	// Handshake is the frozen view over the upgrading request; nil until the
	// upgrade starts.
	Handshake *httpcodec.Request

	LastActivity time.Time
	LastPing     time.Time
	AwaitingPong bool
	// ReadPaused is set while the write buffer is above the high-water mark;
	// the reactor stops reading from the peer until drained.
	ReadPaused bool
	// HTTPKeepAlive keeps the connection in ReadingHttp after the current
	// response flushes instead of closing it.
	HTTPKeepAlive bool

	state     State
	limits    Limits
	rbuf      []byte
	asm       *protocol.Assembler
	out       *queue.Queue
	outHead   []byte
	outBytes  int
	saturated bool
	closeSent bool
}

// New creates a client in StateReadingHTTP.
func New(id api.ClientID, fd int, remote string, limits Limits, now time.Time) *Client {
	return &Client{
		ID:           id,
		FD:           fd,
		RemoteAddr:   remote,
		Kind:         api.KindUnknown,
		Attrs:        make(map[string]any),
		LastActivity: now,
		limits:       limits,
		asm:          protocol.NewAssembler(limits.MaxMessageBytes),
		out:          queue.New(),
	}
}

// State returns the FSM state.
func (c *Client) State() State { return c.state }

// SetState transitions the FSM. Transitions are driven by the server and by
// Advance; Closed is terminal.
func (c *Client) SetState(s State) {
	if c.state != StateClosed {
		c.state = s
	}
}

// Touch records peer activity.
func (c *Client) Touch(now time.Time) { c.LastActivity = now }

// AppendRead adds freshly read bytes to the inbound buffer.
func (c *Client) AppendRead(b []byte) { c.rbuf = append(c.rbuf, b...) }

// Buffered returns the number of unconsumed inbound bytes.
func (c *Client) Buffered() int { return len(c.rbuf) }

// EnqueueOut queues b for writing. It fails with api.ErrBackpressured when
// the write buffer would overflow; the connection stays open and the caller
// decides what to do.
func (c *Client) EnqueueOut(b []byte) error {
	if c.state == StateClosed {
		return api.ErrUnknownClient
	}
	if c.outBytes+len(b) > c.limits.WriteBufferBytes {
		c.saturated = true
		return api.ErrBackpressured
	}
	c.out.Add(b)
	c.outBytes += len(b)
	return nil
}

// enqueueControl bypasses the backpressure cap: close and pong frames are
// tiny and must go out even on a saturated connection.
func (c *Client) enqueueControl(b []byte) {
	if c.state == StateClosed {
		return
	}
	c.out.Add(b)
	c.outBytes += len(b)
}

// PendingOut returns the buffered outbound byte count.
func (c *Client) PendingOut() int { return c.outBytes }

// AboveHighWater reports an effectively full write buffer: either a send was
// refused or the byte cap is reached. Pause reads while it holds.
func (c *Client) AboveHighWater() bool {
	return c.saturated || c.outBytes >= c.limits.WriteBufferBytes
}

// BelowLowWater reports drain under 50% (resume reads).
func (c *Client) BelowLowWater() bool { return c.outBytes <= c.limits.WriteBufferBytes/2 }

// NextChunk returns the current outbound chunk, or nil when drained.
func (c *Client) NextChunk() []byte {
	if len(c.outHead) == 0 {
		if c.out.Length() == 0 {
			return nil
		}
		c.outHead = c.out.Remove().([]byte)
	}
	return c.outHead
}

// AdvanceOut consumes n written bytes from the current chunk. Saturation
// clears once the buffer drains below the low-water mark.
func (c *Client) AdvanceOut(n int) {
	c.outHead = c.outHead[n:]
	c.outBytes -= n
	if c.saturated && c.BelowLowWater() {
		c.saturated = false
	}
}

// QueuePing enqueues a server-initiated ping and arms the pong deadline.
func (c *Client) QueuePing(now time.Time) {
	if c.state != StateWSOpen {
		return
	}
	c.enqueueControl(protocol.EncodeFrame(protocol.OpcodePing, true, nil))
	c.LastPing = now
	c.AwaitingPong = true
}

// CloseSent reports whether a close frame is already queued or flushed.
func (c *Client) CloseSent() bool { return c.closeSent }

// QueueClose enqueues a close frame once and moves to StateWSClosing.
func (c *Client) QueueClose(code uint16, reason string) {
	if c.closeSent || c.state == StateClosed {
		return
	}
	c.closeSent = true
	c.enqueueControl(protocol.EncodeClose(code, reason))
	c.SetState(StateWSClosing)
}
