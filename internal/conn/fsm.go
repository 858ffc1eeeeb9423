// File: internal/conn/fsm.go
// Package conn inbound byte consumption: ReadingHttp → WsOpen → WsClosing.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Advance consumes whatever the inbound buffer holds and reports decoded
// requests and messages through Hooks. Frame-level protocol errors queue the
// close frame here and surface as *protocol.ProtocolError; HTTP parse errors
// surface as plain errors and the server answers 400.

package conn

import (
	"fmt"
	"time"

	"github.com/momentics/roomcast-ws/api"
	"github.com/momentics/roomcast-ws/httpcodec"
	"github.com/momentics/roomcast-ws/protocol"
)

// Hooks receives the FSM's decoded output. Implemented by the server.
type Hooks interface {
	// OnRequest delivers one complete HTTP request. The server decides
	// between upgrade, HTTP response and rejection, and transitions state.
	OnRequest(c *Client, req *httpcodec.Request)
	// OnMessage delivers one reassembled data message (text or binary).
	OnMessage(c *Client, opcode byte, payload []byte)
	// OnPeerClose reports a close frame from the peer after the echo close
	// has been queued.
	OnPeerClose(c *Client, code uint16, reason string)
}

// Advance runs the state machine over the buffered inbound bytes.
func (c *Client) Advance(h Hooks, now time.Time) error {
	for {
		switch c.state {
		case StateReadingHTTP:
			if len(c.rbuf) == 0 {
				return nil
			}
			req, consumed, err := httpcodec.ParseRequest(c.rbuf, c.limits.MaxHeaderBytes)
			if err == httpcodec.ErrNeedMore {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: %v", api.ErrProtocol, err)
			}
			c.rbuf = c.rbuf[consumed:]
			c.Kind = api.KindHTTP
			c.Touch(now)
			h.OnRequest(c, req)
			if c.state == StateWSOpen {
				continue // the client may have pipelined frames after the upgrade
			}
			return nil

		case StateWSOpen, StateWSClosing:
			f, consumed, err := protocol.DecodeFrame(c.rbuf, c.limits.MaxFrameBytes, true)
			if err == protocol.ErrNeedMore {
				return nil
			}
			if err != nil {
				if perr, ok := err.(*protocol.ProtocolError); ok {
					c.QueueClose(perr.Code, perr.Reason)
					return perr
				}
				c.QueueClose(protocol.CloseProtocolError, "")
				return err
			}
			c.rbuf = c.rbuf[consumed:]
			c.Touch(now)
			if err := c.consumeFrame(f, h); err != nil {
				return err
			}

		default:
			// HTTPResponding, Upgrading and Closed consume nothing; the
			// server re-enters ReadingHttp after a keep-alive flush.
			return nil
		}
	}
}

// consumeFrame handles one decoded frame. Control frames are processed
// immediately without disturbing reassembly.
func (c *Client) consumeFrame(f *protocol.Frame, h Hooks) error {
	switch f.Opcode {
	case protocol.OpcodePing:
		c.enqueueControl(protocol.EncodeFrame(protocol.OpcodePong, true, f.Payload))
		return nil
	case protocol.OpcodePong:
		c.AwaitingPong = false
		return nil
	case protocol.OpcodeClose:
		code, reason := protocol.DecodeClose(f.Payload)
		c.QueueClose(code, "")
		h.OnPeerClose(c, code, reason)
		return nil
	}
	if c.state == StateWSClosing {
		return nil // discard data while draining
	}
	opcode, payload, complete, err := c.asm.Push(f)
	if err != nil {
		if perr, ok := err.(*protocol.ProtocolError); ok {
			c.QueueClose(perr.Code, perr.Reason)
		}
		return err
	}
	if complete {
		h.OnMessage(c, opcode, payload)
	}
	return nil
}
