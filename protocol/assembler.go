// File: protocol/assembler.go
// Package protocol fragmented message reassembly.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One Assembler per connection. Control frames never pass through here; the
// connection FSM handles them between fragments without disturbing the
// pending message.

package protocol

import "github.com/momentics/roomcast-ws/api"

// Assembler accumulates data-frame fragments into whole logical messages.
type Assembler struct {
	maxMessage     int64
	pendingOpcode  byte
	pendingPayload []byte
	active         bool
}

// NewAssembler bounds the reassembled message size; max <= 0 selects
// DefaultMaxFramePayload.
func NewAssembler(max int64) *Assembler {
	if max <= 0 {
		max = DefaultMaxFramePayload
	}
	return &Assembler{maxMessage: max}
}

// Active reports whether a fragmented message is in flight.
func (a *Assembler) Active() bool { return a.active }

// Push feeds one data or continuation frame. When the message completes it
// returns the logical opcode, the full payload and complete=true. Fragment
// rule violations and oversized messages yield *ProtocolError.
func (a *Assembler) Push(f *Frame) (opcode byte, payload []byte, complete bool, err error) {
	switch {
	case f.Opcode == OpcodeContinuation:
		if !a.active {
			return 0, nil, false, protoErr(CloseProtocolError, "continuation without pending message")
		}
	case IsData(f.Opcode):
		if a.active {
			return 0, nil, false, protoErr(CloseProtocolError, "data frame interleaved with fragmented message")
		}
		a.pendingOpcode = f.Opcode
		a.active = true
	default:
		return 0, nil, false, protoErr(CloseProtocolError, "control frame in assembler")
	}

	if int64(len(a.pendingPayload))+int64(len(f.Payload)) > a.maxMessage {
		a.reset()
		return 0, nil, false, &ProtocolError{Code: CloseMessageTooBig, Reason: "reassembled message exceeds limit", Err: api.ErrMessageTooBig}
	}
	a.pendingPayload = append(a.pendingPayload, f.Payload...)

	if !f.Fin {
		return 0, nil, false, nil
	}
	opcode = a.pendingOpcode
	payload = a.pendingPayload
	a.reset()
	return opcode, payload, true, nil
}

func (a *Assembler) reset() {
	a.pendingOpcode = 0
	a.pendingPayload = nil
	a.active = false
}
