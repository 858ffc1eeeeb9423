// File: protocol/constants.go
// Package protocol implements the RFC 6455 frame codec, message reassembly
// and the upgrade handshake for roomcast-ws.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// WebSocket opcodes.
const (
	OpcodeContinuation byte = 0x0
	OpcodeText         byte = 0x1
	OpcodeBinary       byte = 0x2
	OpcodeClose        byte = 0x8
	OpcodePing         byte = 0x9
	OpcodePong         byte = 0xA
)

// Close status codes used by the core.
const (
	CloseNormal          uint16 = 1000
	CloseGoingAway       uint16 = 1001
	CloseProtocolError   uint16 = 1002
	CloseMessageTooBig   uint16 = 1009
	CloseInternalError   uint16 = 1011
	maxControlPayloadLen        = 125
)

// WebSocketGUID is the magic GUID of the Sec-WebSocket-Accept computation.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// RequiredWebSocketVersion is the only protocol version negotiated.
const RequiredWebSocketVersion = "13"

// DefaultMaxFramePayload bounds a single frame payload (2 MiB).
const DefaultMaxFramePayload = 2 << 20

// IsControl reports whether opcode is a control opcode.
func IsControl(opcode byte) bool { return opcode&0x8 != 0 }

// IsData reports whether opcode is text or binary.
func IsData(opcode byte) bool { return opcode == OpcodeText || opcode == OpcodeBinary }
