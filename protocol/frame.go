// File: protocol/frame.go
// Package protocol frame type and protocol-level errors.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"errors"
	"fmt"

	"github.com/momentics/roomcast-ws/api"
)

// ErrNeedMore signals an incomplete frame; feed more bytes and retry.
var ErrNeedMore = errors.New("need more data")

// Frame is one decoded WebSocket frame. Payload is unmasked.
type Frame struct {
	Fin     bool
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// ProtocolError carries the close code the peer should receive. Unwrap yields
// the api sentinel so errors.Is(err, api.ErrProtocol) and friends work.
type ProtocolError struct {
	Code   uint16
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s (close %d)", e.Reason, e.Code)
}

// Unwrap exposes the api sentinel behind this error.
func (e *ProtocolError) Unwrap() error { return e.Err }

func protoErr(code uint16, reason string) *ProtocolError {
	return &ProtocolError{Code: code, Reason: reason, Err: api.ErrProtocol}
}
