// File: protocol/frame_codec.go
// Package protocol frame encoding/decoding with payload size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The decoder is cursor-based: it consumes from the front of the caller's
// buffer and reports how many bytes it took, so a reactor can feed it partial
// reads without copying.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/roomcast-ws/api"
)

// DecodeFrame parses one frame from the front of buf and returns it together
// with the number of bytes consumed. It returns ErrNeedMore when buf holds an
// incomplete frame and *ProtocolError for malformed input. requireMask
// enforces the client-to-server masking rule. maxPayload <= 0 selects
// DefaultMaxFramePayload.
func DecodeFrame(buf []byte, maxPayload int64, requireMask bool) (*Frame, int, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxFramePayload
	}
	if len(buf) < 2 {
		return nil, 0, ErrNeedMore
	}
	b0, b1 := buf[0], buf[1]
	if b0&0x70 != 0 {
		return nil, 0, protoErr(CloseProtocolError, "reserved bits set")
	}
	fin := b0&0x80 != 0
	opcode := b0 & 0x0F
	masked := b1&0x80 != 0
	length := int64(b1 & 0x7F)
	offset := 2

	if IsControl(opcode) {
		if !fin {
			return nil, 0, protoErr(CloseProtocolError, "fragmented control frame")
		}
		if length > maxControlPayloadLen {
			return nil, 0, protoErr(CloseProtocolError, "control frame payload over 125 bytes")
		}
	}

	switch length {
	case 126:
		if len(buf) < offset+2 {
			return nil, 0, ErrNeedMore
		}
		length = int64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case 127:
		if len(buf) < offset+8 {
			return nil, 0, ErrNeedMore
		}
		length = int64(binary.BigEndian.Uint64(buf[offset:]))
		offset += 8
		if length < 0 {
			return nil, 0, protoErr(CloseProtocolError, "negative payload length")
		}
	}

	if length > maxPayload {
		return nil, 0, &ProtocolError{Code: CloseMessageTooBig, Reason: "frame payload exceeds limit", Err: api.ErrMessageTooBig}
	}
	if requireMask && !masked {
		return nil, 0, protoErr(CloseProtocolError, "unmasked client frame")
	}

	var maskKey [4]byte
	if masked {
		if len(buf) < offset+4 {
			return nil, 0, ErrNeedMore
		}
		copy(maskKey[:], buf[offset:offset+4])
		offset += 4
	}

	if int64(len(buf)-offset) < length {
		return nil, 0, ErrNeedMore
	}
	payload := make([]byte, length)
	copy(payload, buf[offset:offset+int(length)])
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}
	return &Frame{
		Fin:     fin,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: maskKey,
		Payload: payload,
	}, offset + int(length), nil
}

// EncodeFrame serializes a server-to-client frame. Server frames are never
// masked. Callers pass whole messages; no automatic fragmentation.
func EncodeFrame(opcode byte, fin bool, payload []byte) []byte {
	b0 := opcode & 0x0F
	if fin {
		b0 |= 0x80
	}
	plen := len(payload)
	var hdr []byte
	switch {
	case plen <= 125:
		hdr = []byte{b0, byte(plen)}
	case plen <= 0xFFFF:
		hdr = make([]byte, 4)
		hdr[0] = b0
		hdr[1] = 126
		binary.BigEndian.PutUint16(hdr[2:], uint16(plen))
	default:
		hdr = make([]byte, 10)
		hdr[0] = b0
		hdr[1] = 127
		binary.BigEndian.PutUint64(hdr[2:], uint64(plen))
	}
	out := make([]byte, len(hdr)+plen)
	copy(out, hdr)
	copy(out[len(hdr):], payload)
	return out
}

// EncodeClose builds a close frame with a 2-byte big-endian status code and
// an optional UTF-8 reason.
func EncodeClose(code uint16, reason string) []byte {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, code)
	copy(payload[2:], reason)
	return EncodeFrame(OpcodeClose, true, payload)
}

// DecodeClose extracts the status code and reason from a close payload. An
// empty payload maps to CloseNormal per the echo rule.
func DecodeClose(payload []byte) (uint16, string) {
	if len(payload) < 2 {
		return CloseNormal, ""
	}
	return binary.BigEndian.Uint16(payload), string(payload[2:])
}
