// File: protocol/handshake.go
// Package protocol WebSocket upgrade handshake: header validation and the
// Sec-WebSocket-Accept computation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"github.com/momentics/roomcast-ws/httpcodec"
)

var (
	// ErrInvalidUpgradeHeaders reports missing Connection/Upgrade tokens.
	ErrInvalidUpgradeHeaders = fmt.Errorf("invalid WebSocket upgrade headers")
	// ErrMissingWebSocketKey reports an absent or malformed Sec-WebSocket-Key.
	ErrMissingWebSocketKey = fmt.Errorf("missing or malformed Sec-WebSocket-Key header")
	// ErrBadWebSocketVersion reports any version other than 13.
	ErrBadWebSocketVersion = fmt.Errorf("unsupported WebSocket version; only '13' is supported")
)

// IsUpgrade reports whether req asks for a WebSocket upgrade. It checks only
// intent; ValidateUpgrade decides whether the request is acceptable.
func IsUpgrade(req *httpcodec.Request) bool {
	return req.HeaderContainsToken("Connection", "Upgrade") &&
		req.HeaderContainsToken("Upgrade", "websocket")
}

// ValidateUpgrade verifies the upgrade headers: Connection/Upgrade tokens,
// Sec-WebSocket-Version 13, and a Sec-WebSocket-Key that base64-decodes to
// 16 bytes.
func ValidateUpgrade(req *httpcodec.Request) error {
	if !IsUpgrade(req) {
		return ErrInvalidUpgradeHeaders
	}
	if req.Header("Sec-WebSocket-Version") != RequiredWebSocketVersion {
		return ErrBadWebSocketVersion
	}
	key := req.Header("Sec-WebSocket-Key")
	if key == "" {
		return ErrMissingWebSocketKey
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != 16 {
		return ErrMissingWebSocketKey
	}
	return nil
}

// AcceptKey computes Sec-WebSocket-Accept = base64(sha1(key + GUID)).
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// UpgradeResponse builds the 101 Switching Protocols response for key.
func UpgradeResponse(key string) *httpcodec.Response {
	resp := httpcodec.NewResponse(101)
	resp.Reason = "Switching Protocols"
	resp.SetHeader("Upgrade", "websocket")
	resp.SetHeader("Connection", "Upgrade")
	resp.SetHeader("Sec-WebSocket-Accept", AcceptKey(key))
	return resp
}
