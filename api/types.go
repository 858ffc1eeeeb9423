// File: api/types.go
// Package api core types shared across roomcast-ws packages.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ClientID identifies one accepted connection. IDs are monotonic for the
// lifetime of a server run and are never reused.
type ClientID uint64

// ConnKind is the detected protocol of a connection.
type ConnKind int

const (
	// KindUnknown is the kind before the first complete request line.
	KindUnknown ConnKind = iota
	// KindHTTP marks a plain HTTP/1.1 connection.
	KindHTTP
	// KindWS marks a connection after a successful WebSocket upgrade.
	KindWS
)

// String returns the wire-facing name of the kind.
func (k ConnKind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindWS:
		return "ws"
	default:
		return "unknown"
	}
}

// Envelope is the application message carried inside WebSocket text frames:
// a JSON object {"event": <string>, "data": <arbitrary>}.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// AttrAuthUserID is the only attribute-bag key the core itself reads.
const AttrAuthUserID = "auth.userId"
