// File: api/errors.go
// Package api defines the shared contracts of roomcast-ws.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error taxonomy used across the library. Connection-scoped errors close only
// the offending connection; ErrConfiguration and ErrBind are fatal before Run
// returns.

package api

import "errors"

var (
	// ErrProtocol reports a malformed HTTP request or WebSocket frame.
	ErrProtocol = errors.New("protocol error")
	// ErrHandshakeRejected reports an upgrade refused by handshake middleware.
	ErrHandshakeRejected = errors.New("handshake rejected")
	// ErrBackpressured reports a send that would overflow the write buffer.
	ErrBackpressured = errors.New("write buffer full")
	// ErrUnknownClient reports an operation on a client id that is gone.
	ErrUnknownClient = errors.New("unknown client")
	// ErrMessageTooBig reports a frame or message above the configured limit.
	ErrMessageTooBig = errors.New("message too big")
	// ErrTimeout reports an idle or ping timeout.
	ErrTimeout = errors.New("timeout")
	// ErrHandler wraps an error or panic escaping a user handler.
	ErrHandler = errors.New("handler error")
	// ErrConfiguration reports an invalid Config at startup.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrBind reports a failure to open the listening socket.
	ErrBind = errors.New("bind failed")
	// ErrAlreadyRunning reports a second Run on a live server.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrServerClosed is returned by Run after a clean Shutdown.
	ErrServerClosed = errors.New("server closed")
)
