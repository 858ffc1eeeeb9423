// File: api/handler.go
// Package api handler, middleware and context contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handlers are plain function values held in routing tables keyed by event
// name or method+pattern. Middleware wraps the next handler: func(next) func.
// None of these types are safe to call from outside the reactor goroutine;
// use Core.Post for cross-thread work.

package api

import "github.com/momentics/roomcast-ws/httpcodec"

// Core is the server facade exposed to handlers. Every method is safe from
// inside a handler (reactor goroutine). From other goroutines only Post may
// be used; it trampolines the closure onto the reactor.
type Core interface {
	// Send encodes {event,data} and enqueues it to one client.
	Send(id ClientID, event string, data any) error
	// Broadcast fans an envelope out to a namespace, or to one room when
	// room is non-empty. ns defaults to "/" when empty.
	Broadcast(event string, data any, ns, room string) error
	// JoinNamespace moves a client into ns, leaving all rooms of the old one.
	JoinNamespace(id ClientID, ns string) error
	// JoinRoom adds the client to a room of ns, joining ns first if needed.
	JoinRoom(id ClientID, room, ns string) error
	// LeaveRoom removes the client from a room of its namespace.
	LeaveRoom(id ClientID, room string) error
	// Disconnect closes a client. Idempotent: a gone id yields ErrUnknownClient.
	Disconnect(id ClientID) error

	// ClientData reads one key of the client attribute bag.
	ClientData(id ClientID, key string) (any, error)
	// SetClientData writes one key of the client attribute bag.
	SetClientData(id ClientID, key string, value any) error
	// ClientRooms lists the rooms of a client; empty, never an error, for none.
	ClientRooms(id ClientID) []string
	// ClientsInNamespace snapshots the ids currently in ns.
	ClientsInNamespace(ns string) []ClientID
	// ClientsInRoom snapshots the ids currently in room of ns.
	ClientsInRoom(room, ns string) []ClientID
	// IsClientConnected reports whether id is still live.
	IsClientConnected(id ClientID) bool
	// ClientType returns the connection kind for id.
	ClientType(id ClientID) ConnKind
	// ClientCount returns the number of live connections.
	ClientCount() int

	// Post schedules fn on the reactor goroutine. The only thread-safe entry.
	Post(fn func())
	// Logger returns the configured logging sink.
	Logger() Logger
}

// Ctx carries one decoded WebSocket event to its handler.
type Ctx struct {
	Core      Core
	ClientID  ClientID
	Namespace string
	Event     string
	// Data is the decoded "data" member of the envelope; for binary frames it
	// is the raw []byte payload.
	Data any
}

// Reply builds a reply envelope for returning from a handler.
func (c *Ctx) Reply(event string, data any) *Envelope {
	return &Envelope{Event: event, Data: data}
}

// WSHandlerFunc handles one event. A non-nil envelope is sent back to the
// originating client as a text frame; errors are logged, never propagated.
type WSHandlerFunc func(*Ctx) (*Envelope, error)

// WSMiddleware wraps a WebSocket handler.
type WSMiddleware func(next WSHandlerFunc) WSHandlerFunc

// HTTPCtx carries one HTTP request to its handler.
type HTTPCtx struct {
	Core     Core
	ClientID ClientID
	Req      *httpcodec.Request
	Res      *httpcodec.Response
	// Params holds :name captures from the matched pattern.
	Params map[string]string

	written bool
}

// Written reports whether the handler produced a response. A handler that
// returns without writing yields 404.
func (c *HTTPCtx) Written() bool { return c.written }

// JSON writes a JSON response with Content-Type: application/json.
func (c *HTTPCtx) JSON(status int, body []byte) {
	c.Res.Status = status
	c.Res.SetHeader("Content-Type", "application/json")
	c.Res.Body = body
	c.written = true
}

// Text writes a plain-text response.
func (c *HTTPCtx) Text(status int, body string) {
	c.Bytes(status, []byte(body), "text/plain; charset=utf-8")
}

// Bytes writes a raw response with an explicit content type.
func (c *HTTPCtx) Bytes(status int, body []byte, contentType string) {
	c.Res.Status = status
	if contentType != "" {
		c.Res.SetHeader("Content-Type", contentType)
	}
	c.Res.Body = body
	c.written = true
}

// NoContent writes a bodyless response.
func (c *HTTPCtx) NoContent(status int) {
	c.Res.Status = status
	c.written = true
}

// KeepAlive requests that the connection stay open after this response.
func (c *HTTPCtx) KeepAlive() { c.Res.KeepAlive = true }

// HTTPHandlerFunc handles one HTTP request. Returned errors become 500.
type HTTPHandlerFunc func(*HTTPCtx) error

// HTTPMiddleware wraps an HTTP handler.
type HTTPMiddleware func(next HTTPHandlerFunc) HTTPHandlerFunc

// HandshakeCtx is the context of one WebSocket upgrade attempt. Req is the
// frozen view over the upgrading request. Attrs seeds the client attribute
// bag on accept.
type HandshakeCtx struct {
	Core     Core
	ClientID ClientID
	Req      *httpcodec.Request
	Attrs    map[string]any
}

// HandshakeDecision is the outcome of the handshake chain.
type HandshakeDecision struct {
	Accept bool
	// Status is the reject status; 0 means 403.
	Status int
	// Custom, when non-nil, is emitted verbatim instead of a bare reject.
	Custom *httpcodec.Response
}

// HandshakeAccept continues the upgrade.
func HandshakeAccept() *HandshakeDecision { return &HandshakeDecision{Accept: true} }

// HandshakeReject refuses the upgrade with the given status (0 → 403).
func HandshakeReject(status int) *HandshakeDecision { return &HandshakeDecision{Status: status} }

// HandshakeFunc decides one upgrade attempt.
type HandshakeFunc func(*HandshakeCtx) *HandshakeDecision

// HandshakeMiddleware wraps the next handshake step; not calling next
// short-circuits the chain with its own decision.
type HandshakeMiddleware func(next HandshakeFunc) HandshakeFunc

// BinaryHandlerFunc receives binary frames opaquely, without JSON decoding.
type BinaryHandlerFunc func(core Core, id ClientID, payload []byte)
