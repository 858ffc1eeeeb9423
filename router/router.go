// File: router/router.go
// Package router holds the static routing tables: method/path → HTTP handler
// and event name → WebSocket handler, each with a middleware chain.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registration happens before the server runs; Freeze makes the tables
// immutable and fixes the HTTP match order: more literal segments win, then
// longer patterns, then registration order.

package router

import (
	"fmt"
	"strings"

	"github.com/momentics/roomcast-ws/api"
)

type segment struct {
	literal string
	param   string // non-empty for :name segments
}

type httpRoute struct {
	method   string
	pattern  string
	segments []segment
	literals int
	handler  api.HTTPHandlerFunc
	index    int
}

// EventRoute is one registered WebSocket event route.
type EventRoute struct {
	Event     string
	Namespace string // "" matches any namespace
	Handler   api.WSHandlerFunc
	// NotifyErrors opts this route into the {"event":"error"} translation of
	// handler failures; otherwise failures are only logged.
	NotifyErrors bool
}

// EventOption customizes an event route at registration.
type EventOption func(*EventRoute, *[]api.WSMiddleware)

// InNamespace restricts the route to clients of one namespace.
func InNamespace(ns string) EventOption {
	return func(r *EventRoute, _ *[]api.WSMiddleware) { r.Namespace = ns }
}

// NotifyErrors opts the route into error-event translation.
func NotifyErrors() EventOption {
	return func(r *EventRoute, _ *[]api.WSMiddleware) { r.NotifyErrors = true }
}

// WithMiddleware attaches per-route middleware in FIFO order.
func WithMiddleware(mw ...api.WSMiddleware) EventOption {
	return func(_ *EventRoute, chain *[]api.WSMiddleware) { *chain = append(*chain, mw...) }
}

// Router is the pair of routing tables plus the handshake chain.
type Router struct {
	httpRoutes []*httpRoute
	wsRoutes   map[string][]*EventRoute
	handshake  []api.HandshakeMiddleware
	unknown    api.WSHandlerFunc
	binary     api.BinaryHandlerFunc
	frozen     bool
}

// New returns an empty router.
func New() *Router {
	return &Router{wsRoutes: make(map[string][]*EventRoute)}
}

// HandleHTTP registers an HTTP route. Patterns are literal segments and
// :name placeholders, e.g. "/users/:id/messages".
func (r *Router) HandleHTTP(method, pattern string, h api.HTTPHandlerFunc, mw ...api.HTTPMiddleware) error {
	if r.frozen {
		return fmt.Errorf("route %s %s: %w: tables frozen after Run", method, pattern, api.ErrConfiguration)
	}
	if h == nil {
		return fmt.Errorf("route %s %s: %w: nil handler", method, pattern, api.ErrConfiguration)
	}
	segs, literals, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("route %s %s: %w", method, pattern, err)
	}
	r.httpRoutes = append(r.httpRoutes, &httpRoute{
		method:   strings.ToUpper(method),
		pattern:  pattern,
		segments: segs,
		literals: literals,
		handler:  ChainHTTP(h, mw...),
		index:    len(r.httpRoutes),
	})
	return nil
}

// GET registers an HTTP GET route.
func (r *Router) GET(pattern string, h api.HTTPHandlerFunc, mw ...api.HTTPMiddleware) error {
	return r.HandleHTTP("GET", pattern, h, mw...)
}

// POST registers an HTTP POST route.
func (r *Router) POST(pattern string, h api.HTTPHandlerFunc, mw ...api.HTTPMiddleware) error {
	return r.HandleHTTP("POST", pattern, h, mw...)
}

// PUT registers an HTTP PUT route.
func (r *Router) PUT(pattern string, h api.HTTPHandlerFunc, mw ...api.HTTPMiddleware) error {
	return r.HandleHTTP("PUT", pattern, h, mw...)
}

// DELETE registers an HTTP DELETE route.
func (r *Router) DELETE(pattern string, h api.HTTPHandlerFunc, mw ...api.HTTPMiddleware) error {
	return r.HandleHTTP("DELETE", pattern, h, mw...)
}

// OPTIONS registers an HTTP OPTIONS route.
func (r *Router) OPTIONS(pattern string, h api.HTTPHandlerFunc, mw ...api.HTTPMiddleware) error {
	return r.HandleHTTP("OPTIONS", pattern, h, mw...)
}

// HandleEvent registers a WebSocket event route.
func (r *Router) HandleEvent(event string, h api.WSHandlerFunc, opts ...EventOption) error {
	if r.frozen {
		return fmt.Errorf("event %q: %w: tables frozen after Run", event, api.ErrConfiguration)
	}
	if event == "" || h == nil {
		return fmt.Errorf("event %q: %w: empty name or nil handler", event, api.ErrConfiguration)
	}
	route := &EventRoute{Event: event}
	var mw []api.WSMiddleware
	for _, o := range opts {
		o(route, &mw)
	}
	route.Handler = ChainWS(h, mw...)
	r.wsRoutes[event] = append(r.wsRoutes[event], route)
	return nil
}

// UseHandshake appends middleware to the upgrade handshake chain.
func (r *Router) UseHandshake(mw ...api.HandshakeMiddleware) {
	r.handshake = append(r.handshake, mw...)
}

// OnUnknownEvent installs the fallback for events with no route. Without it,
// unknown events are dropped silently.
func (r *Router) OnUnknownEvent(h api.WSHandlerFunc) { r.unknown = h }

// OnBinary installs the handler receiving binary frames opaquely.
func (r *Router) OnBinary(h api.BinaryHandlerFunc) { r.binary = h }

// UnknownEventHandler returns the configured fallback, or nil.
func (r *Router) UnknownEventHandler() api.WSHandlerFunc { return r.unknown }

// BinaryHandler returns the configured binary handler, or nil.
func (r *Router) BinaryHandler() api.BinaryHandlerFunc { return r.binary }

// Freeze sorts the HTTP table into specificity order and seals both tables.
func (r *Router) Freeze() {
	if r.frozen {
		return
	}
	r.frozen = true
	// Stable insertion sort keeps registration order among equals.
	for i := 1; i < len(r.httpRoutes); i++ {
		for j := i; j > 0 && moreSpecific(r.httpRoutes[j], r.httpRoutes[j-1]); j-- {
			r.httpRoutes[j], r.httpRoutes[j-1] = r.httpRoutes[j-1], r.httpRoutes[j]
		}
	}
}

func moreSpecific(a, b *httpRoute) bool {
	if a.literals != b.literals {
		return a.literals > b.literals
	}
	if len(a.segments) != len(b.segments) {
		return len(a.segments) > len(b.segments)
	}
	return a.index < b.index
}

// MatchHTTP resolves method+path to a handler and its :name captures.
func (r *Router) MatchHTTP(method, path string) (api.HTTPHandlerFunc, map[string]string, bool) {
	method = strings.ToUpper(method)
	parts := splitPath(path)
	for _, route := range r.httpRoutes {
		if route.method != method {
			continue
		}
		params, ok := matchSegments(route.segments, parts)
		if ok {
			return route.handler, params, true
		}
	}
	return nil, nil, false
}

// HasPath reports whether any route matches path under any method. Used to
// answer 405 versus 404.
func (r *Router) HasPath(path string) bool {
	parts := splitPath(path)
	for _, route := range r.httpRoutes {
		if _, ok := matchSegments(route.segments, parts); ok {
			return true
		}
	}
	return false
}

// MatchEvent resolves an event name for a client in ns. A route restricted to
// ns wins over an unrestricted one.
func (r *Router) MatchEvent(event, ns string) (*EventRoute, bool) {
	var fallback *EventRoute
	for _, route := range r.wsRoutes[event] {
		if route.Namespace == ns {
			return route, true
		}
		if route.Namespace == "" && fallback == nil {
			fallback = route
		}
	}
	if fallback != nil {
		return fallback, true
	}
	return nil, false
}

// HandshakeChain wraps terminal with the registered handshake middleware.
func (r *Router) HandshakeChain(terminal api.HandshakeFunc) api.HandshakeFunc {
	return ChainHandshake(terminal, r.handshake...)
}

func compilePattern(pattern string) ([]segment, int, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, 0, fmt.Errorf("%w: pattern must start with '/'", api.ErrConfiguration)
	}
	parts := splitPath(pattern)
	segs := make([]segment, 0, len(parts))
	literals := 0
	for _, p := range parts {
		if strings.HasPrefix(p, ":") {
			name := strings.TrimPrefix(p, ":")
			if name == "" {
				return nil, 0, fmt.Errorf("%w: empty placeholder name", api.ErrConfiguration)
			}
			segs = append(segs, segment{param: name})
		} else {
			segs = append(segs, segment{literal: p})
			literals++
		}
	}
	return segs, literals, nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(segs []segment, parts []string) (map[string]string, bool) {
	if len(segs) != len(parts) {
		return nil, false
	}
	var params map[string]string
	for i, s := range segs {
		if s.param != "" {
			if params == nil {
				params = make(map[string]string)
			}
			params[s.param] = parts[i]
			continue
		}
		if s.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}
