// File: router/middleware.go
// Package router middleware chain builders and built-in middleware.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Chains apply in reverse so the first registered middleware executes first.
// A middleware that never calls next short-circuits with its own result.

package router

import (
	"fmt"

	"github.com/momentics/roomcast-ws/api"
)

// ChainWS wraps h with mw, first middleware outermost.
func ChainWS(h api.WSHandlerFunc, mw ...api.WSMiddleware) api.WSHandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// ChainHTTP wraps h with mw, first middleware outermost.
func ChainHTTP(h api.HTTPHandlerFunc, mw ...api.HTTPMiddleware) api.HTTPHandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// ChainHandshake wraps terminal with mw, first middleware outermost.
func ChainHandshake(terminal api.HandshakeFunc, mw ...api.HandshakeMiddleware) api.HandshakeFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		terminal = mw[i](terminal)
	}
	return terminal
}

// Logging logs every dispatched event at debug level.
func Logging(log api.Logger) api.WSMiddleware {
	return func(next api.WSHandlerFunc) api.WSHandlerFunc {
		return func(ctx *api.Ctx) (*api.Envelope, error) {
			log.Debug("ws event", "client", ctx.ClientID, "ns", ctx.Namespace, "event", ctx.Event)
			return next(ctx)
		}
	}
}

// Recovery converts handler panics into errors instead of letting them reach
// the dispatcher's own recovery, so downstream middleware still runs.
func Recovery(log api.Logger) api.WSMiddleware {
	return func(next api.WSHandlerFunc) api.WSHandlerFunc {
		return func(ctx *api.Ctx) (reply *api.Envelope, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic in handler", "client", ctx.ClientID, "event", ctx.Event, "panic", r)
					err = fmt.Errorf("%w: panic: %v", api.ErrHandler, r)
				}
			}()
			return next(ctx)
		}
	}
}
