// File: server/dispatch.go
// Package server dispatcher: HTTP routing, the upgrade handshake chain, and
// WebSocket event delivery with middleware.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handler and middleware failures never reach the reactor: HTTP errors
// become 500, WebSocket errors are logged and, when the route opted in,
// translated to an {"event":"error"} envelope.

package server

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/momentics/roomcast-ws/api"
	"github.com/momentics/roomcast-ws/httpcodec"
	"github.com/momentics/roomcast-ws/internal/conn"
	"github.com/momentics/roomcast-ws/protocol"
	"github.com/momentics/roomcast-ws/queue"
	"github.com/momentics/roomcast-ws/rooms"
)

// ConnectEvent is the synthetic event dispatched after a successful upgrade.
const ConnectEvent = "connect"

// OnRequest decides between WebSocket upgrade and plain HTTP for one
// complete request. Implements conn.Hooks.
func (s *Server) OnRequest(c *conn.Client, req *httpcodec.Request) {
	if protocol.IsUpgrade(req) {
		s.handleUpgrade(c, req)
		return
	}
	s.handleHTTP(c, req)
}

// handleUpgrade validates the headers, runs the handshake chain and emits
// either 101 Switching Protocols or the rejection response.
func (s *Server) handleUpgrade(c *conn.Client, req *httpcodec.Request) {
	c.SetState(conn.StateUpgrading)
	c.Handshake = req

	if err := protocol.ValidateUpgrade(req); err != nil {
		s.log.Warn("invalid upgrade request", "client", c.ID, "err", err)
		s.respond(c, req, httpcodec.NewResponse(400), false)
		return
	}

	hctx := &api.HandshakeCtx{Core: s, ClientID: c.ID, Req: req, Attrs: c.Attrs}
	chain := s.rt.HandshakeChain(func(*api.HandshakeCtx) *api.HandshakeDecision {
		return api.HandshakeAccept()
	})
	decision := s.runHandshake(chain, hctx)

	switch {
	case decision.Custom != nil:
		s.respond(c, req, decision.Custom, false)
	case !decision.Accept:
		status := decision.Status
		if status == 0 {
			status = 403
		}
		s.log.Info("handshake rejected", "client", c.ID, "status", status)
		s.respond(c, req, httpcodec.NewResponse(status), false)
	default:
		resp := protocol.UpgradeResponse(req.Header("Sec-WebSocket-Key"))
		if err := c.EnqueueOut(resp.Marshal()); err != nil {
			s.destroyClient(c, "handshake write failed")
			return
		}
		s.armWrite(c)
		c.Kind = api.KindWS
		c.SetState(conn.StateWSOpen)
		s.idx.JoinNamespace(c.ID, rooms.DefaultNamespace)
		s.log.Info("websocket open", "client", c.ID, "path", req.Path, "remote", c.RemoteAddr)
		s.dispatchEvent(c, ConnectEvent, nil)
	}
}

// runHandshake shields the reactor from panics in handshake middleware.
func (s *Server) runHandshake(chain api.HandshakeFunc, hctx *api.HandshakeCtx) (d *api.HandshakeDecision) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in handshake middleware", "client", hctx.ClientID, "panic", r)
			d = api.HandshakeReject(500)
		}
	}()
	d = chain(hctx)
	if d == nil {
		d = api.HandshakeReject(0)
	}
	return d
}

// handleHTTP routes a plain request, runs the handler and flushes the
// response. A handler that writes nothing yields 404.
func (s *Server) handleHTTP(c *conn.Client, req *httpcodec.Request) {
	handler, params, ok := s.rt.MatchHTTP(req.Method, req.Path)
	if !ok {
		if req.Method == "OPTIONS" && s.isPreflight(req) {
			s.respond(c, req, s.preflightResponse(req), false)
			return
		}
		status := 404
		if s.rt.HasPath(req.Path) {
			status = 405
		}
		s.respond(c, req, httpcodec.NewResponse(status), false)
		return
	}

	hctx := &api.HTTPCtx{
		Core:     s,
		ClientID: c.ID,
		Req:      req,
		Res:      httpcodec.NewResponse(200),
		Params:   params,
	}
	if err := s.runHTTPHandler(handler, hctx); err != nil {
		s.log.Error("http handler failed", "client", c.ID, "path", req.Path, "err", err)
		s.respond(c, req, httpcodec.NewResponse(500), false)
		return
	}
	if !hctx.Written() {
		s.respond(c, req, httpcodec.NewResponse(404), false)
		return
	}
	s.respond(c, req, hctx.Res, hctx.Res.KeepAlive)
}

// runHTTPHandler converts errors and panics into a single error value.
func (s *Server) runHTTPHandler(h api.HTTPHandlerFunc, hctx *api.HTTPCtx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", api.ErrHandler, r)
		}
	}()
	if herr := h(hctx); herr != nil {
		return fmt.Errorf("%w: %v", api.ErrHandler, herr)
	}
	return nil
}

// respond serializes resp (adding CORS echo headers), enqueues it and moves
// the FSM to HTTPResponding. keepAlive re-enters ReadingHttp after flush.
func (s *Server) respond(c *conn.Client, req *httpcodec.Request, resp *httpcodec.Response, keepAlive bool) {
	s.applyCORS(req, resp)
	resp.KeepAlive = keepAlive
	if err := c.EnqueueOut(resp.Marshal()); err != nil {
		s.destroyClient(c, "response write failed")
		return
	}
	c.HTTPKeepAlive = keepAlive
	c.SetState(conn.StateHTTPResponding)
	s.armWrite(c)
}

// isPreflight reports an OPTIONS request with an allowed Origin.
func (s *Server) isPreflight(req *httpcodec.Request) bool {
	origin := req.Header("Origin")
	return origin != "" && s.originAllowed(origin)
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.cfg.CORS.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// applyCORS echoes Access-Control-Allow-Origin on any request carrying an
// allowed Origin header.
func (s *Server) applyCORS(req *httpcodec.Request, resp *httpcodec.Response) {
	origin := req.Header("Origin")
	if origin == "" || !s.originAllowed(origin) {
		return
	}
	resp.SetHeader("Access-Control-Allow-Origin", origin)
	if s.cfg.CORS.AllowCredentials {
		resp.SetHeader("Access-Control-Allow-Credentials", "true")
	}
}

// preflightResponse builds the 204 answer to an OPTIONS preflight.
func (s *Server) preflightResponse(req *httpcodec.Request) *httpcodec.Response {
	resp := httpcodec.NewResponse(204)
	if methods := s.cfg.CORS.AllowedMethods; len(methods) > 0 {
		resp.SetHeader("Access-Control-Allow-Methods", joinComma(methods))
	}
	if headers := s.cfg.CORS.AllowedHeaders; len(headers) > 0 {
		resp.SetHeader("Access-Control-Allow-Headers", joinComma(headers))
	}
	if s.cfg.CORS.MaxAge > 0 {
		resp.SetHeader("Access-Control-Max-Age", fmt.Sprintf("%d", s.cfg.CORS.MaxAge))
	}
	return resp
}

func joinComma(vals []string) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

// OnMessage delivers one reassembled data message. Implements conn.Hooks.
func (s *Server) OnMessage(c *conn.Client, opcode byte, payload []byte) {
	atomic.AddUint64(&s.messagesIn, 1)
	if opcode == protocol.OpcodeBinary {
		if h := s.rt.BinaryHandler(); h != nil {
			h(s, c.ID, payload)
		}
		return
	}

	var env api.Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
		s.log.Warn("malformed envelope", "client", c.ID, "err", err)
		c.QueueClose(protocol.CloseProtocolError, "malformed envelope")
		s.armWrite(c)
		return
	}
	s.dispatchEvent(c, env.Event, env.Data)
}

// dispatchEvent routes an event to its handler and sends any reply envelope
// back to the originating client.
func (s *Server) dispatchEvent(c *conn.Client, event string, data any) {
	ns, _ := s.idx.Namespace(c.ID)
	route, ok := s.rt.MatchEvent(event, ns)
	var handler api.WSHandlerFunc
	notify := false
	if ok {
		handler = route.Handler
		notify = route.NotifyErrors
	} else if h := s.rt.UnknownEventHandler(); h != nil {
		handler = h
	} else {
		return // no route, no fallback: drop silently
	}

	ctx := &api.Ctx{Core: s, ClientID: c.ID, Namespace: ns, Event: event, Data: data}
	reply, err := s.runWSHandler(handler, ctx)
	if err != nil {
		s.log.Error("handler failed", "client", c.ID, "event", event, "err", err)
		if notify {
			if serr := s.Send(c.ID, "error", map[string]any{"message": err.Error()}); serr != nil {
				s.log.Warn("error event not delivered", "client", c.ID, "err", serr)
			}
		}
		return
	}
	if reply != nil {
		if serr := s.Send(c.ID, reply.Event, reply.Data); serr != nil {
			s.log.Warn("reply not delivered", "client", c.ID, "event", reply.Event, "err", serr)
		}
	}
}

// runWSHandler converts handler panics into errors.
func (s *Server) runWSHandler(h api.WSHandlerFunc, ctx *api.Ctx) (reply *api.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", api.ErrHandler, r)
		}
	}()
	return h(ctx)
}

// OnPeerClose logs the peer-initiated close. Implements conn.Hooks.
func (s *Server) OnPeerClose(c *conn.Client, code uint16, reason string) {
	s.log.Debug("peer close", "client", c.ID, "code", code, "reason", reason)
}

// applyQueueRecord replays one broadcast-queue record through the same
// fan-out path as in-process handlers.
func (s *Server) applyQueueRecord(rec queue.Record) {
	room := ""
	if rec.Room != nil {
		room = *rec.Room
	}
	ns := rec.Namespace
	if ns == "" {
		ns = rooms.DefaultNamespace
	}
	if err := s.Broadcast(rec.Event, rec.Data, ns, room); err != nil {
		s.log.Warn("queue broadcast failed", "event", rec.Event, "err", err)
	}
}
