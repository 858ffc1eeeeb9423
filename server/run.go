// File: server/run.go
// Package server lifecycle: bind, the reactor tick loop, timeout sweep and
// cooperative shutdown.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One tick: accept batch, read-ready, FSM, write-ready, broadcast queue,
// timeout sweep, posted ops. All of it on one goroutine.

package server

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/roomcast-ws/api"
	"github.com/momentics/roomcast-ws/internal/conn"
	"github.com/momentics/roomcast-ws/internal/transport"
	"github.com/momentics/roomcast-ws/protocol"
	"github.com/momentics/roomcast-ws/queue"
	"github.com/momentics/roomcast-ws/reactor"
)

// defaultCloseDrainGrace bounds how long a closing connection may sit with an
// unflushed close frame when the idle timeouts are disabled.
const defaultCloseDrainGrace = 10 * time.Second

func wakePipe(w int) { transport.Wake(w) }

func (s *Server) limits() conn.Limits {
	return conn.Limits{
		MaxFrameBytes:    s.cfg.MaxFrameBytes,
		MaxMessageBytes:  s.cfg.MaxMessageBytes,
		WriteBufferBytes: s.cfg.WriteBufferBytes,
		MaxHeaderBytes:   s.cfg.MaxHeaderBytes,
	}
}

// Bind validates the configuration and opens the listening socket. Safe to
// call before Run; Run calls it when needed.
func (s *Server) Bind() error {
	if s.bound {
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	lfd, port, err := transport.Listen(s.cfg.Host, s.cfg.Port)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrBind, err)
	}
	rx, err := reactor.New()
	if err != nil {
		transport.Close(lfd)
		return fmt.Errorf("%w: %v", api.ErrBind, err)
	}
	wr, ww, err := transport.Pipe()
	if err != nil {
		transport.Close(lfd)
		rx.Close()
		return fmt.Errorf("%w: %v", api.ErrBind, err)
	}

	s.listenFD = lfd
	s.boundPort = port
	s.rx = rx
	s.wakeR, s.wakeW = wr, ww

	if err := rx.Register(lfd, reactor.EventRead, func(int, reactor.FDEventType) { s.acceptBatch() }); err != nil {
		return fmt.Errorf("%w: %v", api.ErrBind, err)
	}
	if err := rx.Register(wr, reactor.EventRead, func(int, reactor.FDEventType) { transport.Drain(wr) }); err != nil {
		return fmt.Errorf("%w: %v", api.ErrBind, err)
	}

	if s.cfg.QueueEnabled {
		s.qreader = queue.NewReader(s.cfg.QueueFile, s.log)
	}
	s.rt.Freeze()
	s.bound = true
	return nil
}

// Run binds when needed and blocks until Shutdown completes. It returns
// api.ErrServerClosed on a clean shutdown, net/http style; ExitCode maps that
// and every other outcome to the process exit code contract.
func (s *Server) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return api.ErrAlreadyRunning
	}
	defer s.running.Store(false)
	if err := s.Bind(); err != nil {
		return err
	}
	s.log.Info("listening", "addr", s.Addr(), "queue", s.cfg.QueueEnabled)

	timeoutMs := int(s.cfg.TickInterval / time.Millisecond)
	if timeoutMs <= 0 {
		timeoutMs = 1
	}
	for {
		if _, err := s.rx.Poll(timeoutMs); err != nil {
			return fmt.Errorf("reactor: %w", err)
		}
		s.drainOps()
		if s.qreader != nil && !s.shuttingDown {
			if err := s.qreader.Poll(s.applyQueueRecord); err != nil {
				s.log.Warn("queue poll failed", "err", err)
			}
		}
		s.sweepTimeouts(time.Now())
		if s.shuttingDown && s.finishShutdown(time.Now()) {
			return api.ErrServerClosed
		}
	}
}

// Shutdown requests a cooperative stop: close the listener, close 1001 to
// every open WebSocket client, drain with a deadline. Safe from any
// goroutine, including signal handlers.
func (s *Server) Shutdown() {
	s.Post(s.beginShutdown)
}

func (s *Server) beginShutdown() {
	if s.shuttingDown || !s.bound {
		return
	}
	s.shuttingDown = true
	s.drainUntil = time.Now().Add(s.cfg.ShutdownTimeout)
	_ = s.rx.Unregister(s.listenFD)
	transport.Close(s.listenFD)
	s.listenFD = -1
	s.log.Info("shutting down", "clients", len(s.clients))

	for _, c := range s.clients {
		if c.Kind == api.KindWS && c.State() != conn.StateClosed {
			c.QueueClose(protocol.CloseGoingAway, "server shutting down")
			s.armWrite(c)
		} else if c.State() == conn.StateReadingHTTP {
			s.destroyClient(c, "shutdown")
		}
	}
}

// finishShutdown reports completion once every client drained or the
// deadline passed.
func (s *Server) finishShutdown(now time.Time) bool {
	if len(s.clients) > 0 && now.Before(s.drainUntil) {
		return false
	}
	for _, c := range s.clients {
		s.destroyClient(c, "shutdown deadline")
	}
	if s.wakeR >= 0 {
		_ = s.rx.Unregister(s.wakeR)
		transport.Close(s.wakeR)
		transport.Close(s.wakeW)
		s.wakeR, s.wakeW = -1, -1
	}
	_ = s.rx.Close()
	s.bound = false
	s.log.Info("shutdown complete")
	return true
}

// acceptBatch takes up to AcceptBatch pending connections in one tick.
func (s *Server) acceptBatch() {
	now := time.Now()
	for i := 0; i < s.cfg.AcceptBatch; i++ {
		fd, remote, again, err := transport.Accept(s.listenFD)
		if again {
			return
		}
		if err != nil {
			s.log.Warn("accept failed", "err", err)
			return
		}
		if s.shuttingDown {
			transport.Close(fd)
			continue
		}
		s.nextID++
		c := conn.New(s.nextID, fd, remote, s.limits(), now)
		s.clients[c.ID] = c
		s.byFD[fd] = c
		atomic.AddUint64(&s.accepted, 1)
		atomic.AddInt64(&s.active, 1)
		if err := s.rx.Register(fd, reactor.EventRead, s.onClientReady); err != nil {
			s.log.Warn("register failed", "client", c.ID, "err", err)
			s.destroyClient(c, "register failed")
			continue
		}
		s.log.Debug("accepted", "client", c.ID, "remote", remote)
	}
}

// onClientReady handles one readiness notification for a client socket.
func (s *Server) onClientReady(fd int, ev reactor.FDEventType) {
	c, ok := s.byFD[fd]
	if !ok {
		return
	}
	if ev&reactor.EventError != 0 {
		s.destroyClient(c, "socket error")
		return
	}
	if ev&reactor.EventRead != 0 {
		s.handleReadable(c)
	}
	if c.State() == conn.StateClosed {
		return
	}
	if ev&reactor.EventWrite != 0 {
		s.handleWritable(c)
	}
}

// handleReadable drains up to ReadChunkBytes from the socket and advances
// the FSM. Bounded per tick so one noisy client cannot starve others.
func (s *Server) handleReadable(c *conn.Client) {
	if c.ReadPaused {
		return
	}
	budget := s.cfg.ReadChunkBytes
	buf := make([]byte, minInt(budget, 16<<10))
	for budget > 0 {
		want := minInt(len(buf), budget)
		n, again, eof, err := transport.Read(c.FD, buf[:want])
		if err != nil {
			s.destroyClient(c, "read failed")
			return
		}
		if eof {
			s.destroyClient(c, "peer closed")
			return
		}
		if again {
			break
		}
		c.AppendRead(buf[:n])
		budget -= n
	}
	s.advance(c)
}

// advance runs the FSM and applies its consequences: close frames for
// protocol errors, a 400 for malformed HTTP, interest updates, read pause.
func (s *Server) advance(c *conn.Client) {
	if err := c.Advance(s, time.Now()); err != nil {
		var perr *protocol.ProtocolError
		if errors.As(err, &perr) {
			// The FSM already queued the close frame.
			s.log.Warn("protocol error", "client", c.ID, "code", perr.Code, "reason", perr.Reason)
		} else {
			s.log.Warn("bad http request", "client", c.ID, "err", err)
			if eerr := c.EnqueueOut(httpBadRequest()); eerr != nil {
				s.destroyClient(c, "bad request")
				return
			}
			c.HTTPKeepAlive = false
			c.SetState(conn.StateHTTPResponding)
		}
	}
	if c.State() == conn.StateClosed {
		return
	}
	if c.AboveHighWater() && !c.ReadPaused {
		c.ReadPaused = true
	}
	s.updateInterest(c)
}

// handleWritable flushes up to WriteChunkBytes and completes deferred
// transitions once the buffer drains.
func (s *Server) handleWritable(c *conn.Client) {
	budget := s.cfg.WriteChunkBytes
	for budget > 0 {
		chunk := c.NextChunk()
		if chunk == nil {
			break
		}
		want := minInt(len(chunk), budget)
		n, again, err := transport.Write(c.FD, chunk[:want])
		if err != nil {
			s.destroyClient(c, "write failed")
			return
		}
		if again {
			break
		}
		c.AdvanceOut(n)
		budget -= n
		if n < want {
			break
		}
	}

	if c.NextChunk() == nil {
		switch c.State() {
		case conn.StateWSClosing:
			s.destroyClient(c, "closed")
			return
		case conn.StateHTTPResponding:
			if c.HTTPKeepAlive {
				c.HTTPKeepAlive = false
				c.SetState(conn.StateReadingHTTP)
			} else {
				s.destroyClient(c, "response sent")
				return
			}
		}
	}
	if c.ReadPaused && c.BelowLowWater() {
		c.ReadPaused = false
	}
	s.updateInterest(c)
}

// armWrite enables write interest after an enqueue.
func (s *Server) armWrite(c *conn.Client) {
	if c.State() == conn.StateClosed {
		return
	}
	s.updateInterest(c)
}

// updateInterest recomputes the epoll interest set for c.
func (s *Server) updateInterest(c *conn.Client) {
	if s.rx == nil {
		return
	}
	var ev reactor.FDEventType
	if !c.ReadPaused {
		ev |= reactor.EventRead
	}
	if c.PendingOut() > 0 {
		ev |= reactor.EventWrite
	}
	if err := s.rx.Modify(c.FD, ev); err != nil {
		s.destroyClient(c, "interest update failed")
	}
}

// sweepTimeouts enforces idle close, ping cadence and pong deadlines.
func (s *Server) sweepTimeouts(now time.Time) {
	for _, c := range s.clients {
		idle := now.Sub(c.LastActivity)
		switch {
		case c.Kind == api.KindWS && c.State() == conn.StateWSOpen:
			if s.cfg.IdleTimeout > 0 && idle > s.cfg.IdleTimeout {
				s.log.Debug("idle timeout", "client", c.ID)
				c.QueueClose(protocol.CloseNormal, "idle timeout")
				s.armWrite(c)
				continue
			}
			if c.AwaitingPong && s.cfg.PingTimeout > 0 && now.Sub(c.LastPing) > s.cfg.PingTimeout {
				s.log.Debug("ping timeout", "client", c.ID)
				c.QueueClose(protocol.CloseGoingAway, "ping timeout")
				s.armWrite(c)
				continue
			}
			if s.cfg.PingInterval > 0 && !c.AwaitingPong && idle > s.cfg.PingInterval {
				c.QueuePing(now)
				s.armWrite(c)
			}
		case c.State() == conn.StateWSClosing:
			// Peers that never drain the close frame are reaped regardless of
			// the idle policy.
			grace := s.cfg.IdleTimeout + s.cfg.PingTimeout
			if grace <= 0 {
				grace = defaultCloseDrainGrace
			}
			if idle > grace {
				s.destroyClient(c, "close drain timeout")
			}
		default:
			if s.cfg.IdleTimeout > 0 && idle > s.cfg.IdleTimeout {
				s.destroyClient(c, "http idle timeout")
			}
		}
	}
}

// destroyClient tears one connection down: best-effort flush of any queued
// close frame, index removal, socket close. Idempotent.
func (s *Server) destroyClient(c *conn.Client, reason string) {
	if c.State() == conn.StateClosed {
		return
	}
	for {
		chunk := c.NextChunk()
		if chunk == nil {
			break
		}
		n, again, err := transport.Write(c.FD, chunk)
		if again || err != nil || n == 0 {
			break
		}
		c.AdvanceOut(n)
	}
	c.SetState(conn.StateClosed)
	s.idx.Remove(c.ID)
	delete(s.clients, c.ID)
	delete(s.byFD, c.FD)
	atomic.AddInt64(&s.active, -1)
	if s.rx != nil {
		_ = s.rx.Unregister(c.FD)
	}
	transport.Close(c.FD)
	s.log.Debug("connection closed", "client", c.ID, "reason", reason)
}

func httpBadRequest() []byte {
	resp := "HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"
	return []byte(resp)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
