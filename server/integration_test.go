// File: server/integration_test.go
// End-to-end tests over real sockets: upgrade, event dispatch, rooms,
// HTTP routing, CORS preflight, queue-file broadcast, shutdown.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/roomcast-ws/api"
	"github.com/momentics/roomcast-ws/protocol"
	"github.com/momentics/roomcast-ws/queue"
)

// startServer binds on an ephemeral port, lets the test register routes, and
// runs the reactor loop until cleanup.
func startServer(t *testing.T, register func(*Server), opts ...Option) (*Server, string) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.TickInterval = 5 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second

	opts = append([]Option{WithLogger(api.NopLogger{})}, opts...)
	s := NewServer(cfg, opts...)
	if register != nil {
		register(s)
	}
	if err := s.Bind(); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	for !s.running.Load() {
		time.Sleep(time.Millisecond)
	}
	t.Cleanup(func() {
		s.Shutdown()
		select {
		case err := <-done:
			if !errors.Is(err, api.ErrServerClosed) {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return s, s.Addr()
}

func dialWS(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	return c
}

func readEnvelope(t *testing.T, c *websocket.Conn) api.Envelope {
	t.Helper()
	var env api.Envelope
	if err := c.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestEventEcho(t *testing.T) {
	s, addr := startServer(t, func(s *Server) {
		err := s.Router().HandleEvent("ping", func(ctx *api.Ctx) (*api.Envelope, error) {
			return ctx.Reply("pong", ctx.Data), nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	c := dialWS(t, addr)
	if err := c.WriteJSON(api.Envelope{Event: "ping", Data: "hi"}); err != nil {
		t.Fatal(err)
	}
	env := readEnvelope(t, c)
	if env.Event != "pong" || env.Data != "hi" {
		t.Errorf("reply = %+v", env)
	}

	// Stats is readable from the test goroutine while the reactor runs.
	st := s.Stats()
	if st.Accepted != 1 || st.Active != 1 {
		t.Errorf("accepted = %d, active = %d", st.Accepted, st.Active)
	}
	if st.MessagesIn < 1 || st.MessagesOut < 1 {
		t.Errorf("messages in = %d, out = %d", st.MessagesIn, st.MessagesOut)
	}
}

func TestRoomBroadcast(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		rt := s.Router()
		if err := rt.HandleEvent("join", func(ctx *api.Ctx) (*api.Envelope, error) {
			room, _ := ctx.Data.(string)
			if err := ctx.Core.JoinRoom(ctx.ClientID, room, "/"); err != nil {
				return nil, err
			}
			return ctx.Reply("joined", room), nil
		}); err != nil {
			t.Fatal(err)
		}
		if err := rt.HandleEvent("shout", func(ctx *api.Ctx) (*api.Envelope, error) {
			return nil, ctx.Core.Broadcast("heard", ctx.Data, "/", "lobby")
		}); err != nil {
			t.Fatal(err)
		}
	})

	a := dialWS(t, addr)
	b := dialWS(t, addr)
	for _, c := range []*websocket.Conn{a, b} {
		if err := c.WriteJSON(api.Envelope{Event: "join", Data: "lobby"}); err != nil {
			t.Fatal(err)
		}
		if env := readEnvelope(t, c); env.Event != "joined" {
			t.Fatalf("join reply: %+v", env)
		}
	}

	if err := a.WriteJSON(api.Envelope{Event: "shout", Data: "hello"}); err != nil {
		t.Fatal(err)
	}
	for name, c := range map[string]*websocket.Conn{"a": a, "b": b} {
		env := readEnvelope(t, c)
		if env.Event != "heard" || env.Data != "hello" {
			t.Errorf("client %s: %+v", name, env)
		}
	}
}

func TestHTTPRoutes(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		if err := s.Router().GET("/health", func(ctx *api.HTTPCtx) error {
			ctx.JSON(200, []byte(`{"ok":true}`))
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		if err := s.Router().GET("/users/:id", func(ctx *api.HTTPCtx) error {
			ctx.Text(200, ctx.Params["id"])
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	})

	get := func(path string) (*http.Response, string) {
		resp, err := http.Get("http://" + addr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp, string(body)
	}

	resp, body := get("/health")
	if resp.StatusCode != 200 || body != `{"ok":true}` {
		t.Errorf("/health: %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("/health Content-Type = %q", ct)
	}
	if resp, body := get("/users/42"); resp.StatusCode != 200 || body != "42" {
		t.Errorf("/users/42: %d %q", resp.StatusCode, body)
	}
	if resp, _ := get("/nope"); resp.StatusCode != 404 {
		t.Errorf("/nope: %d, want 404", resp.StatusCode)
	}

	// Registered path, wrong method.
	post, err := http.Post("http://"+addr+"/health", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != 405 {
		t.Errorf("POST /health: %d, want 405", post.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		if err := s.Router().GET("/data", func(ctx *api.HTTPCtx) error {
			ctx.Text(200, "ok")
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}, WithCORS(CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         600,
	}))

	req, err := http.NewRequest("OPTIONS", "http://"+addr+"/data", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != 204 {
		t.Fatalf("preflight: %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://example.test" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("Max-Age = %q", got)
	}
}

func TestHandshakeReject(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		s.Router().UseHandshake(func(next api.HandshakeFunc) api.HandshakeFunc {
			return func(hctx *api.HandshakeCtx) *api.HandshakeDecision {
				if len(hctx.Req.Query["token"]) == 0 {
					return api.HandshakeReject(401)
				}
				hctx.Attrs[api.AttrAuthUserID] = hctx.Req.Query["token"][0]
				return next(hctx)
			}
		})
	})

	if _, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil); err == nil {
		t.Fatal("tokenless upgrade accepted")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("reject status: %v", resp)
	}

	c, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?token=u1", nil)
	if err != nil {
		t.Fatalf("authorized dial: %v", err)
	}
	c.Close()
}

// TestReservedBitsClose drives the wire by hand: a frame with RSV1 set must
// draw close 1002 and a terminated connection.
func TestReservedBitsClose(t *testing.T) {
	_, addr := startServer(t, nil)

	raw, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()
	raw.SetDeadline(time.Now().Add(3 * time.Second))

	fmt.Fprintf(raw, "GET /ws HTTP/1.1\r\nHost: %s\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n", addr)

	head := readUntil(t, raw, []byte("\r\n\r\n"))
	if !bytes.HasPrefix(head, []byte("HTTP/1.1 101")) {
		t.Fatalf("handshake response:\n%s", head)
	}

	// Masked text frame with RSV1 set.
	frame := protocol.EncodeFrame(protocol.OpcodeText, true, []byte("x"))
	frame[0] |= 0x40
	frame[1] |= 0x80
	key := [4]byte{0xA, 0xB, 0xC, 0xD}
	masked := append(append(frame[:2:2], key[:]...), frame[2]^key[0])
	if _, err := raw.Write(masked); err != nil {
		t.Fatal(err)
	}

	var buf []byte
	chunk := make([]byte, 256)
	for {
		f, _, derr := protocol.DecodeFrame(buf, 0, false)
		if derr == nil {
			code, _ := protocol.DecodeClose(f.Payload)
			if f.Opcode != protocol.OpcodeClose || code != protocol.CloseProtocolError {
				t.Fatalf("got opcode %d code %d, want close 1002", f.Opcode, code)
			}
			return
		}
		if derr != protocol.ErrNeedMore {
			t.Fatalf("decode: %v", derr)
		}
		n, rerr := raw.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			continue
		}
		if rerr != nil {
			t.Fatalf("connection closed before close frame: %v", rerr)
		}
	}
}

func readUntil(t *testing.T, r io.Reader, sep []byte) []byte {
	t.Helper()
	var buf []byte
	chunk := make([]byte, 256)
	for !bytes.Contains(buf, sep) {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, buf)
		}
	}
	return buf
}

func TestQueueFileBroadcast(t *testing.T) {
	qpath := filepath.Join(t.TempDir(), "queue.jsonl")
	_, addr := startServer(t, nil, WithQueueFile(qpath))

	c := dialWS(t, addr)
	// Give the reactor a moment to commit the default-namespace join.
	time.Sleep(50 * time.Millisecond)

	if err := queue.Broadcast(qpath, "external", map[string]any{"n": float64(1)}, "/", ""); err != nil {
		t.Fatal(err)
	}
	env := readEnvelope(t, c)
	if env.Event != "external" {
		t.Errorf("event = %q", env.Event)
	}
}

func TestShutdownSendsGoingAway(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.TickInterval = 5 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second

	s := NewServer(cfg, WithLogger(api.NopLogger{}))
	if err := s.Bind(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	c, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetReadDeadline(time.Now().Add(3 * time.Second))

	s.Shutdown()
	_, _, rerr := c.ReadMessage()
	if !websocket.IsCloseError(rerr, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown: %v, want close 1001", rerr)
	}
	select {
	case err := <-done:
		if !errors.Is(err, api.ErrServerClosed) {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Run did not return")
	}
}

func TestDoubleRunRejected(t *testing.T) {
	s, _ := startServer(t, nil)
	errc := make(chan error, 1)
	go func() { errc <- s.Run() }()
	select {
	case err := <-errc:
		if err != api.ErrAlreadyRunning {
			t.Errorf("second Run: %v, want ErrAlreadyRunning", err)
		}
	case <-time.After(time.Second):
		t.Error("second Run blocked")
	}
}
