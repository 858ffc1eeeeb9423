// File: router/router_test.go
// Routing table tests: specificity, params, middleware order, namespaces.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"errors"
	"testing"

	"github.com/momentics/roomcast-ws/api"
)

func nopHTTP(*api.HTTPCtx) error { return nil }

func nopWS(*api.Ctx) (*api.Envelope, error) { return nil, nil }

func TestMatchHTTPSpecificity(t *testing.T) {
	r := New()
	var hit string
	mark := func(name string) api.HTTPHandlerFunc {
		return func(*api.HTTPCtx) error { hit = name; return nil }
	}
	if err := r.GET("/users/:id", mark("param")); err != nil {
		t.Fatal(err)
	}
	if err := r.GET("/users/me", mark("literal")); err != nil {
		t.Fatal(err)
	}
	r.Freeze()

	h, params, ok := r.MatchHTTP("GET", "/users/me")
	if !ok {
		t.Fatal("no match for /users/me")
	}
	h(nil)
	if hit != "literal" {
		t.Errorf("literal route should win, got %q", hit)
	}
	if len(params) != 0 {
		t.Errorf("unexpected params %v", params)
	}

	h, params, ok = r.MatchHTTP("GET", "/users/42")
	if !ok {
		t.Fatal("no match for /users/42")
	}
	h(nil)
	if hit != "param" || params["id"] != "42" {
		t.Errorf("got hit=%q params=%v", hit, params)
	}
}

func TestMatchHTTPMethodAndPath(t *testing.T) {
	r := New()
	if err := r.POST("/things", nopHTTP); err != nil {
		t.Fatal(err)
	}
	r.Freeze()

	if _, _, ok := r.MatchHTTP("GET", "/things"); ok {
		t.Error("GET matched a POST-only route")
	}
	if !r.HasPath("/things") {
		t.Error("HasPath should see the path regardless of method")
	}
	if r.HasPath("/missing") {
		t.Error("HasPath matched an unregistered path")
	}
}

func TestFrozenRejectsRegistration(t *testing.T) {
	r := New()
	r.Freeze()
	if err := r.GET("/late", nopHTTP); !errors.Is(err, api.ErrConfiguration) {
		t.Errorf("got %v, want ErrConfiguration", err)
	}
	if err := r.HandleEvent("late", nopWS); !errors.Is(err, api.ErrConfiguration) {
		t.Errorf("got %v, want ErrConfiguration", err)
	}
}

func TestBadPatterns(t *testing.T) {
	r := New()
	if err := r.GET("no-slash", nopHTTP); err == nil {
		t.Error("pattern without leading slash accepted")
	}
	if err := r.GET("/x/:", nopHTTP); err == nil {
		t.Error("empty placeholder accepted")
	}
	if err := r.HandleEvent("", nopWS); err == nil {
		t.Error("empty event name accepted")
	}
}

func TestMatchEventNamespacePrecedence(t *testing.T) {
	r := New()
	if err := r.HandleEvent("msg", nopWS); err != nil {
		t.Fatal(err)
	}
	if err := r.HandleEvent("msg", nopWS, InNamespace("/chat")); err != nil {
		t.Fatal(err)
	}
	r.Freeze()

	route, ok := r.MatchEvent("msg", "/chat")
	if !ok || route.Namespace != "/chat" {
		t.Errorf("namespace route should win: %+v", route)
	}
	route, ok = r.MatchEvent("msg", "/other")
	if !ok || route.Namespace != "" {
		t.Errorf("unrestricted route should catch other namespaces: %+v", route)
	}
	if _, ok := r.MatchEvent("nope", "/chat"); ok {
		t.Error("unregistered event matched")
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var trace []string
	tag := func(name string) api.WSMiddleware {
		return func(next api.WSHandlerFunc) api.WSHandlerFunc {
			return func(ctx *api.Ctx) (*api.Envelope, error) {
				trace = append(trace, name)
				return next(ctx)
			}
		}
	}
	h := ChainWS(func(*api.Ctx) (*api.Envelope, error) {
		trace = append(trace, "handler")
		return nil, nil
	}, tag("a"), tag("b"))

	if _, err := h(&api.Ctx{}); err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "handler"}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("order %v, want %v", trace, want)
		}
	}
}

func TestMiddlewareShortCircuit(t *testing.T) {
	reached := false
	stop := func(api.WSHandlerFunc) api.WSHandlerFunc {
		return func(*api.Ctx) (*api.Envelope, error) {
			return nil, errors.New("denied")
		}
	}
	h := ChainWS(func(*api.Ctx) (*api.Envelope, error) {
		reached = true
		return nil, nil
	}, stop)
	if _, err := h(&api.Ctx{}); err == nil {
		t.Error("short-circuit error lost")
	}
	if reached {
		t.Error("handler ran past a short-circuiting middleware")
	}
}

func TestHandshakeChainShortCircuit(t *testing.T) {
	r := New()
	r.UseHandshake(func(next api.HandshakeFunc) api.HandshakeFunc {
		return func(ctx *api.HandshakeCtx) *api.HandshakeDecision {
			return api.HandshakeReject(401)
		}
	})
	terminalRan := false
	chain := r.HandshakeChain(func(*api.HandshakeCtx) *api.HandshakeDecision {
		terminalRan = true
		return api.HandshakeAccept()
	})
	d := chain(&api.HandshakeCtx{})
	if d.Accept || d.Status != 401 {
		t.Errorf("got %+v, want reject 401", d)
	}
	if terminalRan {
		t.Error("terminal ran past a rejecting middleware")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := ChainWS(func(*api.Ctx) (*api.Envelope, error) {
		panic("boom")
	}, Recovery(api.NopLogger{}))
	_, err := h(&api.Ctx{})
	if !errors.Is(err, api.ErrHandler) {
		t.Errorf("got %v, want ErrHandler", err)
	}
}
