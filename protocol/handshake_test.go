// File: protocol/handshake_test.go
// Handshake tests: the canonical accept key and header validation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"strings"
	"testing"

	"github.com/momentics/roomcast-ws/httpcodec"
)

func upgradeRequest(mutate func(*httpcodec.Request)) *httpcodec.Request {
	req := &httpcodec.Request{
		Method: "GET",
		Path:   "/",
		Headers: []httpcodec.Header{
			{Name: "Host", Value: "example.test"},
			{Name: "Connection", Value: "keep-alive, Upgrade"},
			{Name: "Upgrade", Value: "websocket"},
			{Name: "Sec-WebSocket-Key", Value: "dGhlIHNhbXBsZSBub25jZQ=="},
			{Name: "Sec-WebSocket-Version", Value: "13"},
		},
	}
	if mutate != nil {
		mutate(req)
	}
	return req
}

func TestAcceptKeyCanonical(t *testing.T) {
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("AcceptKey = %q, want %q", got, want)
	}
}

func TestValidateUpgrade(t *testing.T) {
	if err := ValidateUpgrade(upgradeRequest(nil)); err != nil {
		t.Fatalf("valid upgrade rejected: %v", err)
	}
}

func TestValidateUpgradeBadVersion(t *testing.T) {
	req := upgradeRequest(func(r *httpcodec.Request) { r.Headers[4].Value = "8" })
	if err := ValidateUpgrade(req); err != ErrBadWebSocketVersion {
		t.Errorf("got %v, want ErrBadWebSocketVersion", err)
	}
}

func TestValidateUpgradeBadKey(t *testing.T) {
	// Decodes to fewer than 16 bytes.
	req := upgradeRequest(func(r *httpcodec.Request) { r.Headers[3].Value = "c2hvcnQ=" })
	if err := ValidateUpgrade(req); err != ErrMissingWebSocketKey {
		t.Errorf("got %v, want ErrMissingWebSocketKey", err)
	}
}

func TestIsUpgrade(t *testing.T) {
	if !IsUpgrade(upgradeRequest(nil)) {
		t.Error("upgrade intent not detected")
	}
	plain := &httpcodec.Request{Method: "GET", Path: "/health"}
	if IsUpgrade(plain) {
		t.Error("plain request detected as upgrade")
	}
}

func TestUpgradeResponse(t *testing.T) {
	resp := UpgradeResponse("dGhlIHNhbXBsZSBub25jZQ==")
	wire := string(resp.Marshal())
	for _, want := range []string{
		"HTTP/1.1 101 Switching Protocols\r\n",
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n",
		"Upgrade: websocket\r\n",
	} {
		if !strings.Contains(wire, want) {
			t.Errorf("response missing %q:\n%s", want, wire)
		}
	}
}
