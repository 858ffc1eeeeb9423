// File: httpcodec/response.go
// Package httpcodec response serialization.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpcodec

import (
	"fmt"
	"net/http"
	"strings"
)

// Response is an HTTP/1.1 response under construction.
type Response struct {
	Status    int
	Reason    string // optional; defaults to the standard reason phrase
	Headers   []Header
	Body      []byte
	KeepAlive bool
}

// NewResponse returns a response with the given status and no headers.
func NewResponse(status int) *Response {
	return &Response{Status: status}
}

// SetHeader replaces any existing header with the same name.
func (r *Response) SetHeader(name, value string) *Response {
	for i, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			r.Headers[i].Value = value
			return r
		}
	}
	return r.AddHeader(name, value)
}

// AddHeader appends a header, allowing repeats.
func (r *Response) AddHeader(name, value string) *Response {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
	return r
}

// HasHeader reports whether a header is present, case-insensitively.
func (r *Response) HasHeader(name string) bool {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}

// Marshal serializes the response. Content-Length is always emitted for
// bodied responses and Connection defaults to close unless KeepAlive is set.
func (r *Response) Marshal() []byte {
	reason := r.Reason
	if reason == "" {
		reason = http.StatusText(r.Status)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, reason)
	for _, h := range r.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	if len(r.Body) > 0 && !r.HasHeader("Content-Length") {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.Body))
	}
	if !r.HasHeader("Connection") {
		if r.KeepAlive {
			b.WriteString("Connection: keep-alive\r\n")
		} else {
			b.WriteString("Connection: close\r\n")
		}
	}
	b.WriteString("\r\n")
	out := append([]byte(b.String()), r.Body...)
	return out
}
