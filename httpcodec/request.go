// File: httpcodec/request.go
// Package httpcodec implements an incremental HTTP/1.1 request parser and a
// response serializer for reactor-owned sockets.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The parser is cursor-based: callers keep their own accumulation buffer and
// retry after more bytes arrive. net/http.ReadRequest is unusable here because
// it blocks on the reader; the reactor never blocks on a socket.

package httpcodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrNeedMore signals an incomplete request; feed more bytes and retry.
var ErrNeedMore = errors.New("need more data")

// DefaultMaxHeaderBytes bounds the request line plus all headers.
const DefaultMaxHeaderBytes = 8192

// Header is one request or response header with original casing preserved.
type Header struct {
	Name  string
	Value string
}

// Request is a parsed HTTP/1.1 request. After a WebSocket upgrade starts it
// serves as the frozen HandshakeRequest view and must not be mutated.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Proto    string
	Query    map[string][]string
	Headers  []Header
	Body     []byte
	// JSON holds the decoded body when Content-Type is application/json and
	// the body decodes cleanly; otherwise nil and Body keeps the raw bytes.
	JSON any
}

// Header returns the first value of a header, matched case-insensitively.
func (r *Request) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeaderValues returns all values of a header, matched case-insensitively.
func (r *Request) HeaderValues(name string) []string {
	var vals []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			vals = append(vals, h.Value)
		}
	}
	return vals
}

// HeaderContainsToken reports whether a comma-separated header contains the
// token, case-insensitively. Used for Connection/Upgrade checks.
func (r *Request) HeaderContainsToken(name, token string) bool {
	for _, v := range r.HeaderValues(name) {
		for _, p := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}

// ParseRequest parses one request from the front of buf. It returns the
// request and the number of bytes consumed, ErrNeedMore if the request is not
// yet complete, or a parse error for malformed input. maxHeaderBytes <= 0
// selects DefaultMaxHeaderBytes.
func ParseRequest(buf []byte, maxHeaderBytes int) (*Request, int, error) {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	headEnd := bytes.Index(buf, []byte("\r\n\r\n"))
	if headEnd < 0 {
		if len(buf) > maxHeaderBytes {
			return nil, 0, fmt.Errorf("header block exceeds %d bytes", maxHeaderBytes)
		}
		return nil, 0, ErrNeedMore
	}
	if headEnd > maxHeaderBytes {
		return nil, 0, fmt.Errorf("header block exceeds %d bytes", maxHeaderBytes)
	}

	head := buf[:headEnd]
	lines := strings.Split(string(head), "\r\n")
	req, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, 0, err
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, 0, fmt.Errorf("malformed header line %q", line)
		}
		req.Headers = append(req.Headers, Header{Name: name, Value: strings.TrimSpace(value)})
	}

	consumed := headEnd + 4
	if cl := req.Header("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, 0, fmt.Errorf("bad Content-Length %q", cl)
		}
		if len(buf)-consumed < n {
			return nil, 0, ErrNeedMore
		}
		req.Body = append([]byte(nil), buf[consumed:consumed+n]...)
		consumed += n
	}

	if len(req.Body) > 0 && strings.HasPrefix(strings.ToLower(req.Header("Content-Type")), "application/json") {
		var v any
		if json.Unmarshal(req.Body, &v) == nil {
			req.JSON = v
		}
	}
	return req, consumed, nil
}

// parseRequestLine splits "METHOD target HTTP/1.1" and decomposes the target
// into a normalized path and raw query string.
func parseRequestLine(line string) (*Request, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed request line %q", line)
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if method == "" || target == "" || !strings.HasPrefix(proto, "HTTP/1.") {
		return nil, fmt.Errorf("malformed request line %q", line)
	}

	path, rawQuery, _ := strings.Cut(target, "?")
	if frag := strings.IndexByte(rawQuery, '#'); frag >= 0 {
		rawQuery = rawQuery[:frag]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Request{
		Method:   method,
		Path:     path,
		RawQuery: rawQuery,
		Proto:    proto,
		Query:    parseQuery(rawQuery),
	}, nil
}

// parseQuery decodes repeated key=value pairs with URL-unescaping. Pairs that
// fail to unescape are kept verbatim rather than dropped.
func parseQuery(raw string) map[string][]string {
	q := make(map[string][]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if dk, err := url.QueryUnescape(k); err == nil {
			k = dk
		}
		if dv, err := url.QueryUnescape(v); err == nil {
			v = dv
		}
		q[k] = append(q[k], v)
	}
	return q
}
