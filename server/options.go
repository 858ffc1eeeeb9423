// File: server/options.go
// Package server functional options for the facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/roomcast-ws/api"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger replaces the default zerolog-backed sink.
func WithLogger(log api.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCORS configures the Access-Control-* response headers.
func WithCORS(cors CORSConfig) Option {
	return func(s *Server) { s.cfg.CORS = cors }
}

// WithQueueFile enables the file-backed broadcast queue at path.
func WithQueueFile(path string) Option {
	return func(s *Server) {
		s.cfg.QueueFile = path
		s.cfg.QueueEnabled = path != ""
	}
}

// WithIdleTimeout overrides the idle close deadline.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.cfg.IdleTimeout = d }
}

// WithPingInterval overrides the server ping cadence.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.cfg.PingInterval = d }
}

// WithPingTimeout overrides the pong deadline.
func WithPingTimeout(d time.Duration) Option {
	return func(s *Server) { s.cfg.PingTimeout = d }
}

// WithWriteBufferBytes overrides the per-connection outbound cap.
func WithWriteBufferBytes(n int) Option {
	return func(s *Server) { s.cfg.WriteBufferBytes = n }
}

// WithMessageLimits overrides the frame and message payload caps.
func WithMessageLimits(frame, message int64) Option {
	return func(s *Server) {
		s.cfg.MaxFrameBytes = frame
		s.cfg.MaxMessageBytes = message
	}
}
