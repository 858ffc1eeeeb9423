// File: server/config.go
// Package server is the roomcast-ws facade: lifecycle, configuration and the
// operations exposed to handlers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/momentics/roomcast-ws/api"
)

// CORSConfig controls the Access-Control-* response headers. An empty
// AllowedOrigins list disables CORS handling entirely; "*" allows any origin.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	MaxAge           int // seconds
	AllowCredentials bool
}

// Config holds all server-side parameters.
type Config struct {
	Host string
	Port int

	IdleTimeout  time.Duration // close 1000 after total silence
	PingInterval time.Duration // server-initiated ping cadence
	PingTimeout  time.Duration // close 1001 when a pong is overdue

	MaxFrameBytes    int64 // single-frame payload cap
	MaxMessageBytes  int64 // reassembled message cap
	WriteBufferBytes int   // per-connection outbound cap
	MaxHeaderBytes   int   // HTTP request head cap

	AcceptBatch     int           // accepts per reactor tick
	ReadChunkBytes  int           // per-tick per-socket read bound
	WriteChunkBytes int           // per-tick per-socket write bound
	TickInterval    time.Duration // poll timeout; queue and sweep cadence
	ShutdownTimeout time.Duration // drain deadline on Shutdown

	CORS CORSConfig

	QueueFile    string
	QueueEnabled bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:             "0.0.0.0",
		Port:             9000,
		IdleTimeout:      60 * time.Second,
		PingInterval:     25 * time.Second,
		PingTimeout:      10 * time.Second,
		MaxFrameBytes:    2 << 20,
		MaxMessageBytes:  2 << 20,
		WriteBufferBytes: 1 << 20,
		MaxHeaderBytes:   8192,
		AcceptBatch:      64,
		ReadChunkBytes:   64 << 10,
		WriteChunkBytes:  256 << 10,
		TickInterval:     50 * time.Millisecond,
		ShutdownTimeout:  5 * time.Second,
	}
}

// Validate reports configuration problems before Run.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", api.ErrConfiguration, c.Port)
	}
	if c.MaxFrameBytes <= 0 || c.MaxMessageBytes <= 0 {
		return fmt.Errorf("%w: frame/message limits must be positive", api.ErrConfiguration)
	}
	if c.WriteBufferBytes <= 0 {
		return fmt.Errorf("%w: WriteBufferBytes must be positive", api.ErrConfiguration)
	}
	if c.AcceptBatch <= 0 || c.ReadChunkBytes <= 0 || c.WriteChunkBytes <= 0 {
		return fmt.Errorf("%w: per-tick bounds must be positive", api.ErrConfiguration)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: TickInterval must be positive", api.ErrConfiguration)
	}
	if c.QueueEnabled && c.QueueFile == "" {
		return fmt.Errorf("%w: queue enabled without a file path", api.ErrConfiguration)
	}
	return nil
}

// Process exit codes.
const (
	ExitOK      = 0
	ExitBind    = 2
	ExitReactor = 3
)

// ExitCode maps a Run error to the process exit code contract.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, api.ErrServerClosed):
		return ExitOK
	case errors.Is(err, api.ErrBind), errors.Is(err, api.ErrConfiguration):
		return ExitBind
	default:
		return ExitReactor
	}
}
