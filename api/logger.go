// File: api/logger.go
// Package api logger contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The logger sink is an external collaborator; the core only depends on this
// interface. Key-value pairs alternate string keys and arbitrary values.

package api

// Logger is the structured logging sink used by the core.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// NopLogger discards everything. Useful in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
