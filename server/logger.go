// File: server/logger.go
// Package server default zerolog-backed api.Logger sink.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/momentics/roomcast-ws/api"
)

// zerologLogger adapts zerolog to the api.Logger contract.
type zerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger returns the default structured sink writing to w.
func NewZerologLogger(w io.Writer) api.Logger {
	return &zerologLogger{l: zerolog.New(w).With().Timestamp().Logger()}
}

func kvFields(ev *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		ev = ev.Interface(key, kv[i+1])
	}
	return ev
}

func (z *zerologLogger) Debug(msg string, kv ...any) { kvFields(z.l.Debug(), kv).Msg(msg) }
func (z *zerologLogger) Info(msg string, kv ...any)  { kvFields(z.l.Info(), kv).Msg(msg) }
func (z *zerologLogger) Warn(msg string, kv ...any)  { kvFields(z.l.Warn(), kv).Msg(msg) }
func (z *zerologLogger) Error(msg string, kv ...any) { kvFields(z.l.Error(), kv).Msg(msg) }
