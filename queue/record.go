// File: queue/record.go
// Package queue implements the file-backed broadcast queue: external
// producers append JSON-per-line records under an exclusive advisory lock;
// the server drains new lines on every reactor tick.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package queue

import "encoding/json"

// TypeBroadcast is the only record type the reader dispatches.
const TypeBroadcast = "broadcast"

// Record is one queued broadcast request. Room nil targets the whole
// namespace.
type Record struct {
	Type      string  `json:"type"`
	Event     string  `json:"event"`
	Data      any     `json:"data"`
	Namespace string  `json:"namespace"`
	Room      *string `json:"room"`
}

// Marshal encodes the record as one LF-terminated line.
func (r Record) Marshal() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
