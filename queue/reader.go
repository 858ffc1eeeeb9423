// File: queue/reader.go
// Package queue reader side: offset-tracking, partial-line tolerant drain.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/momentics/roomcast-ws/api"
)

// Reader drains new records from the queue file. It keeps a byte offset so
// each record is seen once, resets on truncation, and consumes a line only
// when it ends with LF.
type Reader struct {
	path   string
	offset int64
	tail   []byte // carried-over partial line
	log    api.Logger
}

// NewReader returns a reader positioned at the start of the file.
func NewReader(path string, log api.Logger) *Reader {
	if log == nil {
		log = api.NopLogger{}
	}
	return &Reader{path: path, log: log}
}

// Poll reads any new complete lines and calls emit for each well-formed
// broadcast record. Malformed lines are logged and skipped. A missing file or
// a busy write lock is not an error; the next tick retries.
func (r *Reader) Poll(emit func(Record)) error {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("queue open: %w", err)
	}
	defer f.Close()

	// Non-blocking shared lock; a producer holding the exclusive lock just
	// postpones this tick's drain.
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return nil
		}
		return fmt.Errorf("queue lock: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("queue stat: %w", err)
	}
	if st.Size() < r.offset {
		// Truncated by an external rotation; start over.
		r.offset = 0
		r.tail = nil
	}
	if st.Size() == r.offset {
		return nil
	}

	chunk := make([]byte, st.Size()-r.offset)
	n, err := f.ReadAt(chunk, r.offset)
	if err != nil && n == 0 {
		return fmt.Errorf("queue read: %w", err)
	}
	r.offset += int64(n)

	data := append(r.tail, chunk[:n]...)
	for {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			break
		}
		line := data[:nl]
		data = data[nl+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			r.log.Warn("queue: skipping malformed record", "err", err)
			continue
		}
		if rec.Type != TypeBroadcast || rec.Event == "" {
			r.log.Warn("queue: skipping unsupported record", "type", rec.Type)
			continue
		}
		emit(rec)
	}
	r.tail = append([]byte(nil), data...)
	return nil
}

// Offset returns the current byte offset, for observability.
func (r *Reader) Offset() int64 { return r.offset }
