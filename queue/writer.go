// File: queue/writer.go
// Package queue producer side: locked append for out-of-process broadcasts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package queue

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Append writes one record to the queue file under an exclusive advisory
// lock. Any process may call this; the server picks the record up on its next
// reactor tick.
func Append(path string, rec Record) error {
	line, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("queue open: %w", err)
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("queue lock: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("queue append: %w", err)
	}
	return nil
}

// Broadcast is the process-scoped convenience producer: it appends a
// broadcast record for ns (room == "" targets the whole namespace).
func Broadcast(path, event string, data any, ns, room string) error {
	rec := Record{Type: TypeBroadcast, Event: event, Data: data, Namespace: ns}
	if room != "" {
		rec.Room = &room
	}
	return Append(path, rec)
}
