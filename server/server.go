// File: server/server.go
// Package server facade: construction, accessors and the api.Core operations
// exposed to handlers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every Core method runs on the reactor goroutine; Post is the only entry
// safe from other goroutines. Client state, the namespace index and all
// write buffers are reactor-owned.

package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	fifo "github.com/eapache/queue"

	"github.com/momentics/roomcast-ws/api"
	"github.com/momentics/roomcast-ws/internal/conn"
	"github.com/momentics/roomcast-ws/protocol"
	"github.com/momentics/roomcast-ws/queue"
	"github.com/momentics/roomcast-ws/reactor"
	"github.com/momentics/roomcast-ws/rooms"
	"github.com/momentics/roomcast-ws/router"
)

// Stats is a snapshot of the server counters.
type Stats struct {
	Accepted    uint64
	Active      int
	MessagesIn  uint64
	MessagesOut uint64
	Broadcasts  uint64
}

// Server is the roomcast-ws facade.
type Server struct {
	cfg *Config
	log api.Logger
	rt  *router.Router
	idx *rooms.Index

	rx        reactor.Reactor
	listenFD  int
	boundPort int
	bound     bool
	running   atomic.Bool

	clients map[api.ClientID]*conn.Client
	byFD    map[int]*conn.Client
	nextID  api.ClientID

	qreader *queue.Reader

	// Trampoline: closures posted from other goroutines, drained each tick.
	opsMu sync.Mutex
	ops   *fifo.Queue
	wakeR int
	wakeW int

	shuttingDown bool
	drainUntil   time.Time

	accepted    uint64
	active      int64
	messagesIn  uint64
	messagesOut uint64
	broadcasts  uint64
}

// NewServer builds the facade. cfg may be nil for defaults.
func NewServer(cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:      cfg,
		log:      NewZerologLogger(os.Stderr),
		rt:       router.New(),
		idx:      rooms.NewIndex(),
		clients:  make(map[api.ClientID]*conn.Client),
		byFD:     make(map[int]*conn.Client),
		ops:      fifo.New(),
		listenFD: -1,
		wakeR:    -1,
		wakeW:    -1,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router exposes the routing tables for registration before Run.
func (s *Server) Router() *router.Router { return s.rt }

// Rooms exposes the namespace/room index. Reactor-owned; handlers only.
func (s *Server) Rooms() *rooms.Index { return s.idx }

// Logger returns the configured sink.
func (s *Server) Logger() api.Logger { return s.log }

// Config returns the active configuration.
func (s *Server) Config() *Config { return s.cfg }

// Stats snapshots the server counters. Safe from any goroutine.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted:    atomic.LoadUint64(&s.accepted),
		Active:      int(atomic.LoadInt64(&s.active)),
		MessagesIn:  atomic.LoadUint64(&s.messagesIn),
		MessagesOut: atomic.LoadUint64(&s.messagesOut),
		Broadcasts:  atomic.LoadUint64(&s.broadcasts),
	}
}

// Addr reports the bound listen address, useful with Port 0.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.boundPort)
}

// Post schedules fn on the reactor goroutine. Safe from any goroutine.
func (s *Server) Post(fn func()) {
	s.opsMu.Lock()
	s.ops.Add(fn)
	w := s.wakeW
	s.opsMu.Unlock()
	if w >= 0 {
		wakePipe(w)
	}
}

// drainOps runs every posted closure. Reactor goroutine only.
func (s *Server) drainOps() {
	for {
		s.opsMu.Lock()
		if s.ops.Length() == 0 {
			s.opsMu.Unlock()
			return
		}
		fn := s.ops.Remove().(func())
		s.opsMu.Unlock()
		fn()
	}
}

// wsClient resolves id to an open upgraded client. A client draining its
// close frame is already gone for every operation.
func (s *Server) wsClient(id api.ClientID) (*conn.Client, error) {
	c, ok := s.clients[id]
	if !ok || c.Kind != api.KindWS || c.State() != conn.StateWSOpen {
		return nil, api.ErrUnknownClient
	}
	return c, nil
}

// EncodeEnvelope builds the text frame carrying {event,data}.
func EncodeEnvelope(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(api.Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode envelope %q: %w", event, err)
	}
	return protocol.EncodeFrame(protocol.OpcodeText, true, payload), nil
}

// Send encodes {event,data} and enqueues it to one client.
func (s *Server) Send(id api.ClientID, event string, data any) error {
	c, err := s.wsClient(id)
	if err != nil {
		s.log.Warn("send to unknown client", "client", id, "event", event)
		return err
	}
	frame, err := EncodeEnvelope(event, data)
	if err != nil {
		return err
	}
	return s.enqueueFrame(c, frame)
}

// enqueueFrame queues prebuilt frame bytes and arms write interest.
func (s *Server) enqueueFrame(c *conn.Client, frame []byte) error {
	if err := c.EnqueueOut(frame); err != nil {
		return err
	}
	atomic.AddUint64(&s.messagesOut, 1)
	s.armWrite(c)
	return nil
}

// Broadcast fans an envelope out to ns (room == "" → whole namespace). The
// envelope is encoded once; recipients that are backpressured are skipped
// with a warning, not disconnected.
func (s *Server) Broadcast(event string, data any, ns, room string) error {
	if ns == "" {
		ns = rooms.DefaultNamespace
	}
	frame, err := EncodeEnvelope(event, data)
	if err != nil {
		return err
	}
	atomic.AddUint64(&s.broadcasts, 1)
	for _, id := range s.idx.Snapshot(ns, room) {
		c, err := s.wsClient(id)
		if err != nil {
			continue // left between snapshot and delivery
		}
		if err := s.enqueueFrame(c, frame); err != nil {
			s.log.Warn("broadcast recipient skipped", "client", id, "event", event, "err", err)
		}
	}
	return nil
}

// JoinNamespace moves a client into ns.
func (s *Server) JoinNamespace(id api.ClientID, ns string) error {
	if _, err := s.wsClient(id); err != nil {
		return err
	}
	if !strings.HasPrefix(ns, "/") {
		return fmt.Errorf("%w: namespace %q must start with '/'", api.ErrConfiguration, ns)
	}
	s.idx.JoinNamespace(id, ns)
	return nil
}

// JoinRoom adds the client to a room, joining ns first when needed.
func (s *Server) JoinRoom(id api.ClientID, room, ns string) error {
	if _, err := s.wsClient(id); err != nil {
		return err
	}
	if ns == "" {
		ns = rooms.DefaultNamespace
	}
	if !strings.HasPrefix(ns, "/") {
		return fmt.Errorf("%w: namespace %q must start with '/'", api.ErrConfiguration, ns)
	}
	s.idx.JoinRoom(id, room, ns)
	return nil
}

// LeaveRoom removes the client from one room of its namespace.
func (s *Server) LeaveRoom(id api.ClientID, room string) error {
	if _, err := s.wsClient(id); err != nil {
		return err
	}
	s.idx.LeaveRoom(id, room)
	return nil
}

// Disconnect closes a client after flushing a close frame. Membership drops
// immediately: while the socket drains the close frame the id is already
// invisible to broadcasts and room snapshots. Idempotent: a second call on
// the same id reports ErrUnknownClient without side effects.
func (s *Server) Disconnect(id api.ClientID) error {
	c, ok := s.clients[id]
	if !ok || c.State() == conn.StateClosed {
		s.log.Warn("disconnect of unknown client", "client", id)
		return api.ErrUnknownClient
	}
	if c.Kind == api.KindWS {
		if c.State() != conn.StateWSOpen {
			return api.ErrUnknownClient
		}
		c.QueueClose(protocol.CloseNormal, "")
		s.idx.Remove(id)
		s.armWrite(c)
		return nil
	}
	s.destroyClient(c, "disconnected")
	return nil
}

// ClientData reads one key of the client attribute bag.
func (s *Server) ClientData(id api.ClientID, key string) (any, error) {
	c, ok := s.clients[id]
	if !ok {
		return nil, api.ErrUnknownClient
	}
	return c.Attrs[key], nil
}

// SetClientData writes one key of the client attribute bag.
func (s *Server) SetClientData(id api.ClientID, key string, value any) error {
	c, ok := s.clients[id]
	if !ok {
		return api.ErrUnknownClient
	}
	c.Attrs[key] = value
	return nil
}

// ClientRooms lists the rooms of id; empty, never an error, for none.
func (s *Server) ClientRooms(id api.ClientID) []string { return s.idx.Rooms(id) }

// ClientsInNamespace snapshots the ids currently in ns.
func (s *Server) ClientsInNamespace(ns string) []api.ClientID { return s.idx.Snapshot(ns, "") }

// ClientsInRoom snapshots the ids currently in room of ns.
func (s *Server) ClientsInRoom(room, ns string) []api.ClientID { return s.idx.Snapshot(ns, room) }

// IsClientConnected reports whether id is still live. A WebSocket client
// draining its close frame counts as gone.
func (s *Server) IsClientConnected(id api.ClientID) bool {
	c, ok := s.clients[id]
	return ok && c.State() != conn.StateClosed && c.State() != conn.StateWSClosing
}

// ClientType returns the connection kind for id.
func (s *Server) ClientType(id api.ClientID) api.ConnKind {
	if c, ok := s.clients[id]; ok {
		return c.Kind
	}
	return api.KindUnknown
}

// ClientCount returns the number of live connections.
func (s *Server) ClientCount() int { return len(s.clients) }

var _ api.Core = (*Server)(nil)
var _ conn.Hooks = (*Server)(nil)
