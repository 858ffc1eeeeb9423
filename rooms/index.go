// File: rooms/index.go
// Package rooms maintains the bidirectional client/namespace/room membership
// index used for broadcast fan-out.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The index is the single source of truth for membership: both directions
// store only ids, never back-references. All operations are O(1) amortized.
// The index is reactor-owned; it has no internal locking.

package rooms

import "github.com/momentics/roomcast-ws/api"

// DefaultNamespace is the namespace clients enter right after the upgrade.
const DefaultNamespace = "/"

type member struct {
	ns    string
	rooms map[string]struct{}
}

// Index is the forward ns→room→set and reverse id→(ns, rooms) membership map.
type Index struct {
	forward map[string]map[string]map[api.ClientID]struct{}
	inNS    map[string]map[api.ClientID]struct{}
	reverse map[api.ClientID]*member
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		forward: make(map[string]map[string]map[api.ClientID]struct{}),
		inNS:    make(map[string]map[api.ClientID]struct{}),
		reverse: make(map[api.ClientID]*member),
	}
}

// JoinNamespace moves id into ns. A client belongs to exactly one namespace;
// joining a new one first leaves every room of the old one.
func (x *Index) JoinNamespace(id api.ClientID, ns string) {
	if ns == "" {
		ns = DefaultNamespace
	}
	if m, ok := x.reverse[id]; ok {
		if m.ns == ns {
			return
		}
		x.LeaveAllRooms(id)
		x.dropFromNS(id, m.ns)
	}
	x.reverse[id] = &member{ns: ns, rooms: make(map[string]struct{})}
	set := x.inNS[ns]
	if set == nil {
		set = make(map[api.ClientID]struct{})
		x.inNS[ns] = set
	}
	set[id] = struct{}{}
}

// JoinRoom adds id to room inside ns, joining ns first when needed.
func (x *Index) JoinRoom(id api.ClientID, room, ns string) {
	if ns == "" {
		ns = DefaultNamespace
	}
	m, ok := x.reverse[id]
	if !ok || m.ns != ns {
		x.JoinNamespace(id, ns)
		m = x.reverse[id]
	}
	m.rooms[room] = struct{}{}
	nsRooms := x.forward[ns]
	if nsRooms == nil {
		nsRooms = make(map[string]map[api.ClientID]struct{})
		x.forward[ns] = nsRooms
	}
	set := nsRooms[room]
	if set == nil {
		set = make(map[api.ClientID]struct{})
		nsRooms[room] = set
	}
	set[id] = struct{}{}
}

// LeaveRoom removes id from one room of its namespace. Unknown ids and
// non-member rooms are no-ops.
func (x *Index) LeaveRoom(id api.ClientID, room string) {
	m, ok := x.reverse[id]
	if !ok {
		return
	}
	delete(m.rooms, room)
	x.dropFromRoom(id, m.ns, room)
}

// LeaveAllRooms removes id from every room it holds, keeping it in its
// namespace.
func (x *Index) LeaveAllRooms(id api.ClientID) {
	m, ok := x.reverse[id]
	if !ok {
		return
	}
	for room := range m.rooms {
		x.dropFromRoom(id, m.ns, room)
	}
	m.rooms = make(map[string]struct{})
}

// Remove erases id from the index entirely. Called on disconnect.
func (x *Index) Remove(id api.ClientID) {
	m, ok := x.reverse[id]
	if !ok {
		return
	}
	for room := range m.rooms {
		x.dropFromRoom(id, m.ns, room)
	}
	x.dropFromNS(id, m.ns)
	delete(x.reverse, id)
}

// Namespace returns the namespace of id; ok=false for unknown ids.
func (x *Index) Namespace(id api.ClientID) (string, bool) {
	m, ok := x.reverse[id]
	if !ok {
		return "", false
	}
	return m.ns, true
}

// Rooms lists the rooms of id. Always non-nil, empty for unknown ids.
func (x *Index) Rooms(id api.ClientID) []string {
	m, ok := x.reverse[id]
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(m.rooms))
	for room := range m.rooms {
		out = append(out, room)
	}
	return out
}

// Snapshot copies the target id set: the whole namespace for room == "", one
// room otherwise. Broadcast handlers may join or leave during fan-out, so
// iteration always happens over this copy.
func (x *Index) Snapshot(ns, room string) []api.ClientID {
	if ns == "" {
		ns = DefaultNamespace
	}
	var set map[api.ClientID]struct{}
	if room == "" {
		set = x.inNS[ns]
	} else {
		set = x.forward[ns][room]
	}
	out := make([]api.ClientID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Count returns the number of clients in ns (room == "") or in one room.
func (x *Index) Count(ns, room string) int {
	if ns == "" {
		ns = DefaultNamespace
	}
	if room == "" {
		return len(x.inNS[ns])
	}
	return len(x.forward[ns][room])
}

func (x *Index) dropFromNS(id api.ClientID, ns string) {
	if set := x.inNS[ns]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(x.inNS, ns)
		}
	}
}

func (x *Index) dropFromRoom(id api.ClientID, ns, room string) {
	nsRooms := x.forward[ns]
	if nsRooms == nil {
		return
	}
	if set := nsRooms[room]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(nsRooms, room)
		}
	}
	if len(nsRooms) == 0 {
		delete(x.forward, ns)
	}
}
