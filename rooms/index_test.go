// File: rooms/index_test.go
// Membership index invariants: one namespace per client, clean removal,
// snapshot isolation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package rooms

import (
	"sort"
	"testing"

	"github.com/momentics/roomcast-ws/api"
)

func TestJoinRoomImpliesNamespace(t *testing.T) {
	x := NewIndex()
	x.JoinRoom(1, "lobby", "/chat")

	ns, ok := x.Namespace(1)
	if !ok || ns != "/chat" {
		t.Fatalf("namespace = %q, ok=%v", ns, ok)
	}
	if got := x.Count("/chat", "lobby"); got != 1 {
		t.Errorf("room count = %d, want 1", got)
	}
	if got := x.Count("/chat", ""); got != 1 {
		t.Errorf("namespace count = %d, want 1", got)
	}
}

func TestNamespaceSwitchLeavesRooms(t *testing.T) {
	x := NewIndex()
	x.JoinRoom(1, "a", "/chat")
	x.JoinRoom(1, "b", "/chat")
	x.JoinNamespace(1, "/game")

	if got := x.Rooms(1); len(got) != 0 {
		t.Errorf("rooms after switch = %v, want none", got)
	}
	if got := x.Count("/chat", ""); got != 0 {
		t.Errorf("stale namespace membership: %d", got)
	}
	if got := x.Count("/chat", "a") + x.Count("/chat", "b"); got != 0 {
		t.Errorf("stale room membership: %d", got)
	}
	ns, _ := x.Namespace(1)
	if ns != "/game" {
		t.Errorf("namespace = %q, want /game", ns)
	}
}

func TestRejoinSameNamespaceKeepsRooms(t *testing.T) {
	x := NewIndex()
	x.JoinRoom(1, "a", "/chat")
	x.JoinNamespace(1, "/chat")
	if got := x.Rooms(1); len(got) != 1 || got[0] != "a" {
		t.Errorf("rooms = %v, want [a]", got)
	}
}

func TestRemoveClearsBothDirections(t *testing.T) {
	x := NewIndex()
	x.JoinRoom(1, "a", "/chat")
	x.JoinRoom(2, "a", "/chat")
	x.Remove(1)

	if _, ok := x.Namespace(1); ok {
		t.Error("removed client still has a namespace")
	}
	if got := x.Snapshot("/chat", "a"); len(got) != 1 || got[0] != 2 {
		t.Errorf("room snapshot = %v, want [2]", got)
	}
	// Idempotent.
	x.Remove(1)
	x.Remove(99)
}

func TestEmptySetsPruned(t *testing.T) {
	x := NewIndex()
	x.JoinRoom(1, "a", "/chat")
	x.Remove(1)
	if len(x.forward) != 0 || len(x.inNS) != 0 || len(x.reverse) != 0 {
		t.Errorf("maps not pruned: forward=%d inNS=%d reverse=%d",
			len(x.forward), len(x.inNS), len(x.reverse))
	}
}

func TestLeaveRoomNoops(t *testing.T) {
	x := NewIndex()
	x.LeaveRoom(1, "a") // unknown id
	x.JoinNamespace(1, "/chat")
	x.LeaveRoom(1, "a") // not a member
	if got := x.Count("/chat", ""); got != 1 {
		t.Errorf("namespace membership disturbed: %d", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	x := NewIndex()
	for id := api.ClientID(1); id <= 3; id++ {
		x.JoinRoom(id, "a", "/")
	}
	snap := x.Snapshot("/", "a")
	x.Remove(2)
	if len(snap) != 3 {
		t.Errorf("snapshot mutated by Remove: %v", snap)
	}

	got := x.Snapshot("/", "a")
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("post-remove snapshot = %v, want [1 3]", got)
	}
}

func TestDefaultNamespaceAlias(t *testing.T) {
	x := NewIndex()
	x.JoinNamespace(1, "")
	ns, _ := x.Namespace(1)
	if ns != DefaultNamespace {
		t.Errorf("namespace = %q, want %q", ns, DefaultNamespace)
	}
	if got := x.Snapshot("", ""); len(got) != 1 {
		t.Errorf("empty-ns snapshot = %v", got)
	}
}
