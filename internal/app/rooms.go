package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/studyhub/signal-server/internal/core"
	"github.com/studyhub/signal-server/internal/domain"
)

// Rooms tracks room membership with both forward and reverse indexes.
// Forward: room -> connections (for broadcasts and member listings).
// Reverse: connection -> rooms (for O(1) disconnect cleanup).
// A room exists exactly as long as it has members; absence is emptiness.
type Rooms struct {
	mu     sync.RWMutex
	byRoom map[domain.RoomID]map[core.ConnID]struct{}
	byConn map[core.ConnID]map[domain.RoomID]struct{}
}

// RoomStat is a read-only view for the presence REST surface.
type RoomStat struct {
	Room        domain.RoomID `json:"roomId"`
	MemberCount int           `json:"memberCount"`
}

func NewRooms() *Rooms {
	return &Rooms{
		byRoom: make(map[domain.RoomID]map[core.ConnID]struct{}),
		byConn: make(map[core.ConnID]map[domain.RoomID]struct{}),
	}
}

// Join adds the connection to the room and returns the other members.
// Insertion and the snapshot happen under one lock so two racing joiners
// always observe each other exactly once. Idempotent: a second join
// returns the same set and mutates nothing.
func (t *Rooms) Join(room domain.RoomID, id core.ConnID) []core.ConnID {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.byRoom[room]
	if !ok {
		members = make(map[core.ConnID]struct{})
		t.byRoom[room] = members
	}
	members[id] = struct{}{}

	rooms, ok := t.byConn[id]
	if !ok {
		rooms = make(map[domain.RoomID]struct{})
		t.byConn[id] = rooms
	}
	rooms[room] = struct{}{}

	others := make([]core.ConnID, 0, len(members)-1)
	for m := range members {
		if m != id {
			others = append(others, m)
		}
	}
	log.Info().Str("module", "app.rooms").Str("room", string(room)).Str("conn", string(id)).Int("peers", len(others)).Msg("joined room")
	return others
}

// Leave removes the connection from the room, dropping the room when it
// empties. Reports whether the connection was a member.
func (t *Rooms) Leave(room domain.RoomID, id core.ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(room, id)
}

func (t *Rooms) leaveLocked(room domain.RoomID, id core.ConnID) bool {
	members, ok := t.byRoom[room]
	if !ok {
		return false
	}
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(t.byRoom, room)
	}
	if rooms, ok := t.byConn[id]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(t.byConn, id)
		}
	}
	log.Info().Str("module", "app.rooms").Str("room", string(room)).Str("conn", string(id)).Msg("left room")
	return true
}

// MembersOf returns the current member set; empty for an unknown room.
func (t *Rooms) MembersOf(room domain.RoomID) []core.ConnID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := t.byRoom[room]
	out := make([]core.ConnID, 0, len(members))
	for m := range members {
		out = append(out, m)
	}
	return out
}

func (t *Rooms) Contains(room domain.RoomID, id core.ConnID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byRoom[room][id]
	return ok
}

// RemoveEverywhere pulls the connection out of every room it joined and
// returns the affected room ids so remaining members can be notified.
// Idempotent: a second call returns nothing.
func (t *Rooms) RemoveEverywhere(id core.ConnID) []domain.RoomID {
	t.mu.Lock()
	defer t.mu.Unlock()
	rooms, ok := t.byConn[id]
	if !ok {
		return nil
	}
	affected := make([]domain.RoomID, 0, len(rooms))
	for room := range rooms {
		affected = append(affected, room)
	}
	for _, room := range affected {
		t.leaveLocked(room, id)
	}
	return affected
}

// Stats lists every live room with its member count.
func (t *Rooms) Stats() []RoomStat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RoomStat, 0, len(t.byRoom))
	for room, members := range t.byRoom {
		out = append(out, RoomStat{Room: room, MemberCount: len(members)})
	}
	return out
}
