package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/studyhub/signal-server/internal/core"
	"github.com/studyhub/signal-server/internal/domain"
	"github.com/studyhub/signal-server/internal/roomdir"
)

// Coordinator orchestrates the connection lifecycle across the registry,
// the membership table and the relay, so the tables stay consistent
// under interleaved and repeated client events.
//
// Per connection: CONNECTED -> ANNOUNCED -> (joined rooms)* -> DISCONNECTED.
type Coordinator struct {
	Registry  *Registry
	Rooms     *Rooms
	Relay     *Relay
	Presence  *Presence
	Directory roomdir.Directory
}

func NewCoordinator(reg *Registry, rooms *Rooms, dir roomdir.Directory) *Coordinator {
	return &Coordinator{
		Registry:  reg,
		Rooms:     rooms,
		Relay:     NewRelay(reg, rooms),
		Presence:  NewPresence(reg),
		Directory: dir,
	}
}

// Connect registers a fresh transport session.
func (c *Coordinator) Connect(id core.ConnID, conn core.SignalConnection) {
	c.Registry.Register(id, conn)
}

// Disconnect tears a connection down: out of every room first, with one
// user-left per affected room, then out of the registry, with an offline
// broadcast if the connection had announced. Safe to call twice; the
// second call finds nothing to remove and does nothing.
func (c *Coordinator) Disconnect(id core.ConnID) {
	for _, room := range c.Rooms.RemoveEverywhere(id) {
		c.Relay.Broadcast(room, id, UserLeftEvent{Kind: KindUserLeft, ConnectionID: id})
	}
	peer, ok := c.Registry.Unregister(id)
	if !ok {
		return
	}
	if peer.User != nil {
		c.Presence.Offline(id, *peer.User)
	}
}

// Handle dispatches one validated inbound envelope. Every kind the wire
// protocol defines is handled here; ParseInbound already rejected the rest.
func (c *Coordinator) Handle(ctx context.Context, id core.ConnID, msg Inbound) {
	switch msg.Kind {
	case KindAnnounce:
		c.announce(id, *msg.User)
	case KindJoinRoom:
		c.joinRoom(ctx, id, msg.Room, msg.User)
	case KindLeaveRoom:
		c.leaveRoom(id, msg.Room)
	case KindOffer:
		c.Relay.Offer(id, msg.Target, msg.Offer)
	case KindAnswer:
		c.Relay.Answer(id, msg.Caller, msg.Answer)
	case KindCandidate:
		c.Relay.Candidate(id, msg.Target, *msg.Candidate)
	case KindChat:
		if !c.Relay.Chat(id, msg.Room, msg.Message) {
			c.Relay.Unicast(id, NewErrorEvent("unknown-room"))
		}
	case KindMediaState:
		if !c.Relay.MediaState(id, msg.Room, msg.Media, *msg.Enabled) {
			c.Relay.Unicast(id, NewErrorEvent("unknown-room"))
		}
	case KindPing:
		c.Relay.Unicast(id, struct {
			Kind Kind `json:"kind"`
		}{KindPong})
	}
}

func (c *Coordinator) announce(id core.ConnID, user domain.UserInfo) {
	if !c.Registry.Announce(id, user) {
		return
	}
	c.Presence.Online(id, user)
}

// joinRoom validates an unknown room against the directory, inserts the
// sender, tells the existing members, then answers the sender with the
// member list. Insertion happens before the member list is computed, so
// a concurrent joiner can never be missed.
func (c *Coordinator) joinRoom(ctx context.Context, id core.ConnID, room domain.RoomID, user *domain.UserInfo) {
	if len(c.Rooms.MembersOf(room)) == 0 {
		exists, err := c.Directory.Exists(ctx, room)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("room", string(room)).Msg("room lookup failed, rejecting join")
			exists = false
		}
		if !exists {
			c.Relay.Unicast(id, NewErrorEvent("unknown-room"))
			return
		}
	}

	others := c.Rooms.Join(room, id)
	for _, other := range others {
		c.Relay.Unicast(other, UserJoinedEvent{Kind: KindUserJoined, ConnectionID: id, User: user})
	}
	c.Relay.Unicast(id, ExistingUsersEvent{Kind: KindExistingUsers, Users: others})
}

// leaveRoom removes the sender and tells the remaining members. A leave
// for a room the sender is not in does nothing.
func (c *Coordinator) leaveRoom(id core.ConnID, room domain.RoomID) {
	if !c.Rooms.Leave(room, id) {
		return
	}
	c.Relay.Broadcast(room, id, UserLeftEvent{Kind: KindUserLeft, ConnectionID: id})
}
