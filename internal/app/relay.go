package app

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/studyhub/signal-server/internal/core"
	"github.com/studyhub/signal-server/internal/domain"
)

// Relay routes signaling envelopes by connection id. It never inspects
// payload contents beyond the routing fields: offers, answers and
// candidates pass through exactly as the sender produced them.
//
// Routing is connection-addressed, never user-addressed: one user may
// hold several connections (tabs), and a negotiation handshake belongs
// to a transport session, not to a user.
type Relay struct {
	reg   *Registry
	rooms *Rooms
}

func NewRelay(reg *Registry, rooms *Rooms) *Relay {
	return &Relay{reg: reg, rooms: rooms}
}

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode event")
		return nil, false
	}
	return core.Frame(b), true
}

// Unicast delivers one event to one connection. A missing target is
// dropped silently: it may have disconnected mid-negotiation, and the
// sender retries at the application level if it cares.
func (rl *Relay) Unicast(target core.ConnID, ev any) {
	conn, ok := rl.reg.Get(target)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("target", string(target)).Msg("unicast target gone, dropped")
		return
	}
	frame, ok := encode(ev)
	if !ok {
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Str("module", "app.relay").Str("target", string(target)).Err(err).Msg("unicast dropped")
	}
}

// Broadcast delivers one event to every member of the room except from.
// Members without a live registry entry are stale and skipped.
func (rl *Relay) Broadcast(room domain.RoomID, from core.ConnID, ev any) {
	frame, ok := encode(ev)
	if !ok {
		return
	}
	sent, dropped := 0, 0
	for _, member := range rl.rooms.MembersOf(room) {
		if member == from {
			continue
		}
		conn, ok := rl.reg.Get(member)
		if !ok {
			dropped++
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.relay").Str("room", string(room)).Str("from", string(from)).Int("sent", sent).Int("dropped", dropped).Msg("broadcast")
}

// Offer forwards a negotiation offer to its target, tagged with the
// sender's connection id so the answer can find its way back.
func (rl *Relay) Offer(from, target core.ConnID, offer json.RawMessage) {
	rl.Unicast(target, NegotiationEvent{Kind: KindOffer, SenderID: from, Offer: offer})
}

// Answer forwards a negotiation answer back to the caller that offered.
func (rl *Relay) Answer(from, caller core.ConnID, answer json.RawMessage) {
	rl.Unicast(caller, NegotiationEvent{Kind: KindAnswer, SenderID: from, Answer: answer})
}

// Candidate forwards a connectivity candidate to its target.
func (rl *Relay) Candidate(from, target core.ConnID, cand webrtc.ICECandidateInit) {
	rl.Unicast(target, NegotiationEvent{Kind: KindCandidate, SenderID: from, Candidate: &cand})
}

// Chat broadcasts a chat line to the other members of a room the sender
// belongs to, stamped with the announced sender identity and a server
// timestamp. The sender renders its own line locally; no echo. An
// unannounced sender is relayed with no sender field at all.
func (rl *Relay) Chat(from core.ConnID, room domain.RoomID, message string) bool {
	if !rl.rooms.Contains(room, from) {
		return false
	}
	sender, _ := rl.reg.UserOf(from)
	rl.Broadcast(room, from, ChatEvent{
		Kind:      KindChat,
		Message:   message,
		Sender:    sender,
		Timestamp: time.Now().UnixMilli(),
	})
	return true
}

// MediaState broadcasts a video/audio/screen-share toggle to the other
// members of a room the sender belongs to.
func (rl *Relay) MediaState(from core.ConnID, room domain.RoomID, media MediaKind, enabled bool) bool {
	if !rl.rooms.Contains(room, from) {
		return false
	}
	rl.Broadcast(room, from, MediaStateEvent{
		Kind:         KindMediaState,
		ConnectionID: from,
		Media:        media,
		Enabled:      enabled,
	})
	return true
}
