package app

import (
	"github.com/rs/zerolog/log"

	"github.com/studyhub/signal-server/internal/core"
	"github.com/studyhub/signal-server/internal/domain"
)

// Presence fans out online/offline notifications over a snapshot of the
// registry. It keeps no state of its own.
type Presence struct {
	reg *Registry
}

func NewPresence(reg *Registry) *Presence {
	return &Presence{reg: reg}
}

// Online notifies every other registered connection that user announced.
func (p *Presence) Online(origin core.ConnID, user domain.UserInfo) {
	p.fanout(origin, PresenceEvent{Kind: KindUserOnline, User: user})
}

// Offline notifies every other registered connection that user disconnected.
func (p *Presence) Offline(origin core.ConnID, user domain.UserInfo) {
	p.fanout(origin, PresenceEvent{Kind: KindUserOffline, User: user})
}

func (p *Presence) fanout(origin core.ConnID, ev PresenceEvent) {
	frame, ok := encode(ev)
	if !ok {
		return
	}
	sent, dropped := 0, 0
	for _, peer := range p.reg.Peers() {
		if peer.ID == origin {
			continue
		}
		if err := peer.Conn.TrySend(frame); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.presence").Str("kind", string(ev.Kind)).Str("origin", string(origin)).Int("sent", sent).Int("dropped", dropped).Msg("presence fanout")
}
