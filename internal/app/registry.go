package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/studyhub/signal-server/internal/core"
	"github.com/studyhub/signal-server/internal/domain"
)

type regEntry struct {
	conn core.SignalConnection
	user *domain.UserInfo
}

// Peer is a read-only snapshot of one registered connection.
type Peer struct {
	ID   core.ConnID
	Conn core.SignalConnection
	User *domain.UserInfo
}

// Registry maps live connection ids to their transport endpoint and, once
// announced, their identity. Mutated only on connect/announce/disconnect.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*regEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]*regEntry)}
}

// Register creates an empty entry. Registering an id twice is a no-op:
// the transport layer guarantees id uniqueness, so a duplicate means a
// replayed connect event.
func (r *Registry) Register(id core.ConnID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		log.Warn().Str("module", "app.registry").Str("conn", string(id)).Msg("duplicate register ignored")
		return
	}
	r.conns[id] = &regEntry{conn: conn}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("registered")
}

// Announce attaches identity to an existing connection. Unknown ids are
// logged and dropped, never fatal: the connection may already be gone.
func (r *Registry) Announce(id core.ConnID, user domain.UserInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		log.Warn().Str("module", "app.registry").Str("conn", string(id)).Msg("announce for unknown connection")
		return false
	}
	e.user = &user
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("username", user.Username).Msg("announced")
	return true
}

// Unregister removes and returns the entry. Idempotent: the transport
// may signal disconnect more than once.
func (r *Registry) Unregister(id core.ConnID) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return Peer{}, false
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered")
	return Peer{ID: id, Conn: e.conn, User: e.user}, true
}

// Get returns the transport endpoint for a live connection.
func (r *Registry) Get(id core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// UserOf returns the announced identity, nil if the connection never announced.
func (r *Registry) UserOf(id core.ConnID) (*domain.UserInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.user, true
}

// Peers snapshots every registered connection for fan-out.
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.conns))
	for id, e := range r.conns {
		out = append(out, Peer{ID: id, Conn: e.conn, User: e.user})
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
