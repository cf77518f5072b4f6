// Package roomdir looks rooms up in the external rooms CRUD service.
// The relay only asks one question: does this roomId exist?
package roomdir

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/studyhub/signal-server/internal/domain"
)

// Directory answers whether a room id names a real room. An unreachable
// directory is an error, which join handling treats the same as absent.
type Directory interface {
	Exists(ctx context.Context, id domain.RoomID) (bool, error)
}

// HTTPDirectory queries the rooms CRUD service over HTTP.
type HTTPDirectory struct {
	base   string
	client *http.Client
}

func NewHTTPDirectory(base string) *HTTPDirectory {
	return &HTTPDirectory{
		base:   base,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *HTTPDirectory) Exists(ctx context.Context, id domain.RoomID) (bool, error) {
	url := fmt.Sprintf("%s/api/rooms/%s", d.base, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("room lookup request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("room lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("room lookup: unexpected status %d", resp.StatusCode)
	}
}

// StaticDirectory serves dev mode and tests: either a fixed set of
// rooms, or allow-all when no rooms CRUD service is configured.
type StaticDirectory struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]struct{}
	allowAll bool
}

func AllowAll() *StaticDirectory {
	return &StaticDirectory{allowAll: true}
}

func NewStaticDirectory(ids ...domain.RoomID) *StaticDirectory {
	rooms := make(map[domain.RoomID]struct{}, len(ids))
	for _, id := range ids {
		rooms[id] = struct{}{}
	}
	return &StaticDirectory{rooms: rooms}
}

func (d *StaticDirectory) Add(id domain.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rooms == nil {
		d.rooms = make(map[domain.RoomID]struct{})
	}
	d.rooms[id] = struct{}{}
}

func (d *StaticDirectory) Exists(_ context.Context, id domain.RoomID) (bool, error) {
	if d.allowAll {
		return true, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[id]
	return ok, nil
}
