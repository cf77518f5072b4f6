package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/studyhub/signal-server/internal/core"
	"github.com/studyhub/signal-server/internal/domain"
)

// fakeConn captures frames instead of writing to a socket.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// wireEvent is the union of every outbound shape, for decoding captured frames.
type wireEvent struct {
	Kind         Kind             `json:"kind"`
	ConnectionID core.ConnID      `json:"connectionId"`
	SenderID     core.ConnID      `json:"senderConnectionId"`
	User         *domain.UserInfo `json:"userInfo"`
	Users        []core.ConnID    `json:"users"`
	Offer        json.RawMessage  `json:"offer"`
	Answer       json.RawMessage  `json:"answer"`
	Message      string           `json:"message"`
	Sender       *domain.UserInfo `json:"sender"`
	Timestamp    int64            `json:"timestamp"`
	Media        MediaKind        `json:"media"`
	Enabled      bool             `json:"enabled"`
	Error        string           `json:"error"`
}

func (f *fakeConn) events(t *testing.T) []wireEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wireEvent, 0, len(f.frames))
	for _, fr := range f.frames {
		var ev wireEvent
		if err := json.Unmarshal(fr, &ev); err != nil {
			t.Fatalf("decode captured frame %q: %v", fr, err)
		}
		out = append(out, ev)
	}
	return out
}

func (f *fakeConn) countKind(t *testing.T, k Kind) int {
	t.Helper()
	n := 0
	for _, ev := range f.events(t) {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

func (f *fakeConn) lastOfKind(t *testing.T, k Kind) (wireEvent, bool) {
	t.Helper()
	var found wireEvent
	ok := false
	for _, ev := range f.events(t) {
		if ev.Kind == k {
			found = ev
			ok = true
		}
	}
	return found, ok
}

func containsConn(ids []core.ConnID, id core.ConnID) bool {
	for _, c := range ids {
		if c == id {
			return true
		}
	}
	return false
}
