package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/studyhub/signal-server/internal/core"
	"github.com/studyhub/signal-server/internal/domain"
	"github.com/studyhub/signal-server/internal/roomdir"
)

func newTestCoordinator(dir roomdir.Directory) *Coordinator {
	if dir == nil {
		dir = roomdir.AllowAll()
	}
	return NewCoordinator(NewRegistry(), NewRooms(), dir)
}

func connect(c *Coordinator, id core.ConnID) *fakeConn {
	f := &fakeConn{}
	c.Connect(id, f)
	return f
}

func alice() domain.UserInfo { return domain.UserInfo{ID: "u-alice", Username: "alice"} }
func bob() domain.UserInfo   { return domain.UserInfo{ID: "u-bob", Username: "bob"} }

func TestAnnounceBroadcastsOnlineToOthers(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	a := connect(coord, "a")
	b := connect(coord, "b")
	c := connect(coord, "c")

	au := alice()
	coord.Handle(ctx, "b", Inbound{Kind: KindAnnounce, User: &au})

	for name, conn := range map[string]*fakeConn{"a": a, "c": c} {
		ev, ok := conn.lastOfKind(t, KindUserOnline)
		if !ok {
			t.Fatalf("%s did not receive user-online", name)
		}
		if ev.User == nil || ev.User.Username != "alice" {
			t.Fatalf("%s got wrong user-online: %#v", name, ev)
		}
	}
	if n := b.countKind(t, KindUserOnline); n != 0 {
		t.Fatalf("announcer must not receive its own user-online, got %d", n)
	}
}

func TestAnnounceThenDisconnectWithoutRooms(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	connect(coord, "a")
	watcher := connect(coord, "w")

	au := alice()
	coord.Handle(ctx, "a", Inbound{Kind: KindAnnounce, User: &au})
	coord.Disconnect("a")

	if n := watcher.countKind(t, KindUserOnline); n != 1 {
		t.Fatalf("expected exactly one user-online, got %d", n)
	}
	if n := watcher.countKind(t, KindUserOffline); n != 1 {
		t.Fatalf("expected exactly one user-offline, got %d", n)
	}
	for _, ev := range watcher.events(t) {
		switch ev.Kind {
		case KindUserOnline, KindUserOffline:
		default:
			t.Fatalf("unexpected event %q for a roomless connection", ev.Kind)
		}
	}
}

func TestDoubleDisconnectSingleOfflineBroadcast(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	connect(coord, "a")
	watcher := connect(coord, "w")

	au := alice()
	coord.Handle(ctx, "a", Inbound{Kind: KindAnnounce, User: &au})
	coord.Disconnect("a")
	coord.Disconnect("a")

	if n := watcher.countKind(t, KindUserOffline); n != 1 {
		t.Fatalf("double disconnect broadcast offline %d times", n)
	}
}

func TestJoinNegotiateDisconnectScenario(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	a := connect(coord, "a")
	b := connect(coord, "b")

	coord.Handle(ctx, "a", Inbound{Kind: KindJoinRoom, Room: "study-1"})
	ev, ok := a.lastOfKind(t, KindExistingUsers)
	if !ok {
		t.Fatal("a did not receive existing-users")
	}
	if len(ev.Users) != 0 {
		t.Fatalf("first joiner should see an empty room, got %v", ev.Users)
	}

	bu := bob()
	coord.Handle(ctx, "b", Inbound{Kind: KindJoinRoom, Room: "study-1", User: &bu})
	ev, ok = b.lastOfKind(t, KindExistingUsers)
	if !ok {
		t.Fatal("b did not receive existing-users")
	}
	if len(ev.Users) != 1 || ev.Users[0] != "a" {
		t.Fatalf("b should see [a], got %v", ev.Users)
	}
	joined, ok := a.lastOfKind(t, KindUserJoined)
	if !ok {
		t.Fatal("a did not receive user-joined")
	}
	if joined.ConnectionID != "b" || joined.User == nil || joined.User.Username != "bob" {
		t.Fatalf("unexpected user-joined: %#v", joined)
	}

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	coord.Handle(ctx, "b", Inbound{Kind: KindOffer, Target: "a", Offer: offer})
	neg, ok := a.lastOfKind(t, KindOffer)
	if !ok {
		t.Fatal("a did not receive the negotiation offer")
	}
	if neg.SenderID != "b" {
		t.Fatalf("offer should carry b as sender, got %q", neg.SenderID)
	}
	if string(neg.Offer) != string(offer) {
		t.Fatalf("offer payload mutated: %s", neg.Offer)
	}

	coord.Disconnect("a")
	left, ok := b.lastOfKind(t, KindUserLeft)
	if !ok {
		t.Fatal("b did not receive user-left")
	}
	if left.ConnectionID != "a" {
		t.Fatalf("user-left should name a, got %q", left.ConnectionID)
	}
	members := coord.Rooms.MembersOf("study-1")
	if len(members) != 1 || members[0] != "b" {
		t.Fatalf("room should hold only b, got %v", members)
	}
}

func TestChatRoutingIsolation(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	a := connect(coord, "a")
	b := connect(coord, "b")
	c := connect(coord, "c")
	d := connect(coord, "d")

	au := alice()
	coord.Handle(ctx, "a", Inbound{Kind: KindAnnounce, User: &au})
	coord.Handle(ctx, "a", Inbound{Kind: KindJoinRoom, Room: "r1"})
	coord.Handle(ctx, "b", Inbound{Kind: KindJoinRoom, Room: "r1"})
	coord.Handle(ctx, "c", Inbound{Kind: KindJoinRoom, Room: "r1"})
	coord.Handle(ctx, "d", Inbound{Kind: KindJoinRoom, Room: "r2"})

	coord.Handle(ctx, "a", Inbound{Kind: KindChat, Room: "r1", Message: "hello"})

	for name, conn := range map[string]*fakeConn{"b": b, "c": c} {
		ev, ok := conn.lastOfKind(t, KindChat)
		if !ok {
			t.Fatalf("%s did not receive the chat", name)
		}
		if ev.Message != "hello" {
			t.Fatalf("%s got wrong message %q", name, ev.Message)
		}
		if ev.Sender == nil || ev.Sender.Username != "alice" {
			t.Fatalf("%s chat not tagged with sender identity: %#v", name, ev)
		}
		if ev.Timestamp <= 0 {
			t.Fatalf("%s chat missing server timestamp", name)
		}
	}
	if n := d.countKind(t, KindChat); n != 0 {
		t.Fatal("chat leaked into another room")
	}
	if n := a.countKind(t, KindChat); n != 0 {
		t.Fatal("chat echoed back to sender")
	}
}

func TestChatFromUnannouncedSenderHasNoIdentity(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	connect(coord, "a")
	b := connect(coord, "b")

	coord.Handle(ctx, "a", Inbound{Kind: KindJoinRoom, Room: "r1"})
	coord.Handle(ctx, "b", Inbound{Kind: KindJoinRoom, Room: "r1"})
	coord.Handle(ctx, "a", Inbound{Kind: KindChat, Room: "r1", Message: "hi"})

	ev, ok := b.lastOfKind(t, KindChat)
	if !ok {
		t.Fatal("b did not receive the chat")
	}
	if ev.Sender != nil {
		t.Fatalf("unannounced sender must have no identity, got %#v", ev.Sender)
	}
}

func TestChatOutsideJoinedRoomRejected(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	a := connect(coord, "a")
	b := connect(coord, "b")

	coord.Handle(ctx, "b", Inbound{Kind: KindJoinRoom, Room: "r1"})
	coord.Handle(ctx, "a", Inbound{Kind: KindChat, Room: "r1", Message: "intruder"})

	if _, ok := a.lastOfKind(t, KindError); !ok {
		t.Fatal("chat into a non-joined room should produce an error event")
	}
	if n := b.countKind(t, KindChat); n != 0 {
		t.Fatal("rejected chat must not be delivered")
	}
}

func TestOfferToMissingTargetDroppedSilently(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	a := connect(coord, "a")

	coord.Handle(ctx, "a", Inbound{Kind: KindOffer, Target: "ghost", Offer: json.RawMessage(`{}`)})

	if len(a.events(t)) != 0 {
		t.Fatalf("sender must not be notified of a dropped offer, got %#v", a.events(t))
	}
}

func TestAnswerToDisconnectedCallerDropped(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	connect(coord, "caller")
	b := connect(coord, "b")
	coord.Disconnect("caller")

	coord.Handle(ctx, "b", Inbound{Kind: KindAnswer, Caller: "caller", Answer: json.RawMessage(`{}`)})

	if n := b.countKind(t, KindError); n != 0 {
		t.Fatal("stale caller must be dropped silently, not errored")
	}
}

func TestDisconnectCompleteness(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	connect(coord, "a")
	peers := map[domain.RoomID]*fakeConn{}
	for _, room := range []domain.RoomID{"r1", "r2", "r3"} {
		id := core.ConnID("peer-" + string(room))
		peers[room] = connect(coord, id)
		coord.Handle(ctx, id, Inbound{Kind: KindJoinRoom, Room: room})
		coord.Handle(ctx, "a", Inbound{Kind: KindJoinRoom, Room: room})
	}

	coord.Disconnect("a")

	for room, peer := range peers {
		if containsConn(coord.Rooms.MembersOf(room), "a") {
			t.Fatalf("%s still contains the disconnected connection", room)
		}
		if n := peer.countKind(t, KindUserLeft); n != 1 {
			t.Fatalf("peer in %s received %d user-left events, want 1", room, n)
		}
	}
}

func TestJoinUnknownRoomRejected(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(roomdir.NewStaticDirectory("known"))
	a := connect(coord, "a")

	coord.Handle(ctx, "a", Inbound{Kind: KindJoinRoom, Room: "bogus"})

	ev, ok := a.lastOfKind(t, KindError)
	if !ok {
		t.Fatal("join of an unknown room should produce an error event")
	}
	if ev.Error != "unknown-room" {
		t.Fatalf("unexpected error reason %q", ev.Error)
	}
	if len(coord.Rooms.MembersOf("bogus")) != 0 {
		t.Fatal("rejected join must not mutate membership")
	}

	coord.Handle(ctx, "a", Inbound{Kind: KindJoinRoom, Room: "known"})
	if _, ok := a.lastOfKind(t, KindExistingUsers); !ok {
		t.Fatal("join of a known room should succeed")
	}
}

func TestMediaStateBroadcast(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	a := connect(coord, "a")
	b := connect(coord, "b")

	coord.Handle(ctx, "a", Inbound{Kind: KindJoinRoom, Room: "r1"})
	coord.Handle(ctx, "b", Inbound{Kind: KindJoinRoom, Room: "r1"})

	enabled := false
	coord.Handle(ctx, "a", Inbound{Kind: KindMediaState, Room: "r1", Media: MediaVideo, Enabled: &enabled})

	ev, ok := b.lastOfKind(t, KindMediaState)
	if !ok {
		t.Fatal("b did not receive media-state-change")
	}
	if ev.ConnectionID != "a" || ev.Media != MediaVideo || ev.Enabled {
		t.Fatalf("unexpected media-state-change: %#v", ev)
	}
	if n := a.countKind(t, KindMediaState); n != 0 {
		t.Fatal("toggle echoed back to sender")
	}
}

func TestLeaveRoomIdempotent(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(nil)
	connect(coord, "a")
	b := connect(coord, "b")

	coord.Handle(ctx, "a", Inbound{Kind: KindJoinRoom, Room: "r1"})
	coord.Handle(ctx, "b", Inbound{Kind: KindJoinRoom, Room: "r1"})

	coord.Handle(ctx, "a", Inbound{Kind: KindLeaveRoom, Room: "r1"})
	coord.Handle(ctx, "a", Inbound{Kind: KindLeaveRoom, Room: "r1"})

	if n := b.countKind(t, KindUserLeft); n != 1 {
		t.Fatalf("expected exactly one user-left, got %d", n)
	}
}
