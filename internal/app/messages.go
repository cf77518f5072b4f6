package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/studyhub/signal-server/internal/core"
	"github.com/studyhub/signal-server/internal/domain"
)

// Kind tags a signaling envelope. The relay routes on the kind and the
// envelope's routing fields; negotiation payloads pass through untouched.
type Kind string

const (
	KindAnnounce   Kind = "announce"
	KindJoinRoom   Kind = "join-room"
	KindOffer      Kind = "negotiation-offer"
	KindAnswer     Kind = "negotiation-answer"
	KindCandidate  Kind = "connectivity-candidate"
	KindChat       Kind = "chat"
	KindMediaState Kind = "media-state-change"
	KindLeaveRoom  Kind = "leave-room"
	KindPing       Kind = "ping"

	KindUserOnline    Kind = "user-online"
	KindUserOffline   Kind = "user-offline"
	KindExistingUsers Kind = "existing-users"
	KindUserJoined    Kind = "user-joined"
	KindUserLeft      Kind = "user-left"
	KindError         Kind = "error"
	KindPong          Kind = "pong"
)

// MediaKind names the toggle a media-state-change carries.
type MediaKind string

const (
	MediaVideo       MediaKind = "video"
	MediaAudio       MediaKind = "audio"
	MediaScreenShare MediaKind = "screen-share"
)

var ErrMalformed = errors.New("malformed message")

// Inbound is the client-to-server envelope. Only the fields for the
// given kind are set; Validate enforces the per-kind routing fields.
type Inbound struct {
	Kind Kind `json:"kind"`

	User   *domain.UserInfo `json:"userInfo,omitempty"`
	Room   domain.RoomID    `json:"roomId,omitempty"`
	Target core.ConnID      `json:"targetConnectionId,omitempty"`
	Caller core.ConnID      `json:"callerConnectionId,omitempty"`

	Offer     json.RawMessage          `json:"offer,omitempty"`
	Answer    json.RawMessage          `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`

	Message string    `json:"message,omitempty"`
	Media   MediaKind `json:"media,omitempty"`
	Enabled *bool     `json:"enabled,omitempty"`
}

// ParseInbound decodes and validates one envelope. Any failure here is
// a MalformedMessage: rejected at the boundary, never partially processed.
func ParseInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := msg.Validate(); err != nil {
		return Inbound{}, err
	}
	return msg, nil
}

func (m Inbound) Validate() error {
	switch m.Kind {
	case KindAnnounce:
		if m.User == nil {
			return fmt.Errorf("%w: announce missing userInfo", ErrMalformed)
		}
		if err := m.User.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case KindJoinRoom, KindLeaveRoom:
		if m.Room == "" {
			return fmt.Errorf("%w: %s missing roomId", ErrMalformed, m.Kind)
		}
		if len(m.Room) > domain.MaxRoomIDLen {
			return fmt.Errorf("%w: roomId too long", ErrMalformed)
		}
	case KindOffer:
		if m.Target == "" || m.Offer == nil {
			return fmt.Errorf("%w: offer missing target/payload", ErrMalformed)
		}
	case KindAnswer:
		if m.Caller == "" || m.Answer == nil {
			return fmt.Errorf("%w: answer missing caller/payload", ErrMalformed)
		}
	case KindCandidate:
		if m.Target == "" || m.Candidate == nil {
			return fmt.Errorf("%w: candidate missing target/payload", ErrMalformed)
		}
	case KindChat:
		if m.Room == "" || m.Message == "" {
			return fmt.Errorf("%w: chat missing roomId/message", ErrMalformed)
		}
	case KindMediaState:
		if m.Room == "" || m.Enabled == nil {
			return fmt.Errorf("%w: media-state-change missing roomId/enabled", ErrMalformed)
		}
		switch m.Media {
		case MediaVideo, MediaAudio, MediaScreenShare:
		default:
			return fmt.Errorf("%w: unknown media kind %q", ErrMalformed, m.Media)
		}
	case KindPing:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
	return nil
}

// Server-to-client events. One struct per kind so the wire shape of each
// event is explicit.

type PresenceEvent struct {
	Kind Kind            `json:"kind"`
	User domain.UserInfo `json:"userInfo"`
}

type ExistingUsersEvent struct {
	Kind  Kind          `json:"kind"`
	Users []core.ConnID `json:"users"`
}

type UserJoinedEvent struct {
	Kind         Kind             `json:"kind"`
	ConnectionID core.ConnID      `json:"connectionId"`
	User         *domain.UserInfo `json:"userInfo,omitempty"`
}

type UserLeftEvent struct {
	Kind         Kind        `json:"kind"`
	ConnectionID core.ConnID `json:"connectionId"`
}

type NegotiationEvent struct {
	Kind      Kind                     `json:"kind"`
	SenderID  core.ConnID              `json:"senderConnectionId"`
	Offer     json.RawMessage          `json:"offer,omitempty"`
	Answer    json.RawMessage          `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

type ChatEvent struct {
	Kind      Kind             `json:"kind"`
	Message   string           `json:"message"`
	Sender    *domain.UserInfo `json:"sender,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

type MediaStateEvent struct {
	Kind         Kind        `json:"kind"`
	ConnectionID core.ConnID `json:"connectionId"`
	Media        MediaKind   `json:"media"`
	Enabled      bool        `json:"enabled"`
}

type ErrorEvent struct {
	Kind  Kind   `json:"kind"`
	Error string `json:"error"`
}

func NewErrorEvent(reason string) ErrorEvent {
	return ErrorEvent{Kind: KindError, Error: reason}
}
