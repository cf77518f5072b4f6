// Package core holds the contracts shared between the application layer
// and the transport adapters.
package core

// Frame is one encoded signaling message as it travels the wire.
type Frame []byte

// ConnID identifies a live transport session (one per browser tab).
// Assigned at connect time, never reused after disconnect.
type ConnID string

// SignalConnection is the transport endpoint for one client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
