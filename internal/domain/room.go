package domain

const MaxRoomIDLen = 64

// RoomID is supplied by the rooms CRUD service and opaque to the relay.
type RoomID string
