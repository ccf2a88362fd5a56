package model

import "time"

// EventType identifies the type of event
type EventType string

const (
	// Room events
	EventRoomJoined  EventType = "ROOM_JOINED"
	EventRoomUpdated EventType = "ROOM_UPDATED"
	EventRoomReady   EventType = "ROOM_READY"
	EventRoomClosed  EventType = "ROOM_CLOSED"
	EventJoinFailed  EventType = "JOIN_FAILED"

	// Game events
	EventGameStarted EventType = "GAME_STARTED"
	EventGameEnded   EventType = "GAME_ENDED"
)

// RoomReadyMessage accompanies the one-off ready signal
const RoomReadyMessage = "Room is full! All players can now start the game."

// CloseReason explains why a room was closed
type CloseReason string

const (
	CloseReasonEmpty   CloseReason = "empty"
	CloseReasonExpired CloseReason = "expired"
)

// Event is a room state transition addressed to a set of players.
// Room holds a snapshot taken after the transition.
type Event struct {
	ID         string
	Type       EventType
	RoomID     RoomID
	Recipients []PlayerID
	Room       *Room
	Timestamp  time.Time
	Payload    any // Type-specific data
}

// RoomReadyPayload contains data for room ready events
type RoomReadyPayload struct {
	Message string
}

// GameStartedPayload contains data for game started events
type GameStartedPayload struct {
	StartTime time.Time
	EndsAt    time.Time
}

// GameEndedPayload contains data for game ended events
type GameEndedPayload struct {
	StartTime time.Time
	EndedAt   time.Time
}

// RoomClosedPayload contains data for room closed events
type RoomClosedPayload struct {
	Reason CloseReason
}
