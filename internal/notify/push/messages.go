package push

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/roommatch/internal/model"
)

// Frame is one message on a push channel: {"type": ..., "data": ...}
type Frame struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Server -> client frame types that are not room events
const (
	FrameRoomLeft = "ROOM_LEFT"
	FramePong     = "PONG"
	FrameError    = "ERROR"
)

// JoinFailedMessage is sent when no room could be found
const JoinFailedMessage = "Could not join room"

// PlayerData is a roster entry
type PlayerData struct {
	Username string `json:"username"`
	Address  string `json:"address"`
	JoinedAt int64  `json:"joinedAt"`
}

// RoomData is the roster snapshot sent with ROOM_JOINED and ROOM_UPDATED
type RoomData struct {
	RoomID      string       `json:"roomId"`
	PlayerCount int          `json:"playerCount"`
	MaxPlayers  int          `json:"maxPlayers"`
	Players     []PlayerData `json:"players"`
	GameStarted bool         `json:"gameStarted"`
}

// ReadyData accompanies ROOM_READY
type ReadyData struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// GameStartedData accompanies GAME_STARTED. Times are epoch milliseconds.
type GameStartedData struct {
	RoomID    string `json:"roomId"`
	StartTime int64  `json:"startTime"`
	EndsAt    int64  `json:"endsAt"`
}

// GameEndedData accompanies GAME_ENDED. Times are epoch milliseconds.
type GameEndedData struct {
	RoomID    string `json:"roomId"`
	StartTime int64  `json:"startTime"`
	EndedAt   int64  `json:"endedAt"`
}

// RoomClosedData accompanies ROOM_CLOSED
type RoomClosedData struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// MessageData carries a human-readable message
type MessageData struct {
	Message string `json:"message"`
}

// ErrorData describes a rejected client request
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewFrame encodes data into a frame of the given type
func NewFrame(frameType string, data any) (Frame, error) {
	f := Frame{Type: frameType}
	if data == nil {
		return f, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	f.Data = raw
	return f, nil
}

// NewRoomData builds the roster snapshot of a room
func NewRoomData(room *model.Room) RoomData {
	players := make([]PlayerData, len(room.Players))
	for i, p := range room.Players {
		players[i] = PlayerData{
			Username: p.DisplayName,
			Address:  string(p.ID),
			JoinedAt: p.JoinedAt.UnixMilli(),
		}
	}
	return RoomData{
		RoomID:      string(room.ID),
		PlayerCount: len(room.Players),
		MaxPlayers:  room.MaxPlayers,
		Players:     players,
		GameStarted: room.GameStarted,
	}
}

// EncodeEvent converts a room event into its wire frame
func EncodeEvent(event model.Event) (Frame, error) {
	var data any
	switch event.Type {
	case model.EventRoomJoined, model.EventRoomUpdated:
		if event.Room == nil {
			return Frame{}, fmt.Errorf("%s event has no room snapshot", event.Type)
		}
		data = NewRoomData(event.Room)

	case model.EventRoomReady:
		msg := model.RoomReadyMessage
		if p, ok := event.Payload.(model.RoomReadyPayload); ok && p.Message != "" {
			msg = p.Message
		}
		data = ReadyData{RoomID: string(event.RoomID), Message: msg}

	case model.EventGameStarted:
		p, ok := event.Payload.(model.GameStartedPayload)
		if !ok {
			return Frame{}, fmt.Errorf("%s event has payload %T", event.Type, event.Payload)
		}
		data = GameStartedData{
			RoomID:    string(event.RoomID),
			StartTime: p.StartTime.UnixMilli(),
			EndsAt:    p.EndsAt.UnixMilli(),
		}

	case model.EventGameEnded:
		p, ok := event.Payload.(model.GameEndedPayload)
		if !ok {
			return Frame{}, fmt.Errorf("%s event has payload %T", event.Type, event.Payload)
		}
		data = GameEndedData{
			RoomID:    string(event.RoomID),
			StartTime: p.StartTime.UnixMilli(),
			EndedAt:   p.EndedAt.UnixMilli(),
		}

	case model.EventRoomClosed:
		reason := string(model.CloseReasonEmpty)
		if p, ok := event.Payload.(model.RoomClosedPayload); ok {
			reason = string(p.Reason)
		}
		data = RoomClosedData{RoomID: string(event.RoomID), Reason: reason}

	case model.EventJoinFailed:
		data = MessageData{Message: JoinFailedMessage}

	default:
		return Frame{}, fmt.Errorf("unknown event type %q", event.Type)
	}

	f, err := NewFrame(string(event.Type), data)
	if err != nil {
		return Frame{}, err
	}
	f.ID = event.ID
	return f, nil
}
