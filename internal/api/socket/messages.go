package socket

import (
	"encoding/json"
	"strings"
)

// Client -> server message types
const (
	MsgJoinRealMatch = "JOIN_REAL_MATCH"
	MsgLeaveRoom     = "LEAVE_ROOM"
	MsgStartGame     = "START_GAME"
	MsgPing          = "PING"
)

// JoinRealMatchData asks to be matched into a room
type JoinRealMatchData struct {
	Username string `json:"username"`
	Address  string `json:"address"`
}

// StartGameData optionally names the room to start
type StartGameData struct {
	RoomID string `json:"roomId,omitempty"`
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (d *JoinRealMatchData) normalize() {
	d.Username = strings.TrimSpace(d.Username)
	d.Address = strings.TrimSpace(d.Address)
}
