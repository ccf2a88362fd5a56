package request

import "strings"

// JoinRoomRequest is the request body for joining matchmaking
type JoinRoomRequest struct {
	DisplayName string `json:"display_name"`
	PlayerID    string `json:"player_id"`
}

// LeaveRoomRequest is the request body for leaving the current room
type LeaveRoomRequest struct {
	PlayerID string `json:"player_id"`
}

// Normalize trims surrounding whitespace from the player fields
func (r *JoinRoomRequest) Normalize() {
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.PlayerID = strings.TrimSpace(r.PlayerID)
}
