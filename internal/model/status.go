package model

import "time"

// RoomStatus is the read-only projection served to polling clients
type RoomStatus struct {
	RoomID      RoomID     `json:"roomId"`
	PlayerCount int        `json:"playerCount"`
	MaxPlayers  int        `json:"maxPlayers"`
	Players     []string   `json:"players"`
	GameStarted bool       `json:"gameStarted"`
	Ready       bool       `json:"ready"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Version     int64      `json:"version"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Status projects the room into a RoomStatus
func (r *Room) Status() RoomStatus {
	status := RoomStatus{
		RoomID:      r.ID,
		PlayerCount: len(r.Players),
		MaxPlayers:  r.MaxPlayers,
		Players:     r.DisplayNames(),
		GameStarted: r.GameStarted,
		Ready:       r.IsReady(),
		Version:     r.Version,
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		status.StartTime = &t
	}
	if r.EndsAt != nil {
		t := *r.EndsAt
		status.EndsAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		status.EndedAt = &t
	}
	return status
}
