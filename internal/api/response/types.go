package response

import (
	"time"

	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/services/matchmaking"
)

// Player represents a room member in API responses
type Player struct {
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// PlayerFromModel converts a model.Player to a response Player
func PlayerFromModel(p model.Player) Player {
	return Player{
		PlayerID:    string(p.ID),
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
	}
}

// Room represents a room snapshot
type Room struct {
	RoomID      string     `json:"room_id"`
	Players     []Player   `json:"players"`
	PlayerCount int        `json:"player_count"`
	MaxPlayers  int        `json:"max_players"`
	GameStarted bool       `json:"game_started"`
	Ready       bool       `json:"ready"`
	CreatedAt   time.Time  `json:"created_at"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

// RoomFromModel converts a model.Room
func RoomFromModel(r *model.Room) Room {
	players := make([]Player, len(r.Players))
	for i, p := range r.Players {
		players[i] = PlayerFromModel(p)
	}
	return Room{
		RoomID:      string(r.ID),
		Players:     players,
		PlayerCount: len(r.Players),
		MaxPlayers:  r.MaxPlayers,
		GameStarted: r.GameStarted,
		Ready:       r.IsReady(),
		CreatedAt:   r.CreatedAt,
		StartTime:   r.StartedAt,
		EndsAt:      r.EndsAt,
	}
}

// JoinResponse is the response for POST /rooms/join
type JoinResponse struct {
	Room          Room `json:"room"`
	AlreadyMember bool `json:"already_member"`
	Ready         bool `json:"ready"`
}

// JoinResponseFromResult converts a matchmaking.JoinResult
func JoinResponseFromResult(res *matchmaking.JoinResult) JoinResponse {
	return JoinResponse{
		Room:          RoomFromModel(res.Room),
		AlreadyMember: res.AlreadyMember,
		Ready:         res.Room.IsReady(),
	}
}

// RoomStatus is the polled view of a room
type RoomStatus struct {
	RoomID      string     `json:"room_id"`
	PlayerCount int        `json:"player_count"`
	MaxPlayers  int        `json:"max_players"`
	Players     []string   `json:"players"`
	GameStarted bool       `json:"game_started"`
	Ready       bool       `json:"ready"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Version     int64      `json:"version"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RoomStatusFromModel converts a model.RoomStatus
func RoomStatusFromModel(s *model.RoomStatus) RoomStatus {
	players := s.Players
	if players == nil {
		players = []string{}
	}
	return RoomStatus{
		RoomID:      string(s.RoomID),
		PlayerCount: s.PlayerCount,
		MaxPlayers:  s.MaxPlayers,
		Players:     players,
		GameStarted: s.GameStarted,
		Ready:       s.Ready,
		StartTime:   s.StartTime,
		EndsAt:      s.EndsAt,
		EndedAt:     s.EndedAt,
		Version:     s.Version,
		UpdatedAt:   s.UpdatedAt,
	}
}

// StartResponse is the response for POST /rooms/{room_id}/start
type StartResponse struct {
	RoomID    string    `json:"room_id"`
	StartTime time.Time `json:"start_time"`
	EndsAt    time.Time `json:"ends_at"`
}

// StartResponseFromResult converts a matchmaking.StartResult
func StartResponseFromResult(res *matchmaking.StartResult) StartResponse {
	return StartResponse{
		RoomID:    string(res.RoomID),
		StartTime: res.StartTime,
		EndsAt:    res.EndsAt,
	}
}

// Health is the response for GET /health
type Health struct {
	Status   string `json:"status"`
	Delivery string `json:"delivery"`
	Storage  string `json:"storage"`
	Clients  *int   `json:"push_clients,omitempty"`
	// PollIntervalMS is the suggested status polling cadence in poll mode
	PollIntervalMS int64 `json:"poll_interval_ms,omitempty"`
}
