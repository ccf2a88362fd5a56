package model

import (
	"slices"
	"time"
)

// RoomID uniquely identifies a room. The format is display-only.
type RoomID string

// DefaultMaxPlayers is the room capacity used when none is configured
const DefaultMaxPlayers = 4

// Room is a bounded roster plus lifecycle state.
// Room has no locking of its own; callers serialize access per room.
type Room struct {
	ID          RoomID     `json:"id"`
	Players     []Player   `json:"players"`
	MaxPlayers  int        `json:"maxPlayers"`
	GameStarted bool       `json:"gameStarted"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReadyAt     *time.Time `json:"readyAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Closed      bool       `json:"closed,omitempty"`
	Version     int64      `json:"version"`
}

// NewRoom creates an empty room
func NewRoom(id RoomID, maxPlayers int, createdAt time.Time) *Room {
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}
	return &Room{
		ID:         id,
		Players:    []Player{},
		MaxPlayers: maxPlayers,
		CreatedAt:  createdAt,
	}
}

// AddPlayer appends p to the roster. The room is left untouched when an error
// is returned. ErrAlreadyInRoom means the player is already a member.
func (r *Room) AddPlayer(p Player) error {
	switch {
	case r.HasPlayer(p.ID):
		return ErrAlreadyInRoom
	case r.Closed:
		return ErrRoomClosed
	case r.GameStarted:
		return ErrRoomAlreadyStarted
	case r.IsFull():
		return ErrRoomFull
	}
	r.Players = append(r.Players, p)
	return nil
}

// RemovePlayer removes the player if present and reports whether it did
func (r *Room) RemovePlayer(id PlayerID) bool {
	idx := slices.IndexFunc(r.Players, func(p Player) bool { return p.ID == id })
	if idx < 0 {
		return false
	}
	r.Players = slices.Delete(r.Players, idx, idx+1)
	return true
}

// HasPlayer reports whether the player is in the roster
func (r *Room) HasPlayer(id PlayerID) bool {
	return slices.ContainsFunc(r.Players, func(p Player) bool { return p.ID == id })
}

// IsFull reports whether the room is at capacity
func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

// IsEmpty reports whether the room has no players
func (r *Room) IsEmpty() bool {
	return len(r.Players) == 0
}

// IsJoinable reports whether a new player could be admitted
func (r *Room) IsJoinable() bool {
	return !r.IsFull() && !r.GameStarted && !r.Closed
}

// IsReady reports whether the room is full and waiting to start
func (r *Room) IsReady() bool {
	return r.IsFull() && !r.GameStarted
}

// IsExpired reports whether the room has outlived ttl
func (r *Room) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}

// MarkStarted starts the game. It returns false if already started.
func (r *Room) MarkStarted(at time.Time) bool {
	if r.GameStarted {
		return false
	}
	r.GameStarted = true
	r.StartedAt = &at
	r.ReadyAt = nil
	return true
}

// ScheduleEnd records when a started game is due to finish
func (r *Room) ScheduleEnd(at time.Time) {
	r.EndsAt = &at
}

// MarkEnded records the end of a started game. It returns false if the game
// was never started or has already been ended.
func (r *Room) MarkEnded(at time.Time) bool {
	if !r.GameStarted || r.EndedAt != nil {
		return false
	}
	r.EndedAt = &at
	return true
}

// Close stops the room from admitting anyone else
func (r *Room) Close() {
	r.Closed = true
}

// PlayerIDs returns the member ids in join order
func (r *Room) PlayerIDs() []PlayerID {
	ids := make([]PlayerID, len(r.Players))
	for i, p := range r.Players {
		ids[i] = p.ID
	}
	return ids
}

// DisplayNames returns the member display names in join order
func (r *Room) DisplayNames() []string {
	names := make([]string, len(r.Players))
	for i, p := range r.Players {
		names[i] = p.DisplayName
	}
	return names
}

// Clone returns a deep copy safe to hand out beyond a lock
func (r *Room) Clone() *Room {
	c := *r
	c.Players = slices.Clone(r.Players)
	if c.Players == nil {
		c.Players = []Player{}
	}
	if r.ReadyAt != nil {
		t := *r.ReadyAt
		c.ReadyAt = &t
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.EndsAt != nil {
		t := *r.EndsAt
		c.EndsAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	return &c
}
