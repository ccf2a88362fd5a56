package model

import (
	"strings"
	"time"
)

// PlayerID is the caller-supplied identity of a player. It is treated as an
// opaque key and never parsed.
type PlayerID string

// Player is a transient room participant
type Player struct {
	ID          PlayerID  `json:"address"`
	DisplayName string    `json:"username"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// NewPlayer validates the caller-supplied identity. Only emptiness is checked;
// length rules for display names are enforced by clients.
func NewPlayer(displayName string, id PlayerID, joinedAt time.Time) (Player, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || strings.TrimSpace(string(id)) == "" {
		return Player{}, ErrInvalidPlayer
	}
	return Player{
		ID:          id,
		DisplayName: displayName,
		JoinedAt:    joinedAt,
	}, nil
}
