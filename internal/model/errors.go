package model

import "errors"

// Common errors used across the application
var (
	// Player errors
	ErrInvalidPlayer = errors.New("display name and player id are required")
	ErrNotInRoom     = errors.New("player is not in a room")
	ErrAlreadyInRoom = errors.New("player is already in room")

	// Room errors
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomExists         = errors.New("room already exists")
	ErrRoomFull           = errors.New("room is full")
	ErrRoomAlreadyStarted = errors.New("room has already started")
	ErrRoomClosed         = errors.New("room is closed")
	ErrRoomNotFull        = errors.New("room is not full")

	// Matchmaking errors
	ErrJoinFailed = errors.New("no room available right now")

	// Storage errors (transient, safe to retry)
	ErrStorageTimeout  = errors.New("storage timeout")
	ErrStorageConflict = errors.New("storage conflict")
)

// IsTransient reports whether err is a retryable storage failure
func IsTransient(err error) bool {
	return errors.Is(err, ErrStorageTimeout) || errors.Is(err, ErrStorageConflict)
}
