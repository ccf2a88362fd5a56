package storage

import (
	"context"

	"github.com/mcoot/roommatch/internal/model"
)

// UpdateFunc mutates a room in place. Returning an error aborts the update
// and leaves the stored room unchanged.
type UpdateFunc func(room *model.Room) error

// RoomStore persists rooms. Rooms handed out are snapshots; mutate them
// only through UpdateRoom.
type RoomStore interface {
	// CreateRoom registers a new room. Returns model.ErrRoomExists if the id is taken.
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error)
	// ListRooms returns all live rooms in creation order
	ListRooms(ctx context.Context) ([]*model.Room, error)
	// UpdateRoom applies fn atomically with respect to other updates of the same room
	UpdateRoom(ctx context.Context, id model.RoomID, fn UpdateFunc) (*model.Room, error)
	DeleteRoom(ctx context.Context, id model.RoomID) error
}

// PlayerIndex tracks which room each player is in
type PlayerIndex interface {
	SetPlayerRoom(ctx context.Context, playerID model.PlayerID, roomID model.RoomID) error
	// GetPlayerRoom returns model.ErrNotInRoom if the player is not tracked
	GetPlayerRoom(ctx context.Context, playerID model.PlayerID) (model.RoomID, error)
	// ClearPlayerRoom removes the entry only if it still points at roomID
	ClearPlayerRoom(ctx context.Context, playerID model.PlayerID, roomID model.RoomID) error
}

// StatusStore holds the snapshots served to polling clients. Snapshots are
// ordered by room version, so writes that arrive late never roll one back.
type StatusStore interface {
	// SaveRoomStatus stores the snapshot unless a newer version is already
	// stored or the room was deleted at or after this version
	SaveRoomStatus(ctx context.Context, status *model.RoomStatus) error
	GetRoomStatus(ctx context.Context, id model.RoomID) (*model.RoomStatus, error)
	// DeleteRoomStatus removes the snapshot and keeps a tombstone so later
	// saves at or below version are ignored
	DeleteRoomStatus(ctx context.Context, id model.RoomID, version int64) error
}

// Storage defines the interface for data persistence
type Storage interface {
	RoomStore
	PlayerIndex
	StatusStore
}
