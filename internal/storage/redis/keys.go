package redis

import (
	"fmt"

	"github.com/mcoot/roommatch/internal/model"
)

// Key prefix for all matchmaking data
const keyPrefix = "roommatch"

// roomKey returns the Redis key for a Room
func roomKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, id)
}

// activeRoomsIndexKey returns the Redis key for the ZSET of live room ids,
// scored by creation sequence
func activeRoomsIndexKey() string {
	return fmt.Sprintf("%s:idx:active_rooms", keyPrefix)
}

// roomSeqKey returns the Redis key for the room creation counter
func roomSeqKey() string {
	return fmt.Sprintf("%s:seq:rooms", keyPrefix)
}

// playerRoomKey returns the Redis key for the player -> room index
func playerRoomKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player_room:%s", keyPrefix, id)
}

// statusKey returns the Redis key for a polled room status snapshot
func statusKey(id model.RoomID) string {
	return fmt.Sprintf("%s:status:%s", keyPrefix, id)
}

// statusTombstoneKey returns the Redis key holding the version at which a
// room's snapshot was deleted
func statusTombstoneKey(id model.RoomID) string {
	return fmt.Sprintf("%s:status_deleted:%s", keyPrefix, id)
}
