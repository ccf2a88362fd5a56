package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Rooms are updated with WATCH/MULTI so concurrent processes sharing one
// Redis still admit players one at a time per room.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, wrapErr(err)
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the connection
func (s *Storage) Ping(ctx context.Context) error {
	return wrapErr(s.client.Ping(ctx).Err())
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	// The record and its index entry are written in one MULTI. A failed
	// create leaves at most a gap in the sequence.
	seq, err := s.client.Incr(ctx, roomSeqKey()).Result()
	if err != nil {
		return wrapErr(err)
	}

	key := roomKey(room.ID)
	indexKey := activeRoomsIndexKey()
	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return model.ErrRoomExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.RoomTTL)
			pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(seq), Member: string(room.ID)})
			pipe.Expire(ctx, indexKey, s.cfg.RoomTTL) // Keep index TTL in sync
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			// EXEC does not roll back on a failed command; drop any half write
			cleanup := s.client.TxPipeline()
			cleanup.Del(ctx, key)
			cleanup.ZRem(ctx, indexKey, string(room.ID))
			_, _ = cleanup.Exec(context.WithoutCancel(ctx))
		}
		return err
	}

	return s.watch(ctx, txf, fmt.Sprintf("room %s", room.ID), key)
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	data, err := s.client.Get(ctx, roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoomNotFound
		}
		return nil, wrapErr(err)
	}
	return decodeRoom(data)
}

func (s *Storage) ListRooms(ctx context.Context) ([]*model.Room, error) {
	indexKey := activeRoomsIndexKey()

	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(ids) == 0 {
		return []*model.Room{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(model.RoomID(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr(err)
	}

	rooms := make([]*model.Room, 0, len(values))
	var expired []any
	for i, v := range values {
		if v == nil {
			// Record expired; drop the dangling index entry
			expired = append(expired, ids[i])
			continue
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		room, err := decodeRoom([]byte(str))
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, indexKey, expired...).Err(); err != nil {
			return nil, wrapErr(err)
		}
	}
	return rooms, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, id model.RoomID, fn storage.UpdateFunc) (*model.Room, error) {
	key := roomKey(id)
	var updated *model.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrRoomNotFound
			}
			return err
		}

		room, err := decodeRoom(data)
		if err != nil {
			return err
		}
		if err := fn(room); err != nil {
			return err
		}

		out, err := json.Marshal(room)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.cfg.RoomTTL)
			pipe.Expire(ctx, activeRoomsIndexKey(), s.cfg.RoomTTL)
			// Members' index entries live as long as the room they point at
			for _, p := range room.Players {
				pipe.Expire(ctx, playerRoomKey(p.ID), s.cfg.RoomTTL)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = room
		return nil
	}

	if err := s.watch(ctx, txf, fmt.Sprintf("room %s", id), key); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, roomKey(id))
	pipe.ZRem(ctx, activeRoomsIndexKey(), string(id))
	_, err := pipe.Exec(ctx)
	return wrapErr(err)
}

// Player index operations

func (s *Storage) SetPlayerRoom(ctx context.Context, playerID model.PlayerID, roomID model.RoomID) error {
	return wrapErr(s.client.Set(ctx, playerRoomKey(playerID), string(roomID), s.cfg.RoomTTL).Err())
}

func (s *Storage) GetPlayerRoom(ctx context.Context, playerID model.PlayerID) (model.RoomID, error) {
	roomID, err := s.client.Get(ctx, playerRoomKey(playerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrNotInRoom
		}
		return "", wrapErr(err)
	}
	return model.RoomID(roomID), nil
}

func (s *Storage) ClearPlayerRoom(ctx context.Context, playerID model.PlayerID, roomID model.RoomID) error {
	key := playerRoomKey(playerID)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if model.RoomID(current) != roomID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	return s.watch(ctx, txf, fmt.Sprintf("player index %s", playerID), key)
}

// Status operations

func (s *Storage) SaveRoomStatus(ctx context.Context, status *model.RoomStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	key := statusKey(status.RoomID)
	tombstone := statusTombstoneKey(status.RoomID)
	txf := func(tx *redis.Tx) error {
		deleted, ok, err := tombstoneVersion(ctx, tx, tombstone)
		if err != nil {
			return err
		}
		if ok && status.Version <= deleted {
			return nil
		}

		current, ok, err := storedStatusVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if ok && current > status.Version {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.StatusTTL)
			return nil
		})
		return err
	}

	return s.watch(ctx, txf, fmt.Sprintf("status %s", status.RoomID), key, tombstone)
}

func (s *Storage) GetRoomStatus(ctx context.Context, id model.RoomID) (*model.RoomStatus, error) {
	data, err := s.client.Get(ctx, statusKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoomNotFound
		}
		return nil, wrapErr(err)
	}

	var status model.RoomStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *Storage) DeleteRoomStatus(ctx context.Context, id model.RoomID, version int64) error {
	key := statusKey(id)
	tombstone := statusTombstoneKey(id)
	txf := func(tx *redis.Tx) error {
		floor := version
		if current, ok, err := storedStatusVersion(ctx, tx, key); err != nil {
			return err
		} else if ok && current > floor {
			floor = current
		}
		if deleted, ok, err := tombstoneVersion(ctx, tx, tombstone); err != nil {
			return err
		} else if ok && deleted > floor {
			floor = deleted
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.Set(ctx, tombstone, floor, s.cfg.StatusTTL)
			return nil
		})
		return err
	}

	return s.watch(ctx, txf, fmt.Sprintf("status %s", id), key, tombstone)
}

// watch runs txf under WATCH on keys, retrying while another client keeps
// modifying them
func (s *Storage) watch(ctx context.Context, txf func(*redis.Tx) error, what string, keys ...string) error {
	for attempt := 0; attempt < s.cfg.MaxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return wrapErr(err)
	}
	return fmt.Errorf("%w: %s still contended after %d attempts", model.ErrStorageConflict, what, s.cfg.MaxTxRetries)
}

func storedStatusVersion(ctx context.Context, tx *redis.Tx, key string) (int64, bool, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var stored struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return 0, false, err
	}
	return stored.Version, true, nil
}

func tombstoneVersion(ctx context.Context, tx *redis.Tx, key string) (int64, bool, error) {
	v, err := tx.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func decodeRoom(data []byte) (*model.Room, error) {
	var room model.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	if room.Players == nil {
		room.Players = []model.Player{}
	}
	return &room, nil
}
