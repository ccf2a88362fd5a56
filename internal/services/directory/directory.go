package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/dependencies/random"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/storage"
)

const (
	// RoomCodeLength is the length of the random part of a room id
	RoomCodeLength = 6
	// RoomCodeAlphabet is the characters used in room ids (avoid confusing chars)
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxIDAttempts = 16
)

var errRoomOccupied = errors.New("room is occupied")

// ExpiryPolicy decides what happens to rooms older than the TTL
type ExpiryPolicy string

const (
	// ExpireEmptyOnly removes expired rooms only once nobody is left in them
	ExpireEmptyOnly ExpiryPolicy = "empty_only"
	// ExpireEvict also closes expired rooms that still have members
	ExpireEvict ExpiryPolicy = "evict"
)

// ParseExpiryPolicy parses a configured policy name
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch ExpiryPolicy(s) {
	case ExpireEmptyOnly, ExpireEvict:
		return ExpiryPolicy(s), nil
	case "":
		return ExpireEmptyOnly, nil
	}
	return "", fmt.Errorf("unknown expiry policy %q", s)
}

// Config holds directory settings
type Config struct {
	MaxPlayers   int
	RoomTTL      time.Duration
	RoomIDPrefix string
	ExpiryPolicy ExpiryPolicy
}

// DefaultConfig returns the reference deployment settings
func DefaultConfig() Config {
	return Config{
		MaxPlayers:   model.DefaultMaxPlayers,
		RoomTTL:      10 * time.Minute,
		RoomIDPrefix: "REAL-",
		ExpiryPolicy: ExpireEmptyOnly,
	}
}

// SweptRoom describes a room removed by SweepExpired
type SweptRoom struct {
	// Room is the last snapshot before deletion
	Room *model.Room
	// Evicted is true when members were still present
	Evicted bool
}

// Directory owns the set of live rooms
type Directory struct {
	store  storage.RoomStore
	clock  clock.Clock
	random random.Random
	cfg    Config
	logger *slog.Logger
}

// New creates a Directory
func New(
	store storage.RoomStore,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Directory {
	return &Directory{
		store:  store,
		clock:  clock,
		random: random,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "room-directory")),
	}
}

// Config returns the directory settings
func (d *Directory) Config() Config {
	return d.cfg
}

// FindJoinableRoom returns the oldest room that can still admit a player,
// or nil if there is none
func (d *Directory) FindJoinableRoom(ctx context.Context) (*model.Room, error) {
	rooms, err := d.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	now := d.clock.Now()
	for _, room := range rooms {
		if !room.IsJoinable() {
			continue
		}
		if d.cfg.ExpiryPolicy == ExpireEvict && room.IsExpired(now, d.cfg.RoomTTL) {
			continue
		}
		return room, nil
	}
	return nil, nil
}

// CreateRoom allocates and registers a new empty room
func (d *Directory) CreateRoom(ctx context.Context) (*model.Room, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := model.RoomID(d.cfg.RoomIDPrefix + d.random.String(RoomCodeLength, RoomCodeAlphabet))
		room := model.NewRoom(id, d.cfg.MaxPlayers, d.clock.Now())

		err := d.store.CreateRoom(ctx, room)
		if errors.Is(err, model.ErrRoomExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		d.logger.Info("room created",
			slog.String("room_id", string(id)),
			slog.Int("max_players", room.MaxPlayers),
		)
		return room, nil
	}
	return nil, fmt.Errorf("could not allocate a unique room id after %d attempts", maxIDAttempts)
}

// FindOrCreateRoom returns the oldest joinable room, creating one if needed
func (d *Directory) FindOrCreateRoom(ctx context.Context) (*model.Room, error) {
	room, err := d.FindJoinableRoom(ctx)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return room, nil
	}
	return d.CreateRoom(ctx)
}

// GetRoom returns a snapshot of the room
func (d *Directory) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	return d.store.GetRoom(ctx, id)
}

// ListRooms returns snapshots of all live rooms in creation order
func (d *Directory) ListRooms(ctx context.Context) ([]*model.Room, error) {
	return d.store.ListRooms(ctx)
}

// UpdateRoom applies fn to the room under its per-room serialization and
// bumps the room version when fn succeeds
func (d *Directory) UpdateRoom(ctx context.Context, id model.RoomID, fn storage.UpdateFunc) (*model.Room, error) {
	return d.store.UpdateRoom(ctx, id, func(room *model.Room) error {
		if err := fn(room); err != nil {
			return err
		}
		room.Version++
		return nil
	})
}

// DeleteRoom unregisters the room unconditionally
func (d *Directory) DeleteRoom(ctx context.Context, id model.RoomID) error {
	if err := d.store.DeleteRoom(ctx, id); err != nil {
		return err
	}
	d.logger.Info("room deleted", slog.String("room_id", string(id)))
	return nil
}

// SweepExpired removes rooms that outlived the TTL according to the expiry
// policy. Closed leftovers are removed regardless of age.
func (d *Directory) SweepExpired(ctx context.Context, now time.Time) ([]SweptRoom, error) {
	rooms, err := d.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	var swept []SweptRoom
	for _, room := range rooms {
		expired := room.IsExpired(now, d.cfg.RoomTTL)
		evict := expired && d.cfg.ExpiryPolicy == ExpireEvict
		if !evict && !(room.IsEmpty() && (expired || room.Closed)) {
			continue
		}

		// Re-check under the room's serialization so a concurrent join is
		// never deleted along with the room
		closed, err := d.UpdateRoom(ctx, room.ID, func(r *model.Room) error {
			if !r.IsEmpty() && !evict {
				return errRoomOccupied
			}
			r.Close()
			return nil
		})
		if errors.Is(err, model.ErrRoomNotFound) || errors.Is(err, errRoomOccupied) {
			continue
		}
		if err != nil {
			return swept, err
		}
		if err := d.store.DeleteRoom(ctx, room.ID); err != nil {
			return swept, err
		}
		swept = append(swept, SweptRoom{Room: closed, Evicted: !closed.IsEmpty()})
	}

	if len(swept) > 0 {
		d.logger.Info("swept expired rooms",
			slog.Int("count", len(swept)),
			slog.String("policy", string(d.cfg.ExpiryPolicy)),
		)
	}
	return swept, nil
}
