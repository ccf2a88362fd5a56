package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
//
// mu guards the maps only. Each room has its own mutex so updates to
// different rooms never contend. Lock order is mu then entry.mu.
type Storage struct {
	mu sync.RWMutex

	rooms       map[model.RoomID]*roomEntry
	nextSeq     uint64
	playerRooms map[model.PlayerID]model.RoomID
	statuses    map[model.RoomID]*model.RoomStatus
	tombstones  map[model.RoomID]int64
}

type roomEntry struct {
	mu      sync.Mutex
	seq     uint64
	room    *model.Room
	deleted bool
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		rooms:       make(map[model.RoomID]*roomEntry),
		playerRooms: make(map[model.PlayerID]model.RoomID),
		statuses:    make(map[model.RoomID]*model.RoomStatus),
		tombstones:  make(map[model.RoomID]int64),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return model.ErrRoomExists
	}
	s.nextSeq++
	s.rooms[room.ID] = &roomEntry{seq: s.nextSeq, room: room.Clone()}
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, model.ErrRoomNotFound
	}
	return entry.room.Clone(), nil
}

func (s *Storage) ListRooms(ctx context.Context) ([]*model.Room, error) {
	s.mu.RLock()
	entries := make([]*roomEntry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	rooms := make([]*model.Room, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			rooms = append(rooms, e.room.Clone())
		}
		e.mu.Unlock()
	}
	return rooms, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, id model.RoomID, fn storage.UpdateFunc) (*model.Room, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, model.ErrRoomNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, model.ErrRoomNotFound
	}

	working := entry.room.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	entry.room = working
	return working.Clone(), nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[id]
	if !ok {
		return nil
	}
	delete(s.rooms, id)

	entry.mu.Lock()
	entry.deleted = true
	entry.mu.Unlock()
	return nil
}

func (s *Storage) entry(id model.RoomID) (*roomEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[id]
	return e, ok
}

// Player index operations

func (s *Storage) SetPlayerRoom(ctx context.Context, playerID model.PlayerID, roomID model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerRooms[playerID] = roomID
	return nil
}

func (s *Storage) GetPlayerRoom(ctx context.Context, playerID model.PlayerID) (model.RoomID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roomID, ok := s.playerRooms[playerID]
	if !ok {
		return "", model.ErrNotInRoom
	}
	return roomID, nil
}

func (s *Storage) ClearPlayerRoom(ctx context.Context, playerID model.PlayerID, roomID model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playerRooms[playerID] == roomID {
		delete(s.playerRooms, playerID)
	}
	return nil
}

// Status operations

func (s *Storage) SaveRoomStatus(ctx context.Context, status *model.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deleted, ok := s.tombstones[status.RoomID]; ok && status.Version <= deleted {
		return nil
	}
	if current, ok := s.statuses[status.RoomID]; ok && current.Version > status.Version {
		return nil
	}
	c := *status
	s.statuses[status.RoomID] = &c
	return nil
}

func (s *Storage) GetRoomStatus(ctx context.Context, id model.RoomID) (*model.RoomStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[id]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	c := *status
	return &c, nil
}

func (s *Storage) DeleteRoomStatus(ctx context.Context, id model.RoomID, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.statuses[id]; ok && current.Version > version {
		version = current.Version
	}
	if deleted, ok := s.tombstones[id]; ok && deleted > version {
		version = deleted
	}
	s.tombstones[id] = version
	delete(s.statuses, id)
	return nil
}
