// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/storage"
)

// Suite runs backend-agnostic storage tests. Embed it and set NewStorage.
type Suite struct {
	suite.Suite
	NewStorage func() storage.Storage

	Storage storage.Storage
	Ctx     context.Context
	Now     time.Time
}

func (s *Suite) SetupTest() {
	s.Storage = s.NewStorage()
	s.Ctx = context.Background()
	s.Now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) newRoom(id string, offset time.Duration) *model.Room {
	room := model.NewRoom(model.RoomID(id), 4, s.Now.Add(offset))
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, room))
	return room
}

func (s *Suite) player(id string) model.Player {
	return model.Player{ID: model.PlayerID(id), DisplayName: "name-" + id, JoinedAt: s.Now}
}

// Room tests

func (s *Suite) TestCreateAndGetRoom() {
	s.newRoom("REAL-AAAAAA", 0)

	room, err := s.Storage.GetRoom(s.Ctx, "REAL-AAAAAA")
	s.Require().NoError(err)
	s.Equal(model.RoomID("REAL-AAAAAA"), room.ID)
	s.Equal(4, room.MaxPlayers)
	s.Empty(room.Players)
	s.True(room.CreatedAt.Equal(s.Now))
}

func (s *Suite) TestCreateRoomDuplicate() {
	s.newRoom("REAL-AAAAAA", 0)

	err := s.Storage.CreateRoom(s.Ctx, model.NewRoom("REAL-AAAAAA", 4, s.Now))
	s.ErrorIs(err, model.ErrRoomExists)
}

func (s *Suite) TestGetRoomNotFound() {
	_, err := s.Storage.GetRoom(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestListRoomsInCreationOrder() {
	// ids deliberately out of lexical order
	s.newRoom("REAL-CCCCCC", 0)
	s.newRoom("REAL-AAAAAA", 0)
	s.newRoom("REAL-BBBBBB", 0)

	rooms, err := s.Storage.ListRooms(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(rooms, 3)
	s.Equal(model.RoomID("REAL-CCCCCC"), rooms[0].ID)
	s.Equal(model.RoomID("REAL-AAAAAA"), rooms[1].ID)
	s.Equal(model.RoomID("REAL-BBBBBB"), rooms[2].ID)
}

func (s *Suite) TestUpdateRoom() {
	s.newRoom("REAL-AAAAAA", 0)

	updated, err := s.Storage.UpdateRoom(s.Ctx, "REAL-AAAAAA", func(r *model.Room) error {
		return r.AddPlayer(s.player("a"))
	})
	s.Require().NoError(err)
	s.Len(updated.Players, 1)

	room, err := s.Storage.GetRoom(s.Ctx, "REAL-AAAAAA")
	s.Require().NoError(err)
	s.Equal([]model.PlayerID{"a"}, room.PlayerIDs())
}

func (s *Suite) TestUpdateRoomAbortLeavesRoomUnchanged() {
	s.newRoom("REAL-AAAAAA", 0)
	abort := errors.New("abort")

	_, err := s.Storage.UpdateRoom(s.Ctx, "REAL-AAAAAA", func(r *model.Room) error {
		_ = r.AddPlayer(s.player("a"))
		return abort
	})
	s.ErrorIs(err, abort)

	room, err := s.Storage.GetRoom(s.Ctx, "REAL-AAAAAA")
	s.Require().NoError(err)
	s.Empty(room.Players)
}

func (s *Suite) TestUpdateRoomNotFound() {
	_, err := s.Storage.UpdateRoom(s.Ctx, "missing", func(r *model.Room) error { return nil })
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestUpdateRoomSerializesConcurrentAdds() {
	s.newRoom("REAL-AAAAAA", 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Storage.UpdateRoom(s.Ctx, "REAL-AAAAAA", func(r *model.Room) error {
				return r.AddPlayer(s.player(fmt.Sprintf("p%d", i)))
			})
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	room, err := s.Storage.GetRoom(s.Ctx, "REAL-AAAAAA")
	s.Require().NoError(err)
	s.Len(room.Players, 4)
	s.Equal(4, admitted)
}

func (s *Suite) TestDeleteRoom() {
	s.newRoom("REAL-AAAAAA", 0)

	s.Require().NoError(s.Storage.DeleteRoom(s.Ctx, "REAL-AAAAAA"))

	_, err := s.Storage.GetRoom(s.Ctx, "REAL-AAAAAA")
	s.ErrorIs(err, model.ErrRoomNotFound)

	rooms, err := s.Storage.ListRooms(s.Ctx)
	s.Require().NoError(err)
	s.Empty(rooms)

	_, err = s.Storage.UpdateRoom(s.Ctx, "REAL-AAAAAA", func(r *model.Room) error { return nil })
	s.ErrorIs(err, model.ErrRoomNotFound)

	// deleting twice is fine
	s.NoError(s.Storage.DeleteRoom(s.Ctx, "REAL-AAAAAA"))
}

// Player index tests

func (s *Suite) TestPlayerIndex() {
	_, err := s.Storage.GetPlayerRoom(s.Ctx, "a")
	s.ErrorIs(err, model.ErrNotInRoom)

	s.Require().NoError(s.Storage.SetPlayerRoom(s.Ctx, "a", "REAL-AAAAAA"))
	roomID, err := s.Storage.GetPlayerRoom(s.Ctx, "a")
	s.Require().NoError(err)
	s.Equal(model.RoomID("REAL-AAAAAA"), roomID)
}

func (s *Suite) TestClearPlayerRoomIsConditional() {
	s.Require().NoError(s.Storage.SetPlayerRoom(s.Ctx, "a", "REAL-BBBBBB"))

	// stale clear for an old room must not remove the newer mapping
	s.Require().NoError(s.Storage.ClearPlayerRoom(s.Ctx, "a", "REAL-AAAAAA"))
	roomID, err := s.Storage.GetPlayerRoom(s.Ctx, "a")
	s.Require().NoError(err)
	s.Equal(model.RoomID("REAL-BBBBBB"), roomID)

	s.Require().NoError(s.Storage.ClearPlayerRoom(s.Ctx, "a", "REAL-BBBBBB"))
	_, err = s.Storage.GetPlayerRoom(s.Ctx, "a")
	s.ErrorIs(err, model.ErrNotInRoom)
}

// Status tests

func (s *Suite) TestRoomStatus() {
	status := &model.RoomStatus{
		RoomID:      "REAL-AAAAAA",
		PlayerCount: 2,
		MaxPlayers:  4,
		Players:     []string{"alice", "bob"},
		Version:     2,
		UpdatedAt:   s.Now,
	}
	s.Require().NoError(s.Storage.SaveRoomStatus(s.Ctx, status))

	got, err := s.Storage.GetRoomStatus(s.Ctx, "REAL-AAAAAA")
	s.Require().NoError(err)
	s.Equal(2, got.PlayerCount)
	s.Equal([]string{"alice", "bob"}, got.Players)
	s.Equal(int64(2), got.Version)

	s.Require().NoError(s.Storage.DeleteRoomStatus(s.Ctx, "REAL-AAAAAA", 2))
	_, err = s.Storage.GetRoomStatus(s.Ctx, "REAL-AAAAAA")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) saveStatus(version int64, players ...string) {
	s.Require().NoError(s.Storage.SaveRoomStatus(s.Ctx, &model.RoomStatus{
		RoomID:      "REAL-AAAAAA",
		PlayerCount: len(players),
		MaxPlayers:  4,
		Players:     players,
		Version:     version,
		UpdatedAt:   s.Now,
	}))
}

func (s *Suite) TestRoomStatusKeepsNewestVersion() {
	s.saveStatus(2, "alice", "bob")
	s.saveStatus(1, "alice")

	got, err := s.Storage.GetRoomStatus(s.Ctx, "REAL-AAAAAA")
	s.Require().NoError(err)
	s.Equal(int64(2), got.Version)
	s.Equal([]string{"alice", "bob"}, got.Players)

	// Same version may be rewritten, newer always lands
	s.saveStatus(2, "alice", "bob")
	s.saveStatus(3, "alice", "bob", "carol")
	got, err = s.Storage.GetRoomStatus(s.Ctx, "REAL-AAAAAA")
	s.Require().NoError(err)
	s.Equal(int64(3), got.Version)
	s.Equal(3, got.PlayerCount)
}

func (s *Suite) TestDeletedRoomStatusIgnoresLateSaves() {
	s.saveStatus(2, "alice", "bob")
	s.Require().NoError(s.Storage.DeleteRoomStatus(s.Ctx, "REAL-AAAAAA", 4))

	s.saveStatus(3, "alice")
	s.saveStatus(4)
	_, err := s.Storage.GetRoomStatus(s.Ctx, "REAL-AAAAAA")
	s.ErrorIs(err, model.ErrRoomNotFound)

	s.saveStatus(5, "dave")
	got, err := s.Storage.GetRoomStatus(s.Ctx, "REAL-AAAAAA")
	s.Require().NoError(err)
	s.Equal(int64(5), got.Version)
}

func (s *Suite) TestDeleteRoomStatusKeepsHighestVersionSeen() {
	s.saveStatus(6, "alice")
	// A close that only knows the room id still fences off what was stored
	s.Require().NoError(s.Storage.DeleteRoomStatus(s.Ctx, "REAL-AAAAAA", 0))

	s.saveStatus(5, "alice", "bob")
	_, err := s.Storage.GetRoomStatus(s.Ctx, "REAL-AAAAAA")
	s.ErrorIs(err, model.ErrRoomNotFound)

	// A lower tombstone never lowers the fence
	s.Require().NoError(s.Storage.DeleteRoomStatus(s.Ctx, "REAL-AAAAAA", 1))
	s.saveStatus(6, "alice")
	_, err = s.Storage.GetRoomStatus(s.Ctx, "REAL-AAAAAA")
	s.ErrorIs(err, model.ErrRoomNotFound)
}
