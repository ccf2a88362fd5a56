package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/storage"
	"github.com/mcoot/roommatch/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
	mini  *miniredis.Miniredis
	redis *Storage
}

func TestStorageSuite(t *testing.T) {
	s := new(StorageSuite)
	s.NewStorage = func() storage.Storage {
		s.mini = miniredis.RunT(s.T())

		client := redis.NewClient(&redis.Options{
			Addr: s.mini.Addr(),
		})

		cfg := DefaultConfig()
		cfg.RoomTTL = time.Hour
		cfg.StatusTTL = 30 * time.Minute

		s.redis = NewWithClient(client, cfg)
		return s.redis
	}
	suite.Run(t, s)
}

func (s *StorageSuite) TearDownTest() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StorageSuite) TestRoomRecordLayout() {
	room := model.NewRoom("REAL-AAAAAA", 4, s.Now)
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, room))
	_, err := s.Storage.UpdateRoom(s.Ctx, room.ID, func(r *model.Room) error {
		return r.AddPlayer(model.Player{ID: "0xA", DisplayName: "alice", JoinedAt: s.Now})
	})
	s.Require().NoError(err)

	raw, err := s.mini.Get("roommatch:room:REAL-AAAAAA")
	s.Require().NoError(err)

	var record map[string]any
	s.Require().NoError(json.Unmarshal([]byte(raw), &record))
	s.Equal("REAL-AAAAAA", record["id"])
	s.EqualValues(4, record["maxPlayers"])
	s.Equal(false, record["gameStarted"])
	s.Contains(record, "createdAt")

	players, ok := record["players"].([]any)
	s.Require().True(ok)
	s.Require().Len(players, 1)
	p := players[0].(map[string]any)
	s.Equal("alice", p["username"])
	s.Equal("0xA", p["address"])
	s.Contains(p, "joinedAt")

	members, err := s.mini.ZMembers(activeRoomsIndexKey())
	s.Require().NoError(err)
	s.Equal([]string{"REAL-AAAAAA"}, members)
}

func (s *StorageSuite) TestRoomTTLRefreshedOnWrite() {
	room := model.NewRoom("REAL-AAAAAA", 4, s.Now)
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, room))
	s.Equal(time.Hour, s.mini.TTL(roomKey(room.ID)))

	s.mini.FastForward(40 * time.Minute)
	s.True(s.mini.TTL(roomKey(room.ID)) < time.Hour)

	_, err := s.Storage.UpdateRoom(s.Ctx, room.ID, func(r *model.Room) error { return nil })
	s.Require().NoError(err)
	s.Equal(time.Hour, s.mini.TTL(roomKey(room.ID)), "write should refresh the TTL")
	s.Equal(time.Hour, s.mini.TTL(activeRoomsIndexKey()))
}

func (s *StorageSuite) TestListRoomsPrunesExpiredRecords() {
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, model.NewRoom("REAL-AAAAAA", 4, s.Now)))
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, model.NewRoom("REAL-BBBBBB", 4, s.Now)))

	// Simulate the record expiring while its index entry survives
	s.mini.Del(roomKey("REAL-AAAAAA"))

	rooms, err := s.Storage.ListRooms(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(rooms, 1)
	s.Equal(model.RoomID("REAL-BBBBBB"), rooms[0].ID)

	members, err := s.mini.ZMembers(activeRoomsIndexKey())
	s.Require().NoError(err)
	s.Equal([]string{"REAL-BBBBBB"}, members)
}

func (s *StorageSuite) TestStatusTTL() {
	s.Require().NoError(s.Storage.SaveRoomStatus(s.Ctx, &model.RoomStatus{RoomID: "REAL-AAAAAA"}))
	s.Equal(30*time.Minute, s.mini.TTL(statusKey("REAL-AAAAAA")))
}

func (s *StorageSuite) TestPlayerIndexTTL() {
	s.Require().NoError(s.Storage.SetPlayerRoom(s.Ctx, "0xA", "REAL-AAAAAA"))
	s.True(s.mini.TTL(playerRoomKey("0xA")) > 0)
}

func (s *StorageSuite) TestPlayerIndexTTLFollowsRoomWrites() {
	room := model.NewRoom("REAL-AAAAAA", 4, s.Now)
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, room))
	_, err := s.Storage.UpdateRoom(s.Ctx, room.ID, func(r *model.Room) error {
		return r.AddPlayer(model.Player{ID: "0xA", DisplayName: "alice", JoinedAt: s.Now})
	})
	s.Require().NoError(err)
	s.Require().NoError(s.Storage.SetPlayerRoom(s.Ctx, "0xA", room.ID))

	s.mini.FastForward(40 * time.Minute)
	_, err = s.Storage.UpdateRoom(s.Ctx, room.ID, func(r *model.Room) error {
		return r.AddPlayer(model.Player{ID: "0xB", DisplayName: "bob", JoinedAt: s.Now})
	})
	s.Require().NoError(err)
	s.Require().NoError(s.Storage.SetPlayerRoom(s.Ctx, "0xB", room.ID))
	s.Equal(time.Hour, s.mini.TTL(playerRoomKey("0xA")))

	s.mini.FastForward(30 * time.Minute)
	roomID, err := s.Storage.GetPlayerRoom(s.Ctx, "0xA")
	s.Require().NoError(err, "index entry must live as long as the room")
	s.Equal(room.ID, roomID)
}

func (s *StorageSuite) TestCreateRoomLeavesNothingWhenSequenceFails() {
	s.Require().NoError(s.mini.Set(roomSeqKey(), "not-a-number"))

	err := s.Storage.CreateRoom(s.Ctx, model.NewRoom("REAL-AAAAAA", 4, s.Now))
	s.Require().Error(err)
	s.False(s.mini.Exists(roomKey("REAL-AAAAAA")), "no record without an index entry")
	s.False(s.mini.Exists(activeRoomsIndexKey()))

	s.mini.Del(roomSeqKey())
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, model.NewRoom("REAL-AAAAAA", 4, s.Now)))
	rooms, err := s.Storage.ListRooms(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(rooms, 1)
	s.Equal(model.RoomID("REAL-AAAAAA"), rooms[0].ID)
}

func (s *StorageSuite) TestCreateRoomDuplicateKeepsIndexOrder() {
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, model.NewRoom("REAL-AAAAAA", 4, s.Now)))
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, model.NewRoom("REAL-BBBBBB", 4, s.Now)))

	err := s.Storage.CreateRoom(s.Ctx, model.NewRoom("REAL-AAAAAA", 4, s.Now))
	s.ErrorIs(err, model.ErrRoomExists)

	members, err := s.mini.ZMembers(activeRoomsIndexKey())
	s.Require().NoError(err)
	s.Equal([]string{"REAL-AAAAAA", "REAL-BBBBBB"}, members)
}

func (s *StorageSuite) TestStatusTombstoneTTL() {
	s.Require().NoError(s.Storage.DeleteRoomStatus(s.Ctx, "REAL-AAAAAA", 3))
	s.Equal(30*time.Minute, s.mini.TTL(statusTombstoneKey("REAL-AAAAAA")))
}

func (s *StorageSuite) TestDeadlineSurfacesAsStorageTimeout() {
	ctx, cancel := context.WithDeadline(s.Ctx, time.Now().Add(-time.Second))
	defer cancel()

	err := s.Storage.SaveRoomStatus(ctx, &model.RoomStatus{RoomID: "REAL-AAAAAA"})
	s.ErrorIs(err, model.ErrStorageTimeout)

	_, err = s.Storage.GetRoom(ctx, "REAL-AAAAAA")
	s.ErrorIs(err, model.ErrStorageTimeout)
}

func (s *StorageSuite) TestServerErrorIsNotTimeout() {
	s.mini.SetError("ERR simulated failure")
	defer s.mini.SetError("")

	_, err := s.Storage.GetRoom(s.Ctx, "REAL-AAAAAA")
	s.Require().Error(err)
	s.NotErrorIs(err, model.ErrStorageTimeout)
	s.NotErrorIs(err, model.ErrRoomNotFound)
}
