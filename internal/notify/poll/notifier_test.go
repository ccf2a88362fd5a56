package poll

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/roommatch/internal/dependencies/mocks"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/storage"
	"github.com/mcoot/roommatch/internal/storage/memory"
	"github.com/mcoot/roommatch/internal/storage/redis"
	"github.com/mcoot/roommatch/internal/testutil"
)

type NotifierSuite struct {
	suite.Suite
	mini     *miniredis.Miniredis
	store    storage.StatusStore
	clock    *mocks.MockClock
	notifier *Notifier
	ctx      context.Context
}

func TestNotifierSuite(t *testing.T) {
	suite.Run(t, new(NotifierSuite))
}

func (s *NotifierSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	client := goredis.NewClient(&goredis.Options{Addr: s.mini.Addr()})
	cfg := redis.DefaultConfig()
	cfg.StatusTTL = 10 * time.Minute
	s.store = redis.NewWithClient(client, cfg)

	s.clock = mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s.notifier = New(s.store, s.clock, DefaultConfig(), testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *NotifierSuite) room(players ...string) *model.Room {
	room := model.NewRoom("REAL-AAAAAA", 4, s.clock.Now())
	for _, p := range players {
		s.Require().NoError(room.AddPlayer(model.Player{ID: model.PlayerID(p), DisplayName: p}))
	}
	room.Version = int64(len(players))
	return room
}

func (s *NotifierSuite) event(t model.EventType, room *model.Room, payload any) model.Event {
	return model.Event{Type: t, RoomID: room.ID, Room: room, Recipients: room.PlayerIDs(), Payload: payload}
}

func (s *NotifierSuite) TestRoomUpdatedPersistsSnapshot() {
	room := s.room("alice", "bob")

	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomUpdated, room, nil)))

	status, err := s.notifier.RoomStatus(s.ctx, room.ID)
	s.Require().NoError(err)
	s.Equal(2, status.PlayerCount)
	s.Equal(4, status.MaxPlayers)
	s.Equal([]string{"alice", "bob"}, status.Players)
	s.False(status.GameStarted)
	s.False(status.Ready)
	s.Equal(int64(2), status.Version)
	s.True(status.UpdatedAt.Equal(s.clock.Now()))
}

func (s *NotifierSuite) TestWriteRefreshesTTL() {
	room := s.room("alice")
	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomUpdated, room, nil)))

	s.mini.FastForward(8 * time.Minute)
	s.True(s.mini.TTL("roommatch:status:REAL-AAAAAA") <= 2*time.Minute)

	room = s.room("alice", "bob")
	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomUpdated, room, nil)))
	s.Equal(10*time.Minute, s.mini.TTL("roommatch:status:REAL-AAAAAA"))
}

func (s *NotifierSuite) TestRoomClosedDeletesSnapshot() {
	room := s.room("alice")
	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomUpdated, room, nil)))

	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomClosed, room,
		model.RoomClosedPayload{Reason: model.CloseReasonEmpty})))

	_, err := s.notifier.RoomStatus(s.ctx, room.ID)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *NotifierSuite) TestLateUpdatesNeverRollBackOrResurrect() {
	older := s.room("alice")
	newer := s.room("alice", "bob")

	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomUpdated, newer, nil)))
	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomUpdated, older, nil)))
	status, err := s.notifier.RoomStatus(s.ctx, newer.ID)
	s.Require().NoError(err)
	s.Equal(2, status.PlayerCount)

	closed := s.room()
	closed.Version = 3
	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomClosed, closed,
		model.RoomClosedPayload{Reason: model.CloseReasonEmpty})))
	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomUpdated, newer, nil)))

	_, err = s.notifier.RoomStatus(s.ctx, newer.ID)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *NotifierSuite) TestGameEndedRecordsEndTime() {
	room := s.room("a", "b", "c", "d")
	start := s.clock.Now()
	room.MarkStarted(start)
	room.ScheduleEnd(start.Add(2 * time.Minute))

	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventGameStarted, room,
		model.GameStartedPayload{StartTime: start, EndsAt: start.Add(2 * time.Minute)})))
	status, err := s.notifier.RoomStatus(s.ctx, room.ID)
	s.Require().NoError(err)
	s.True(status.GameStarted)
	s.True(status.StartTime.Equal(start))
	s.True(status.EndsAt.Equal(start.Add(2 * time.Minute)))
	s.Nil(status.EndedAt)

	end := start.Add(2 * time.Minute)
	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventGameEnded, room,
		model.GameEndedPayload{StartTime: start, EndedAt: end})))
	status, err = s.notifier.RoomStatus(s.ctx, room.ID)
	s.Require().NoError(err)
	s.Require().NotNil(status.EndedAt)
	s.True(status.EndedAt.Equal(end))
}

func (s *NotifierSuite) TestCallerOnlyEventsWriteNothing() {
	room := s.room("alice")
	s.Require().NoError(s.notifier.Publish(s.ctx, s.event(model.EventRoomJoined, room, nil)))

	_, err := s.notifier.RoomStatus(s.ctx, room.ID)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *NotifierSuite) TestWriteTimeoutIsSurfaced() {
	ctx, cancel := context.WithDeadline(s.ctx, time.Now().Add(-time.Second))
	defer cancel()

	err := s.notifier.Publish(ctx, s.event(model.EventRoomUpdated, s.room("alice"), nil))
	s.ErrorIs(err, model.ErrStorageTimeout)
}

func TestSlowStoreWriteTimesOut(t *testing.T) {
	store := storage.StatusStore(memory.New())
	n := New(slowStore{store}, mocks.NewMockClock(time.Now()), Config{WriteTimeout: time.Millisecond, ReadTimeout: time.Millisecond}, testutil.NopLogger())

	room := model.NewRoom("REAL-AAAAAA", 4, time.Now())
	err := n.Publish(context.Background(), model.Event{Type: model.EventRoomUpdated, RoomID: room.ID, Room: room})
	require.ErrorIs(t, err, model.ErrStorageTimeout)
	require.True(t, model.IsTransient(err))
}

// slowStore blocks until the context expires
type slowStore struct {
	storage.StatusStore
}

func (s slowStore) SaveRoomStatus(ctx context.Context, status *model.RoomStatus) error {
	<-ctx.Done()
	return ctx.Err()
}
