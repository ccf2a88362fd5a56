package factory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/roommatch/internal/config"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/notify/push"
	"github.com/mcoot/roommatch/internal/services/directory"
	"github.com/mcoot/roommatch/internal/testutil"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp(DeliveryPoll)
	s.ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	s.Require().NoError(s.app.Close())
}

// Test: complete match flow from first join to the game ending
func (s *IntegrationSuite) TestCompleteMatchFlow() {
	s.app.MockRandom.QueueString("MATCH1")

	// Step 1: four players fill a room
	var roomID model.RoomID
	for i := 0; i < 4; i++ {
		res, err := s.app.Service.Join(s.ctx, fmt.Sprintf("player%d", i), model.PlayerID(fmt.Sprintf("0x%d", i)))
		s.Require().NoError(err)
		roomID = res.Room.ID
	}
	s.Equal(model.RoomID("REAL-MATCH1"), roomID)

	// Step 2: pollers see the room ready
	status, err := s.app.Service.GetRoomStatus(s.ctx, roomID)
	s.Require().NoError(err)
	s.True(status.Ready)
	s.Equal(4, status.PlayerCount)

	// Step 3: start the game
	s.app.MockClock.Advance(3 * time.Second)
	started, err := s.app.Service.StartGame(s.ctx, roomID)
	s.Require().NoError(err)

	status, err = s.app.Service.GetRoomStatus(s.ctx, roomID)
	s.Require().NoError(err)
	s.True(status.GameStarted)
	s.False(status.Ready)
	s.True(status.StartTime.Equal(started.StartTime))

	// Step 4: the game ends on its own
	s.app.MockClock.Advance(120 * time.Second)

	status, err = s.app.Service.GetRoomStatus(s.ctx, roomID)
	s.Require().NoError(err)
	s.Require().NotNil(status.EndedAt)
	s.True(status.EndedAt.Equal(started.EndsAt))

	// Step 5: everyone is free to queue again
	for i := 0; i < 4; i++ {
		_, err := s.app.Service.CurrentRoom(s.ctx, model.PlayerID(fmt.Sprintf("0x%d", i)))
		s.ErrorIs(err, model.ErrNotInRoom)
	}
}

// Test: the expiry sweeper purges abandoned rooms
func (s *IntegrationSuite) TestSweeperPurgesAbandonedRooms() {
	room, err := s.app.Directory.CreateRoom(s.ctx)
	s.Require().NoError(err)

	s.app.MockClock.Advance(11 * time.Minute)
	swept, err := s.app.Service.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(swept, 1)
	s.Equal(room.ID, swept[0].Room.ID)

	_, err = s.app.Directory.GetRoom(s.ctx, room.ID)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func TestPushDeliveryWiresRegistry(t *testing.T) {
	app := NewTestApp(DeliveryPush)
	defer app.Close()

	require.NotNil(t, app.Registry)
	assert.Nil(t, app.PollNotifier)

	send := make(chan push.Frame, push.SendBufferSize)
	app.Registry.Register(push.NewClient("c1", "0xA", send, app.MockClock.Now()))

	_, err := app.Service.Join(context.Background(), "alice", "0xA")
	require.NoError(t, err)

	frame := <-send
	assert.Equal(t, "ROOM_JOINED", frame.Type)
	frame = <-send
	assert.Equal(t, "ROOM_UPDATED", frame.Type)
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(Config{StorageType: "etcd"})
	assert.Error(t, err)

	_, err = New(Config{StorageType: StorageTypeRedis})
	assert.Error(t, err)

	_, err = New(Config{Delivery: "smoke-signals"})
	assert.Error(t, err)
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	c := config.Config{
		StorageType:      StorageTypeRedis,
		RedisURL:         "redis://" + mr.Addr(),
		Delivery:         DeliveryPoll,
		MaxPlayers:       2,
		RoomTTL:          20 * time.Minute,
		ExpiryPolicy:     "evict",
		SweepInterval:    time.Minute,
		GameDuration:     30 * time.Second,
		OperationTimeout: time.Second,
		StorageTimeout:   time.Second,
	}
	cfg, err := FromServerConfig(c, testutil.NopLogger())
	require.NoError(t, err)
	assert.Equal(t, directory.ExpireEvict, cfg.Directory.ExpiryPolicy)
	assert.Equal(t, 60*time.Minute, cfg.RedisConfig.RoomTTL)

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	_, err = app.Service.Join(ctx, "alice", "0xA")
	require.NoError(t, err)
	res, err := app.Service.Join(ctx, "bob", "0xB")
	require.NoError(t, err)
	assert.True(t, res.BecameReady)

	status, err := app.Service.GetRoomStatus(ctx, res.Room.ID)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, 2, status.MaxPlayers)
}
