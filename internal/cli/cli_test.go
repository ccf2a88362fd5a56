package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/roommatch/internal/api"
	"github.com/mcoot/roommatch/internal/config"
	"github.com/mcoot/roommatch/internal/factory"
	"github.com/mcoot/roommatch/internal/model"
)

func startServer(t *testing.T, delivery string) (*factory.TestApp, *httptest.Server) {
	t.Helper()

	app := factory.NewTestApp(delivery)
	server := httptest.NewServer(api.NewRouter(app.RouterConfig(config.Config{PollInterval: 2 * time.Second})))
	t.Cleanup(func() {
		server.Close()
		_ = app.Close()
	})
	return app, server
}

// run executes mmctl with args against server and returns stdout
func run(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server.URL, "--output", "json"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func seed(t *testing.T, app *factory.TestApp, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := app.Service.Join(context.Background(), fmt.Sprintf("seed%d", i), model.PlayerID(fmt.Sprintf("0xS%d", i)))
		require.NoError(t, err)
	}
}

func TestHealthCommand(t *testing.T) {
	_, server := startServer(t, factory.DeliveryPoll)

	out, err := run(t, server, "health")
	require.NoError(t, err)

	var result HealthResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "poll", result.Delivery)
	assert.Equal(t, int64(2000), result.PollIntervalMS)
}

func TestJoinStatusLeave(t *testing.T) {
	app, server := startServer(t, factory.DeliveryPoll)
	app.MockRandom.QueueString("CLI001")

	out, err := run(t, server, "--player", "0xA", "--name", "alice", "join")
	require.NoError(t, err)
	var joined JoinResult
	require.NoError(t, json.Unmarshal([]byte(out), &joined))
	assert.Equal(t, "REAL-CLI001", joined.Room.RoomID)
	assert.Equal(t, 1, joined.Room.PlayerCount)

	out, err = run(t, server, "--player", "0xA", "status")
	require.NoError(t, err)
	var status RoomStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "REAL-CLI001", status.RoomID)
	assert.Equal(t, []string{"alice"}, status.Players)

	out, err = run(t, server, "room", "REAL-CLI001")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 1, status.PlayerCount)

	_, err = run(t, server, "--player", "0xA", "leave")
	require.NoError(t, err)

	_, err = run(t, server, "--player", "0xA", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in a room")
}

func TestJoinRequiresPlayerAndName(t *testing.T) {
	_, server := startServer(t, factory.DeliveryPoll)

	_, err := run(t, server, "--player", "", "--name", "alice", "join")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--player")

	_, err = run(t, server, "--player", "0xA", "--name", "", "join")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--name")
}

func TestStartCommand(t *testing.T) {
	app, server := startServer(t, factory.DeliveryPoll)
	seed(t, app, 3)

	_, err := run(t, server, "--player", "0xA", "--name", "alice", "join")
	require.NoError(t, err)

	out, err := run(t, server, "--player", "0xA", "start")
	require.NoError(t, err)

	var started StartResult
	require.NoError(t, json.Unmarshal([]byte(out), &started))
	assert.True(t, started.StartTime.Equal(app.MockClock.Now()))
	assert.Equal(t, 120*time.Second, started.EndsAt.Sub(started.StartTime))
}

func TestStartCommandRejectsNotFullRoom(t *testing.T) {
	_, server := startServer(t, factory.DeliveryPoll)

	_, err := run(t, server, "--player", "0xA", "--name", "alice", "join")
	require.NoError(t, err)

	_, err = run(t, server, "--player", "0xA", "start")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROOM_NOT_FULL")
}

func TestTextOutput(t *testing.T) {
	_, server := startServer(t, factory.DeliveryPoll)

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--server", server.URL, "--player", "0xA", "--name", "alice", "join"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Joined room REAL-")
	assert.Contains(t, out.String(), "Players (1/4):")
	assert.Contains(t, out.String(), "  - alice (0xA)")
}

func newMatcher(server *httptest.Server, out *bytes.Buffer) *Matcher {
	return &Matcher{
		Client:   NewClient(server.URL, 5*time.Second),
		Out:      NewOutput("text", out),
		Interval: 10 * time.Millisecond,
		Window:   2 * time.Second,
	}
}

func TestMatchReturnsWhenRoomFills(t *testing.T) {
	app, server := startServer(t, factory.DeliveryPoll)
	seed(t, app, 2)

	// Take the last seat once the matcher is in the room
	go func() {
		ctx := context.Background()
		for i := 0; i < 200; i++ {
			if _, err := app.Service.CurrentRoom(ctx, "0xM"); err == nil {
				_, _ = app.Service.Join(ctx, "dave", "0xD")
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	var out bytes.Buffer
	status, err := newMatcher(server, &out).Run(context.Background(), "mallory", "0xM")
	require.NoError(t, err)

	assert.True(t, status.Ready)
	assert.Equal(t, 4, status.PlayerCount)
	assert.Contains(t, out.String(), RoomReadyMessage)
}

func TestMatchReadyOnJoin(t *testing.T) {
	app, server := startServer(t, factory.DeliveryPoll)
	seed(t, app, 3)

	var out bytes.Buffer
	m := newMatcher(server, &out)
	m.Start = true
	status, err := m.Run(context.Background(), "mallory", "0xM")
	require.NoError(t, err)

	assert.True(t, status.GameStarted)
	require.NotNil(t, status.StartTime)
	assert.True(t, status.StartTime.Equal(app.MockClock.Now()))
}

func TestMatchLeavesWhenWindowCloses(t *testing.T) {
	app, server := startServer(t, factory.DeliveryPoll)

	var out bytes.Buffer
	m := newMatcher(server, &out)
	m.Window = 50 * time.Millisecond
	_, err := m.Run(context.Background(), "mallory", "0xM")
	require.ErrorIs(t, err, ErrNoMatch)

	_, err = app.Service.CurrentRoom(context.Background(), "0xM")
	assert.ErrorIs(t, err, model.ErrNotInRoom)
	assert.Contains(t, out.String(), "Left room")
}

func TestMatchLeavesWhenCancelled(t *testing.T) {
	app, server := startServer(t, factory.DeliveryPoll)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	_, err := newMatcher(server, &out).Run(ctx, "mallory", "0xM")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = app.Service.CurrentRoom(context.Background(), "0xM")
	assert.ErrorIs(t, err, model.ErrNotInRoom)
}

func TestLiveStartsGame(t *testing.T) {
	app, server := startServer(t, factory.DeliveryPush)
	app.MockRandom.QueueString("LIVE01")
	seed(t, app, 3)

	var out bytes.Buffer
	l := &Live{
		URL:   NewClient(server.URL, time.Second).WebSocketURL(),
		Out:   NewOutput("json", &out),
		Start: true,
		Until: UntilStarted,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Run(ctx, "mallory", "0xM"))

	var types []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var evt LiveEvent
		require.NoError(t, json.Unmarshal([]byte(line), &evt))
		types = append(types, evt.Type)
	}
	assert.Equal(t, "ROOM_JOINED", types[0])
	assert.Contains(t, types, "ROOM_READY")
	assert.Equal(t, "GAME_STARTED", types[len(types)-1])

	room, err := app.Service.GetRoomStatus(context.Background(), "REAL-LIVE01")
	require.NoError(t, err)
	assert.True(t, room.GameStarted)
}

func TestLiveReportsServerErrors(t *testing.T) {
	_, server := startServer(t, factory.DeliveryPush)

	l := &Live{
		URL:   NewClient(server.URL, time.Second).WebSocketURL(),
		Out:   NewOutput("json", &bytes.Buffer{}),
		Until: UntilEnded,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := l.Run(ctx, "  ", "0xM")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_REQUEST")
}

func TestWebSocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/api/v1/ws", NewClient("http://localhost:8080/", time.Second).WebSocketURL())
	assert.Equal(t, "wss://mm.example/api/v1/ws", NewClient("https://mm.example", time.Second).WebSocketURL())
}
