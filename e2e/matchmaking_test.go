package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/roommatch/internal/api"
	"github.com/mcoot/roommatch/internal/api/socket"
	"github.com/mcoot/roommatch/internal/cli"
	"github.com/mcoot/roommatch/internal/config"
	"github.com/mcoot/roommatch/internal/factory"
	"github.com/mcoot/roommatch/internal/notify/push"
)

const frameTimeout = 5 * time.Second

// testServer manages a real HTTP server for e2e tests
type testServer struct {
	url      string
	app      *factory.App
	shutdown func()
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg, err := config.Load(viper.New(), t.TempDir())
	require.NoError(t, err)
	cfg.GameDuration = 500 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	factoryCfg, err := factory.FromServerConfig(cfg, logger)
	require.NoError(t, err)
	app, err := factory.New(factoryCfg)
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := api.NewServer(api.NewRouter(app.RouterConfig(cfg)), api.DefaultServerConfig(), logger)
	if app.Registry != nil {
		server.OnShutdown(app.Registry.Close)
	}

	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	url := "http://" + listener.Addr().String()
	waitForServer(t, url+"/api/v1/health")

	ts := &testServer{
		url: url,
		app: app,
		shutdown: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
			_ = app.Close()
		},
	}
	t.Cleanup(ts.shutdown)
	return ts
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// player is one WebSocket participant
type player struct {
	t    *testing.T
	conn *socket.Client
	seen map[string]int
}

func connect(t *testing.T, ts *testServer) *player {
	t.Helper()
	conn, err := socket.Dial(context.Background(), cli.NewClient(ts.url, time.Second).WebSocketURL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &player{t: t, conn: conn, seen: map[string]int{}}
}

func (p *player) join(name, address string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.Send(socket.MsgJoinRealMatch, socket.JoinRealMatchData{Username: name, Address: address}))
}

// expect reads frames until one of frameType arrives, counting everything seen
func (p *player) expect(frameType string) push.Frame {
	p.t.Helper()
	for {
		frame, err := p.conn.Next(frameTimeout)
		require.NoError(p.t, err, "waiting for %s", frameType)
		p.seen[frame.Type]++
		if frame.Type == frameType {
			return frame
		}
	}
}

func decode[T any](t *testing.T, frame push.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(frame.Data, &v))
	return v
}

func TestFourPlayersMatchStartAndEnd(t *testing.T) {
	ts := startTestServer(t, nil)

	var players []*player
	var roomID string
	for i := 0; i < 4; i++ {
		p := connect(t, ts)
		p.join(fmt.Sprintf("player%d", i), fmt.Sprintf("0x%d", i))
		joined := decode[push.RoomData](t, p.expect("ROOM_JOINED"))
		if roomID == "" {
			roomID = joined.RoomID
		}
		assert.Equal(t, roomID, joined.RoomID)
		players = append(players, p)
	}

	for _, p := range players {
		ready := decode[push.ReadyData](t, p.expect("ROOM_READY"))
		assert.Equal(t, roomID, ready.RoomID)
	}

	require.NoError(t, players[0].conn.Send(socket.MsgStartGame, socket.StartGameData{RoomID: roomID}))

	var startTime int64
	for _, p := range players {
		started := decode[push.GameStartedData](t, p.expect("GAME_STARTED"))
		if startTime == 0 {
			startTime = started.StartTime
		}
		assert.Equal(t, startTime, started.StartTime)
		assert.Equal(t, started.StartTime+500, started.EndsAt)
	}

	for _, p := range players {
		ended := decode[push.GameEndedData](t, p.expect("GAME_ENDED"))
		assert.Equal(t, roomID, ended.RoomID)
		assert.GreaterOrEqual(t, ended.EndedAt, startTime+500)
		assert.Equal(t, 1, p.seen["ROOM_READY"], "ROOM_READY is delivered exactly once")
	}
}

func TestDisconnectFreesSeat(t *testing.T) {
	ts := startTestServer(t, nil)

	alice := connect(t, ts)
	alice.join("alice", "0xA")
	room := decode[push.RoomData](t, alice.expect("ROOM_JOINED"))

	bob := connect(t, ts)
	bob.join("bob", "0xB")
	bob.expect("ROOM_JOINED")

	for {
		updated := decode[push.RoomData](t, alice.expect("ROOM_UPDATED"))
		if updated.PlayerCount == 2 {
			break
		}
	}

	require.NoError(t, bob.conn.Close())

	for {
		updated := decode[push.RoomData](t, alice.expect("ROOM_UPDATED"))
		if updated.PlayerCount == 1 {
			assert.Equal(t, room.RoomID, updated.RoomID)
			break
		}
	}

	// The freed seat is taken by the next joiner
	carol := connect(t, ts)
	carol.join("carol", "0xC")
	joined := decode[push.RoomData](t, carol.expect("ROOM_JOINED"))
	assert.Equal(t, room.RoomID, joined.RoomID)
}

func TestFifthPlayerOpensNewRoom(t *testing.T) {
	ts := startTestServer(t, nil)

	var first string
	for i := 0; i < 5; i++ {
		p := connect(t, ts)
		p.join(fmt.Sprintf("player%d", i), fmt.Sprintf("0x%d", i))
		joined := decode[push.RoomData](t, p.expect("ROOM_JOINED"))
		if i == 0 {
			first = joined.RoomID
		}
		if i < 4 {
			assert.Equal(t, first, joined.RoomID)
		} else {
			assert.NotEqual(t, first, joined.RoomID)
			assert.Equal(t, 1, joined.PlayerCount)
		}
	}
}

func TestPollDeliveryMatch(t *testing.T) {
	ts := startTestServer(t, func(c *config.Config) {
		c.Delivery = config.DeliveryPoll
		c.MaxPlayers = 2
		c.RateLimit = 0
	})

	client := cli.NewClient(ts.url, 5*time.Second)
	_, err := client.Join("alice", "0xA")
	require.NoError(t, err)

	var out bytes.Buffer
	m := &cli.Matcher{
		Client:   client,
		Out:      cli.NewOutput("json", &out),
		Interval: 20 * time.Millisecond,
		Window:   5 * time.Second,
		Start:    true,
	}
	status, err := m.Run(context.Background(), "bob", "0xB")
	require.NoError(t, err)
	assert.True(t, status.GameStarted)
	assert.Equal(t, 2, status.PlayerCount)

	// The game ends and the snapshot keeps its end time
	require.Eventually(t, func() bool {
		s, err := client.RoomStatus(status.RoomID)
		return err == nil && s.EndedAt != nil
	}, 5*time.Second, 20*time.Millisecond)

	// Push endpoints are disabled
	_, err = socket.Dial(context.Background(), client.WebSocketURL())
	assert.Error(t, err)
}

func TestMmctlBinary(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the mmctl binary")
	}
	ts := startTestServer(t, nil)

	projectRoot := findProjectRoot(t)
	binaryPath := filepath.Join(t.TempDir(), "mmctl")
	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/mmctl")
	build.Dir = projectRoot
	output, err := build.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	run := func(args ...string) string {
		cmd := exec.Command(binaryPath, append([]string{"--server", ts.url, "--output", "json"}, args...)...)
		out, err := cmd.Output()
		require.NoError(t, err)
		return string(out)
	}

	var health cli.HealthResult
	require.NoError(t, json.Unmarshal([]byte(run("health")), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "push", health.Delivery)

	var joined cli.JoinResult
	require.NoError(t, json.Unmarshal([]byte(run("--player", "0xA", "--name", "alice", "join")), &joined))
	assert.Equal(t, 1, joined.Room.PlayerCount)

	var status cli.RoomStatus
	require.NoError(t, json.Unmarshal([]byte(run("room", joined.Room.RoomID)), &status))
	assert.Equal(t, []string{"alice"}, status.Players)
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}
