package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/dependencies/random"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/notify/push"
	"github.com/mcoot/roommatch/internal/services/directory"
	"github.com/mcoot/roommatch/internal/services/matchmaking"
	"github.com/mcoot/roommatch/internal/storage/memory"
	"github.com/mcoot/roommatch/internal/testutil"
)

func TestFormatSSEMessage(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		eventName string
		data      string
		expected  string
	}{
		{
			name:      "single line data",
			eventName: "ROOM_UPDATED",
			data:      `{"roomId":"REAL-ABC"}`,
			expected:  "event: ROOM_UPDATED\ndata: {\"roomId\":\"REAL-ABC\"}\n\n",
		},
		{
			name:      "with id",
			id:        "e1",
			eventName: "PONG",
			data:      "",
			expected:  "id: e1\nevent: PONG\ndata: \n\n",
		},
		{
			name:      "multi-line data",
			eventName: "test",
			data:      "line1\r\nline2",
			expected:  "event: test\ndata: line1\ndata: line2\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(formatSSEMessage(tt.id, tt.eventName, tt.data)))
		})
	}
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitLines("hello"))
	assert.Equal(t, []string{"line1", "line2"}, splitLines("line1\nline2"))
	assert.Equal(t, []string{"line1"}, splitLines("line1\n"))
	assert.Equal(t, []string{""}, splitLines(""))
	assert.Equal(t, []string{"line1", "line2"}, splitLines("line1\r\nline2\r\n"))
}

type streamFixture struct {
	server   *httptest.Server
	service  *matchmaking.Service
	registry *push.Registry
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	logger := testutil.NopLogger()
	clk := clock.New()
	rnd := random.New()
	store := memory.New()

	dir := directory.New(store, clk, rnd, directory.DefaultConfig(), logger)
	registry := push.NewRegistry(clk, logger)
	service := matchmaking.New(dir, store, push.NewNotifier(registry, logger), nil, clk, rnd, matchmaking.DefaultConfig(), logger)

	r := mux.NewRouter()
	r.Handle("/players/{player_id}/events", NewHandler(service, registry, clk, rnd, DefaultConfig(), logger))
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		service.Close()
	})
	return &streamFixture{server: server, service: service, registry: registry}
}

// readEvents collects event names from the stream until want is seen
func readEvents(t *testing.T, sc *bufio.Scanner, want string) []string {
	t.Helper()
	var events []string
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
			if name == want {
				return events
			}
		}
	}
	t.Fatalf("stream ended before %s; saw %v", want, events)
	return nil
}

func TestStreamDeliversRoomEvents(t *testing.T) {
	f := newStreamFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/players/0xA/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	readEvents(t, sc, "connected")
	require.Eventually(t, func() bool { return f.registry.Lookup("0xA") != nil }, 2*time.Second, 10*time.Millisecond)

	_, err = f.service.Join(ctx, "alice", "0xA")
	require.NoError(t, err)

	events := readEvents(t, sc, "ROOM_UPDATED")
	assert.Equal(t, []string{"ROOM_JOINED", "ROOM_UPDATED"}, events)
}

func TestStreamDisconnectLeavesRoom(t *testing.T) {
	f := newStreamFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/players/0xA/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	readEvents(t, sc, "connected")
	require.Eventually(t, func() bool { return f.registry.Lookup("0xA") != nil }, 2*time.Second, 10*time.Millisecond)

	_, err = f.service.Join(context.Background(), "alice", "0xA")
	require.NoError(t, err)

	cancel()
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		_, err := f.service.CurrentRoom(context.Background(), "0xA")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
	_, err = f.service.CurrentRoom(context.Background(), "0xA")
	assert.ErrorIs(t, err, model.ErrNotInRoom)
	assert.Equal(t, 0, f.registry.ClientCount())
}
