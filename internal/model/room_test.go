package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func player(id string) Player {
	return Player{ID: PlayerID(id), DisplayName: "name-" + id, JoinedAt: testNow}
}

func TestNewPlayerValidation(t *testing.T) {
	p, err := NewPlayer("  alice ", "0xA", testNow)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.DisplayName)
	assert.Equal(t, PlayerID("0xA"), p.ID)

	_, err = NewPlayer("", "0xA", testNow)
	assert.ErrorIs(t, err, ErrInvalidPlayer)

	_, err = NewPlayer("alice", "   ", testNow)
	assert.ErrorIs(t, err, ErrInvalidPlayer)
}

func TestAddPlayerRespectsCapacity(t *testing.T) {
	room := NewRoom("R1", 4, testNow)
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, room.AddPlayer(player(id)))
	}
	assert.True(t, room.IsFull())
	assert.True(t, room.IsReady())

	err := room.AddPlayer(player("e"))
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Len(t, room.Players, 4)
}

func TestAddPlayerDuplicate(t *testing.T) {
	room := NewRoom("R1", 4, testNow)
	require.NoError(t, room.AddPlayer(player("a")))

	err := room.AddPlayer(player("a"))
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
	assert.Len(t, room.Players, 1)
}

func TestAddPlayerAfterStart(t *testing.T) {
	room := NewRoom("R1", 1, testNow)
	require.NoError(t, room.AddPlayer(player("a")))
	require.True(t, room.MarkStarted(testNow))
	room.RemovePlayer("a")

	err := room.AddPlayer(player("b"))
	assert.ErrorIs(t, err, ErrRoomAlreadyStarted)
}

func TestAddPlayerClosed(t *testing.T) {
	room := NewRoom("R1", 4, testNow)
	room.Close()

	assert.ErrorIs(t, room.AddPlayer(player("a")), ErrRoomClosed)
	assert.False(t, room.IsJoinable())
}

func TestRemovePlayerPreservesOrder(t *testing.T) {
	room := NewRoom("R1", 4, testNow)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, room.AddPlayer(player(id)))
	}

	assert.True(t, room.RemovePlayer("b"))
	assert.False(t, room.RemovePlayer("b"))
	assert.Equal(t, []PlayerID{"a", "c"}, room.PlayerIDs())
}

func TestMarkStartedIsMonotonic(t *testing.T) {
	room := NewRoom("R1", 4, testNow)
	assert.True(t, room.MarkStarted(testNow))
	assert.False(t, room.MarkStarted(testNow.Add(time.Minute)))
	assert.True(t, room.GameStarted)
	assert.Equal(t, testNow, *room.StartedAt)
}

func TestMarkEndedClaimsOnce(t *testing.T) {
	room := NewRoom("R1", 4, testNow)
	assert.False(t, room.MarkEnded(testNow), "unstarted game cannot end")

	require.True(t, room.MarkStarted(testNow))
	end := testNow.Add(2 * time.Minute)
	assert.True(t, room.MarkEnded(end))
	assert.False(t, room.MarkEnded(end.Add(time.Second)))
	assert.Equal(t, end, *room.EndedAt)

	status := room.Status()
	require.NotNil(t, status.EndedAt)
	assert.Equal(t, end, *status.EndedAt)
}

func TestIsExpired(t *testing.T) {
	room := NewRoom("R1", 4, testNow)
	assert.False(t, room.IsExpired(testNow.Add(10*time.Minute), 10*time.Minute))
	assert.True(t, room.IsExpired(testNow.Add(10*time.Minute+time.Second), 10*time.Minute))
}

func TestCloneIsIndependent(t *testing.T) {
	room := NewRoom("R1", 4, testNow)
	require.NoError(t, room.AddPlayer(player("a")))
	room.MarkStarted(testNow)

	c := room.Clone()
	c.Players[0].DisplayName = "changed"
	*c.StartedAt = testNow.Add(time.Hour)

	assert.Equal(t, "name-a", room.Players[0].DisplayName)
	assert.Equal(t, testNow, *room.StartedAt)
}

func TestStatus(t *testing.T) {
	room := NewRoom("R1", 2, testNow)
	require.NoError(t, room.AddPlayer(player("a")))
	require.NoError(t, room.AddPlayer(player("b")))
	room.Version = 3

	status := room.Status()
	assert.Equal(t, RoomID("R1"), status.RoomID)
	assert.Equal(t, 2, status.PlayerCount)
	assert.Equal(t, 2, status.MaxPlayers)
	assert.Equal(t, []string{"name-a", "name-b"}, status.Players)
	assert.True(t, status.Ready)
	assert.False(t, status.GameStarted)
	assert.Equal(t, int64(3), status.Version)
}
