package push

import (
	"sync"
	"time"

	"github.com/mcoot/roommatch/internal/model"
)

// SendBufferSize is the number of frames queued per client before drops
const SendBufferSize = 64

// Client is one open push channel bound to a player. The transport owns the
// connection and drains Send; the registry only ever enqueues.
type Client struct {
	id          string
	playerID    model.PlayerID
	send        chan Frame
	connectedAt time.Time

	supersededOnce sync.Once
	superseded     chan struct{}
}

// NewClient creates a client that delivers into send
func NewClient(id string, playerID model.PlayerID, send chan Frame, connectedAt time.Time) *Client {
	return &Client{
		id:          id,
		playerID:    playerID,
		send:        send,
		connectedAt: connectedAt,
		superseded:  make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// PlayerID returns the bound player
func (c *Client) PlayerID() model.PlayerID {
	return c.playerID
}

// Superseded is closed when a newer connection registers for the same player
func (c *Client) Superseded() <-chan struct{} {
	return c.superseded
}

// trySend enqueues without blocking and reports whether it succeeded
func (c *Client) trySend(f Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *Client) supersede() {
	c.supersededOnce.Do(func() { close(c.superseded) })
}
