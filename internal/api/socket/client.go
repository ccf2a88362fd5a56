package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/mcoot/roommatch/internal/notify/push"
)

// Client is a client for the room protocol, used by mmctl and tests
type Client struct {
	conn    net.Conn
	rw      io.ReadWriter
	writeMu sync.Mutex
}

// Dial connects to a room protocol endpoint such as ws://host/api/v1/ws
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return newClient(conn, br), nil
}

func newClient(conn net.Conn, br *bufio.Reader) *Client {
	var r io.Reader = conn
	if br != nil {
		// The server may have sent frames along with the handshake
		r = io.MultiReader(br, conn)
	}
	return &Client{
		conn: conn,
		rw: struct {
			io.Reader
			io.Writer
		}{r, conn},
	}
}

// Send writes one message of the given type
func (c *Client) Send(msgType string, data any) error {
	frame, err := push.NewFrame(msgType, data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, payload)
}

// Next reads the next frame. A zero timeout waits indefinitely.
func (c *Client) Next(timeout time.Duration) (push.Frame, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return push.Frame{}, err
	}

	for {
		data, op, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			return push.Frame{}, err
		}
		if op != ws.OpText {
			continue
		}
		var frame push.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			return push.Frame{}, fmt.Errorf("decoding frame: %w", err)
		}
		return frame, nil
	}
}

// Close sends a close frame and closes the connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = ws.WriteFrame(c.conn, ws.MaskFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))))
	c.writeMu.Unlock()
	return c.conn.Close()
}
