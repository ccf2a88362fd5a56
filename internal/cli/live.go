package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/roommatch/internal/api/socket"
	"github.com/mcoot/roommatch/internal/notify/push"
)

// Stages a live session can stop at
const (
	UntilReady   = "ready"
	UntilStarted = "started"
	UntilEnded   = "ended"
)

func newLiveCmd() *cobra.Command {
	var (
		start     bool
		until     string
		pingEvery time.Duration
	)

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Join a room over WebSocket and follow its events",
		Long: `Connect to the WebSocket endpoint, join a room and print every event.

Events include:
  - ROOM_JOINED / ROOM_UPDATED: roster changed
  - ROOM_READY: every seat is taken
  - GAME_STARTED / GAME_ENDED: game window opened or closed
  - ROOM_CLOSED: the room was removed

The session ends at the --until stage (ready, started or ended). Closing the
connection with Ctrl+C leaves the room.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.RequirePlayer()
			if err != nil {
				return err
			}
			name, err := cfg.RequireName()
			if err != nil {
				return err
			}
			switch until {
			case UntilReady, UntilStarted, UntilEnded:
			default:
				return fmt.Errorf("--until must be ready, started or ended")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l := &Live{
				URL:       client.WebSocketURL(),
				Out:       NewOutput(cfg.Output, cmd.OutOrStdout()),
				Start:     start,
				Until:     until,
				PingEvery: pingEvery,
			}
			return l.Run(ctx, name, playerID)
		},
	}

	cmd.Flags().BoolVar(&start, "start", false, "Start the game once the room is ready")
	cmd.Flags().StringVar(&until, "until", UntilEnded, "Stop after this stage: ready, started, ended")
	cmd.Flags().DurationVar(&pingEvery, "ping", 25*time.Second, "Heartbeat interval")

	return cmd
}

// Live follows one player's room over the WebSocket protocol
type Live struct {
	URL       string
	Out       *Output
	Start     bool
	Until     string
	PingEvery time.Duration
}

// LiveEvent is one printed frame
type LiveEvent struct {
	Time time.Time       `json:"time"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Run joins and prints frames until the Until stage, a terminal frame or
// ctx cancellation
func (l *Live) Run(ctx context.Context, name, playerID string) error {
	c, err := socket.Dial(ctx, l.URL)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = c.Close()
	}()

	if err := c.Send(socket.MsgJoinRealMatch, socket.JoinRealMatchData{Username: name, Address: playerID}); err != nil {
		return err
	}

	for {
		frame, err := c.Next(l.PingEvery)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if err := c.Send(socket.MsgPing, nil); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		if frame.Type != push.FramePong {
			l.print(frame)
		}

		switch frame.Type {
		case "ROOM_READY":
			if l.Start {
				var data push.ReadyData
				_ = json.Unmarshal(frame.Data, &data)
				if err := c.Send(socket.MsgStartGame, socket.StartGameData{RoomID: data.RoomID}); err != nil {
					return err
				}
			}
			if l.Until == UntilReady {
				return nil
			}
		case "GAME_STARTED":
			if l.Until == UntilStarted {
				return nil
			}
		case "GAME_ENDED", "ROOM_CLOSED":
			return nil
		case "JOIN_FAILED":
			return errors.New(push.JoinFailedMessage)
		case push.FrameError:
			var data push.ErrorData
			_ = json.Unmarshal(frame.Data, &data)
			return fmt.Errorf("%s (%s)", data.Message, data.Code)
		}
	}
}

func (l *Live) print(frame push.Frame) {
	evt := LiveEvent{Time: time.Now(), Type: frame.Type, Data: frame.Data}
	if l.Out.format == "json" {
		data, _ := json.Marshal(evt)
		_, _ = fmt.Fprintln(l.Out.w, string(data))
		return
	}
	_, _ = fmt.Fprintf(l.Out.w, "[%s] %s %s\n", evt.Time.Format("15:04:05"), evt.Type, string(evt.Data))
}
