package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// ErrNoMatch is returned when the search window closes before the room fills
var ErrNoMatch = errors.New("no match found")

// RoomReadyMessage is shown when the room fills
const RoomReadyMessage = "Room is full! All players can now start the game."

func newMatchCmd() *cobra.Command {
	var (
		interval time.Duration
		window   time.Duration
		start    bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Join a room and poll until it is full",
		Long: `Join a room and poll its status until every seat is taken.

The room is polled every --interval. If the room has not filled within
--window the player leaves again. With --start the game is started as soon
as the room is ready. Press Ctrl+C to give up early.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.RequirePlayer()
			if err != nil {
				return err
			}
			name, err := cfg.RequireName()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := &Matcher{
				Client:   client,
				Out:      NewOutput(cfg.Output, cmd.OutOrStdout()),
				Interval: interval,
				Window:   window,
				Start:    start,
				Verbose:  cfg.Verbose,
			}
			_, err = m.Run(ctx, name, playerID)
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Status polling interval")
	cmd.Flags().DurationVar(&window, "window", 60*time.Second, "How long to wait for the room to fill")
	cmd.Flags().BoolVar(&start, "start", false, "Start the game once the room is ready")

	return cmd
}

// Matcher joins a room and polls it until the ready edge
type Matcher struct {
	Client   *Client
	Out      *Output
	Interval time.Duration
	Window   time.Duration
	Start    bool
	Verbose  bool
}

// Run joins, waits for the room to fill and returns its last status. When
// the window closes or ctx is cancelled first, the player leaves the room.
func (m *Matcher) Run(ctx context.Context, name, playerID string) (RoomStatus, error) {
	joined, err := m.Client.Join(name, playerID)
	if err != nil {
		return RoomStatus{}, err
	}
	roomID := joined.Room.RoomID
	m.progress(fmt.Sprintf("Joined room %s (%d/%d)", roomID, joined.Room.PlayerCount, joined.Room.MaxPlayers))

	if joined.Ready || joined.Room.GameStarted {
		status, err := m.Client.RoomStatus(roomID)
		if err != nil {
			return RoomStatus{}, err
		}
		return m.ready(status)
	}

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(m.Window)
	defer deadline.Stop()

	lastCount := joined.Room.PlayerCount
	for {
		select {
		case <-ctx.Done():
			m.giveUp(playerID)
			return RoomStatus{}, ctx.Err()
		case <-deadline.C:
			m.giveUp(playerID)
			return RoomStatus{}, fmt.Errorf("%w within %s", ErrNoMatch, m.Window)
		case <-ticker.C:
		}

		status, err := m.Client.RoomStatus(roomID)
		if err != nil {
			if IsNotFound(err) {
				return RoomStatus{}, fmt.Errorf("room %s closed", roomID)
			}
			// Transient failures keep polling
			if m.Verbose {
				m.progress("Poll failed: " + err.Error())
			}
			continue
		}

		if status.PlayerCount != lastCount {
			lastCount = status.PlayerCount
			m.progress(fmt.Sprintf("Players %d/%d", status.PlayerCount, status.MaxPlayers))
		}
		if status.Ready || status.GameStarted {
			return m.ready(status)
		}
	}
}

func (m *Matcher) ready(status RoomStatus) (RoomStatus, error) {
	if !status.GameStarted {
		m.progress(RoomReadyMessage)
	}
	if m.Start && !status.GameStarted {
		started, err := m.Client.Start(status.RoomID)
		if err != nil {
			return status, err
		}
		status.GameStarted = true
		status.Ready = false
		status.StartTime = &started.StartTime
		status.EndsAt = &started.EndsAt
	}
	m.Out.Print(status)
	return status, nil
}

func (m *Matcher) giveUp(playerID string) {
	if err := m.Client.Leave(playerID); err != nil {
		m.progress("Leave failed: " + err.Error())
		return
	}
	m.progress("Left room")
}

// progress writes a line in text mode only
func (m *Matcher) progress(msg string) {
	if m.Out.format == "json" {
		return
	}
	m.Out.PrintMessage(msg)
}
