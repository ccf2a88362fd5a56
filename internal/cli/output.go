package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case JoinResult:
		o.printJoinResult(v)
	case RoomStatus:
		o.printRoomStatus(v)
	case StartResult:
		o.printStartResult(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Player response type (matches API)
type Player struct {
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Room response type
type Room struct {
	RoomID      string     `json:"room_id"`
	Players     []Player   `json:"players"`
	PlayerCount int        `json:"player_count"`
	MaxPlayers  int        `json:"max_players"`
	GameStarted bool       `json:"game_started"`
	Ready       bool       `json:"ready"`
	CreatedAt   time.Time  `json:"created_at"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

// JoinResult response type
type JoinResult struct {
	Room          Room `json:"room"`
	AlreadyMember bool `json:"already_member"`
	Ready         bool `json:"ready"`
}

// RoomStatus response type
type RoomStatus struct {
	RoomID      string     `json:"room_id"`
	PlayerCount int        `json:"player_count"`
	MaxPlayers  int        `json:"max_players"`
	Players     []string   `json:"players"`
	GameStarted bool       `json:"game_started"`
	Ready       bool       `json:"ready"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Version     int64      `json:"version"`
}

// StartResult response type
type StartResult struct {
	RoomID    string    `json:"room_id"`
	StartTime time.Time `json:"start_time"`
	EndsAt    time.Time `json:"ends_at"`
}

// HealthResult response type
type HealthResult struct {
	Status         string `json:"status"`
	Delivery       string `json:"delivery"`
	Storage        string `json:"storage"`
	Clients        *int   `json:"push_clients,omitempty"`
	PollIntervalMS int64  `json:"poll_interval_ms,omitempty"`
}

func (o *Output) printJoinResult(j JoinResult) {
	if j.AlreadyMember {
		_, _ = fmt.Fprintf(o.w, "Already in room %s\n", j.Room.RoomID)
	} else {
		_, _ = fmt.Fprintf(o.w, "Joined room %s\n", j.Room.RoomID)
	}
	_, _ = fmt.Fprintf(o.w, "Players (%d/%d):\n", j.Room.PlayerCount, j.Room.MaxPlayers)
	for _, p := range j.Room.Players {
		_, _ = fmt.Fprintf(o.w, "  - %s (%s)\n", p.DisplayName, p.PlayerID)
	}
	if j.Ready {
		_, _ = fmt.Fprintln(o.w, "Room is full! All players can now start the game.")
	}
}

func (o *Output) printRoomStatus(s RoomStatus) {
	_, _ = fmt.Fprintf(o.w, "Room: %s\n", s.RoomID)
	_, _ = fmt.Fprintf(o.w, "Players (%d/%d): %s\n", s.PlayerCount, s.MaxPlayers, strings.Join(s.Players, ", "))

	switch {
	case s.EndedAt != nil:
		_, _ = fmt.Fprintf(o.w, "State: ended at %s\n", s.EndedAt.Format(time.RFC3339))
	case s.GameStarted && s.StartTime != nil:
		_, _ = fmt.Fprintf(o.w, "State: started at %s\n", s.StartTime.Format(time.RFC3339))
		if s.EndsAt != nil {
			_, _ = fmt.Fprintf(o.w, "Ends: %s\n", s.EndsAt.Format(time.RFC3339))
		}
	case s.Ready:
		_, _ = fmt.Fprintln(o.w, "State: ready")
	default:
		_, _ = fmt.Fprintln(o.w, "State: waiting")
	}
}

func (o *Output) printStartResult(s StartResult) {
	_, _ = fmt.Fprintf(o.w, "Game started in room %s\n", s.RoomID)
	_, _ = fmt.Fprintf(o.w, "Start: %s\n", s.StartTime.Format(time.RFC3339))
	_, _ = fmt.Fprintf(o.w, "Ends: %s\n", s.EndsAt.Format(time.RFC3339))
}

func (o *Output) printHealthResult(h HealthResult) {
	_, _ = fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	_, _ = fmt.Fprintf(o.w, "Delivery: %s\n", h.Delivery)
	_, _ = fmt.Fprintf(o.w, "Storage: %s\n", h.Storage)
	if h.Clients != nil {
		_, _ = fmt.Fprintf(o.w, "Push clients: %d\n", *h.Clients)
	}
	if h.PollIntervalMS > 0 {
		_, _ = fmt.Fprintf(o.w, "Poll interval: %s\n", time.Duration(h.PollIntervalMS)*time.Millisecond)
	}
}
