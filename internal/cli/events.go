package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream SSE events for a player",
		Long: `Connect to the player's SSE endpoint and stream room events in real-time.

The stream does not join a room; use join or match first. Closing the
stream counts as leaving the room.

Press Ctrl+C to disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.RequirePlayer()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return streamEvents(ctx, cmd.OutOrStdout(), playerID, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")

	return cmd
}

// SSEEvent represents a parsed SSE event
type SSEEvent struct {
	Time  time.Time `json:"time"`
	ID    string    `json:"id,omitempty"`
	Event string    `json:"event"`
	Data  string    `json:"data"`
}

func streamEvents(ctx context.Context, w io.Writer, playerID string, jsonOutput bool) error {
	streamURL := strings.TrimSuffix(cfg.ServerURL, "/") + "/api/v1/players/" + url.PathEscape(playerID) + "/events"

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// Make request
	httpClient := &http.Client{
		Timeout: 0, // No timeout for SSE
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if !jsonOutput {
		_, _ = fmt.Fprintf(w, "Connected as %s\n", playerID)
	}

	// Parse SSE stream
	scanner := bufio.NewScanner(resp.Body)
	var current SSEEvent
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "id: "):
			current.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case line == "":
			// End of event
			if current.Event != "" {
				current.Data = strings.Join(dataLines, "\n")
				current.Time = time.Now()
				printEvent(w, current, jsonOutput)
			}
			current = SSEEvent{}
			dataLines = nil
		}
	}

	if err := scanner.Err(); err != nil {
		// Context cancellation is expected
		if ctx.Err() != nil {
			if !jsonOutput {
				_, _ = fmt.Fprintln(w, "\nDisconnected")
			}
			return nil
		}
		return fmt.Errorf("stream error: %w", err)
	}

	if !jsonOutput {
		_, _ = fmt.Fprintln(w, "Disconnected")
	}
	return nil
}

func printEvent(w io.Writer, evt SSEEvent, jsonOutput bool) {
	if jsonOutput {
		jsonData, _ := json.Marshal(evt)
		_, _ = fmt.Fprintln(w, string(jsonData))
		return
	}

	timestamp := evt.Time.Format("2006-01-02 15:04:05")
	// Truncate data if it's too long for display
	displayData := evt.Data
	if len(displayData) > 100 {
		displayData = displayData[:100] + "..."
	}
	displayData = strings.ReplaceAll(displayData, "\n", " ")
	_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, evt.Event, displayData)
}
