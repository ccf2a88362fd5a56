package stream

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/roommatch/internal/api/apierr"
	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/dependencies/random"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/notify/push"
	"github.com/mcoot/roommatch/internal/services/matchmaking"
)

// Config holds SSE stream settings
type Config struct {
	// KeepalivePeriod is the interval between keepalive comments
	KeepalivePeriod time.Duration
	// DisconnectTimeout bounds the implicit leave after a stream drops
	DisconnectTimeout time.Duration
}

// DefaultConfig returns the reference deployment settings
func DefaultConfig() Config {
	return Config{
		KeepalivePeriod:   15 * time.Second,
		DisconnectTimeout: 5 * time.Second,
	}
}

// Handler serves a player's room events as Server-Sent Events
type Handler struct {
	service  *matchmaking.Service
	registry *push.Registry
	clock    clock.Clock
	random   random.Random
	cfg      Config
	logger   *slog.Logger
}

// NewHandler creates an SSE handler
func NewHandler(
	service *matchmaking.Service,
	registry *push.Registry,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		registry: registry,
		clock:    clock,
		random:   random,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "sse")),
	}
}

// ServeHTTP handles GET /api/v1/players/{player_id}/events
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID := model.PlayerID(strings.TrimSpace(mux.Vars(r)["player_id"]))
	if playerID == "" {
		apierr.WriteError(w, apierr.NewInvalidRequestError("player_id is required"))
		return
	}

	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		apierr.WriteError(w, apierr.NewInternalError())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	send := make(chan push.Frame, push.SendBufferSize)
	client := push.NewClient(h.random.UUID(), playerID, send, h.clock.Now())
	h.registry.Register(client)
	defer h.release(client)

	_, _ = w.Write(formatSSEMessage("", "connected", `{"status":"connected"}`))
	flusher.Flush()

	ticker := time.NewTicker(h.cfg.KeepalivePeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-send:
			if _, err := w.Write(formatSSEMessage(frame.ID, frame.Type, string(frame.Data))); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-client.Superseded():
			return

		case <-r.Context().Done():
			return
		}
	}
}

// release unregisters the stream and, if it was still the player's current
// channel, treats the drop as a leave
func (h *Handler) release(client *push.Client) {
	if !h.registry.Unregister(client) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.DisconnectTimeout)
	defer cancel()
	if err := h.service.Disconnect(ctx, client.PlayerID()); err != nil {
		h.logger.Error("failed to release player after disconnect",
			slog.String("player_id", string(client.PlayerID())),
			slog.String("error", err.Error()))
	}
}

// formatSSEMessage formats an SSE message with optional id, event name and data.
// Multi-line data is properly formatted with "data: " prefix on each line.
func formatSSEMessage(id, eventName, data string) []byte {
	var b strings.Builder
	if id != "" {
		b.WriteString("id: " + id + "\n")
	}
	b.WriteString("event: " + eventName + "\n")
	for _, line := range splitLines(data) {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

// splitLines splits a string into lines, handling various line endings
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
