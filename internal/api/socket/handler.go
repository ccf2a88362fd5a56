package socket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gobwas/ws"

	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/dependencies/random"
	"github.com/mcoot/roommatch/internal/notify/push"
	"github.com/mcoot/roommatch/internal/services/matchmaking"
)

// Config holds WebSocket connection settings
type Config struct {
	// HeartbeatTimeout closes a connection that sends nothing for this long
	HeartbeatTimeout time.Duration
	// WriteTimeout bounds each frame write
	WriteTimeout time.Duration
	// DisconnectTimeout bounds the implicit leave after a connection drops
	DisconnectTimeout time.Duration
}

// DefaultConfig returns the reference deployment settings
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout:  60 * time.Second,
		WriteTimeout:      10 * time.Second,
		DisconnectTimeout: 5 * time.Second,
	}
}

// Handler upgrades requests to WebSocket sessions speaking the room protocol
type Handler struct {
	service  *matchmaking.Service
	registry *push.Registry
	clock    clock.Clock
	random   random.Random
	cfg      Config
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler
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
		logger:   logger.With(slog.String("component", "socket")),
	}
}

// ServeHTTP handles GET /api/v1/ws
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	s := newSession(h, conn)
	h.logger.Info("websocket connected",
		slog.String("session_id", s.id),
		slog.String("remote_addr", r.RemoteAddr))
	s.run()
}
