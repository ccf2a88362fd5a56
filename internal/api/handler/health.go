package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/roommatch/internal/api/response"
)

// Pinger is implemented by storage backends that can report liveness
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientCounter reports open push connections
type ClientCounter interface {
	ClientCount() int
}

// HealthHandler handles the health endpoint
type HealthHandler struct {
	delivery string
	storage  string
	pinger   Pinger
	clients  ClientCounter
	logger   *slog.Logger

	pollInterval time.Duration
}

// NewHealthHandler creates a health handler. pinger and clients may be nil.
func NewHealthHandler(delivery, storage string, pinger Pinger, clients ClientCounter, pollInterval time.Duration, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		delivery:     delivery,
		storage:      storage,
		pinger:       pinger,
		clients:      clients,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Health handles GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := response.Health{
		Status:   "ok",
		Delivery: h.delivery,
		Storage:  h.storage,
	}
	if h.clients != nil {
		n := h.clients.ClientCount()
		resp.Clients = &n
	} else {
		resp.PollIntervalMS = h.pollInterval.Milliseconds()
	}

	status := http.StatusOK
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Warn("storage health check failed", slog.String("error", err.Error()))
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	response.JSON(w, status, resp)
}
