package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/roommatch/internal/api/apierr"
	"github.com/mcoot/roommatch/internal/api/handler"
	"github.com/mcoot/roommatch/internal/api/middleware"
	"github.com/mcoot/roommatch/internal/api/socket"
	"github.com/mcoot/roommatch/internal/api/stream"
	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/dependencies/random"
	appmiddleware "github.com/mcoot/roommatch/internal/middleware"
	"github.com/mcoot/roommatch/internal/notify/push"
	"github.com/mcoot/roommatch/internal/services/matchmaking"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger  *slog.Logger
	Service *matchmaking.Service
	Clock   clock.Clock
	Random  random.Random

	// Registry is nil when events are delivered by polling
	Registry *push.Registry
	Socket   socket.Config
	Stream   stream.Config

	Delivery     string
	StorageName  string
	PollInterval time.Duration
	// Pinger is checked by the health endpoint when set
	Pinger handler.Pinger

	// RateLimit is requests per minute per client and endpoint; 0 disables
	RateLimit      int
	AllowedOrigins []string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	roomHandler := handler.NewRoomHandler(cfg.Service, cfg.Logger)
	playerHandler := handler.NewPlayerHandler(cfg.Service)
	var clients handler.ClientCounter
	if cfg.Registry != nil {
		clients = cfg.Registry
	}
	healthHandler := handler.NewHealthHandler(cfg.Delivery, cfg.StorageName, cfg.Pinger, clients, cfg.PollInterval, cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(appmiddleware.Logging(cfg.Logger))

	// Long-lived push connections are not rate limited
	if cfg.Registry != nil {
		api.Handle("/ws", socket.NewHandler(cfg.Service, cfg.Registry, cfg.Clock, cfg.Random, cfg.Socket, cfg.Logger)).
			Methods(http.MethodGet)
		api.Handle("/players/{player_id}/events", stream.NewHandler(cfg.Service, cfg.Registry, cfg.Clock, cfg.Random, cfg.Stream, cfg.Logger)).
			Methods(http.MethodGet)
	} else {
		api.HandleFunc("/ws", pushUnavailable).Methods(http.MethodGet)
		api.HandleFunc("/players/{player_id}/events", pushUnavailable).Methods(http.MethodGet)
	}

	limited := api.NewRoute().Subrouter()
	limited.Use(middleware.RateLimit(cfg.RateLimit))

	// Room routes
	limited.HandleFunc("/rooms/join", roomHandler.Join).Methods(http.MethodPost)
	limited.HandleFunc("/rooms/leave", roomHandler.Leave).Methods(http.MethodPost)
	limited.HandleFunc("/rooms/{room_id}", roomHandler.Status).Methods(http.MethodGet)
	limited.HandleFunc("/rooms/{room_id}/start", roomHandler.Start).Methods(http.MethodPost)

	// Player routes
	limited.HandleFunc("/players/{player_id}/room", playerHandler.CurrentRoom).Methods(http.MethodGet)

	// Health check endpoint
	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	return middleware.CORS(cfg.AllowedOrigins)(r)
}

func pushUnavailable(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, apierr.NewPushUnavailableError())
}
