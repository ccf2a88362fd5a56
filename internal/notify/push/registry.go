package push

import (
	"log/slog"
	"sync"

	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/model"
)

// Registry maps each player to their current push channel
type Registry struct {
	mu      sync.RWMutex
	clients map[model.PlayerID]*Client
	clock   clock.Clock
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry
func NewRegistry(clock clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[model.PlayerID]*Client),
		clock:   clock,
		logger:  logger.With(slog.String("component", "push")),
	}
}

// Register binds the client to its player, superseding any older client
func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	previous := r.clients[client.playerID]
	r.clients[client.playerID] = client
	clientCount := len(r.clients)
	r.mu.Unlock()

	if previous != nil && previous != client {
		previous.supersede()
		r.logger.Info("push client superseded",
			slog.String("player_id", string(client.playerID)),
			slog.String("previous_client", previous.id))
	}
	r.logger.Info("push client registered",
		slog.String("player_id", string(client.playerID)),
		slog.String("client_id", client.id),
		slog.Int("total_clients", clientCount))
}

// Unregister removes the client and reports whether it was the player's
// current one. A superseded client returns false.
func (r *Registry) Unregister(client *Client) bool {
	r.mu.Lock()
	current, ok := r.clients[client.playerID]
	if !ok || current != client {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, client.playerID)
	clientCount := len(r.clients)
	r.mu.Unlock()

	r.logger.Info("push client unregistered",
		slog.String("player_id", string(client.playerID)),
		slog.String("client_id", client.id),
		slog.Duration("connection_duration", r.clock.Now().Sub(client.connectedAt)),
		slog.Int("total_clients", clientCount))
	return true
}

// Lookup returns the player's current client, or nil
func (r *Registry) Lookup(playerID model.PlayerID) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[playerID]
}

// Send delivers a frame to a player without blocking. It reports false when
// the player has no open channel or their buffer is full.
func (r *Registry) Send(playerID model.PlayerID, frame Frame) bool {
	r.mu.RLock()
	client := r.clients[playerID]
	r.mu.RUnlock()
	if client == nil {
		return false
	}
	if !client.trySend(frame) {
		r.logger.Warn("push message dropped - client buffer full",
			slog.String("player_id", string(playerID)),
			slog.String("type", frame.Type))
		return false
	}
	return true
}

// ClientCount returns the number of registered clients
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close supersedes every client so transports shut their connections
func (r *Registry) Close() {
	r.mu.Lock()
	clientCount := len(r.clients)
	for id, client := range r.clients {
		client.supersede()
		delete(r.clients, id)
	}
	r.mu.Unlock()
	r.logger.Info("push registry closed", slog.Int("disconnected_clients", clientCount))
}
