// Package push delivers room events over open duplex channels.
package push

import (
	"context"
	"log/slog"

	"github.com/mcoot/roommatch/internal/model"
)

// Notifier delivers events to each recipient's open channel. Delivery is
// best-effort: closed or saturated channels miss the event.
type Notifier struct {
	registry *Registry
	logger   *slog.Logger
}

// NewNotifier creates a push Notifier over the registry
func NewNotifier(registry *Registry, logger *slog.Logger) *Notifier {
	return &Notifier{
		registry: registry,
		logger:   logger.With(slog.String("component", "push-notifier")),
	}
}

// Publish never blocks on a slow client and only fails on encoding errors
func (n *Notifier) Publish(ctx context.Context, event model.Event) error {
	if len(event.Recipients) == 0 {
		return nil
	}

	frame, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	sent := 0
	for _, playerID := range event.Recipients {
		if n.registry.Send(playerID, frame) {
			sent++
		}
	}

	n.logger.Debug("room event pushed",
		slog.String("room_id", string(event.RoomID)),
		slog.String("event", string(event.Type)),
		slog.Int("recipients", len(event.Recipients)),
		slog.Int("delivered", sent))
	return nil
}
