// Package poll propagates room state by persisting snapshots that clients
// re-fetch on an interval.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/storage"
)

// Config holds poll notifier settings
type Config struct {
	// WriteTimeout bounds each snapshot write
	WriteTimeout time.Duration
	// ReadTimeout bounds each snapshot read
	ReadTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 2 * time.Second,
		ReadTimeout:  2 * time.Second,
	}
}

// Notifier persists room status snapshots. A write that times out is
// reported as model.ErrStorageTimeout, never dropped silently.
type Notifier struct {
	store  storage.StatusStore
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger
}

// New creates a poll Notifier
func New(store storage.StatusStore, clock clock.Clock, cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "poll-notifier")),
	}
}

// Publish writes or removes the room's snapshot
func (n *Notifier) Publish(ctx context.Context, event model.Event) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.WriteTimeout)
	defer cancel()

	var err error
	switch event.Type {
	case model.EventRoomUpdated, model.EventRoomReady, model.EventGameStarted, model.EventGameEnded:
		if event.Room == nil {
			return fmt.Errorf("%s event for room %s has no snapshot", event.Type, event.RoomID)
		}
		status := event.Room.Status()
		status.UpdatedAt = n.clock.Now()
		if p, ok := event.Payload.(model.GameEndedPayload); ok {
			endedAt := p.EndedAt
			status.EndedAt = &endedAt
		}
		err = n.store.SaveRoomStatus(ctx, &status)

	case model.EventRoomClosed:
		var version int64
		if event.Room != nil {
			version = event.Room.Version
		}
		err = n.store.DeleteRoomStatus(ctx, event.RoomID, version)

	default:
		// Caller-directed events carry no shared state
		return nil
	}

	if err != nil {
		err = timeoutErr(err)
		n.logger.Warn("failed to publish room state",
			slog.String("room_id", string(event.RoomID)),
			slog.String("event", string(event.Type)),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// RoomStatus reads the latest published snapshot
func (n *Notifier) RoomStatus(ctx context.Context, id model.RoomID) (*model.RoomStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.ReadTimeout)
	defer cancel()

	status, err := n.store.GetRoomStatus(ctx, id)
	if err != nil {
		return nil, timeoutErr(err)
	}
	return status, nil
}

func timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, model.ErrStorageTimeout) {
		return fmt.Errorf("%w: %v", model.ErrStorageTimeout, err)
	}
	return err
}
