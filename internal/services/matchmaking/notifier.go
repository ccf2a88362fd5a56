package matchmaking

import (
	"context"

	"github.com/mcoot/roommatch/internal/model"
)

// Notifier conveys room state transitions to clients. Push delivers to open
// connections; poll persists snapshots that clients re-fetch.
type Notifier interface {
	Publish(ctx context.Context, event model.Event) error
}

// StatusReader serves room status to polling clients
type StatusReader interface {
	RoomStatus(ctx context.Context, id model.RoomID) (*model.RoomStatus, error)
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, event model.Event) error

// Publish calls f
func (f NotifierFunc) Publish(ctx context.Context, event model.Event) error {
	return f(ctx, event)
}
