package matchmaking

import (
	"sync"
	"time"

	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/model"
)

// gameTimers holds the pending game-end timer of each started room
type gameTimers struct {
	mu     sync.Mutex
	clock  clock.Clock
	timers map[model.RoomID]clock.Timer
}

func newGameTimers(c clock.Clock) *gameTimers {
	return &gameTimers{
		clock:  c,
		timers: make(map[model.RoomID]clock.Timer),
	}
}

func (g *gameTimers) schedule(id model.RoomID, d time.Duration, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.timers[id]; ok {
		existing.Stop()
	}
	g.timers[id] = g.clock.AfterFunc(d, fn)
}

// cancel stops the room's timer, reporting whether one was pending
func (g *gameTimers) cancel(id model.RoomID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.timers[id]
	if !ok {
		return false
	}
	delete(g.timers, id)
	return t.Stop()
}

// forget drops the entry of a timer that has fired
func (g *gameTimers) forget(id model.RoomID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.timers, id)
}

func (g *gameTimers) has(id model.RoomID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.timers[id]
	return ok
}

func (g *gameTimers) stopAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
}
