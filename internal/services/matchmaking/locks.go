package matchmaking

import (
	"hash/fnv"
	"sync"

	"github.com/mcoot/roommatch/internal/model"
)

const lockStripes = 64

// playerLocks serializes Join and Leave for the same player within a process
type playerLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *playerLocks) lock(id model.PlayerID) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
