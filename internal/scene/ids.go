package scene

import (
	"sync"

	"github.com/jonboulle/clockwork"
)

// IDSource hands out time-derived ids that never repeat, even when two
// items are created within the same millisecond.
type IDSource struct {
	mu    sync.Mutex
	clock clockwork.Clock
	last  int64
}

func NewIDSource(clock clockwork.Clock) *IDSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IDSource{clock: clock}
}

func (g *IDSource) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.clock.Now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// Observe moves the floor past ids seen in a replaced scene so locally
// created ids stay unique within the room.
func (g *IDSource) Observe(ids ...int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		if id > g.last {
			g.last = id
		}
	}
}
