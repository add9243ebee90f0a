package meshmqtt

import (
	"sync"
	"time"
)

// idGenerator produces packet IDs the way the Meshtastic firmware does:
// a small counter in the low bits with clock-derived randomness above it.
type idGenerator struct {
	counter uint32
	lock    sync.Mutex
}

func (g *idGenerator) Next() uint32 {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.counter++
	g.counter = (g.counter & 0x3FF) | (uint32(time.Now().UnixNano()&0x3FFFFF) << 10)
	return g.counter
}
