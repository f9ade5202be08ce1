package market

import (
	"sync"
	"sync/atomic"

	"arbiter/internal/model"
)

// TickCache holds the latest price tick per exchange. Each exchange has a
// single writer (its feed handler); the engine loop reads without blocking.
// A stored tick is replaced as a whole value, so readers never observe a
// torn write.
type TickCache struct {
	ticks   sync.Map // exchange -> model.PriceTick
	dropped atomic.Uint64
}

// NewTickCache creates an empty tick cache.
func NewTickCache() *TickCache {
	return &TickCache{}
}

// Publish stores a tick if it is newer than the current one for its
// exchange. Out-of-sequence ticks are dropped and counted. Returns whether
// the tick was stored.
func (c *TickCache) Publish(tick model.PriceTick) bool {
	// Load-then-store is safe: only the exchange's own feed handler writes
	// its key.
	if v, ok := c.ticks.Load(tick.Exchange); ok {
		current := v.(model.PriceTick)
		if tick.Sequence <= current.Sequence {
			c.dropped.Add(1)
			return false
		}
	}
	c.ticks.Store(tick.Exchange, tick)
	return true
}

// Latest returns the most recent tick for an exchange.
func (c *TickCache) Latest(exchange string) (model.PriceTick, bool) {
	v, ok := c.ticks.Load(exchange)
	if !ok {
		return model.PriceTick{}, false
	}
	return v.(model.PriceTick), true
}

// Dropped returns how many out-of-sequence ticks were discarded.
func (c *TickCache) Dropped() uint64 {
	return c.dropped.Load()
}
