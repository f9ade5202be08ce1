package fx

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"arbiter/internal/model"

	"github.com/shopspring/decimal"
)

// ErrNoRate is returned when no rate has ever been observed for a pair.
var ErrNoRate = errors.New("fx: no rate observed for pair")

// ErrStaleRate is returned when the current rate is older than the caller's
// maximum accepted age.
var ErrStaleRate = errors.New("fx: rate is stale")

// Cache holds the latest known conversion rate per currency pair.
// Updates replace the whole value atomically, so readers never observe a
// partially written rate. Single writer per pair, any number of readers.
type Cache struct {
	rates sync.Map // pair -> model.FxRate
}

// NewCache creates an empty fx rate cache.
func NewCache() *Cache {
	return &Cache{}
}

// Set overwrites the current rate for a pair. Non-positive rates violate the
// cache invariant and are rejected.
func (c *Cache) Set(pair string, rate decimal.Decimal, observedAt time.Time, source string) error {
	if !rate.IsPositive() {
		return fmt.Errorf("fx: rejecting non-positive rate %s for %s", rate, pair)
	}
	c.rates.Store(pair, model.FxRate{
		Pair:       pair,
		Rate:       rate,
		ObservedAt: observedAt,
		Source:     source,
	})
	return nil
}

// Get returns the current rate for a pair and its age. The second return is
// false when no rate has been observed yet.
func (c *Cache) Get(pair string) (model.FxRate, time.Duration, bool) {
	v, ok := c.rates.Load(pair)
	if !ok {
		return model.FxRate{}, 0, false
	}
	rate := v.(model.FxRate)
	return rate, time.Since(rate.ObservedAt), true
}

// GetFresh returns the current rate only if it is younger than maxAge.
// A missing or stale rate is a detectable error, never a silent default.
func (c *Cache) GetFresh(pair string, maxAge time.Duration) (model.FxRate, error) {
	rate, age, ok := c.Get(pair)
	if !ok {
		return model.FxRate{}, fmt.Errorf("%w: %s", ErrNoRate, pair)
	}
	if age > maxAge {
		return model.FxRate{}, fmt.Errorf("%w: %s is %s old, max %s", ErrStaleRate, pair, age.Round(time.Millisecond), maxAge)
	}
	return rate, nil
}
