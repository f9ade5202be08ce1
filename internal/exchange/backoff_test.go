package exchange

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"arbiter/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DoublesUntilCap(t *testing.T) {
	base := time.Second
	cap := 16 * time.Second

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		16 * time.Second,
		16 * time.Second,
	}
	for attempt, want := range expected {
		assert.Equal(t, want, Backoff(attempt, base, cap), "attempt %d", attempt)
	}
}

func TestBackoff_MinOfDoubledAndCap(t *testing.T) {
	// delay(n) == min(base * 2^n, cap) for any attempt index.
	base := 250 * time.Millisecond
	cap := 5 * time.Second
	for n := 0; n < 64; n++ {
		want := cap
		if n < 32 {
			if doubled := base << uint(n); doubled < cap {
				want = doubled
			}
		}
		assert.Equal(t, want, Backoff(n, base, cap), "attempt %d", n)
	}
}

func TestBackoff_Degenerates(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(-3, time.Second, time.Minute))
	// Zero base falls back to one second.
	assert.Equal(t, time.Second, Backoff(0, 0, time.Minute))
	// Cap below base clamps to base.
	assert.Equal(t, 2*time.Second, Backoff(5, 2*time.Second, time.Second))
}

func TestFeedRuntime_NextBackoffSchedule(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	f := newFeedRuntime(logger, "test", config.FeedConfig{
		BackoffBaseMS:       1000,
		BackoffCapMS:        16000,
		HealthyResetSeconds: 30,
	})

	// Repeated short-lived connections walk the schedule from the base delay.
	attempt := 0
	flaky := time.Now()
	for _, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
		assert.Equal(t, want, f.nextBackoff(&attempt, flaky))
	}

	// A connection that outlived the reset window starts over at the base.
	healthy := time.Now().Add(-time.Minute)
	assert.Equal(t, time.Second, f.nextBackoff(&attempt, healthy))
	assert.Equal(t, 2*time.Second, f.nextBackoff(&attempt, flaky))

	// Dial failures, where no connection existed, never reset the schedule.
	assert.Equal(t, 4*time.Second, f.nextBackoff(&attempt, time.Time{}))
}
