package fx

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetFresh(t *testing.T) {
	cache := NewCache()

	t.Run("missing pair", func(t *testing.T) {
		_, err := cache.GetFresh("USDT/KRW", time.Minute)
		assert.ErrorIs(t, err, ErrNoRate)
	})

	t.Run("fresh rate", func(t *testing.T) {
		err := cache.Set("USDT/KRW", decimal.NewFromInt(1300), time.Now(), "upbit")
		require.NoError(t, err)

		rate, err := cache.GetFresh("USDT/KRW", time.Minute)
		require.NoError(t, err)
		assert.True(t, rate.Rate.Equal(decimal.NewFromInt(1300)))
		assert.Equal(t, "upbit", rate.Source)
	})

	t.Run("stale after max age", func(t *testing.T) {
		// Observed 61 seconds ago with a 60 second bound.
		err := cache.Set("USDT/KRW", decimal.NewFromInt(1300), time.Now().Add(-61*time.Second), "upbit")
		require.NoError(t, err)

		_, err = cache.GetFresh("USDT/KRW", 60*time.Second)
		assert.ErrorIs(t, err, ErrStaleRate)
	})

	t.Run("overwrite refreshes age", func(t *testing.T) {
		require.NoError(t, cache.Set("USDT/KRW", decimal.NewFromInt(1305), time.Now(), "upbit"))

		rate, err := cache.GetFresh("USDT/KRW", 60*time.Second)
		require.NoError(t, err)
		assert.True(t, rate.Rate.Equal(decimal.NewFromInt(1305)))
	})
}

func TestCache_RejectsNonPositiveRate(t *testing.T) {
	cache := NewCache()

	assert.Error(t, cache.Set("USDT/KRW", decimal.Zero, time.Now(), "upbit"))
	assert.Error(t, cache.Set("USDT/KRW", decimal.NewFromInt(-1), time.Now(), "upbit"))

	_, _, ok := cache.Get("USDT/KRW")
	assert.False(t, ok)
}

func TestCache_GetReportsAge(t *testing.T) {
	cache := NewCache()
	require.NoError(t, cache.Set("USDT/KRW", decimal.NewFromInt(1300), time.Now().Add(-2*time.Second), "upbit"))

	_, age, ok := cache.Get("USDT/KRW")
	require.True(t, ok)
	assert.GreaterOrEqual(t, age, 2*time.Second)
	assert.Less(t, age, 3*time.Second)
}
