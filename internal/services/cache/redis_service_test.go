package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisClient(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := cache.NewRedisCache[models.Forecast](rdb, "weather-bot:", 10*time.Minute, zerolog.Nop())

	forecast := models.Forecast{
		City: "Moscow",
		Entries: []models.ForecastEntry{
			{Time: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), Temperature: 12.5, Condition: "clear sky"},
		},
	}

	t.Run("Miss", func(t *testing.T) {
		_, err := c.Get(ctx, "forecast:Moscow:24")
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "forecast:Moscow:24", forecast))
		got, err := c.Get(ctx, "forecast:Moscow:24")
		require.NoError(t, err)
		assert.Equal(t, forecast.City, got.City)
		require.Len(t, got.Entries, 1)
		assert.True(t, forecast.Entries[0].Time.Equal(got.Entries[0].Time))
		assert.Equal(t, forecast.Entries[0].Condition, got.Entries[0].Condition)
	})

	t.Run("StoredUnderPrefixWithTTL", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "forecast:Perm:24", forecast))
		assert.True(t, srv.Exists("weather-bot:forecast:Perm:24"))
		assert.False(t, srv.Exists("forecast:Perm:24"))
		assert.Equal(t, 10*time.Minute, srv.TTL("weather-bot:forecast:Perm:24"))
	})

	t.Run("UndecodableEntryIsEvicted", func(t *testing.T) {
		require.NoError(t, srv.Set("weather-bot:forecast:Tver:24", "{not json"))
		_, err := c.Get(ctx, "forecast:Tver:24")
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
		assert.Contains(t, err.Error(), "forecast:Tver:24")
		assert.False(t, srv.Exists("weather-bot:forecast:Tver:24"))
	})

	t.Run("Expires", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "forecast:Kazan:24", forecast))
		srv.FastForward(10*time.Minute + time.Second)
		_, err := c.Get(ctx, "forecast:Kazan:24")
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "forecast:Oslo:24", forecast))
		require.NoError(t, c.Delete(ctx, "forecast:Oslo:24"))
		_, err := c.Get(ctx, "forecast:Oslo:24")
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	})

	t.Run("ServerDown", func(t *testing.T) {
		srv.Close()
		_, err := c.Get(ctx, "forecast:Moscow:24")
		require.Error(t, err)
		assert.NotErrorIs(t, err, cache.ErrCacheMiss)
		assert.Contains(t, err.Error(), "redis get forecast:Moscow:24")

		err = c.Set(ctx, "forecast:Moscow:24", forecast)
		assert.ErrorContains(t, err, "redis set forecast:Moscow:24")
	})
}
