package decorators

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type forecaster interface {
	Fetch(ctx context.Context, city string, hours int) (models.Forecast, error)
}

type cacheClient[T any] interface {
	Set(ctx context.Context, key string, value T) error
	Get(ctx context.Context, key string) (T, error)
}

// CachedClient serves repeated (city, hours) lookups from cache. Only successful
// fetches are stored; a hit never reaches the wrapped client. Concurrent misses
// for the same key share one upstream call.
type CachedClient struct {
	inner  forecaster
	cache  cacheClient[models.Forecast]
	logger zerolog.Logger
	group  singleflight.Group
}

func NewCachedClient(
	inner forecaster,
	cache cacheClient[models.Forecast],
	logger zerolog.Logger,
) *CachedClient {
	logger = logger.With().Str("component", "CachedClient").Logger()
	return &CachedClient{inner: inner, cache: cache, logger: logger}
}

func Key(city string, hours int) string {
	return fmt.Sprintf("forecast:%s:%d", city, hours)
}

func (s *CachedClient) Fetch(ctx context.Context, city string, hours int) (models.Forecast, error) {
	key := Key(city, hours)

	forecast, err := s.cache.Get(ctx, key)
	if err == nil {
		s.logger.Debug().
			Ctx(ctx).
			Str("key", key).
			Msg("cache hit")
		return forecast.Clone(), nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn().
			Ctx(ctx).
			Str("key", key).
			Err(err).
			Msg("cache lookup failed, falling back to upstream")
	} else {
		s.logger.Debug().
			Ctx(ctx).
			Str("key", key).
			Msg("cache miss")
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		forecast, err := s.inner.Fetch(ctx, city, hours)
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(ctx, key, forecast.Clone()); err != nil {
			s.logger.Error().
				Ctx(ctx).
				Str("key", key).
				Err(err).
				Msg("cache set failed")
		}
		return forecast, nil
	})
	if err != nil {
		return models.Forecast{}, err
	}
	if shared {
		s.logger.Debug().
			Ctx(ctx).
			Str("key", key).
			Msg("joined in-flight fetch")
	}

	forecast, ok := v.(models.Forecast)
	if !ok {
		return models.Forecast{}, fmt.Errorf("unexpected result for %s", key)
	}
	return forecast.Clone(), nil
}
