package weather

import (
	"context"
	"errors"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

type RetryConfig struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// RetryClient calls the wrapped client at most Attempts times, sleeping an
// exponentially growing delay between MinDelay and MaxDelay after each failure.
type RetryClient struct {
	cfg     RetryConfig
	wrapped client
	logger  zerolog.Logger
	m       *metrics.Metrics
}

func NewRetryClient(cfg RetryConfig, wrapped client, logger zerolog.Logger, m *metrics.Metrics) *RetryClient {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Millisecond
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	logger = logger.With().Str("component", "RetryClient").Logger()
	return &RetryClient{cfg: cfg, wrapped: wrapped, logger: logger, m: m}
}

func (r *RetryClient) backoff() retry.Backoff {
	b := retry.NewExponential(r.cfg.MinDelay)
	b = retry.WithCappedDuration(r.cfg.MaxDelay, b)
	return retry.WithMaxRetries(uint64(r.cfg.Attempts-1), b)
}

func (r *RetryClient) Fetch(ctx context.Context, city string, hours int) (models.Forecast, error) {
	var (
		result  models.Forecast
		attempt int
	)

	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.m.UpstreamRetries.Inc()
		}

		f, err := r.wrapped.Fetch(ctx, city, hours)
		if err == nil {
			result = f
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		r.logger.Warn().
			Err(err).
			Str("city", city).
			Int("attempt", attempt).
			Int("max_attempts", r.cfg.Attempts).
			Msg("forecast fetch attempt failed")
		return retry.RetryableError(err)
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error().
				Err(err).
				Str("city", city).
				Int("attempts", attempt).
				Msg("giving up on forecast fetch")
			r.m.TechnicalErrors.WithLabelValues("weather_fetch_error", "warning").Inc()
		}
		return models.Forecast{}, err
	}
	return result, nil
}
