package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

type BreakerConfig struct {
	TimeInterval time.Duration
	TimeTimeOut  time.Duration
	RepeatNumber uint32
}

// BreakerClient stops calling the upstream after RepeatNumber consecutive
// failures until TimeTimeOut elapses. An open breaker fails the call. An unknown
// city is the caller's mistake and never counts as a failure.
type BreakerClient struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	wrapped client
}

func NewBreakerClient(name string, cfg BreakerConfig, wrapped client, logger zerolog.Logger) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.TimeInterval,
		Timeout:     cfg.TimeTimeOut,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.RepeatNumber
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCityNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &BreakerClient{
		name:    name,
		cb:      gobreaker.NewCircuitBreaker(settings),
		wrapped: wrapped,
	}
}

func (b *BreakerClient) Fetch(ctx context.Context, city string, hours int) (models.Forecast, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.Fetch(ctx, city, hours)
	})
	if err != nil {
		return models.Forecast{},
			fmt.Errorf("%s unavailable: %w", b.name, err)
	}
	res, ok := result.(models.Forecast)
	if !ok {
		return models.Forecast{},
			fmt.Errorf("%s returned unexpected result", b.name)
	}
	return res, nil
}
