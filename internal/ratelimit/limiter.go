package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const slowWait = time.Second

// Limiter is the token bucket every outbound message passes through. The bucket
// holds burst permits and refills burst permits per window, shared by all recipients.
type Limiter struct {
	rl     *rate.Limiter
	logger zerolog.Logger
	m      *metrics.Metrics
}

func New(burst int, window time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	logger = logger.With().Str("component", "RateLimiter").Logger()
	return &Limiter{
		rl:     rate.NewLimiter(rate.Every(window/time.Duration(burst)), burst),
		logger: logger,
		m:      m,
	}
}

// Acquire blocks until a permit is available. It only gives up when ctx is done.
func (l *Limiter) Acquire(ctx context.Context, recipient int64) error {
	start := time.Now()
	if err := l.rl.Wait(ctx); err != nil {
		l.logger.Warn().Err(err).Int64("recipient", recipient).Msg("gave up waiting for send permit")
		return fmt.Errorf("acquire send permit: %w", err)
	}

	waited := time.Since(start)
	l.m.RateLimitWait.Observe(waited.Seconds())
	if waited >= slowWait {
		l.logger.Info().
			Int64("recipient", recipient).
			Dur("waited", waited).
			Msg("outbound message delayed by rate limit")
	}
	return nil
}

// Available reports the permits that could be taken right now.
func (l *Limiter) Available() float64 {
	return l.rl.Tokens()
}
