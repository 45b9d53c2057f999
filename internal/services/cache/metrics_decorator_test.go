package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) ObserveLatency(op string, d time.Duration) {
	m.Called(op, d)
}

func (m *mockCollector) IncrementCounter(metric string, labels ...string) {
	args := []interface{}{metric}
	for _, l := range labels {
		args = append(args, l)
	}
	m.Called(args...)
}

func TestMetricsDecorator(t *testing.T) {
	ctx := context.Background()
	col := &mockCollector{}
	col.On("ObserveLatency", mock.Anything, mock.Anything).Return()
	col.On("IncrementCounter", "cache_get", "miss").Once()
	col.On("IncrementCounter", "cache_set", "success").Once()
	col.On("IncrementCounter", "cache_get", "hit").Once()

	t.Cleanup(func() {
		col.AssertExpectations(t)
	})

	c := cache.NewMetricsDecorator[string](cache.NewMemoryCache[string](time.Minute), col)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", "v"))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Delete(ctx, "k"))
	col.AssertNumberOfCalls(t, "ObserveLatency", 4)
}
