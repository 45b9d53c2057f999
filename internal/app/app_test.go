package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/config"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/repository/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)

	router := gin.New()
	router.GET("/healthz", healthz(db))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	require.NoError(t, db.Close())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := metrics.NewMetrics("app_test")
	a := New(config.Config{}, zerolog.Nop(), m)
	c := &ServiceContainer{Router: gin.New(), Db: db}
	a.routes(c)

	m.TickRuns.Inc()
	w := httptest.NewRecorder()
	c.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "app_test_")
}

func TestStart_FailsFastOnBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{
			name: "unknown timezone",
			cfg:  config.Config{Notifier: config.Notifier{Timezone: "Nowhere/Special"}, DB: config.DB{Dialect: "sqlite"}},
		},
		{
			name: "unsupported dialect",
			cfg:  config.Config{Notifier: config.Notifier{Timezone: "UTC"}, DB: config.DB{Dialect: "mysql"}},
		},
		{
			name: "postgres without dsn",
			cfg:  config.Config{Notifier: config.Notifier{Timezone: "UTC"}, DB: config.DB{Dialect: "postgres"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.cfg, zerolog.Nop(), metrics.NewMetrics("app_test"))
			require.Error(t, a.Start(context.Background()))
		})
	}
}
