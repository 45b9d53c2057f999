package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("WEATHER_API_KEY", "key")

	cfg, err := config.NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 4*time.Second, cfg.Retry.MinDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 600*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "weather-bot:", cfg.Cache.RedisPrefix)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "sqlite", cfg.DB.Dialect)
	assert.Equal(t, "en", cfg.Weather.Lang)
	assert.Equal(t, []string{"Moscow", "Saint Petersburg", "Novosibirsk", "Yekaterinburg", "Kazan"}, cfg.Bot.DefaultCities)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", loc.String())
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("WEATHER_API_KEY", "key")
	t.Setenv("DB_DIALECT", "postgres")
	t.Setenv("NOTIFIER_TIMEZONE", "UTC")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("DEFAULT_CITIES", "Oslo,Bergen")

	cfg, err := config.NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DB.Dialect)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, []string{"Oslo", "Bergen"}, cfg.Bot.DefaultCities)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestNewConfig_MissingRequired(t *testing.T) {
	// t.Setenv restores the variable after the test
	t.Setenv("TELEGRAM_TOKEN", "")
	require.NoError(t, os.Unsetenv("TELEGRAM_TOKEN"))
	t.Setenv("WEATHER_API_KEY", "key")

	_, err := config.NewConfig()
	require.Error(t, err)
}

func TestLocation_Unknown(t *testing.T) {
	cfg := &config.Config{Notifier: config.Notifier{Timezone: "Mars/Olympus"}}
	_, err := cfg.Location()
	require.Error(t, err)
}
