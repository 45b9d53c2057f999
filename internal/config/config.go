package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Telegram struct {
	Token       string        `envconfig:"TELEGRAM_TOKEN" required:"true"`
	APIURL      string        `envconfig:"TELEGRAM_API_URL" default:"https://api.telegram.org"`
	PollTimeout time.Duration `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"10s"`
}

type Weather struct {
	APIKey  string        `envconfig:"WEATHER_API_KEY" required:"true"`
	APIURL  string        `envconfig:"WEATHER_API_URL" default:"https://api.openweathermap.org/data/2.5/forecast"`
	Lang    string        `envconfig:"WEATHER_LANG" default:"en"`
	Timeout time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
}

type Cache struct {
	TTL         time.Duration `envconfig:"CACHE_TTL" default:"600s"`
	RedisAddr   string        `envconfig:"REDIS_ADDR"`
	RedisDB     int           `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix string        `envconfig:"REDIS_PREFIX" default:"weather-bot:"`
}

type Retry struct {
	Attempts int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	MinDelay time.Duration `envconfig:"RETRY_MIN_DELAY" default:"4s"`
	MaxDelay time.Duration `envconfig:"RETRY_MAX_DELAY" default:"10s"`
}

type Breaker struct {
	TimeInterval time.Duration `envconfig:"BREAKER_INTERVAL" default:"30s"`
	TimeTimeOut  time.Duration `envconfig:"BREAKER_TIMEOUT" default:"10s"`
	RepeatNumber uint32        `envconfig:"BREAKER_REPEAT_NUM" default:"5"`
}

type DB struct {
	Dialect  string `envconfig:"DB_DIALECT" default:"sqlite"`
	Source   string `envconfig:"DB_NAME" default:"weather_bot.db"`
	DSN      string `envconfig:"DB_DSN"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
}

type Notifier struct {
	Timezone    string `envconfig:"NOTIFIER_TIMEZONE" default:"Europe/Moscow"`
	Workers     int    `envconfig:"NOTIFIER_WORKERS" default:"4"`
	JanitorSpec string `envconfig:"JANITOR_SPEC" default:"@every 5m"`
}

type RateLimit struct {
	Burst  int           `envconfig:"RATE_LIMIT_BURST" default:"5"`
	Window time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
}

type Bot struct {
	PendingEditTTL  time.Duration `envconfig:"PENDING_EDIT_TTL" default:"10m"`
	DefaultCities   []string      `envconfig:"DEFAULT_CITIES" default:"Moscow,Saint Petersburg,Novosibirsk,Yekaterinburg,Kazan"`
	SuggestionLimit int           `envconfig:"SUGGESTED_CITIES_LIMIT" default:"5"`
}

type Config struct {
	Telegram  Telegram
	Weather   Weather
	Cache     Cache
	Retry     Retry
	Breaker   Breaker
	DB        DB
	Notifier  Notifier
	RateLimit RateLimit
	Bot       Bot

	OpsAddr      string `envconfig:"OPS_HTTP_ADDR" default:":8080"`
	LogsPath     string `envconfig:"LOGS_PATH" default:"./log/weather-bot.log"`
	HTTPLogsPath string `envconfig:"LOGS_HTTP_PATH" default:"./log/http.log"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
}

func NewConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location resolves the notifier's reference zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Notifier.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Notifier.Timezone, err)
	}
	return loc, nil
}
