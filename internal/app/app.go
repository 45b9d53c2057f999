package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/config"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/notifier"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/ratelimit"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/repository"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/repository/postgres"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/repository/sqlite"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/cache"
	httplog "github.com/Nazarious-ucu/weather-forecast-bot/internal/services/logger"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/subscriptions"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/weather"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/weather/decorators"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/transport/telegram"
	"github.com/Nazarious-ucu/weather-forecast-bot/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

const (
	timeoutDuration = 5 * time.Second
	breakerName     = "openweathermap"
)

type subscriptionStore interface {
	subscriptions.SubscriptionRepository
	ListDueAt(ctx context.Context, at models.ClockTime) ([]models.Subscription, error)
}

type forecastCache interface {
	Set(ctx context.Context, key string, value models.Forecast) error
	Get(ctx context.Context, key string) (models.Forecast, error)
	Delete(ctx context.Context, key string) error
}

type ServiceContainer struct {
	Repo                subscriptionStore
	WeatherService      *decorators.CachedClient
	SubscriptionService *subscriptions.Service
	Limiter             *ratelimit.Limiter
	Notificator         *notifier.Notifier
	Bot                 *telegram.Bot

	Router *gin.Engine
	Srv    *http.Server
	Db     *sql.DB

	pool       *pgxpool.Pool
	redis      *redis.Client
	fileLogger *zap.Logger
}

type App struct {
	cfg config.Config
	l   zerolog.Logger
	m   *metrics.Metrics
}

func New(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics) *App {
	logger = logger.With().Str("service", "weather-bot").Timestamp().Logger()
	return &App{cfg: cfg, l: logger, m: m}
}

// Start wires every component, runs until ctx is done and shuts down.
// Any startup failure is returned without leaving resources open.
func (a *App) Start(ctx context.Context) error {
	c, err := a.init(ctx)
	if err != nil {
		return err
	}

	a.routes(c)

	c.Notificator.Start(ctx)
	c.Bot.Start(ctx)

	srvErr := make(chan error, 1)
	go func() {
		a.l.Info().Str("http_addr", a.cfg.OpsAddr).Msg("ops HTTP server listening")
		if err := c.Srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info().Msg("Shutdown signal received")
	case err, ok := <-srvErr:
		if ok {
			a.l.Error().Err(err).Msg("HTTP server error")
			a.m.TechnicalErrors.WithLabelValues("http_server_error", "critical").Inc()
			runErr = fmt.Errorf("ops http server: %w", err)
		}
	}

	a.Stop(c)
	return runErr
}

// Stop shuts components down in dependency order: producers of work first, the
// database last.
func (a *App) Stop(c *ServiceContainer) {
	a.l.Info().Msg("Stopping application")

	if c.Notificator != nil {
		c.Notificator.Stop()
	}
	if c.Bot != nil {
		c.Bot.Stop()
	}

	if c.Srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeoutDuration)
		defer cancel()
		if err := c.Srv.Shutdown(ctx); err != nil {
			a.l.Error().Err(err).Msg("HTTP shutdown error")
		} else {
			a.l.Info().Msg("HTTP server stopped")
		}
	}

	a.closeStores(c)
	a.l.Info().Msg("Application shutdown complete")
}

func (a *App) closeStores(c *ServiceContainer) {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			a.l.Error().Err(err).Msg("Redis close error")
		}
	}
	if c.Db != nil {
		if err := c.Db.Close(); err != nil {
			a.l.Error().Err(err).Msg("Database close error")
		} else {
			a.l.Info().Msg("Database closed")
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}
	if c.fileLogger != nil {
		_ = c.fileLogger.Sync()
	}
}

func (a *App) routes(c *ServiceContainer) {
	c.Router.Use(gin.Recovery(), a.m.HTTPMiddleware())
	c.Router.GET("/metrics", gin.WrapH(a.m.Handler()))
	c.Router.GET("/healthz", healthz(c.Db))
}

func healthz(db *sql.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeoutDuration)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (a *App) init(ctx context.Context) (_ *ServiceContainer, err error) {
	a.l.Info().
		Str("db_dialect", a.cfg.DB.Dialect).
		Str("timezone", a.cfg.Notifier.Timezone).
		Msg("Initializing application")

	c := &ServiceContainer{}
	defer func() {
		if err != nil {
			a.closeStores(c)
		}
	}()

	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}

	if err := a.openStore(ctx, c); err != nil {
		return nil, err
	}

	c.fileLogger, err = logger.NewFileLogger(a.cfg.HTTPLogsPath)
	if err != nil {
		return nil, fmt.Errorf("create http file logger: %w", err)
	}

	backend, memCache, err := a.forecastCache(ctx, c)
	if err != nil {
		return nil, err
	}
	c.WeatherService = a.weatherChain(c.fileLogger, backend)

	c.Limiter = ratelimit.New(a.cfg.RateLimit.Burst, a.cfg.RateLimit.Window, a.l, a.m)

	edits := subscriptions.NewPendingEdits(a.cfg.Bot.PendingEditTTL, nil)
	c.SubscriptionService = subscriptions.NewService(c.Repo, c.WeatherService, edits, subscriptions.Config{
		DefaultCities:   a.cfg.Bot.DefaultCities,
		SuggestionLimit: a.cfg.Bot.SuggestionLimit,
		Location:        loc,
	}, a.l, a.m)

	c.Bot, err = telegram.New(telegram.Config{
		Token:       a.cfg.Telegram.Token,
		APIURL:      a.cfg.Telegram.APIURL,
		PollTimeout: a.cfg.Telegram.PollTimeout,
	}, c.SubscriptionService, c.Limiter, a.l, a.m)
	if err != nil {
		return nil, err
	}

	c.Notificator = notifier.New(c.Repo, c.WeatherService, c.Bot, notifier.Config{
		Location:     loc,
		Workers:      a.cfg.Notifier.Workers,
		HorizonHours: weather.HorizonHours,
		JanitorSpec:  a.cfg.Notifier.JanitorSpec,
	}, a.l, a.m)

	if err := c.Notificator.AddHousekeeping("pending_edits_purge", c.SubscriptionService.PurgeExpiredEdits); err != nil {
		return nil, err
	}
	if memCache != nil {
		if err := c.Notificator.AddHousekeeping("forecast_cache_purge", memCache.Purge); err != nil {
			return nil, err
		}
	}

	c.Router = gin.New()
	c.Srv = &http.Server{
		Addr:              a.cfg.OpsAddr,
		Handler:           c.Router,
		ReadHeaderTimeout: timeoutDuration,
	}

	return c, nil
}

func (a *App) openStore(ctx context.Context, c *ServiceContainer) error {
	openCtx, cancel := context.WithTimeout(ctx, timeoutDuration)
	defer cancel()

	switch a.cfg.DB.Dialect {
	case repository.DialectSqlite:
		db, err := sqlite.Open(openCtx, a.cfg.DB.Source)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		c.Db = db
		c.Repo = sqlite.NewSubscriptionRepository(db, a.l, a.m)
	case repository.DialectPostgres:
		pool, err := postgres.Connect(openCtx, a.cfg.DB.DSN, a.cfg.DB.MaxConns)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		c.pool = pool
		c.Db = postgres.SQLDB(pool)
		c.Repo = postgres.NewSubscriptionRepository(pool, a.l, a.m)
	default:
		return fmt.Errorf("unsupported DB_DIALECT %q", a.cfg.DB.Dialect)
	}

	if err := repository.Migrate(c.Db, a.cfg.DB.Dialect, a.l); err != nil {
		return err
	}
	if err := a.m.RegisterDB(c.Db, a.cfg.DB.Dialect); err != nil {
		return fmt.Errorf("register db metrics: %w", err)
	}
	return nil
}

// forecastCache returns Redis when configured, otherwise the in-process cache,
// which is also returned so its expired entries can be purged.
func (a *App) forecastCache(
	ctx context.Context,
	c *ServiceContainer,
) (*cache.MetricsDecorator[models.Forecast], *cache.MemoryCache[models.Forecast], error) {
	var (
		backend forecastCache
		mem     *cache.MemoryCache[models.Forecast]
	)

	if a.cfg.Cache.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Cache.RedisAddr, DB: a.cfg.Cache.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, timeoutDuration)
		defer cancel()
		if err := c.redis.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		backend = cache.NewRedisCache[models.Forecast](c.redis, a.cfg.Cache.RedisPrefix, a.cfg.Cache.TTL, a.l)
		a.l.Info().Str("addr", a.cfg.Cache.RedisAddr).Msg("forecast cache: redis")
	} else {
		mem = cache.NewMemoryCache[models.Forecast](a.cfg.Cache.TTL)
		backend = mem
		a.l.Info().Msg("forecast cache: in-memory")
	}

	return cache.NewMetricsDecorator[models.Forecast](backend, a.m), mem, nil
}

// weatherChain builds cache -> retry -> breaker -> HTTP.
func (a *App) weatherChain(fileLogger *zap.Logger, backend *cache.MetricsDecorator[models.Forecast]) *decorators.CachedClient {
	httpClient := &http.Client{
		Timeout:   a.cfg.Weather.Timeout,
		Transport: httplog.NewRoundTripper(fileLogger),
	}

	owm := weather.NewClientOpenWeatherMap(a.cfg.Weather.APIKey, a.cfg.Weather.APIURL, a.cfg.Weather.Lang, httpClient, a.l)
	breaker := weather.NewBreakerClient(breakerName, weather.BreakerConfig{
		TimeInterval: a.cfg.Breaker.TimeInterval,
		TimeTimeOut:  a.cfg.Breaker.TimeTimeOut,
		RepeatNumber: a.cfg.Breaker.RepeatNumber,
	}, owm, a.l)
	retrying := weather.NewRetryClient(weather.RetryConfig{
		Attempts: a.cfg.Retry.Attempts,
		MinDelay: a.cfg.Retry.MinDelay,
		MaxDelay: a.cfg.Retry.MaxDelay,
	}, breaker, a.l, a.m)

	return decorators.NewCachedClient(retrying, backend, a.l)
}
