package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/weather"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers     = 4
	defaultJanitorSpec = "@every 5m"

	kindForecast    = "forecast"
	kindUnavailable = "unavailable"
)

var errPanic = errors.New("panic while sending forecast")

type subscriptionRepository interface {
	ListDueAt(ctx context.Context, at models.ClockTime) ([]models.Subscription, error)
}

type weatherGetter interface {
	Fetch(ctx context.Context, city string, hours int) (models.Forecast, error)
}

// Sender delivers a text message to a chat. Implementations apply the outbound
// rate limit.
type Sender interface {
	SendMessage(ctx context.Context, recipient int64, text string) error
}

type Config struct {
	Location     *time.Location
	Workers      int
	HorizonHours int
	JanitorSpec  string
}

// Notifier wakes at every minute boundary of the reference zone and sends the
// forecast to each subscription due at that minute.
type Notifier struct {
	repo           subscriptionRepository
	weatherService weatherGetter
	sender         Sender
	cfg            Config
	logger         zerolog.Logger
	m              *metrics.Metrics
	cron           *cron.Cron
	now            func() time.Time
	after          func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	ticks  sync.WaitGroup
}

type Option func(*Notifier)

// WithClock replaces time.Now when computing the next tick.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// WithTimer replaces time.After when waiting for the next tick.
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(n *Notifier) { n.after = after }
}

func New(
	repo subscriptionRepository,
	ws weatherGetter,
	sender Sender,
	cfg Config,
	logger zerolog.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *Notifier {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if cfg.HorizonHours <= 0 {
		cfg.HorizonHours = weather.HorizonHours
	}
	if cfg.JanitorSpec == "" {
		cfg.JanitorSpec = defaultJanitorSpec
	}

	logger = logger.With().Str("component", "Notifier").Logger()
	n := &Notifier{
		repo:           repo,
		weatherService: ws,
		sender:         sender,
		cfg:            cfg,
		logger:         logger,
		m:              m,
		cron:           cron.New(cron.WithLocation(cfg.Location)),
		now:            time.Now,
		after:          time.After,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NextTick returns the first minute boundary strictly after now, in loc.
func NextTick(now time.Time, loc *time.Location) time.Time {
	return now.In(loc).Truncate(time.Minute).Add(time.Minute)
}

// AddHousekeeping schedules fn on the janitor schedule. fn reports how many items
// it removed.
func (n *Notifier) AddHousekeeping(job string, fn func() int) error {
	_, err := n.cron.AddFunc(n.cfg.JanitorSpec, func() {
		n.m.CronJob(job, func() {
			removed := fn()
			n.logger.Debug().Str("job", job).Int("removed", removed).Msg("housekeeping done")
		})
	})
	if err != nil {
		n.m.TechnicalErrors.WithLabelValues("cron_schedule_error", "critical").Inc()
		return fmt.Errorf("schedule %s: %w", job, err)
	}
	return nil
}

// Start launches the minute loop and the housekeeping jobs.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})

	n.cron.Start()
	go n.loop(ctx, n.done)

	n.logger.Info().
		Str("timezone", n.cfg.Location.String()).
		Int("workers", n.cfg.Workers).
		Msg("Weather notifier started")
}

// Stop stops firing and waits for the in-flight ticks and housekeeping jobs.
func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.mu.Unlock()
	if done == nil {
		return
	}

	cancel()
	<-done
	n.ticks.Wait()
	<-n.cron.Stop().Done()
	n.logger.Info().Msg("notifier stopped")
}

// loop fires each minute at most once. A tick runs in its own goroutine so a
// slow minute never delays the next boundary.
func (n *Notifier) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	var last time.Time
	for {
		now := n.now()
		next := NextTick(now, n.cfg.Location)
		if !last.IsZero() && !next.After(last) {
			next = last.Add(time.Minute)
		}
		fired := n.after(next.Sub(now))

		select {
		case <-ctx.Done():
			return
		case <-fired:
		}

		last = next
		n.ticks.Add(1)
		go func(at time.Time) {
			defer n.ticks.Done()
			n.RunTick(ctx, at)
		}(next)
	}
}

// RunTick sends forecasts to every subscription due at the minute of at. A
// failure of one subscription never affects the others.
func (n *Notifier) RunTick(ctx context.Context, at time.Time) {
	start := time.Now()
	minute := models.ClockOf(at.In(n.cfg.Location))
	n.m.TickRuns.Inc()

	subs, err := n.repo.ListDueAt(ctx, minute)
	if err != nil {
		n.logger.Error().Err(err).
			Str("minute", minute.String()).
			Msg("error fetching due subscriptions")
		n.m.TechnicalErrors.WithLabelValues("fetch_due_subs", "critical").Inc()
		return
	}
	n.m.DueSubscriptions.Observe(float64(len(subs)))

	if len(subs) == 0 {
		n.logger.Debug().Str("minute", minute.String()).Msg("nothing due")
		return
	}
	n.logger.Info().Str("minute", minute.String()).Int("count", len(subs)).Msg("fetched due subscriptions")

	var g errgroup.Group
	g.SetLimit(n.cfg.Workers)
	for _, sub := range subs {
		g.Go(func() error {
			if err := n.safeSendOne(ctx, sub); err != nil {
				n.logger.Error().Err(err).
					Int64("subscription_id", sub.ID).
					Int64("user_id", sub.UserID).
					Msg("error sending update")
				n.m.TechnicalErrors.WithLabelValues("send_one", "critical").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	dur := time.Since(start)
	n.m.TickDuration.Observe(dur.Seconds())
	n.logger.Info().Str("minute", minute.String()).Dur("duration", dur).Msg("completed tick")
}

func (n *Notifier) safeSendOne(ctx context.Context, sub models.Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return n.SendOne(ctx, sub)
}

// SendOne fetches the forecast for the subscription's city and delivers it,
// or the unavailable notice when fetching failed.
func (n *Notifier) SendOne(ctx context.Context, sub models.Subscription) error {
	n.logger.Debug().Int64("subscription_id", sub.ID).Str("city", sub.City).Msg("SendOne start")

	text, kind := weather.UnavailableNotice, kindUnavailable
	forecast, err := n.weatherService.Fetch(ctx, sub.City, n.cfg.HorizonHours)
	if err != nil {
		n.logger.Warn().Err(err).
			Int64("subscription_id", sub.ID).
			Str("city", sub.City).
			Msg("weather fetch error, sending notice")
	} else {
		text = weather.FormatForecast(sub.City, n.cfg.HorizonHours, forecast, n.cfg.Location)
		kind = kindForecast
	}

	if err := n.sender.SendMessage(ctx, sub.UserID, text); err != nil {
		n.m.TechnicalErrors.WithLabelValues("send_message_error", "critical").Inc()
		return fmt.Errorf("send to %d: %w", sub.UserID, err)
	}
	n.m.ForecastsSent.WithLabelValues(kind).Inc()

	n.logger.Info().Int64("subscription_id", sub.ID).Str("kind", kind).Msg("SendOne completed")
	return nil
}
