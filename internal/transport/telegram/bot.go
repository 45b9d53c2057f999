package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

const (
	// MaxMessageRunes is the longest text sent in one message; longer texts are split.
	MaxMessageRunes    = 4000
	defaultPollTimeout = 10 * time.Second
)

var ErrEmptyToken = errors.New("telegram token is empty")

type Config struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
}

type messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

type limiter interface {
	Acquire(ctx context.Context, recipient int64) error
}

type subscriptionService interface {
	Set(ctx context.Context, userID int64, input string) (models.Subscription, error)
	List(ctx context.Context, userID int64) ([]models.Subscription, error)
	BeginEdit(ctx context.Context, userID, subscriptionID int64) error
	HasPendingEdit(userID int64) bool
	ApplyEdit(ctx context.Context, userID int64, input string) (models.Subscription, error)
	CancelEdit(userID int64) bool
	Delete(ctx context.Context, userID, subscriptionID int64) error
	Clear(ctx context.Context, userID int64) (int64, error)
	SuggestCities(ctx context.Context, userID int64) ([]string, error)
	Forecast(ctx context.Context, userID int64, city string) (string, error)
	Location() *time.Location
}

// Bot is the Telegram side of the service: it routes commands to the
// subscription service and delivers every outbound message through the limiter.
type Bot struct {
	bot     *tele.Bot
	api     messenger
	limiter limiter
	svc     subscriptionService
	logger  zerolog.Logger
	m       *metrics.Metrics

	mu      sync.Mutex
	ctx     context.Context
	running bool
	done    chan struct{}
}

// New connects to the Bot API and registers the handlers.
func New(cfg Config, svc subscriptionService, lim limiter, logger zerolog.Logger, m *metrics.Metrics) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrEmptyToken
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}

	b := newBot(nil, svc, lim, logger, m)
	tb, err := tele.NewBot(tele.Settings{
		URL:    cfg.APIURL,
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		OnError: func(err error, _ tele.Context) {
			b.logger.Error().Err(err).Msg("telegram handler error")
			b.m.TechnicalErrors.WithLabelValues("telegram_handler_error", "warning").Inc()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	b.bot = tb
	b.api = tb
	b.register()

	b.logger.Info().Str("username", tb.Me.Username).Msg("telegram bot authorized")
	return b, nil
}

func newBot(api messenger, svc subscriptionService, lim limiter, logger zerolog.Logger, m *metrics.Metrics) *Bot {
	return &Bot{
		api:     api,
		limiter: lim,
		svc:     svc,
		logger:  logger.With().Str("component", "TelegramBot").Logger(),
		m:       m,
		ctx:     context.Background(),
	}
}

func (b *Bot) register() {
	b.bot.Handle("/start", b.command("start", b.onStart))
	b.bot.Handle("/help", b.command("help", b.onHelp))
	b.bot.Handle("/set", b.command("set", b.onSet))
	b.bot.Handle("/list", b.command("list", b.onList))
	b.bot.Handle("/edit", b.command("edit", b.onEdit))
	b.bot.Handle("/delete", b.command("delete", b.onDelete))
	b.bot.Handle("/clear", b.command("clear", b.onClear))
	b.bot.Handle("/forecast", b.command("forecast", b.onForecast))
	b.bot.Handle("/cancel", b.command("cancel", b.onCancel))
	b.bot.Handle(tele.OnText, b.command("text", b.onText))
	b.bot.Handle(tele.OnCallback, b.command("callback", b.onCallback))
}

// Start begins long polling. Handlers run with ctx until Stop.
func (b *Bot) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running || b.bot == nil {
		return
	}
	b.running = true
	b.ctx = ctx
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		b.logger.Info().Msg("polling started")
		b.bot.Start()
	}()
}

// Stop ends polling and waits for the poller to exit.
func (b *Bot) Stop() {
	b.mu.Lock()
	running, done := b.running, b.done
	b.running = false
	b.mu.Unlock()
	if !running {
		return
	}

	b.bot.Stop()
	<-done
	b.logger.Info().Msg("polling stopped")
}

func (b *Bot) baseContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// SendMessage delivers text to a chat, split into several messages when too long.
func (b *Bot) SendMessage(ctx context.Context, recipient int64, text string) error {
	return b.send(ctx, recipient, text, nil)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) error {
	chunks := splitMessage(text, MaxMessageRunes)
	for i, chunk := range chunks {
		if err := b.limiter.Acquire(ctx, chatID); err != nil {
			return err
		}

		opts := &tele.SendOptions{}
		if markup != nil && i == len(chunks)-1 {
			opts.ReplyMarkup = markup
		}
		if _, err := b.api.Send(&tele.Chat{ID: chatID}, chunk, opts); err != nil {
			b.m.TechnicalErrors.WithLabelValues("telegram_send_error", "critical").Inc()
			return fmt.Errorf("send message to %d: %w", chatID, err)
		}
	}
	return nil
}

// splitMessage cuts text into parts of at most limit runes, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if size > 0 {
			parts = append(parts, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if size+n > limit {
			flush()
		}
		for n > limit {
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}
		current.WriteString(line)
		size += n
	}
	flush()
	return parts
}
