package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/ratelimit"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/repository"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/repository/sqlite"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/subscriptions"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/weather"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type sentMessage struct {
	chatID int64
	text   string
	markup *tele.ReplyMarkup
}

type fakeAPI struct {
	mu        sync.Mutex
	sent      []sentMessage
	responded int
	err       error
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	msg := sentMessage{text: what.(string)}
	if chat, ok := to.(*tele.Chat); ok {
		msg.chatID = chat.ID
	}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			msg.markup = so.ReplyMarkup
		}
	}
	f.sent = append(f.sent, msg)
	return &tele.Message{ID: len(f.sent)}, nil
}

func (f *fakeAPI) Respond(*tele.Callback, ...*tele.CallbackResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responded++
	return nil
}

func (f *fakeAPI) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type countingLimiter struct {
	mu       sync.Mutex
	acquired []int64
	err      error
}

func (l *countingLimiter) Acquire(_ context.Context, recipient int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.acquired = append(l.acquired, recipient)
	return nil
}

func TestSplitMessage(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, splitMessage("hello", 10))
	})

	t.Run("splits on line breaks", func(t *testing.T) {
		parts := splitMessage("aaaa\nbbbb\ncccc", 10)
		assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc"}, parts)
	})

	t.Run("hard splits long lines by runes", func(t *testing.T) {
		text := strings.Repeat("°", 25)
		parts := splitMessage(text, 10)
		require.Len(t, parts, 3)
		for _, p := range parts {
			assert.LessOrEqual(t, utf8.RuneCountInString(p), 10)
		}
		assert.Equal(t, text, strings.Join(parts, ""))
	})
}

func TestSendMessage_PassesEveryChunkThroughLimiter(t *testing.T) {
	api := &fakeAPI{}
	lim := &countingLimiter{}
	b := newBot(api, nil, lim, zerolog.Nop(), metrics.NewMetrics("telegram_test"))

	text := strings.Repeat(strings.Repeat("x", 99)+"\n", 50)
	require.NoError(t, b.SendMessage(context.Background(), 42, text))

	assert.Len(t, api.sent, 2)
	assert.Equal(t, []int64{42, 42}, lim.acquired)
	for _, m := range api.sent {
		assert.Equal(t, int64(42), m.chatID)
		assert.LessOrEqual(t, utf8.RuneCountInString(m.text), MaxMessageRunes)
	}
}

func TestSendMessage_Errors(t *testing.T) {
	m := metrics.NewMetrics("telegram_test")

	b := newBot(&fakeAPI{}, nil, &countingLimiter{err: context.Canceled}, zerolog.Nop(), m)
	require.ErrorIs(t, b.SendMessage(context.Background(), 1, "hi"), context.Canceled)

	b = newBot(&fakeAPI{err: errors.New("Forbidden: bot was blocked by the user")}, nil,
		&countingLimiter{}, zerolog.Nop(), m)
	require.Error(t, b.SendMessage(context.Background(), 1, "hi"))
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, nil, nil, zerolog.Nop(), metrics.NewMetrics("telegram_test"))
	require.ErrorIs(t, err, ErrEmptyToken)
}

type stubWeather struct {
	forecasts map[string]models.Forecast
}

func (s *stubWeather) Fetch(_ context.Context, city string, _ int) (models.Forecast, error) {
	f, ok := s.forecasts[city]
	if !ok {
		return models.Forecast{}, weather.ErrCityNotFound
	}
	return f, nil
}

type harness struct {
	bot  *Bot
	api  *fakeAPI
	lim  *ratelimit.Limiter
	repo *sqlite.SubscriptionRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	m := metrics.NewMetrics("telegram_test")

	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(db, repository.DialectSqlite, zerolog.Nop()))
	repo := sqlite.NewSubscriptionRepository(db, zerolog.Nop(), m)

	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	start := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)
	f := models.Forecast{City: "Moscow"}
	for i := range 8 {
		f.Entries = append(f.Entries, models.ForecastEntry{
			Time: start.Add(time.Duration(i*3) * time.Hour), Temperature: -3, Condition: "snow",
		})
	}
	ws := &stubWeather{forecasts: map[string]models.Forecast{"Moscow": f}}

	svc := subscriptions.NewService(repo, ws, subscriptions.NewPendingEdits(time.Hour, nil),
		subscriptions.Config{Location: loc}, zerolog.Nop(), m)

	api := &fakeAPI{}
	lim := ratelimit.New(1000, time.Hour, zerolog.Nop(), m)
	return &harness{bot: newBot(api, svc, lim, zerolog.Nop(), m), api: api, lim: lim, repo: repo}
}

func (h *harness) message(name string, hnd handler, userID int64, text, payload string) {
	h.bot.handle(name, hnd, input{UserID: userID, ChatID: userID, Text: text, Payload: payload})
}

func (h *harness) callback(userID int64, data string) {
	h.bot.handle("callback", h.bot.onCallback, input{
		UserID: userID, ChatID: userID, Payload: data, Callback: &tele.Callback{Data: data},
	})
}
