package subscriptions_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/subscriptions"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/weather"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Insert(ctx context.Context, userID int64, city string, at models.ClockTime) (int64, error) {
	args := m.Called(ctx, userID, city, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepo) ListByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Subscription), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, id int64, city string, at models.ClockTime) error {
	return m.Called(ctx, id, city, at).Error(0)
}

func (m *mockRepo) DeleteByID(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) DeleteAllByUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepo) ExistsForUser(ctx context.Context, id, userID int64) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) RecordCityUsage(ctx context.Context, userID int64, city string) error {
	return m.Called(ctx, userID, city).Error(0)
}

func (m *mockRepo) TopCities(ctx context.Context, userID int64, limit int) ([]string, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]string), args.Error(1)
}

type stubWeather struct {
	forecasts map[string]models.Forecast
	calls     int
}

func (s *stubWeather) Fetch(_ context.Context, city string, hours int) (models.Forecast, error) {
	s.calls++
	f, ok := s.forecasts[city]
	if !ok {
		return models.Forecast{}, weather.ErrCityNotFound
	}
	if n := weather.Buckets(hours); len(f.Entries) > n {
		f.Entries = f.Entries[:n]
	}
	return f, nil
}

func moscowForecast(start time.Time) models.Forecast {
	f := models.Forecast{City: "Moscow"}
	for i := range 9 {
		f.Entries = append(f.Entries, models.ForecastEntry{
			Time:        start.Add(time.Duration(i*3) * time.Hour),
			Temperature: float64(i) - 2,
			Condition:   "clouds",
		})
	}
	return f
}

func newService(t *testing.T, repo *mockRepo, w *stubWeather) *subscriptions.Service {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	edits := subscriptions.NewPendingEdits(time.Hour, nil)
	return subscriptions.NewService(repo, w, edits, subscriptions.Config{Location: loc},
		zerolog.Nop(), metrics.NewMetrics("subscriptions_test"))
}

func at(t *testing.T, s string) models.ClockTime {
	t.Helper()
	c, err := models.ParseClockTime(s)
	require.NoError(t, err)
	return c
}

func TestService_Set(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("Insert", ctx, int64(42), "Moscow", at(t, "09:30")).Return(int64(1), nil)
	svc := newService(t, repo, &stubWeather{})

	sub, err := svc.Set(ctx, 42, "09:30, Moscow")
	require.NoError(t, err)
	assert.Equal(t, models.Subscription{ID: 1, UserID: 42, City: "Moscow", NotifyAt: at(t, "09:30")}, sub)
	repo.AssertExpectations(t)
}

func TestService_Set_InvalidInputTouchesNothing(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(t, repo, &stubWeather{})

	for _, in := range []string{"9:30, Moscow", "25:00, Moscow", "09:30 Moscow", "09:30,   "} {
		_, err := svc.Set(context.Background(), 42, in)
		assert.ErrorIs(t, err, subscriptions.ErrInvalidInput, in)
	}
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SuggestCities(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when no history", func(t *testing.T) {
		repo := new(mockRepo)
		repo.On("TopCities", ctx, int64(1), 5).Return([]string{}, nil)
		svc := newService(t, repo, &stubWeather{})

		cities, err := svc.SuggestCities(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, subscriptions.DefaultCities, cities)
	})

	t.Run("history first", func(t *testing.T) {
		repo := new(mockRepo)
		repo.On("TopCities", ctx, int64(1), 5).Return([]string{"Kazan", "Oslo"}, nil)
		svc := newService(t, repo, &stubWeather{})

		cities, err := svc.SuggestCities(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"Kazan", "Oslo"}, cities)
	})
}

func TestService_EditFlow(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("ExistsForUser", ctx, int64(5), int64(42)).Return(true, nil)
	repo.On("Update", ctx, int64(5), "Kazan", at(t, "07:15")).Return(nil).Once()
	svc := newService(t, repo, &stubWeather{})

	require.NoError(t, svc.BeginEdit(ctx, 42, 5))
	assert.True(t, svc.HasPendingEdit(42))

	_, err := svc.ApplyEdit(ctx, 42, "not a time")
	require.ErrorIs(t, err, subscriptions.ErrInvalidInput)
	assert.True(t, svc.HasPendingEdit(42), "malformed input keeps the edit open")

	sub, err := svc.ApplyEdit(ctx, 42, "07:15, Kazan")
	require.NoError(t, err)
	assert.Equal(t, models.Subscription{ID: 5, UserID: 42, City: "Kazan", NotifyAt: at(t, "07:15")}, sub)
	assert.False(t, svc.HasPendingEdit(42))

	_, err = svc.ApplyEdit(ctx, 42, "07:15, Kazan")
	assert.ErrorIs(t, err, subscriptions.ErrNoPendingEdit)
	repo.AssertExpectations(t)
}

func TestService_BeginEdit_RefusesForeignSubscription(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("ExistsForUser", ctx, int64(5), int64(99)).Return(false, nil)
	svc := newService(t, repo, &stubWeather{})

	err := svc.BeginEdit(ctx, 99, 5)
	require.ErrorIs(t, err, subscriptions.ErrNotOwned)
	assert.False(t, svc.HasPendingEdit(99))
}

func TestService_ApplyEdit_SubscriptionGoneMeanwhile(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("ExistsForUser", ctx, int64(5), int64(42)).Return(true, nil).Once()
	repo.On("ExistsForUser", ctx, int64(5), int64(42)).Return(false, nil).Once()
	svc := newService(t, repo, &stubWeather{})

	require.NoError(t, svc.BeginEdit(ctx, 42, 5))
	_, err := svc.ApplyEdit(ctx, 42, "10:00, Oslo")
	require.ErrorIs(t, err, subscriptions.ErrNotOwned)
	assert.False(t, svc.HasPendingEdit(42))
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CancelEdit(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("ExistsForUser", ctx, int64(5), int64(42)).Return(true, nil)
	svc := newService(t, repo, &stubWeather{})

	assert.False(t, svc.CancelEdit(42))
	require.NoError(t, svc.BeginEdit(ctx, 42, 5))
	assert.True(t, svc.CancelEdit(42))
	assert.False(t, svc.HasPendingEdit(42))
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("ExistsForUser", ctx, int64(5), int64(42)).Return(true, nil)
	repo.On("ExistsForUser", ctx, int64(5), int64(99)).Return(false, nil)
	repo.On("DeleteByID", ctx, int64(5)).Return(nil).Once()
	svc := newService(t, repo, &stubWeather{})

	require.ErrorIs(t, svc.Delete(ctx, 99, 5), subscriptions.ErrNotOwned)
	require.NoError(t, svc.Delete(ctx, 42, 5))
	repo.AssertExpectations(t)
}

func TestService_Clear(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("DeleteAllByUser", ctx, int64(42)).Return(int64(3), nil)
	svc := newService(t, repo, &stubWeather{})

	n, err := svc.Clear(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestService_Forecast(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)
	w := &stubWeather{forecasts: map[string]models.Forecast{"Moscow": moscowForecast(start)}}
	repo := new(mockRepo)
	repo.On("RecordCityUsage", ctx, int64(42), "Moscow").Return(nil)
	repo.On("RecordCityUsage", ctx, int64(42), "Atlantis").Return(errors.New("disk full"))
	svc := newService(t, repo, w)

	text, err := svc.Forecast(ctx, 42, "  Moscow ")
	require.NoError(t, err)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "Weather forecast for Moscow for the next 24 hours:", lines[0])
	assert.Equal(t, "2024-01-10 09:00: -2.0°C, clouds", lines[1])

	text, err = svc.Forecast(ctx, 42, "Atlantis")
	require.ErrorIs(t, err, subscriptions.ErrForecastUnavailable)
	assert.Equal(t, weather.UnavailableNotice, text)

	_, err = svc.Forecast(ctx, 42, "   ")
	require.ErrorIs(t, err, subscriptions.ErrInvalidInput)
	assert.Equal(t, 2, w.calls)
	repo.AssertExpectations(t)
}
