package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/weather"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotOwned            = errors.New("subscription not found")
	ErrNoPendingEdit       = errors.New("no edit in progress")
	ErrForecastUnavailable = errors.New("forecast unavailable")
)

// DefaultCities are suggested to users without any recorded lookups.
var DefaultCities = []string{"Moscow", "Saint Petersburg", "Novosibirsk", "Yekaterinburg", "Kazan"}

type SubscriptionRepository interface {
	Insert(ctx context.Context, userID int64, city string, at models.ClockTime) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Subscription, error)
	Update(ctx context.Context, id int64, city string, at models.ClockTime) error
	DeleteByID(ctx context.Context, id int64) error
	DeleteAllByUser(ctx context.Context, userID int64) (int64, error)
	ExistsForUser(ctx context.Context, id, userID int64) (bool, error)
	RecordCityUsage(ctx context.Context, userID int64, city string) error
	TopCities(ctx context.Context, userID int64, limit int) ([]string, error)
}

type forecaster interface {
	Fetch(ctx context.Context, city string, hours int) (models.Forecast, error)
}

type Config struct {
	DefaultCities   []string
	SuggestionLimit int
	Location        *time.Location
}

// Service implements the chat use cases on top of the store and the weather client.
type Service struct {
	repo    SubscriptionRepository
	weather forecaster
	edits   *PendingEdits
	cfg     Config
	logger  zerolog.Logger
	m       *metrics.Metrics
}

func NewService(
	repo SubscriptionRepository,
	weather forecaster,
	edits *PendingEdits,
	cfg Config,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Service {
	if len(cfg.DefaultCities) == 0 {
		cfg.DefaultCities = DefaultCities
	}
	if cfg.SuggestionLimit <= 0 {
		cfg.SuggestionLimit = len(cfg.DefaultCities)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger = logger.With().Str("component", "SubscriptionService").Logger()
	return &Service{repo: repo, weather: weather, edits: edits, cfg: cfg, logger: logger, m: m}
}

func (s *Service) Location() *time.Location {
	return s.cfg.Location
}

func (s *Service) userMistake(ctx context.Context, userID int64, err error, errType string) {
	s.logger.Info().Ctx(ctx).Err(err).Int64("user_id", userID).Msg("rejected user request")
	s.m.BusinessErrors.WithLabelValues(errType, "warning").Inc()
}

// Set parses "HH:MM, City" and stores a new subscription.
func (s *Service) Set(ctx context.Context, userID int64, input string) (models.Subscription, error) {
	at, city, err := ParseTimeAndCity(input)
	if err != nil {
		s.userMistake(ctx, userID, err, "invalid_input")
		return models.Subscription{}, err
	}

	id, err := s.repo.Insert(ctx, userID, city, at)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	s.m.SubscriptionsCreated.Inc()

	return models.Subscription{ID: id, UserID: userID, City: city, NotifyAt: at}, nil
}

// List returns the user's subscriptions ordered by notification time.
func (s *Service) List(ctx context.Context, userID int64) ([]models.Subscription, error) {
	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Service) checkOwner(ctx context.Context, userID, subscriptionID int64) error {
	ok, err := s.repo.ExistsForUser(ctx, subscriptionID, userID)
	if err != nil {
		return fmt.Errorf("check owner: %w", err)
	}
	if !ok {
		err := fmt.Errorf("%w: id %d", ErrNotOwned, subscriptionID)
		s.userMistake(ctx, userID, err, "not_owned")
		return err
	}
	return nil
}

// BeginEdit remembers the selected subscription after checking it belongs to the user.
func (s *Service) BeginEdit(ctx context.Context, userID, subscriptionID int64) error {
	if err := s.checkOwner(ctx, userID, subscriptionID); err != nil {
		return err
	}
	s.edits.Begin(userID, subscriptionID)
	s.m.PendingEditsStarted.Inc()

	s.logger.Debug().Ctx(ctx).
		Int64("user_id", userID).
		Int64("subscription_id", subscriptionID).
		Msg("edit started")
	return nil
}

func (s *Service) HasPendingEdit(userID int64) bool {
	_, ok := s.edits.Get(userID)
	return ok
}

// ApplyEdit completes the user's pending edit with "HH:MM, City". Malformed
// input keeps the edit open; every other outcome ends it.
func (s *Service) ApplyEdit(ctx context.Context, userID int64, input string) (models.Subscription, error) {
	edit, ok := s.edits.Get(userID)
	if !ok {
		return models.Subscription{}, ErrNoPendingEdit
	}

	at, city, err := ParseTimeAndCity(input)
	if err != nil {
		s.userMistake(ctx, userID, err, "invalid_input")
		return models.Subscription{}, err
	}

	defer s.edits.Clear(userID)

	if err := s.checkOwner(ctx, userID, edit.SubscriptionID); err != nil {
		s.m.PendingEditsCompleted.WithLabelValues("refused").Inc()
		return models.Subscription{}, err
	}

	if err := s.repo.Update(ctx, edit.SubscriptionID, city, at); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.m.PendingEditsCompleted.WithLabelValues("refused").Inc()
			return models.Subscription{}, fmt.Errorf("%w: %w", ErrNotOwned, err)
		}
		s.m.PendingEditsCompleted.WithLabelValues("error").Inc()
		return models.Subscription{}, fmt.Errorf("update subscription: %w", err)
	}
	s.m.PendingEditsCompleted.WithLabelValues("applied").Inc()

	return models.Subscription{ID: edit.SubscriptionID, UserID: userID, City: city, NotifyAt: at}, nil
}

// CancelEdit drops the pending edit, reporting whether there was one.
func (s *Service) CancelEdit(userID int64) bool {
	ok := s.edits.Clear(userID)
	if ok {
		s.m.PendingEditsCompleted.WithLabelValues("canceled").Inc()
	}
	return ok
}

// Delete removes one of the user's subscriptions.
func (s *Service) Delete(ctx context.Context, userID, subscriptionID int64) error {
	if err := s.checkOwner(ctx, userID, subscriptionID); err != nil {
		return err
	}
	if err := s.repo.DeleteByID(ctx, subscriptionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrNotOwned, err)
		}
		return fmt.Errorf("delete subscription: %w", err)
	}
	s.m.SubscriptionsDeleted.Inc()
	return nil
}

// Clear removes all of the user's subscriptions and returns how many there were.
func (s *Service) Clear(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear subscriptions: %w", err)
	}
	s.m.SubscriptionsDeleted.Add(float64(n))
	return n, nil
}

// SuggestCities returns the user's most requested cities, or the default list
// when the user has none.
func (s *Service) SuggestCities(ctx context.Context, userID int64) ([]string, error) {
	cities, err := s.repo.TopCities(ctx, userID, s.cfg.SuggestionLimit)
	if err != nil {
		return nil, fmt.Errorf("top cities: %w", err)
	}
	if len(cities) == 0 {
		out := make([]string, len(s.cfg.DefaultCities))
		copy(out, s.cfg.DefaultCities)
		return out, nil
	}
	return cities, nil
}

// Forecast counts the lookup towards the user's suggestions and renders the
// forecast for city. On fetch failure it returns the unavailable notice along
// with ErrForecastUnavailable.
func (s *Service) Forecast(ctx context.Context, userID int64, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		err := fmt.Errorf("%w: empty city", ErrInvalidInput)
		s.userMistake(ctx, userID, err, "invalid_input")
		return "", err
	}

	if err := s.repo.RecordCityUsage(ctx, userID, city); err != nil {
		s.logger.Error().Ctx(ctx).Err(err).
			Int64("user_id", userID).
			Str("city", city).
			Msg("failed to record city usage")
	} else {
		s.m.CityUsageRecorded.Inc()
	}

	f, err := s.weather.Fetch(ctx, city, weather.HorizonHours)
	if err != nil {
		s.logger.Warn().Ctx(ctx).Err(err).
			Int64("user_id", userID).
			Str("city", city).
			Msg("forecast unavailable")
		return weather.UnavailableNotice, fmt.Errorf("%w: %w", ErrForecastUnavailable, err)
	}
	return weather.FormatForecast(city, weather.HorizonHours, f, s.cfg.Location), nil
}

// PurgeExpiredEdits is run by the housekeeping job.
func (s *Service) PurgeExpiredEdits() int {
	return s.edits.Purge()
}
