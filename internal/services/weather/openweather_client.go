package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/rs/zerolog"
)

var (
	ErrCityNotFound     = errors.New("city not found")
	ErrMalformedPayload = errors.New("malformed forecast payload")
)

type apiResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp *float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

// ClientOpenWeatherMap fetches the 5 day / 3 hour forecast from OpenWeatherMap.
type ClientOpenWeatherMap struct {
	APIKey string
	apiURL string
	lang   string
	client HTTPClient
	logger zerolog.Logger
}

// NewClientOpenWeatherMap constructs a new OpenWeatherMap client.
func NewClientOpenWeatherMap(apiKey, apiURL, lang string,
	httpClient HTTPClient, logger zerolog.Logger,
) *ClientOpenWeatherMap {
	logger = logger.With().Str("component", "OpenWeatherMap").Logger()
	return &ClientOpenWeatherMap{APIKey: apiKey, apiURL: apiURL, lang: lang, client: httpClient, logger: logger}
}

func (s *ClientOpenWeatherMap) requestURL(city string, buckets int) (string, error) {
	u, err := url.Parse(s.apiURL)
	if err != nil {
		return "", fmt.Errorf("parse OpenWeatherMap url: %w", err)
	}
	q := u.Query()
	q.Set("q", city)
	q.Set("units", "metric")
	q.Set("cnt", strconv.Itoa(buckets))
	if s.lang != "" {
		q.Set("lang", s.lang)
	}
	q.Set("appid", s.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch retrieves the forecast for city truncated to the buckets covering hours.
func (s *ClientOpenWeatherMap) Fetch(ctx context.Context, city string, hours int) (models.Forecast, error) {
	start := time.Now()
	buckets := Buckets(hours)

	reqURL, err := s.requestURL(city, buckets)
	if err != nil {
		return models.Forecast{}, err
	}

	s.logger.Debug().
		Str("city", city).
		Int("hours", hours).
		Msg("starting OpenWeatherMap request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("city", city).
			Msg("failed to create HTTP request")
		return models.Forecast{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("city", city).
			Msg("error sending HTTP request to OpenWeatherMap")
		return models.Forecast{}, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Error().
				Err(cerr).
				Str("city", city).
				Msg("failed to close response body")
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		s.logger.Warn().Str("city", city).Msg("OpenWeatherMap does not know the city")
		return models.Forecast{}, fmt.Errorf("%w: %s", ErrCityNotFound, city)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		s.logger.Warn().
			Str("city", city).
			Str("status", resp.Status).
			Msg("OpenWeatherMap API returned non-2xx status")
		return models.Forecast{}, fmt.Errorf("OpenWeatherAPI error: status %s", resp.Status)
	}

	var raw apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		s.logger.Error().
			Err(err).
			Str("city", city).
			Msg("failed to decode OpenWeatherMap response")
		return models.Forecast{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	forecast, err := toForecast(city, raw, buckets)
	if err != nil {
		s.logger.Error().Err(err).Str("city", city).Msg("unexpected OpenWeatherMap payload")
		return models.Forecast{}, err
	}

	s.logger.Info().
		Str("city", city).
		Int("entries", len(forecast.Entries)).
		Dur("duration", time.Since(start)).
		Msg("successfully fetched forecast")
	return forecast, nil
}

func toForecast(city string, raw apiResponse, buckets int) (models.Forecast, error) {
	if len(raw.List) == 0 {
		return models.Forecast{}, fmt.Errorf("%w: empty list", ErrMalformedPayload)
	}
	items := raw.List
	if len(items) > buckets {
		items = items[:buckets]
	}

	entries := make([]models.ForecastEntry, 0, len(items))
	for i, item := range items {
		if len(item.Weather) == 0 || item.Main.Temp == nil || item.Dt == 0 {
			return models.Forecast{}, fmt.Errorf("%w: entry %d is incomplete", ErrMalformedPayload, i)
		}
		entries = append(entries, models.ForecastEntry{
			Time:        time.Unix(item.Dt, 0).UTC(),
			Temperature: *item.Main.Temp,
			Condition:   item.Weather[0].Description,
		})
	}
	return models.Forecast{City: city, Entries: entries}, nil
}
