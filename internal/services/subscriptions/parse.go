package subscriptions

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
)

var timeAndCity = regexp.MustCompile(`^(\d{2}):(\d{2}),\s*(.+)$`)

// ParseTimeAndCity parses "HH:MM, City". The city is kept as typed, minus
// surrounding whitespace.
func ParseTimeAndCity(input string) (models.ClockTime, string, error) {
	match := timeAndCity.FindStringSubmatch(strings.TrimSpace(input))
	if match == nil {
		return models.ClockTime{}, "", fmt.Errorf("%w: expected \"HH:MM, City\"", ErrInvalidInput)
	}

	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	at, err := models.NewClockTime(hour, minute)
	if err != nil {
		return models.ClockTime{}, "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	city := strings.TrimSpace(match[3])
	if city == "" {
		return models.ClockTime{}, "", fmt.Errorf("%w: empty city", ErrInvalidInput)
	}
	return at, city, nil
}
