package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	hoursPerDay    = 24
	minutesPerHour = 60
)

var ErrInvalidClockTime = errors.New("invalid clock time")

// ClockTime is a time of day with minute precision and no zone attached.
// It is always read in the notifier's reference zone.
type ClockTime struct {
	Hour   int
	Minute int
}

func NewClockTime(hour, minute int) (ClockTime, error) {
	if hour < 0 || hour >= hoursPerDay || minute < 0 || minute >= minutesPerHour {
		return ClockTime{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidClockTime, hour, minute)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// ParseClockTime parses the zero-padded "HH:MM" form used in storage.
func ParseClockTime(s string) (ClockTime, error) {
	if len(s) != len("15:04") || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return NewClockTime(h, m)
}

// ClockOf returns the wall-clock minute of t in t's location.
func ClockOf(t time.Time) ClockTime {
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
