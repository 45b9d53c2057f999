package models

import "time"

// ForecastEntry is one 3-hour bucket of an upstream forecast.
type ForecastEntry struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	Condition   string    `json:"condition"`
}

// Forecast is a snapshot of the upstream series for a city, oldest bucket first.
type Forecast struct {
	City    string          `json:"city"`
	Entries []ForecastEntry `json:"entries"`
}

// Clone returns a copy that shares no memory with f.
func (f Forecast) Clone() Forecast {
	out := Forecast{City: f.City}
	if f.Entries != nil {
		out.Entries = make([]ForecastEntry, len(f.Entries))
		copy(out.Entries, f.Entries)
	}
	return out
}
