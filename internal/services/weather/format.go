package weather

import (
	"fmt"
	"strings"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
)

// UnavailableNotice replaces the forecast when fetching failed.
const UnavailableNotice = "Could not get weather data. Please try again later."

const entryTimeLayout = "2006-01-02 15:04"

// FormatForecast renders a header and one "{time}: {temp}°C, {condition}" line
// per bucket, timestamps shown in loc.
func FormatForecast(city string, hours int, f models.Forecast, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Weather forecast for %s for the next %d hours:", city, hours)
	for _, e := range f.Entries {
		fmt.Fprintf(&b, "\n%s: %.1f°C, %s", e.Time.In(loc).Format(entryTimeLayout), e.Temperature, e.Condition)
	}
	return b.String()
}
