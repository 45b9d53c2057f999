package weather

import (
	"context"
	"net/http"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
)

// HorizonHours is the forecast window sent with every scheduled notification.
const HorizonHours = 24

const bucketHours = 3

type client interface {
	Fetch(ctx context.Context, city string, hours int) (models.Forecast, error)
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Buckets is the number of 3-hour entries covering hours.
func Buckets(hours int) int {
	if hours <= 0 {
		return 0
	}
	return (hours + bucketHours - 1) / bucketHours
}
