package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/cache"
)

// PendingEdits maps a user to the subscription they are editing. Entries
// expire after the configured TTL so abandoned edits do not pile up.
type PendingEdits struct {
	store *cache.MemoryCache[models.PendingEdit]
	now   func() time.Time
}

// NewPendingEdits creates the session map. now may be nil, meaning time.Now.
func NewPendingEdits(ttl time.Duration, now func() time.Time) *PendingEdits {
	if now == nil {
		now = time.Now
	}
	return &PendingEdits{
		store: cache.NewMemoryCache[models.PendingEdit](ttl, cache.WithClock(now)),
		now:   now,
	}
}

func editKey(userID int64) string {
	return fmt.Sprintf("edit:%d", userID)
}

func (p *PendingEdits) Begin(userID, subscriptionID int64) {
	_ = p.store.Set(context.Background(), editKey(userID), models.PendingEdit{
		SubscriptionID: subscriptionID,
		StartedAt:      p.now(),
	})
}

func (p *PendingEdits) Get(userID int64) (models.PendingEdit, bool) {
	edit, err := p.store.Get(context.Background(), editKey(userID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.PendingEdit{}, false
	}
	return edit, err == nil
}

// Clear ends the user's edit and reports whether one was in progress.
func (p *PendingEdits) Clear(userID int64) bool {
	_, ok := p.Get(userID)
	_ = p.store.Delete(context.Background(), editKey(userID))
	return ok
}

// Purge drops expired edits.
func (p *PendingEdits) Purge() int {
	return p.store.Purge()
}
