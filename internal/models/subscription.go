package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by the store when a subscription id does not exist.
var ErrNotFound = errors.New("subscription not found")

// Subscription is a standing request to receive a daily forecast for City at NotifyAt.
type Subscription struct {
	ID       int64
	UserID   int64
	City     string
	NotifyAt ClockTime
}

// PendingEdit remembers which subscription a user selected for editing.
type PendingEdit struct {
	SubscriptionID int64     `json:"subscription_id"`
	StartedAt      time.Time `json:"started_at"`
}
