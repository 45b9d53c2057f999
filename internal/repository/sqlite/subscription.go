package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const busyTimeoutMs = 5000

// SubscriptionRepository stores subscriptions and city usage in SQLite with
// structured logging and metrics.
type SubscriptionRepository struct {
	DB  *sql.DB
	log zerolog.Logger
	m   *metrics.Metrics
}

// NewSubscriptionRepository constructs a repository with logger context and metrics collector.
func NewSubscriptionRepository(
	db *sql.DB,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *SubscriptionRepository {
	logger = logger.With().Str("component", "SubscriptionRepository").Str("engine", "sqlite").Logger()
	return &SubscriptionRepository{DB: db, log: logger, m: m}
}

// Open opens (creating if needed) the SQLite database file and checks it is reachable.
func Open(ctx context.Context, name string) (*sql.DB, error) {
	if name == "" {
		return nil, errors.New("database name cannot be empty")
	}
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout(%d)", name, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (r *SubscriptionRepository) techErr(ctx context.Context, err error, errType, msg string) {
	r.log.Error().Err(err).Ctx(ctx).Msg(msg)
	r.m.TechnicalErrors.WithLabelValues(errType, "critical").Inc()
}

// Insert always creates a new row and returns its id.
func (r *SubscriptionRepository) Insert(
	ctx context.Context,
	userID int64,
	city string,
	at models.ClockTime,
) (int64, error) {
	start := time.Now()
	r.log.Debug().Ctx(ctx).
		Int64("user_id", userID).
		Str("city", city).
		Str("time", at.String()).
		Msg("inserting subscription")

	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, city, notification_time) VALUES (?, ?, ?)`,
		userID, city, at.String(),
	)
	if err != nil {
		r.techErr(ctx, err, "db_insert_error", "failed to insert subscription")
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		r.techErr(ctx, err, "db_rows_error", "failed to read inserted subscription id")
		return 0, err
	}

	r.log.Info().Ctx(ctx).
		Int64("subscription_id", id).
		Int64("user_id", userID).
		Dur("duration", time.Since(start)).
		Msg("subscription created")
	return id, nil
}

// ListByUser returns the user's subscriptions ordered by notification time, then id.
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	return r.list(ctx,
		`SELECT id, user_id, city, notification_time FROM subscriptions
		 WHERE user_id = ? ORDER BY notification_time, id`,
		userID,
	)
}

// ListDueAt returns subscriptions whose stored time equals at exactly.
func (r *SubscriptionRepository) ListDueAt(ctx context.Context, at models.ClockTime) ([]models.Subscription, error) {
	return r.list(ctx,
		`SELECT id, user_id, city, notification_time FROM subscriptions
		 WHERE notification_time = ? ORDER BY notification_time, id`,
		at.String(),
	)
}

func (r *SubscriptionRepository) list(ctx context.Context, query string, arg any) ([]models.Subscription, error) {
	start := time.Now()

	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		r.techErr(ctx, err, "db_query_error", "failed to query subscriptions")
		return nil, err
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			r.techErr(ctx, err, "db_rows_close_error", "failed to close rows after query")
		}
	}(rows)

	var subs []models.Subscription
	for rows.Next() {
		var (
			sub models.Subscription
			at  string
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.City, &at); err != nil {
			r.techErr(ctx, err, "db_scan_error", "failed to scan subscription row")
			return nil, err
		}
		if sub.NotifyAt, err = models.ParseClockTime(at); err != nil {
			r.techErr(ctx, err, "db_scan_error", "stored notification time is malformed")
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		r.techErr(ctx, err, "db_rows_error", "row iteration error")
		return nil, err
	}

	r.log.Debug().Ctx(ctx).
		Interface("filter", arg).
		Int("count", len(subs)).
		Dur("duration", time.Since(start)).
		Msg("retrieved subscriptions")
	return subs, nil
}

// Update overwrites city and time of an existing subscription.
// It returns models.ErrNotFound when id does not exist.
func (r *SubscriptionRepository) Update(
	ctx context.Context,
	id int64,
	city string,
	at models.ClockTime,
) error {
	start := time.Now()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE subscriptions SET city = ?, notification_time = ? WHERE id = ?`,
		city, at.String(), id,
	)
	if err != nil {
		r.techErr(ctx, err, "db_update_error", "failed to update subscription")
		return err
	}
	if err := r.requireAffected(ctx, res, id); err != nil {
		return err
	}

	r.log.Info().Ctx(ctx).
		Int64("subscription_id", id).
		Str("city", city).
		Str("time", at.String()).
		Dur("duration", time.Since(start)).
		Msg("subscription updated")
	return nil
}

// DeleteByID removes one subscription, models.ErrNotFound if it does not exist.
func (r *SubscriptionRepository) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		r.techErr(ctx, err, "db_delete_error", "failed to delete subscription")
		return err
	}
	if err := r.requireAffected(ctx, res, id); err != nil {
		return err
	}

	r.log.Info().Ctx(ctx).Int64("subscription_id", id).Msg("subscription deleted")
	return nil
}

func (r *SubscriptionRepository) requireAffected(ctx context.Context, res sql.Result, id int64) error {
	count, err := res.RowsAffected()
	if err != nil {
		r.techErr(ctx, err, "db_rows_error", "failed to get rows affected")
		return err
	}
	if count == 0 {
		r.log.Info().Ctx(ctx).Int64("subscription_id", id).Msg("subscription not found")
		return fmt.Errorf("subscription %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteAllByUser removes every subscription of the user and reports how many were deleted.
func (r *SubscriptionRepository) DeleteAllByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		r.techErr(ctx, err, "db_delete_error", "failed to clear subscriptions")
		return 0, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		r.techErr(ctx, err, "db_rows_error", "failed to get rows affected for clear")
		return 0, err
	}

	r.log.Info().Ctx(ctx).
		Int64("user_id", userID).
		Int64("count", count).
		Msg("subscriptions cleared")
	return count, nil
}

// ExistsForUser reports whether subscription id exists and belongs to userID.
func (r *SubscriptionRepository) ExistsForUser(ctx context.Context, id, userID int64) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM subscriptions WHERE id = ? AND user_id = ?)`,
		id, userID,
	).Scan(&exists)
	if err != nil {
		r.techErr(ctx, err, "db_query_error", "failed to check subscription owner")
		return false, err
	}
	return exists, nil
}

// RecordCityUsage increments the (user, city) lookup counter, creating it on first use.
func (r *SubscriptionRepository) RecordCityUsage(ctx context.Context, userID int64, city string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO city_usage (user_id, city, frequency) VALUES (?, ?, 1)
		 ON CONFLICT(user_id, city) DO UPDATE SET frequency = city_usage.frequency + 1`,
		userID, city,
	)
	if err != nil {
		r.techErr(ctx, err, "db_upsert_error", "failed to record city usage")
		return err
	}

	r.log.Debug().Ctx(ctx).
		Int64("user_id", userID).
		Str("city", city).
		Msg("city usage recorded")
	return nil
}

// TopCities returns at most limit cities by descending frequency; ties keep first-use order.
func (r *SubscriptionRepository) TopCities(ctx context.Context, userID int64, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT city FROM city_usage WHERE user_id = ?
		 ORDER BY frequency DESC, id ASC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		r.techErr(ctx, err, "db_query_error", "failed to query top cities")
		return nil, err
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			r.techErr(ctx, err, "db_rows_close_error", "failed to close rows after query")
		}
	}(rows)

	cities := make([]string, 0, limit)
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			r.techErr(ctx, err, "db_scan_error", "failed to scan city row")
			return nil, err
		}
		cities = append(cities, city)
	}
	if err := rows.Err(); err != nil {
		r.techErr(ctx, err, "db_rows_error", "row iteration error")
		return nil, err
	}
	return cities, nil
}
