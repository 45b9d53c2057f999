package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/metrics"
	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// SubscriptionRepository is the PostgreSQL engine of the subscription store.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
	m    *metrics.Metrics
}

func NewSubscriptionRepository(
	pool *pgxpool.Pool,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *SubscriptionRepository {
	logger = logger.With().Str("component", "SubscriptionRepository").Str("engine", "postgres").Logger()
	return &SubscriptionRepository{pool: pool, log: logger, m: m}
}

// Connect creates a connection pool and verifies the server is reachable.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn cannot be empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// SQLDB exposes the pool through database/sql for migrations and pool stats.
func SQLDB(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

func (r *SubscriptionRepository) techErr(ctx context.Context, err error, errType, msg string) {
	r.log.Error().Err(err).Ctx(ctx).Msg(msg)
	r.m.TechnicalErrors.WithLabelValues(errType, "critical").Inc()
}

func (r *SubscriptionRepository) Insert(
	ctx context.Context,
	userID int64,
	city string,
	at models.ClockTime,
) (int64, error) {
	start := time.Now()

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, city, notification_time) VALUES ($1, $2, $3) RETURNING id`,
		userID, city, at.String(),
	).Scan(&id)
	if err != nil {
		r.techErr(ctx, err, "db_insert_error", "failed to insert subscription")
		return 0, err
	}

	r.log.Info().Ctx(ctx).
		Int64("subscription_id", id).
		Int64("user_id", userID).
		Dur("duration", time.Since(start)).
		Msg("subscription created")
	return id, nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	return r.list(ctx,
		`SELECT id, user_id, city, notification_time FROM subscriptions
		 WHERE user_id = $1 ORDER BY notification_time, id`,
		userID,
	)
}

func (r *SubscriptionRepository) ListDueAt(ctx context.Context, at models.ClockTime) ([]models.Subscription, error) {
	return r.list(ctx,
		`SELECT id, user_id, city, notification_time FROM subscriptions
		 WHERE notification_time = $1 ORDER BY notification_time, id`,
		at.String(),
	)
}

func (r *SubscriptionRepository) list(ctx context.Context, query string, arg any) ([]models.Subscription, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		r.techErr(ctx, err, "db_query_error", "failed to query subscriptions")
		return nil, err
	}
	defer rows.Close()

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
	return subs, nil
}

func (r *SubscriptionRepository) Update(
	ctx context.Context,
	id int64,
	city string,
	at models.ClockTime,
) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subscriptions SET city = $1, notification_time = $2 WHERE id = $3`,
		city, at.String(), id,
	)
	if err != nil {
		r.techErr(ctx, err, "db_update_error", "failed to update subscription")
		return err
	}
	if err := r.requireAffected(ctx, tag, id); err != nil {
		return err
	}

	r.log.Info().Ctx(ctx).Int64("subscription_id", id).Msg("subscription updated")
	return nil
}

func (r *SubscriptionRepository) DeleteByID(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		r.techErr(ctx, err, "db_delete_error", "failed to delete subscription")
		return err
	}
	if err := r.requireAffected(ctx, tag, id); err != nil {
		return err
	}

	r.log.Info().Ctx(ctx).Int64("subscription_id", id).Msg("subscription deleted")
	return nil
}

func (r *SubscriptionRepository) requireAffected(ctx context.Context, tag pgconn.CommandTag, id int64) error {
	if tag.RowsAffected() == 0 {
		r.log.Info().Ctx(ctx).Int64("subscription_id", id).Msg("subscription not found")
		return fmt.Errorf("subscription %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *SubscriptionRepository) DeleteAllByUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		r.techErr(ctx, err, "db_delete_error", "failed to clear subscriptions")
		return 0, err
	}

	r.log.Info().Ctx(ctx).
		Int64("user_id", userID).
		Int64("count", tag.RowsAffected()).
		Msg("subscriptions cleared")
	return tag.RowsAffected(), nil
}

func (r *SubscriptionRepository) ExistsForUser(ctx context.Context, id, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM subscriptions WHERE id = $1 AND user_id = $2)`,
		id, userID,
	).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		r.techErr(ctx, err, "db_query_error", "failed to check subscription owner")
		return false, err
	}
	return exists, nil
}

func (r *SubscriptionRepository) RecordCityUsage(ctx context.Context, userID int64, city string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO city_usage (user_id, city, frequency) VALUES ($1, $2, 1)
		 ON CONFLICT (user_id, city) DO UPDATE SET frequency = city_usage.frequency + 1`,
		userID, city,
	)
	if err != nil {
		r.techErr(ctx, err, "db_upsert_error", "failed to record city usage")
		return err
	}
	return nil
}

func (r *SubscriptionRepository) TopCities(ctx context.Context, userID int64, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT city FROM city_usage WHERE user_id = $1
		 ORDER BY frequency DESC, id ASC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		r.techErr(ctx, err, "db_query_error", "failed to query top cities")
		return nil, err
	}

	cities, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		r.techErr(ctx, err, "db_scan_error", "failed to collect city rows")
		return nil, err
	}
	if cities == nil {
		cities = []string{}
	}
	return cities, nil
}
