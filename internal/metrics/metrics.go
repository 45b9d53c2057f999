package metrics

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const divisor = 100

// Metrics defines all Prometheus metrics for the weather bot.
type Metrics struct {
	Registry *prometheus.Registry

	// RED (Rate, Errors, Duration) for the ops HTTP server
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPRequestDuration  *prometheus.HistogramVec

	// Business metrics
	CommandsTotal         *prometheus.CounterVec // by command
	SubscriptionsCreated  prometheus.Counter
	SubscriptionsDeleted  prometheus.Counter
	ForecastsSent         *prometheus.CounterVec // by kind: forecast, unavailable
	DueSubscriptions      prometheus.Histogram
	CityUsageRecorded     prometheus.Counter
	PendingEditsStarted   prometheus.Counter
	PendingEditsCompleted *prometheus.CounterVec // by result

	// Scheduler metrics
	TickRuns        prometheus.Counter
	TickDuration    prometheus.Histogram
	CronRuns        *prometheus.CounterVec // by job
	CronRunDuration *prometheus.HistogramVec

	// Outbound
	RateLimitWait   prometheus.Histogram
	UpstreamRetries prometheus.Counter

	// Cache
	CacheOpDuration *prometheus.HistogramVec
	CacheOps        *prometheus.CounterVec

	// System metrics
	ServiceUptime prometheus.Gauge

	// Errors metrics
	BusinessErrors  *prometheus.CounterVec
	TechnicalErrors *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics under the given namespace
// on a private registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	errorLabels := []string{"error_type", "severity"}
	m := &Metrics{
		Registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests total",
			},
			[]string{"method", "endpoint", "status_class"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "In-flight HTTP requests",
			},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Chat commands handled",
			},
			[]string{"command"},
		),
		SubscriptionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_created_total",
				Help:      "Total subscriptions created",
			},
		),
		SubscriptionsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_deleted_total",
				Help:      "Total subscriptions deleted, individually or by clear",
			},
		),
		ForecastsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecasts_sent_total",
				Help:      "Scheduled messages delivered",
			},
			[]string{"kind"},
		),
		DueSubscriptions: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "due_subscriptions",
				Help:      "Subscriptions due per tick",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		CityUsageRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "city_usage_recorded_total",
				Help:      "Forecast lookups counted towards city suggestions",
			},
		),
		PendingEditsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pending_edits_started_total",
				Help:      "Edits started by selecting a subscription",
			},
		),
		PendingEditsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pending_edits_completed_total",
				Help:      "Edits finished, by result",
			},
			[]string{"result"},
		),

		TickRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tick_runs_total",
				Help:      "Scheduler ticks executed",
			},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Duration of scheduler ticks",
				Buckets:   prometheus.DefBuckets,
			},
		),
		CronRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_runs_total",
				Help:      "Housekeeping job executions",
			},
			[]string{"job"},
		),
		CronRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cron_run_duration_seconds",
				Help:      "Duration of housekeeping jobs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),

		RateLimitWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_limit_wait_seconds",
				Help:      "Time spent waiting for an outbound message permit",
				Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 12, 30, 60, 120, 300},
			},
		),
		UpstreamRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_retries_total",
				Help:      "Weather upstream attempts beyond the first",
			},
		),

		CacheOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_operation_duration_seconds",
				Help:      "Cache operation latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Cache operation counts",
			},
			[]string{"operation", "result"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "service_start_time_seconds",
				Help:      "Unix time the service started",
			},
		),

		BusinessErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "business_errors_total",
				Help:      "Total business errors",
			},
			errorLabels,
		),
		TechnicalErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "technical_errors_total",
				Help:      "Total technical errors",
			},
			errorLabels,
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.HTTPRequestDuration,
		m.CommandsTotal,
		m.SubscriptionsCreated,
		m.SubscriptionsDeleted,
		m.ForecastsSent,
		m.DueSubscriptions,
		m.CityUsageRecorded,
		m.PendingEditsStarted,
		m.PendingEditsCompleted,
		m.TickRuns,
		m.TickDuration,
		m.CronRuns,
		m.CronRunDuration,
		m.RateLimitWait,
		m.UpstreamRetries,
		m.CacheOpDuration,
		m.CacheOps,
		m.ServiceUptime,
		m.BusinessErrors,
		m.TechnicalErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.ServiceUptime.SetToCurrentTime()

	return m
}

// RegisterDB exports connection pool stats of db.
func (m *Metrics) RegisterDB(db *sql.DB, dbName string) error {
	return m.Registry.Register(collectors.NewDBStatsCollector(db, dbName))
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// HTTPMiddleware instruments Gin HTTP handlers for RED metrics.
func (m *Metrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		c.Next()
		m.HTTPRequestsInFlight.Dec()

		dur := time.Since(start).Seconds()
		status := c.Writer.Status()
		statusClass := fmt.Sprintf("%dxx", status/divisor)

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), statusClass).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(dur)
	}
}

// CronJob wraps a function with cron metrics (runs + duration).
func (m *Metrics) CronJob(job string, fn func()) {
	start := time.Now()
	m.CronRuns.WithLabelValues(job).Inc()
	fn()
	m.CronRunDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// ObserveLatency records the duration of a cache operation.
func (m *Metrics) ObserveLatency(op string, d time.Duration) {
	m.CacheOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

// IncrementCounter counts a cache operation outcome, e.g. ("cache_get", "hit").
func (m *Metrics) IncrementCounter(op string, labels ...string) {
	result := ""
	if len(labels) > 0 {
		result = labels[0]
	}
	m.CacheOps.WithLabelValues(op, result).Inc()
}
