package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtime_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "showtime_db_tx_seconds",
			Help:    "Duration of locked showtime transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	HoldsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtime_holds_created_total",
			Help: "Pending bookings created",
		},
	)

	HoldConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtime_hold_conflicts_total",
			Help: "Hold attempts rejected for seat contention",
		},
		[]string{"kind"},
	)

	HoldsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtime_holds_expired_total",
			Help: "Pending bookings released after their hold elapsed",
		},
	)

	BookingsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtime_bookings_confirmed_total",
			Help: "Bookings confirmed after payment",
		},
	)

	BookingsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtime_bookings_cancelled_total",
			Help: "Bookings cancelled by reason",
		},
		[]string{"reason"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "showtime_outbox_lag_seconds",
			Help: "Age of the oldest event published in the last batch",
		},
	)

	RabbitPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtime_rabbit_publish_failures_total",
			Help: "Outbox events that failed to publish",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtime_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
