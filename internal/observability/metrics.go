package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpb_bookings_total",
			Help: "Booking attempts by outcome",
		},
		[]string{"outcome"},
	)

	CancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpb_cancellations_total",
			Help: "Booking cancellations by reason",
		},
		[]string{"reason"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cpb_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cpb_gateway_call_seconds",
			Help:    "Duration of external provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	GatewayFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpb_gateway_failures_total",
			Help: "External provider call failures",
		},
		[]string{"provider", "operation"},
	)

	CancelQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cpb_cancel_queue_depth",
			Help: "Entries waiting in the deferred cancellation queue",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cpb_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cpb_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
