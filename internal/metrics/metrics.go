// Package metrics provides Prometheus instrumentation for market synchronisation.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BatchRequestsTotal counts batch GETs by partition and outcome.
	BatchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsync_batch_requests_total",
		Help: "Total batch market requests sent to venues",
	}, []string{"venue", "environment", "outcome"})

	// BatchRequestDuration tracks venue round-trip latency.
	BatchRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketsync_batch_request_duration_seconds",
		Help:    "Batch market request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"venue", "environment"})

	// MarketsUpdatedTotal counts markets whose data was refreshed.
	MarketsUpdatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsync_markets_updated_total",
		Help: "Markets refreshed from a batch response",
	}, []string{"venue", "environment"})

	// PartitionErrorsTotal counts partition failures by error kind.
	PartitionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsync_partition_errors_total",
		Help: "Batch partition errors by kind",
	}, []string{"venue", "environment", "kind"})

	// TrackedMarkets is the size of the tracked market set.
	TrackedMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketsync_tracked_markets",
		Help: "Number of markets tracked for periodic refresh",
	})

	// LastRunTimestamp is the unix time the last refresh run finished.
	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketsync_last_run_timestamp_seconds",
		Help: "Unix time of the last completed refresh run",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one batch GET.
func ObserveRequest(key domain.PartitionKey, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	BatchRequestsTotal.WithLabelValues(string(key.Venue), string(key.Environment), outcome).Inc()
	BatchRequestDuration.WithLabelValues(string(key.Venue), string(key.Environment)).Observe(d.Seconds())
}

// ObserveUpdated adds n refreshed markets for key.
func ObserveUpdated(key domain.PartitionKey, n int) {
	if n == 0 {
		return
	}
	MarketsUpdatedTotal.WithLabelValues(string(key.Venue), string(key.Environment)).Add(float64(n))
}

// ObserveError counts err under the label of its kind.
func ObserveError(key domain.PartitionKey, err error) {
	if err == nil {
		return
	}
	PartitionErrorsTotal.WithLabelValues(string(key.Venue), string(key.Environment), ErrorKind(err)).Inc()
}

// ErrorKind maps an error onto a low-cardinality label.
func ErrorKind(err error) string {
	var (
		tooLarge *domain.RequestTooLargeError
		apiErr   *domain.APIRequestError
		decode   *domain.DecodeError
		recon    *domain.ReconciliationError
	)
	switch {
	case errors.As(err, &tooLarge):
		return "request_too_large"
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &decode):
		return "decode"
	case errors.As(err, &recon):
		return "reconciliation"
	case errors.Is(err, domain.ErrLockHeld):
		return "lock_held"
	default:
		return "transport"
	}
}
