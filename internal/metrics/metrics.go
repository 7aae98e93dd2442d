// Package metrics owns the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/store-rating/internal/apperr"
)

const namespace = "store_rating"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	ratingWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "writes_total",
			Help:      "Rating writes by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	txRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "tx_retries_total",
			Help:      "Rating transactions replayed after a deadlock or lock wait timeout.",
		},
	)

	recomputeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "recompute_failures_total",
			Help:      "Store aggregate recomputations that failed.",
		},
	)

	eventPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Domain events that could not be published.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ratingWrites,
		txRetries,
		recomputeFailures,
		eventPublishFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.  The
// route template (e.g. /v1/stores/:id) is used as the label so ids do not
// explode cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			start := time.Now()
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = apperr.KindOf(err).Status()
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := strings.ToUpper(c.Request().Method)
			httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordRatingWrite counts one rating write.  op is submit or delete;
// outcome is created, updated, deleted, not_found, invalid or error.
func RecordRatingWrite(op, outcome string) {
	ratingWrites.WithLabelValues(op, outcome).Inc()
}

// RecordTxRetry counts one replayed rating transaction.
func RecordTxRetry() { txRetries.Inc() }

// RecordRecomputeFailure counts one failed aggregate recomputation.
func RecordRecomputeFailure() { recomputeFailures.Inc() }

// RecordPublishFailure counts one dropped domain event.
func RecordPublishFailure() { eventPublishFailures.Inc() }
