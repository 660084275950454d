package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wager_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wager_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wager_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	challengeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wager_layer",
			Subsystem: "challenges",
			Name:      "operations_total",
			Help:      "Total number of challenge lifecycle operations.",
		},
		[]string{"operation", "success"},
	)

	settlementPayouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wager_layer",
			Subsystem: "settlement",
			Name:      "payout_amount_total",
			Help:      "Total amount paid out to winners at settlement.",
		},
		[]string{"denomination"},
	)

	settlementFees = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wager_layer",
			Subsystem: "settlement",
			Name:      "fee_amount_total",
			Help:      "Total platform fees retained at settlement.",
		},
		[]string{"denomination"},
	)

	expirySweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wager_layer",
			Subsystem: "settlement",
			Name:      "expiry_sweeps_total",
			Help:      "Total number of expired challenges processed by the expiry poller.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		challengeOperations,
		settlementPayouts,
		settlementFees,
		expirySweeps,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordChallengeOperation records one lifecycle operation outcome.
func RecordChallengeOperation(operation string, success bool) {
	result := "false"
	if success {
		result = "true"
	}
	challengeOperations.WithLabelValues(operation, result).Inc()
}

// RecordSettlement records the amounts moved at one settlement.
func RecordSettlement(denomination string, payout, fee int64) {
	if payout > 0 {
		settlementPayouts.WithLabelValues(denomination).Add(float64(payout))
	}
	if fee > 0 {
		settlementFees.WithLabelValues(denomination).Add(float64(fee))
	}
}

// RecordExpirySweep records one expired challenge handled by the poller.
func RecordExpirySweep(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	expirySweeps.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "challenges":
		if len(parts) == 1 {
			return "/challenges"
		}
		if len(parts) == 2 {
			return "/challenges/:challenge"
		}
		return "/challenges/:challenge/" + parts[2]
	case "accounts":
		if len(parts) == 1 {
			return "/accounts"
		}
		if len(parts) == 2 {
			return "/accounts/:account"
		}
		return "/accounts/:account/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
