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
			Namespace: "course_marketplace",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "course_marketplace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "course_marketplace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	tokenOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "course_marketplace",
			Subsystem: "coursetoken",
			Name:      "operations_total",
			Help:      "Total number of course token lifecycle operations.",
		},
		[]string{"collection", "op"},
	)

	listingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "course_marketplace",
			Subsystem: "marketplace",
			Name:      "listing_operations_total",
			Help:      "Total number of marketplace listing operations.",
		},
		[]string{"op"},
	)

	matchPayouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "course_marketplace",
			Subsystem: "talentmatch",
			Name:      "payouts_total",
			Help:      "Total number of confirmed talent match payouts.",
		},
		[]string{"status"},
	)

	stakeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "course_marketplace",
			Subsystem: "staking",
			Name:      "operations_total",
			Help:      "Total number of staking deposits and withdrawals.",
		},
		[]string{"op"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		tokenOps,
		listingOps,
		matchPayouts,
		stakeOps,
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

// RecordTokenOp records a course token lifecycle operation.
func RecordTokenOp(collection, op string) {
	if collection == "" {
		collection = "unknown"
	}
	tokenOps.WithLabelValues(collection, op).Inc()
}

// RecordListingOp records a marketplace listing operation.
func RecordListingOp(op string) {
	listingOps.WithLabelValues(op).Inc()
}

// RecordMatchPayout records a talent match payout attempt.
func RecordMatchPayout(success bool) {
	status := "failure"
	if success {
		status = "success"
	}
	matchPayouts.WithLabelValues(status).Inc()
}

// RecordStakeOp records a staking deposit or withdrawal.
func RecordStakeOp(op string) {
	stakeOps.WithLabelValues(op).Inc()
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
	case "collections":
		if len(parts) == 1 {
			return "/collections"
		}
		if len(parts) == 2 {
			return "/collections/:id"
		}
		return "/collections/:id/" + parts[2]
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
