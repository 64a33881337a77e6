package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	ecrsViewed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecrs_viewed_total",
			Help: "Total number of eCR documents rendered for review",
		},
	)

	ecrUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecr_uploads_total",
			Help: "Total number of eCR zip uploads processed",
		},
		[]string{"outcome"},
	)

	ecrListQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecr_list_queries_total",
			Help: "Total number of eCR library list queries",
		},
	)

	evaluatorLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fhirpath_evaluations_total",
			Help: "Total number of FHIRPath evaluations by cache result",
		},
		[]string{"cache"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordEcrViewed records a rendered eCR document
func RecordEcrViewed() {
	ecrsViewed.Inc()
}

// RecordEcrUpload records a processed upload by outcome (saved, rejected, failed)
func RecordEcrUpload(outcome string) {
	ecrUploads.WithLabelValues(outcome).Inc()
}

// RecordListQuery records an eCR library list query
func RecordListQuery() {
	ecrListQueries.Inc()
}

// RecordEvaluation records one FHIRPath evaluation, cache is "hit" or "miss"
func RecordEvaluation(cache string) {
	evaluatorLookups.WithLabelValues(cache).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
