package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stop reasons used as label values
const (
	ReasonStopped  = "stopped"
	ReasonExpired  = "expired"
	ReasonRollback = "rollback"
)

var (
	// Load pool metrics
	loadActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmsim_load_active",
			Help: "Whether a load pool is running (1=active, 0=idle)",
		},
	)

	loadWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmsim_load_workers",
			Help: "Number of running load workers",
		},
	)

	loadUtilization = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmsim_load_utilization_percent",
			Help: "Target utilization of the running pool (0 when idle)",
		},
	)

	loadPoolStarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vmsim_load_pool_starts_total",
			Help: "Total number of load pools started",
		},
	)

	loadPoolStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmsim_load_pool_stops_total",
			Help: "Total number of load pools torn down, by reason",
		},
		[]string{"reason"},
	)

	loadWorkerExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmsim_load_worker_exits_total",
			Help: "Total number of load workers that terminated, by reason",
		},
		[]string{"reason"},
	)

	loadTerminationTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vmsim_load_termination_timeouts_total",
			Help: "Total number of workers that ignored cancellation past the grace period",
		},
	)

	loadStopDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vmsim_load_stop_duration_seconds",
			Help:    "Time taken to tear down a load pool",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Health metrics
	healthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmsim_health_status",
			Help: "Simulated VM health (1=healthy, 0=unhealthy)",
		},
	)

	healthToggles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vmsim_health_toggles_total",
			Help: "Total number of health flag flips",
		},
	)

	// Request metrics (RED - Rate, Errors, Duration)
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmsim_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"route", "method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vmsim_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// SetLoadPool publishes the current pool state
func SetLoadPool(active bool, workers, utilization int) {
	if active {
		loadActive.Set(1)
	} else {
		loadActive.Set(0)
		utilization = 0
	}
	loadWorkers.Set(float64(workers))
	loadUtilization.Set(float64(utilization))
}

// IncPoolStarts increments the pool start counter
func IncPoolStarts() {
	loadPoolStarts.Inc()
}

// IncPoolStops increments the pool stop counter for reason
func IncPoolStops(reason string) {
	loadPoolStops.WithLabelValues(reason).Inc()
}

// IncWorkerExits increments the worker exit counter
func IncWorkerExits(expired bool) {
	reason := ReasonStopped
	if expired {
		reason = ReasonExpired
	}
	loadWorkerExits.WithLabelValues(reason).Inc()
}

// AddTerminationTimeouts counts workers that missed the grace period
func AddTerminationTimeouts(n int) {
	loadTerminationTimeouts.Add(float64(n))
}

// ObserveStopDuration records how long a teardown took
func ObserveStopDuration(d time.Duration) {
	loadStopDuration.Observe(d.Seconds())
}

// SetHealthStatus sets the health gauge
func SetHealthStatus(healthy bool) {
	status := 0.0
	if healthy {
		status = 1.0
	}
	healthStatus.Set(status)
}

// IncHealthToggles increments the health toggle counter
func IncHealthToggles() {
	healthToggles.Inc()
}

// RecordRequest records a request metric
func RecordRequest(route, method, status string, duration time.Duration) {
	requestsTotal.WithLabelValues(route, method, status).Inc()
	requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RouteName returns the matched route template, or "unmatched"
func RouteName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// RequestMetricsMiddleware wraps an HTTP handler with metrics collection
func RequestMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		RecordRequest(RouteName(r), r.Method, strconv.Itoa(rw.statusCode), time.Since(start))
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
