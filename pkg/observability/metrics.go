package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Command metrics
	CommandsTotal          *prometheus.CounterVec
	CommandDuration        *prometheus.HistogramVec
	ConcurrencyConflicts   prometheus.Counter
	DuplicateCommandsTotal prometheus.Counter

	// Event metrics
	EventsAppendedTotal *prometheus.CounterVec
	SubscriberErrors    *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Credential metrics
	AuthenticationsTotal *prometheus.CounterVec

	// Sweeper metrics
	ExpiredDeactivationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_commands_total",
				Help: "Total number of service account commands by outcome",
			},
			[]string{"command", "outcome"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_command_duration_seconds",
				Help:    "Command handling duration in seconds, including secret hashing",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"command"},
		),
		ConcurrencyConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_concurrency_conflicts_total",
				Help: "Total number of optimistic concurrency conflicts on append",
			},
		),
		DuplicateCommandsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_duplicate_commands_total",
				Help: "Total number of redelivered commands rejected by command ID",
			},
		),

		EventsAppendedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_events_appended_total",
				Help: "Total number of events appended to the event store",
			},
			[]string{"event_type"},
		),
		SubscriberErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_subscriber_errors_total",
				Help: "Total number of failures delivering events to subscribers",
			},
			[]string{"subscriber"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		AuthenticationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_authentications_total",
				Help: "Total number of client credential checks by outcome",
			},
			[]string{"outcome"},
		),

		ExpiredDeactivationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_expired_deactivations_total",
				Help: "Total number of expired service accounts processed by the sweeper",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CommandsTotal,
		m.CommandDuration,
		m.ConcurrencyConflicts,
		m.DuplicateCommandsTotal,
		m.EventsAppendedTotal,
		m.SubscriberErrors,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.AuthenticationsTotal,
		m.ExpiredDeactivationsTotal,
	)

	return m
}

// NewNoopMetrics returns metrics registered on a throwaway registry, for tests
// and components constructed without a metrics sink
func NewNoopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests. Routes are labelled by their
// mux path template so IDs do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
