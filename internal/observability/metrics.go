package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of LLM provider requests by provider and model",
		},
		[]string{"provider", "model"},
	)
	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "LLM provider request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)
	ProviderDefaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_defaults_total",
			Help: "Times the provider executor spent its budget and returned the caller default",
		},
		[]string{"provider"},
	)
	ModelSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_switches_total",
			Help: "Model rotations within a provider",
		},
		[]string{"provider"},
	)
	KeySwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "key_switches_total",
			Help: "Credential rotations within a provider",
		},
		[]string{"provider"},
	)

	CredentialExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_exhausted_total",
			Help: "Credentials marked exhausted after rate-limit failures",
		},
		[]string{"service"},
	)
	CredentialCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_cycles_total",
			Help: "Full exhaustion cycles followed by optimistic resets",
		},
		[]string{"service"},
	)

	WorkflowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Refinement workflow state transitions",
		},
		[]string{"status"},
	)
	WorkflowRefinements = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workflow_refinement_count",
			Help:    "Refinement cycles per completed workflow",
			Buckets: []float64{0, 1, 2, 3},
		},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"type"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs failed",
		},
		[]string{"type"},
	)
)

// InitMetrics registers all collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderDefaultsTotal,
		ModelSwitchesTotal,
		KeySwitchesTotal,
		CredentialExhaustedTotal,
		CredentialCyclesTotal,
		WorkflowTransitionsTotal,
		WorkflowRefinements,
		JobsEnqueuedTotal,
		JobsCompletedTotal,
		JobsFailedTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latency per chi route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
