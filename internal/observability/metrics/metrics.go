package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the service collectors. A nil *Registry is valid and records
// nothing, so components can be wired without metrics.
type Registry struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	intents      *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	geocodes     *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	events       *prometheus.CounterVec
}

// New creates and registers every collector under namespace.
func New(namespace string) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by handler, method and status code",
			},
			[]string{"handler", "method", "code"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"handler", "method"},
		),
		intents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intents_total",
				Help:      "Total number of routed queries by intent",
			},
			[]string{"intent"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Total number of degraded responses by reason",
			},
			[]string{"reason"},
		),
		geocodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geocode_requests_total",
				Help:      "Total number of geocode lookups by outcome",
			},
			[]string{"outcome"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"breaker"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interaction_events_total",
				Help:      "Total number of published interaction events by driver and result",
			},
			[]string{"driver", "result"},
		),
	}
	r.registry.MustRegister(
		r.httpRequests,
		r.httpLatency,
		r.intents,
		r.fallbacks,
		r.geocodes,
		r.breakerState,
		r.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler exposes the metrics in Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (r *Registry) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveIntent counts a routed query.
func (r *Registry) ObserveIntent(intent string) {
	if r == nil {
		return
	}
	r.intents.WithLabelValues(intent).Inc()
}

// ObserveFallback counts a degraded response.
func (r *Registry) ObserveFallback(reason string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(reason).Inc()
}

// ObserveGeocode counts a geocode lookup outcome.
func (r *Registry) ObserveGeocode(outcome string) {
	if r == nil {
		return
	}
	r.geocodes.WithLabelValues(outcome).Inc()
}

// ObserveBreakerState records a circuit breaker transition.
func (r *Registry) ObserveBreakerState(name, state string) {
	if r == nil {
		return
	}
	var value float64
	switch state {
	case "open":
		value = 1
	case "half-open":
		value = 2
	}
	r.breakerState.WithLabelValues(name).Set(value)
}

// ObserveEvent counts a publish attempt.
func (r *Registry) ObserveEvent(driver string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.events.WithLabelValues(driver, result).Inc()
}
