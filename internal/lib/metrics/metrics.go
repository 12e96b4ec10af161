package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges of the origin.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        *prometheus.CounterVec
	refreshFailuresTotal *prometheus.CounterVec
	streamsLoadedTotal   prometheus.Counter
	activeStreams        prometheus.Gauge
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livedash_requests_total",
		Help: "Total number of media requests by artifact kind and status code",
	}, []string{"kind", "code"})
	refreshFailuresTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livedash_refresh_failures_total",
		Help: "Total number of failed stream refreshes by reason",
	}, []string{"reason"})
	streamsLoadedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livedash_streams_loaded_total",
		Help: "Total number of streams loaded into the registry",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livedash_active_streams",
		Help: "Number of streams held by the registry",
	})

	registry.MustRegister(
		requestsTotal,
		refreshFailuresTotal,
		streamsLoadedTotal,
		activeStreams,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		refreshFailuresTotal: refreshFailuresTotal,
		streamsLoadedTotal:   streamsLoadedTotal,
		activeStreams:        activeStreams,
	}
}

// IncRequests increments request counter.
func (m *Metrics) IncRequests(kind string, code int) {
	m.requestsTotal.WithLabelValues(kind, strconv.Itoa(code)).Inc()
}

// IncRefreshFailures increments refresh failures counter.
func (m *Metrics) IncRefreshFailures(reason string) {
	m.refreshFailuresTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncStreamsLoaded() {
	m.streamsLoadedTotal.Inc()
}

func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
