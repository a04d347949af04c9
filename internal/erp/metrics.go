package erp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the client-side counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	stale    *prometheus.CounterVec
	clamped  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "erp_gateway_requests_total",
			Help: "Backend requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "erp_gateway_request_seconds",
			Help:    "Backend request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "erp_stale_responses_total",
			Help: "Lookup responses discarded because the form moved on.",
		}, []string{"lookup"}),
		clamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "erp_rows_clamped_total",
			Help: "Row quantities reduced to the available stock.",
		}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.stale, m.clamped)
	return m
}

func (m *Metrics) ObserveRequest(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) StaleDiscarded(lookup string) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues(lookup).Inc()
}

func (m *Metrics) RowsClamped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.clamped.Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MetricsServer serves /health and /metrics.
type MetricsServer struct {
	srv *http.Server
}

func NewMetricsServer(addr string, m *Metrics) *MetricsServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}

	return &MetricsServer{srv: &http.Server{Addr: addr, Handler: mux}}
}

func (s *MetricsServer) Start() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
