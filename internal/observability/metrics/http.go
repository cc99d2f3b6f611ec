package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	submissionsTotal *prometheus.CounterVec
	cacheHitsTotal   *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskscope",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskscope",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskscope",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskscope",
			Subsystem: "tasks",
			Name:      "submissions_total",
			Help:      "Total accepted task submissions by kind.",
		},
		[]string{"service", "kind"},
	)
	cacheHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskscope",
			Subsystem: "tasks",
			Name:      "cache_hits_total",
			Help:      "Total submissions answered from the commitment cache.",
		},
		[]string{"service", "kind"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskscope",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		submissionsTotal,
		cacheHitsTotal,
		rateLimitedTotal,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		submissionsTotal: submissionsTotal,
		cacheHitsTotal:   cacheHitsTotal,
		rateLimitedTotal: rateLimitedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses path parameters so task ids do not explode label
// cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/risk/status/"):
		return "/v1/risk/status/{task_id}"
	case strings.HasPrefix(path, "/v1/risk/analysis/"):
		return "/v1/risk/analysis/{commitment}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSubmission(service, kind string, cacheHit bool) {
	m.submissionsTotal.WithLabelValues(service, kind).Inc()
	if cacheHit {
		m.cacheHitsTotal.WithLabelValues(service, kind).Inc()
	}
}

func (m *HTTPServerMetrics) RecordRateLimited(service string) {
	m.rateLimitedTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
