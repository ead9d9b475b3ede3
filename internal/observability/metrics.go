package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and the dispatch
// pipeline.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	dispatchRunsTotal    *prometheus.CounterVec
	dispatchRunDuration  prometheus.Histogram
	invoicesTotal        *prometheus.CounterVec
	sendAttemptDuration  prometheus.Histogram
	sendRetriesTotal     prometheus.Counter
	dispatchRunsInFlight prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "invoice_notifier",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "invoice_notifier",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		dispatchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "invoice_notifier",
				Name:      "dispatch_runs_total",
				Help:      "Total number of dispatch runs by result (completed, failed, rejected).",
			},
			[]string{"result"},
		),
		dispatchRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "invoice_notifier",
				Name:      "dispatch_run_duration_seconds",
				Help:      "Wall-clock duration of one dispatch run in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		invoicesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "invoice_notifier",
				Name:      "invoices_processed_total",
				Help:      "Invoices reaching a terminal decision in a run, by outcome.",
			},
			[]string{"outcome"},
		),
		sendAttemptDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "invoice_notifier",
				Name:      "send_attempt_duration_seconds",
				Help:      "Outbound gateway call duration in seconds, including retries.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		sendRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "invoice_notifier",
				Name:      "send_retries_total",
				Help:      "Total number of delivery retries beyond the first attempt.",
			},
		),
		dispatchRunsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "invoice_notifier",
				Name:      "dispatch_runs_in_flight",
				Help:      "Whether a dispatch run is currently active (0 or 1).",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dispatchRunsTotal,
		m.dispatchRunDuration,
		m.invoicesTotal,
		m.sendAttemptDuration,
		m.sendRetriesTotal,
		m.dispatchRunsInFlight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDispatchRun(result string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(result))
	if label == "" {
		label = "unknown"
	}
	m.dispatchRunsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveDispatchRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchRunDuration.Observe(positiveSeconds(duration))
}

func (m *Metrics) IncInvoiceProcessed(outcome string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(outcome))
	if label == "" {
		label = "unknown"
	}
	m.invoicesTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveSendAttemptDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.sendAttemptDuration.Observe(positiveSeconds(duration))
}

func (m *Metrics) AddSendRetries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sendRetriesTotal.Add(float64(n))
}

func (m *Metrics) SetRunInFlight(active bool) {
	if m == nil {
		return
	}
	if active {
		m.dispatchRunsInFlight.Set(1)
		return
	}
	m.dispatchRunsInFlight.Set(0)
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func positiveSeconds(duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
