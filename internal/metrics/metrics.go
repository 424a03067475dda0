package metrics

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine metrics
var (
	ThreadsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "openpreview_threads_active",
			Help: "Number of threads with a live engine session",
		},
	)

	SnapshotTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openpreview_snapshot_ticks_total",
			Help: "Total snapshot updates applied to sessions",
		},
	)

	CountdownsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openpreview_countdowns_started_total",
			Help: "Total auto-deploy countdowns started",
		},
	)

	DeploysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openpreview_deploys_total",
			Help: "Total deployments by outcome",
		},
		[]string{"status"},
	)

	DeployDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openpreview_deploy_duration_seconds",
			Help:    "Time from deploy start to terminal state",
			Buckets: []float64{5, 10, 20, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	DeployErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openpreview_deploy_errors_total",
			Help: "Total failed deployments by error kind",
		},
		[]string{"kind"},
	)
)

// API and event pipeline metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openpreview_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openpreview_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"method", "path"},
	)

	StreamConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "openpreview_stream_connections_active",
			Help: "Number of open WebSocket stream connections",
		},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openpreview_events_published_total",
			Help: "Total engine events handed to the event pipeline",
		},
		[]string{"type"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		ThreadsActive,
		SnapshotTicksTotal,
		CountdownsStartedTotal,
		DeploysTotal,
		DeployDuration,
		DeployErrorsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StreamConnectionsActive,
		EventsPublishedTotal,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			HTTPRequestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(duration.Seconds())

			return err
		}
	}
}

// StartMetricsServer starts a standalone HTTP server serving /metrics on the given address.
func StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("metrics: server error: %v", err)
		}
	}()
	return srv
}
