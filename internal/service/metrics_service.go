package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for the live counters.
const (
	positionWritten   = "written"
	positionUnchanged = "unchanged"

	sessionCreated = "created"
	sessionJoined  = "joined"
	sessionLimited = "limited"
)

// MetricsService encapsulates Prometheus instrumentation. A nil receiver is a no-op.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	heartbeats          prometheus.Counter
	positionWrites      *prometheus.CounterVec
	sessionStarts       *prometheus.CounterVec
	rosterFetchDuration prometheus.Histogram
	rosterFetchFailures prometheus.Counter
	activeParticipants  prometheus.Gauge
	auditDropped        prometheus.Counter
}

// NewMetricsService registers core and live-session collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	heartbeats := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_heartbeats_total",
		Help: "Heartbeat pings accepted",
	})

	positionWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "live_position_writes_total",
		Help: "Position updates by outcome",
	}, []string{"result"})

	sessionStarts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "live_session_starts_total",
		Help: "Start or join calls by outcome",
	}, []string{"result"})

	rosterFetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_roster_fetch_duration_seconds",
		Help:    "Duration of per-batch roster fetches",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 1.5, 2.5},
	})

	rosterFetchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_roster_fetch_failures_total",
		Help: "Per-batch roster fetches that failed or timed out",
	})

	activeParticipants := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_active_participants",
		Help: "Active participants in the most recent scholar roster",
	})

	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_logs_dropped_total",
		Help: "Audit entries that could not be queued",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, heartbeats, positionWrites, sessionStarts,
		rosterFetchDuration, rosterFetchFailures, activeParticipants, auditDropped, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		heartbeats:          heartbeats,
		positionWrites:      positionWrites,
		sessionStarts:       sessionStarts,
		rosterFetchDuration: rosterFetchDuration,
		rosterFetchFailures: rosterFetchFailures,
		activeParticipants:  activeParticipants,
		auditDropped:        auditDropped,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

func (m *MetricsService) incHeartbeat() {
	if m == nil {
		return
	}
	m.heartbeats.Inc()
}

func (m *MetricsService) incPositionWrite(result string) {
	if m == nil {
		return
	}
	m.positionWrites.WithLabelValues(result).Inc()
}

func (m *MetricsService) incSessionStart(result string) {
	if m == nil {
		return
	}
	m.sessionStarts.WithLabelValues(result).Inc()
}

func (m *MetricsService) observeRosterFetch(duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.rosterFetchDuration.Observe(duration.Seconds())
	if failed {
		m.rosterFetchFailures.Inc()
	}
}

func (m *MetricsService) setActiveParticipants(n int) {
	if m == nil {
		return
	}
	m.activeParticipants.Set(float64(n))
}

func (m *MetricsService) incAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}
