package metrics

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/pkg/logger"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Analysis metrics
	AnalysesTotal     *Counter
	AnalysisLatency   *Histogram
	AnalysisFailures  *CounterVec // labels: code
	CompetitorsPerRun *Histogram
	JudgesPerRun      *Histogram

	// Per-system metrics
	SystemLatency  *HistogramVec // labels: system
	SystemFailures *CounterVec   // labels: system
	TiebreaksTotal *CounterVec   // labels: system
	UnresolvedTies *CounterVec   // labels: system

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge
	HTTPRequestSize      *HistogramVec // labels: method, path

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes
	Uptime         *Counter

	// Time-series data for the stats snapshot
	TimeSeries *TimeSeriesData

	// Redis storage (optional)
	redisStorage *RedisStorage

	startTime time.Time
	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a new metrics instance with all metrics initialized.
// History is kept in memory only.
func New() *Metrics {
	return NewWithConfig("none", "", 0)
}

// NewWithRedis creates a new metrics instance whose analysis history is
// persisted to Redis. Falls back to in-memory history if the connection
// fails.
func NewWithRedis(redisURL string, retention time.Duration) *Metrics {
	return NewWithConfig("redis", redisURL, retention)
}

// NewWithConfig creates a new metrics instance with the specified history
// backend ("none" or "redis"). retention bounds how long Redis keeps data
// points; zero means the storage default.
func NewWithConfig(history, redisURL string, retention time.Duration) *Metrics {
	var redisStorage *RedisStorage
	var timeSeries *TimeSeriesData

	if history == "redis" && redisURL != "" {
		storage, err := NewRedisStorage(redisURL, retention)
		if err != nil {
			logger.Default().Warn("metrics history falling back to memory",
				"error", err)
		} else {
			redisStorage = storage
			timeSeries = NewTimeSeriesDataWithRedis(storage)
		}
	}

	if timeSeries == nil {
		timeSeries = NewTimeSeriesData()
	}

	m := &Metrics{
		// Analysis metrics
		AnalysesTotal: NewCounter(
			"scrutineer_analyses_total",
			"Total number of scoresheet analyses",
			nil,
		),
		AnalysisLatency: NewHistogram(
			"scrutineer_analysis_latency_ms",
			"Full analysis latency in milliseconds",
			[]float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		),
		AnalysisFailures: NewCounterVec(
			"scrutineer_analysis_failures_total",
			"Total number of rejected or failed analyses",
			[]string{"code"},
		),
		CompetitorsPerRun: NewHistogram(
			"scrutineer_analysis_competitors",
			"Number of competitors per analysis",
			[]float64{2, 4, 6, 8, 12, 16, 24, 32, 48, 64},
		),
		JudgesPerRun: NewHistogram(
			"scrutineer_analysis_judges",
			"Number of judges per analysis",
			[]float64{1, 3, 5, 7, 9, 11, 15, 21},
		),

		// Per-system metrics
		SystemLatency: NewHistogramVec(
			"scrutineer_system_latency_ms",
			"Per voting system scoring latency in milliseconds",
			[]string{"system"},
			[]float64{1, 2, 5, 10, 25, 50, 100, 250},
		),
		SystemFailures: NewCounterVec(
			"scrutineer_system_failures_total",
			"Total number of voting system failures",
			[]string{"system"},
		),
		TiebreaksTotal: NewCounterVec(
			"scrutineer_tiebreaks_total",
			"Total number of tiebreaks applied",
			[]string{"system"},
		),
		UnresolvedTies: NewCounterVec(
			"scrutineer_unresolved_ties_total",
			"Total number of ties left unresolved",
			[]string{"system"},
		),

		// Bus metrics
		BusEventsPublished: NewCounterVec(
			"scrutineer_bus_events_published_total",
			"Total number of events published to the bus",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"scrutineer_bus_event_latency_seconds",
			"Event bus publish latency in seconds",
			[]string{"topic"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		),
		BusErrors: NewCounterVec(
			"scrutineer_bus_errors_total",
			"Total number of event bus errors",
			[]string{"topic"},
		),

		// HTTP metrics
		HTTPRequests: NewCounterVec(
			"scrutineer_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"scrutineer_http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "path"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		),
		HTTPRequestsInFlight: NewGauge(
			"scrutineer_http_requests_in_flight",
			"Number of HTTP requests currently being processed",
			nil,
		),
		HTTPRequestSize: NewHistogramVec(
			"scrutineer_http_request_size_bytes",
			"HTTP request size in bytes",
			[]string{"method", "path"},
			[]float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		),

		// System metrics
		GoroutineCount: NewGauge(
			"scrutineer_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"scrutineer_memory_bytes",
			"Memory usage in bytes",
			nil,
		),
		Uptime: NewCounter(
			"scrutineer_uptime_seconds",
			"Application uptime in seconds",
			nil,
		),

		TimeSeries:   timeSeries,
		redisStorage: redisStorage,

		startTime: time.Now(),
		stop:      make(chan struct{}),
	}

	// Background collector for runtime metrics.
	go m.collectSystemMetrics()

	return m
}

// collectSystemMetrics periodically samples runtime metrics until Close.
func (m *Metrics) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			m.MemoryUsage.Set(float64(memStats.Alloc))

			m.Uptime.Add(15)
		case <-m.stop:
			return
		}
	}
}

// RecordAnalysis records the outcome of one full scoresheet analysis.
// Failed analyses count toward the total but do not skew the latency and
// panel-size distributions.
func (m *Metrics) RecordAnalysis(latencyMs int64, competitors, judges int, err error) {
	m.AnalysesTotal.Inc()

	if err != nil {
		m.AnalysisFailures.WithLabels(errorCode(err)).Inc()
		return
	}

	m.AnalysisLatency.Observe(float64(latencyMs))
	m.CompetitorsPerRun.Observe(float64(competitors))
	m.JudgesPerRun.Observe(float64(judges))

	if m.TimeSeries != nil {
		m.TimeSeries.RecordAnalysis(float64(latencyMs))
	}
}

// RecordSystem records one voting system's run within an analysis.
func (m *Metrics) RecordSystem(system string, latencyMs int64, tiebreaks, unresolved int, failed bool) {
	if failed {
		m.SystemFailures.WithLabels(system).Inc()
		return
	}

	m.SystemLatency.WithLabels(system).Observe(float64(latencyMs))

	if tiebreaks > 0 {
		m.TiebreaksTotal.WithLabels(system).Add(int64(tiebreaks))
		if m.TimeSeries != nil {
			m.TimeSeries.RecordTiebreaks(tiebreaks)
		}
	}
	if unresolved > 0 {
		m.UnresolvedTies.WithLabels(system).Add(int64(unresolved))
	}
}

// RecordBusPublish records event bus publish metrics.
func (m *Metrics) RecordBusPublish(topic string, latencyMs int64, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()

	// Milliseconds to seconds for the Prometheus convention.
	m.BusEventLatency.WithLabels(topic).Observe(float64(latencyMs) / 1000.0)

	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordHTTP records HTTP request metrics. Called by the HTTP middleware.
func (m *Metrics) RecordHTTP(method, path string, status int, durationSeconds float64, sizeBytes int64) {
	// Normalize path to reduce cardinality.
	normalizedPath := normalizePath(path)

	m.HTTPRequests.WithLabels(method, normalizedPath, statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, normalizedPath).Observe(durationSeconds)

	if sizeBytes > 0 {
		m.HTTPRequestSize.WithLabels(method, normalizedPath).Observe(float64(sizeBytes))
	}
}

// errorCode maps an error to a low-cardinality metric label.
func errorCode(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "internal"
}

// Reset resets all metrics to zero (useful for testing).
func (m *Metrics) Reset() {
	m.AnalysesTotal.Reset()
	m.AnalysisLatency.Reset()
	m.AnalysisFailures.Reset()
	m.CompetitorsPerRun.Reset()
	m.JudgesPerRun.Reset()

	m.SystemLatency.Reset()
	m.SystemFailures.Reset()
	m.TiebreaksTotal.Reset()
	m.UnresolvedTies.Reset()

	m.BusEventsPublished.Reset()
	m.BusEventLatency.Reset()
	m.BusErrors.Reset()

	m.HTTPRequests.Reset()
	m.HTTPDuration.Reset()
	m.HTTPRequestsInFlight.Set(0)
	m.HTTPRequestSize.Reset()

	m.GoroutineCount.Set(0)
	m.MemoryUsage.Set(0)
	m.Uptime.Reset()

	m.startTime = time.Now()
}

// Close stops the background collector and releases resources. Must be
// called on shutdown when Redis persistence is enabled.
func (m *Metrics) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
	})
	if m.redisStorage != nil {
		return m.redisStorage.Close()
	}
	return nil
}

// IsRedisPersisted returns true if history is persisted to Redis.
func (m *Metrics) IsRedisPersisted() bool {
	return m.redisStorage != nil
}
