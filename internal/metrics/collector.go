package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Collector assembles point-in-time snapshots of the service metrics for
// the stats endpoint and shutdown summaries.
type Collector struct {
	metrics *Metrics
}

// NewCollector creates a new metrics collector.
func NewCollector(m *Metrics) *Collector {
	return &Collector{metrics: m}
}

// SystemStats holds the per voting system counters of one snapshot.
type SystemStats struct {
	Runs         int64   `json:"runs"`
	LatencySumMs float64 `json:"latency_sum_ms"`
	Failures     int64   `json:"failures,omitempty"`
	Tiebreaks    int64   `json:"tiebreaks,omitempty"`
	Unresolved   int64   `json:"unresolved_ties,omitempty"`
}

// Collect gathers current statistics as a JSON-friendly map.
func (c *Collector) Collect() map[string]any {
	m := c.metrics
	stats := make(map[string]any)

	// Analysis metrics
	stats["analyses_total"] = m.AnalysesTotal.Value()
	stats["analyses_failed"] = m.AnalysisFailures.Total()
	stats["analysis_latency_count"] = m.AnalysisLatency.Count()
	stats["analysis_latency_sum_ms"] = m.AnalysisLatency.Sum()

	stats["systems"] = c.systemStats()

	// HTTP metrics
	stats["http_requests_total"] = m.HTTPRequests.Total()
	stats["http_requests_in_flight"] = m.HTTPRequestsInFlight.Value()

	// Bus metrics
	if published := counterVecByLabel(m.BusEventsPublished, "topic"); len(published) > 0 {
		stats["bus_events_published"] = published
	}
	if busErrors := m.BusErrors.Total(); busErrors > 0 {
		stats["bus_errors_total"] = busErrors
	}

	// Runtime metrics
	stats["goroutines"] = m.GoroutineCount.Value()
	stats["memory_bytes"] = m.MemoryUsage.Value()
	stats["uptime_seconds"] = int64(time.Since(m.startTime).Seconds())

	// Time series for charts
	if m.TimeSeries != nil {
		stats["history"] = m.TimeSeries.Snapshot()
	}

	return stats
}

// systemStats merges the per-system vectors into one map.
func (c *Collector) systemStats() map[string]*SystemStats {
	m := c.metrics
	systems := make(map[string]*SystemStats)

	entry := func(name string) *SystemStats {
		if s, ok := systems[name]; ok {
			return s
		}
		s := &SystemStats{}
		systems[name] = s
		return s
	}

	for _, h := range m.SystemLatency.GetAll() {
		s := entry(h.Labels()["system"])
		s.Runs = h.Count()
		s.LatencySumMs = h.Sum()
	}
	for _, cnt := range m.SystemFailures.GetAll() {
		entry(cnt.Labels()["system"]).Failures = cnt.Value()
	}
	for _, cnt := range m.TiebreaksTotal.GetAll() {
		entry(cnt.Labels()["system"]).Tiebreaks = cnt.Value()
	}
	for _, cnt := range m.UnresolvedTies.GetAll() {
		entry(cnt.Labels()["system"]).Unresolved = cnt.Value()
	}

	return systems
}

// counterVecByLabel flattens a single-label counter vector into a map.
func counterVecByLabel(cv *CounterVec, label string) map[string]int64 {
	out := make(map[string]int64)
	for _, c := range cv.GetAll() {
		out[c.Labels()[label]] = c.Value()
	}
	return out
}

// Summary returns a human-readable summary of current metrics.
func (c *Collector) Summary() string {
	m := c.metrics
	var sb strings.Builder

	sb.WriteString("Scrutineer Metrics Summary\n")
	sb.WriteString("==========================\n\n")

	fmt.Fprintf(&sb, "Analyses: %s (%s failed)\n",
		formatInt(m.AnalysesTotal.Value()), formatInt(m.AnalysisFailures.Total()))

	systems := c.systemStats()
	names := make([]string, 0, len(systems))
	for name := range systems {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := systems[name]
		fmt.Fprintf(&sb, "  %s: %s runs, %s tiebreaks, %s unresolved\n",
			name, formatInt(s.Runs), formatInt(s.Tiebreaks), formatInt(s.Unresolved))
	}

	fmt.Fprintf(&sb, "HTTP Requests: %s\n", formatInt(m.HTTPRequests.Total()))
	fmt.Fprintf(&sb, "Bus Events: %s\n", formatInt(m.BusEventsPublished.Total()))
	fmt.Fprintf(&sb, "Goroutines: %s\n", formatInt(int64(m.GoroutineCount.Value())))
	fmt.Fprintf(&sb, "Memory Usage: %s\n", formatBytes(int64(m.MemoryUsage.Value())))
	fmt.Fprintf(&sb, "Uptime: %s\n", formatDuration(int64(time.Since(m.startTime).Seconds())))

	return sb.String()
}

// Formatting helpers

func formatInt(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatDuration(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
