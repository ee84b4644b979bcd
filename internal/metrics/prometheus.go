package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PrometheusFormat exports all metrics in Prometheus text exposition format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder

	// Analysis metrics
	writeCounter(&sb, m.AnalysesTotal)
	writeHistogram(&sb, m.AnalysisLatency)
	writeCounterVec(&sb, m.AnalysisFailures)
	writeHistogram(&sb, m.CompetitorsPerRun)
	writeHistogram(&sb, m.JudgesPerRun)

	// Per-system metrics
	writeHistogramVec(&sb, m.SystemLatency)
	writeCounterVec(&sb, m.SystemFailures)
	writeCounterVec(&sb, m.TiebreaksTotal)
	writeCounterVec(&sb, m.UnresolvedTies)

	// Bus metrics
	writeCounterVec(&sb, m.BusEventsPublished)
	writeHistogramVec(&sb, m.BusEventLatency)
	writeCounterVec(&sb, m.BusErrors)

	// HTTP metrics
	writeCounterVec(&sb, m.HTTPRequests)
	writeHistogramVec(&sb, m.HTTPDuration)
	writeGauge(&sb, m.HTTPRequestsInFlight)
	writeHistogramVec(&sb, m.HTTPRequestSize)

	// System metrics
	writeGauge(&sb, m.GoroutineCount)
	writeGauge(&sb, m.MemoryUsage)
	writeCounter(&sb, m.Uptime)

	return sb.String()
}

// writeHeader writes the HELP and TYPE comment lines for a metric.
func writeHeader(sb *strings.Builder, name, help, metricType string) {
	sb.WriteString("# HELP ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(help)
	sb.WriteString("\n")

	sb.WriteString("# TYPE ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(metricType)
	sb.WriteString("\n")
}

// writeCounter writes a counter in Prometheus format.
func writeCounter(sb *strings.Builder, c *Counter) {
	writeHeader(sb, c.Name(), c.Help(), "counter")
	writeCounterLine(sb, c)
}

func writeCounterLine(sb *strings.Builder, c *Counter) {
	sb.WriteString(c.Name())
	writeLabels(sb, c.Labels())
	sb.WriteString(" ")
	sb.WriteString(fmt.Sprintf("%d", c.Value()))
	sb.WriteString("\n")
}

// writeGauge writes a gauge in Prometheus format.
func writeGauge(sb *strings.Builder, g *Gauge) {
	writeHeader(sb, g.Name(), g.Help(), "gauge")
	writeGaugeLine(sb, g)
}

func writeGaugeLine(sb *strings.Builder, g *Gauge) {
	sb.WriteString(g.Name())
	writeLabels(sb, g.Labels())
	sb.WriteString(" ")
	sb.WriteString(formatFloat(g.Value()))
	sb.WriteString("\n")
}

// writeHistogram writes a histogram in Prometheus format.
func writeHistogram(sb *strings.Builder, h *Histogram) {
	writeHeader(sb, h.Name(), h.Help(), "histogram")
	writeHistogramLines(sb, h)
}

// writeHistogramLines writes the bucket, sum and count series of one
// histogram, carrying its labels into every line.
func writeHistogramLines(sb *strings.Builder, h *Histogram) {
	buckets := h.Buckets()
	counts, sum, count := h.snapshot()
	labels := h.Labels()

	for i, bound := range buckets {
		writeBucketLine(sb, h.Name(), labels, formatFloat(bound), counts[i])
	}
	writeBucketLine(sb, h.Name(), labels, "+Inf", counts[len(counts)-1])

	sb.WriteString(h.Name())
	sb.WriteString("_sum")
	writeLabels(sb, labels)
	sb.WriteString(" ")
	sb.WriteString(formatFloat(sum))
	sb.WriteString("\n")

	sb.WriteString(h.Name())
	sb.WriteString("_count")
	writeLabels(sb, labels)
	sb.WriteString(" ")
	sb.WriteString(fmt.Sprintf("%d", count))
	sb.WriteString("\n")
}

func writeBucketLine(sb *strings.Builder, name string, labels map[string]string, le string, count int64) {
	withLE := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		withLE[k] = v
	}
	withLE["le"] = le

	sb.WriteString(name)
	sb.WriteString("_bucket")
	writeLabels(sb, withLE)
	sb.WriteString(" ")
	sb.WriteString(fmt.Sprintf("%d", count))
	sb.WriteString("\n")
}

// writeCounterVec writes a counter vector in Prometheus format. Empty
// vectors are omitted entirely.
func writeCounterVec(sb *strings.Builder, cv *CounterVec) {
	counters := cv.GetAll()
	if len(counters) == 0 {
		return
	}

	writeHeader(sb, cv.Name(), cv.Help(), "counter")
	for _, c := range counters {
		writeCounterLine(sb, c)
	}
}

// writeHistogramVec writes a histogram vector in Prometheus format.
func writeHistogramVec(sb *strings.Builder, hv *HistogramVec) {
	histograms := hv.GetAll()
	if len(histograms) == 0 {
		return
	}

	writeHeader(sb, hv.Name(), hv.Help(), "histogram")
	for _, h := range histograms {
		writeHistogramLines(sb, h)
	}
}

// writeLabels writes labels in Prometheus format {key="value",key2="value2"}.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}

	// Sort keys for stable output.
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=\"")
		sb.WriteString(escapeString(labels[k]))
		sb.WriteString("\"")
	}
	sb.WriteString("}")
}

// formatFloat renders a float without trailing zeros.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// escapeString escapes special characters in label values.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
