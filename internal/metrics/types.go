// Package metrics provides Prometheus-compatible metrics for the scrutineer service.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter represents a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	value  atomic.Int64
	labels map[string]string
}

// NewCounter creates a new counter. The labels map must not be mutated after
// construction.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{
		name:   name,
		help:   help,
		labels: labels,
	}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add adds the given value to the counter. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Reset resets the counter to 0.
func (c *Counter) Reset() {
	c.value.Store(0)
}

// Name returns the metric name.
func (c *Counter) Name() string {
	return c.name
}

// Help returns the metric help text.
func (c *Counter) Help() string {
	return c.help
}

// Labels returns a copy of the metric labels.
func (c *Counter) Labels() map[string]string {
	return copyLabels(c.labels)
}

// Gauge represents a gauge metric that can go up and down. The value is
// stored as IEEE 754 bits so fractional values survive Set and Add.
type Gauge struct {
	name   string
	help   string
	bits   atomic.Uint64
	labels map[string]string
}

// NewGauge creates a new gauge.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{
		name:   name,
		help:   help,
		labels: labels,
	}
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(value float64) {
	g.bits.Store(math.Float64bits(value))
}

// Add adds the given value to the gauge.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Name returns the metric name.
func (g *Gauge) Name() string {
	return g.name
}

// Help returns the metric help text.
func (g *Gauge) Help() string {
	return g.help
}

// Labels returns a copy of the metric labels.
func (g *Gauge) Labels() map[string]string {
	return copyLabels(g.labels)
}

// defaultBuckets cover latencies in milliseconds.
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	labels  map[string]string

	mu     sync.Mutex
	counts []int64 // cumulative; the final entry is the +Inf bucket
	sum    float64
	count  int64
}

// NewHistogram creates a new histogram with the given bucket upper bounds.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	return newChildHistogram(name, help, buckets, nil)
}

func newChildHistogram(name, help string, buckets []float64, labels map[string]string) *Histogram {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	return &Histogram{
		name:    name,
		help:    help,
		buckets: sorted,
		labels:  labels,
		counts:  make([]int64, len(sorted)+1),
	}
}

// Observe adds a single observation.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++

	// First bucket whose upper bound covers the value; everything from
	// there up is cumulative.
	idx := sort.SearchFloat64s(h.buckets, value)
	for i := idx; i < len(h.counts); i++ {
		h.counts[i]++
	}
}

// Count returns the total count of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Buckets returns the bucket upper bounds.
func (h *Histogram) Buckets() []float64 {
	result := make([]float64, len(h.buckets))
	copy(result, h.buckets)
	return result
}

// BucketCounts returns the cumulative count per bucket. The final entry is
// the +Inf bucket and equals Count().
func (h *Histogram) BucketCounts() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]int64, len(h.counts))
	copy(result, h.counts)
	return result
}

// snapshot returns counts, sum and count under a single lock so the
// exposition output is internally consistent.
func (h *Histogram) snapshot() ([]int64, float64, int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := make([]int64, len(h.counts))
	copy(counts, h.counts)
	return counts, h.sum, h.count
}

// Reset clears all observations.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.sum = 0
	h.count = 0
}

// Name returns the metric name.
func (h *Histogram) Name() string {
	return h.name
}

// Help returns the metric help text.
func (h *Histogram) Help() string {
	return h.help
}

// Labels returns a copy of the metric labels.
func (h *Histogram) Labels() map[string]string {
	return copyLabels(h.labels)
}

// CounterVec represents a counter partitioned by label values.
type CounterVec struct {
	name       string
	help       string
	labelNames []string
	counters   map[string]*Counter
	mu         sync.RWMutex
}

// NewCounterVec creates a new counter vector.
func NewCounterVec(name, help string, labelNames []string) *CounterVec {
	return &CounterVec{
		name:       name,
		help:       help,
		labelNames: labelNames,
		counters:   make(map[string]*Counter),
	}
}

// WithLabels returns the counter for the given label values, creating it on
// first use.
func (cv *CounterVec) WithLabels(labelValues ...string) *Counter {
	labels := buildLabels(cv.labelNames, labelValues)
	key := labelsToKey(labels)

	cv.mu.RLock()
	counter, exists := cv.counters[key]
	cv.mu.RUnlock()
	if exists {
		return counter
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()

	// Double-check after acquiring the write lock.
	if counter, exists := cv.counters[key]; exists {
		return counter
	}

	counter = NewCounter(cv.name, cv.help, labels)
	cv.counters[key] = counter
	return counter
}

// GetAll returns all counters in the vector, ordered by label key for stable
// output.
func (cv *CounterVec) GetAll() []*Counter {
	cv.mu.RLock()
	defer cv.mu.RUnlock()

	keys := make([]string, 0, len(cv.counters))
	for k := range cv.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]*Counter, 0, len(keys))
	for _, k := range keys {
		result = append(result, cv.counters[k])
	}
	return result
}

// Total returns the sum across all labeled counters.
func (cv *CounterVec) Total() int64 {
	cv.mu.RLock()
	defer cv.mu.RUnlock()

	var total int64
	for _, c := range cv.counters {
		total += c.Value()
	}
	return total
}

// Reset drops all labeled counters.
func (cv *CounterVec) Reset() {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	cv.counters = make(map[string]*Counter)
}

// Name returns the metric name.
func (cv *CounterVec) Name() string {
	return cv.name
}

// Help returns the metric help text.
func (cv *CounterVec) Help() string {
	return cv.help
}

// GaugeVec represents a gauge partitioned by label values.
type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	gauges     map[string]*Gauge
	mu         sync.RWMutex
}

// NewGaugeVec creates a new gauge vector.
func NewGaugeVec(name, help string, labelNames []string) *GaugeVec {
	return &GaugeVec{
		name:       name,
		help:       help,
		labelNames: labelNames,
		gauges:     make(map[string]*Gauge),
	}
}

// WithLabels returns the gauge for the given label values, creating it on
// first use.
func (gv *GaugeVec) WithLabels(labelValues ...string) *Gauge {
	labels := buildLabels(gv.labelNames, labelValues)
	key := labelsToKey(labels)

	gv.mu.RLock()
	gauge, exists := gv.gauges[key]
	gv.mu.RUnlock()
	if exists {
		return gauge
	}

	gv.mu.Lock()
	defer gv.mu.Unlock()

	// Double-check after acquiring the write lock.
	if gauge, exists := gv.gauges[key]; exists {
		return gauge
	}

	gauge = NewGauge(gv.name, gv.help, labels)
	gv.gauges[key] = gauge
	return gauge
}

// GetAll returns all gauges in the vector, ordered by label key.
func (gv *GaugeVec) GetAll() []*Gauge {
	gv.mu.RLock()
	defer gv.mu.RUnlock()

	keys := make([]string, 0, len(gv.gauges))
	for k := range gv.gauges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]*Gauge, 0, len(keys))
	for _, k := range keys {
		result = append(result, gv.gauges[k])
	}
	return result
}

// Reset drops all labeled gauges.
func (gv *GaugeVec) Reset() {
	gv.mu.Lock()
	defer gv.mu.Unlock()
	gv.gauges = make(map[string]*Gauge)
}

// Name returns the metric name.
func (gv *GaugeVec) Name() string {
	return gv.name
}

// Help returns the metric help text.
func (gv *GaugeVec) Help() string {
	return gv.help
}

// HistogramVec represents a histogram partitioned by label values.
type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	histograms map[string]*Histogram
	mu         sync.RWMutex
}

// NewHistogramVec creates a new histogram vector.
func NewHistogramVec(name, help string, labelNames []string, buckets []float64) *HistogramVec {
	return &HistogramVec{
		name:       name,
		help:       help,
		labelNames: labelNames,
		buckets:    buckets,
		histograms: make(map[string]*Histogram),
	}
}

// WithLabels returns the histogram for the given label values, creating it
// on first use.
func (hv *HistogramVec) WithLabels(labelValues ...string) *Histogram {
	labels := buildLabels(hv.labelNames, labelValues)
	key := labelsToKey(labels)

	hv.mu.RLock()
	histogram, exists := hv.histograms[key]
	hv.mu.RUnlock()
	if exists {
		return histogram
	}

	hv.mu.Lock()
	defer hv.mu.Unlock()

	// Double-check after acquiring the write lock.
	if histogram, exists := hv.histograms[key]; exists {
		return histogram
	}

	histogram = newChildHistogram(hv.name, hv.help, hv.buckets, labels)
	hv.histograms[key] = histogram
	return histogram
}

// GetAll returns all histograms in the vector, ordered by label key.
func (hv *HistogramVec) GetAll() []*Histogram {
	hv.mu.RLock()
	defer hv.mu.RUnlock()

	keys := make([]string, 0, len(hv.histograms))
	for k := range hv.histograms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]*Histogram, 0, len(keys))
	for _, k := range keys {
		result = append(result, hv.histograms[k])
	}
	return result
}

// Reset drops all labeled histograms.
func (hv *HistogramVec) Reset() {
	hv.mu.Lock()
	defer hv.mu.Unlock()
	hv.histograms = make(map[string]*Histogram)
}

// Name returns the metric name.
func (hv *HistogramVec) Name() string {
	return hv.name
}

// Help returns the metric help text.
func (hv *HistogramVec) Help() string {
	return hv.help
}

// buildLabels pairs label names with values. The counts must match.
func buildLabels(names, values []string) map[string]string {
	if len(values) != len(names) {
		panic(fmt.Sprintf("expected %d label values, got %d", len(names), len(values)))
	}
	labels := make(map[string]string, len(names))
	for i, name := range names {
		labels[name] = values[i]
	}
	return labels
}

// labelsToKey creates a stable key from a label map.
func labelsToKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(labels[k])
	}
	return sb.String()
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels))
	for k, v := range labels {
		result[k] = v
	}
	return result
}
