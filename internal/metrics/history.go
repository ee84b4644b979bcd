package metrics

import (
	"context"
	"sync"
	"time"
)

// DataPoint represents a single time-series sample.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// aggregation selects how the samples within a bucket collapse into one
// data point.
type aggregation int

const (
	aggregateMean aggregation = iota
	aggregateSum
)

// MetricHistory stores bucketed time-series data with bounded retention and
// optional Redis persistence.
type MetricHistory struct {
	mu          sync.Mutex
	agg         aggregation
	bucketSize  time.Duration
	maxBuckets  int
	points      []DataPoint
	accumulator float64
	count       int64
	bucketStart time.Time
	storage     *RedisStorage
	metricName  string
}

// NewMeanHistory creates a history whose buckets hold the mean of the
// samples recorded during the bucket window.
func NewMeanHistory(bucketSize time.Duration, maxBuckets int) *MetricHistory {
	return newHistory(aggregateMean, bucketSize, maxBuckets, nil, "")
}

// NewSumHistory creates a history whose buckets hold the sum of the samples
// recorded during the bucket window.
func NewSumHistory(bucketSize time.Duration, maxBuckets int) *MetricHistory {
	return newHistory(aggregateSum, bucketSize, maxBuckets, nil, "")
}

func newHistory(agg aggregation, bucketSize time.Duration, maxBuckets int, storage *RedisStorage, metricName string) *MetricHistory {
	h := &MetricHistory{
		agg:         agg,
		bucketSize:  bucketSize,
		maxBuckets:  maxBuckets,
		points:      make([]DataPoint, 0, maxBuckets),
		bucketStart: time.Now().Truncate(bucketSize),
		storage:     storage,
		metricName:  metricName,
	}

	// Seed from persisted history so restarts keep their series.
	if storage != nil && metricName != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		since := time.Now().Add(-time.Duration(maxBuckets) * bucketSize)
		if points, err := storage.LoadHistory(ctx, metricName, since); err == nil && len(points) > 0 {
			h.points = points
		}
	}

	return h
}

// Record adds a sample to the current bucket.
func (h *MetricHistory) Record(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rotate(time.Now())
	h.accumulator += value
	h.count++
}

// rotate finalizes the current bucket once its window has passed.
// Must be called with the lock held.
func (h *MetricHistory) rotate(now time.Time) {
	bucket := now.Truncate(h.bucketSize)
	if !bucket.After(h.bucketStart) {
		return
	}

	if h.count > 0 {
		dp := DataPoint{Timestamp: h.bucketStart, Value: h.bucketValue()}
		h.points = append(h.points, dp)

		// Persist without holding up the caller.
		if h.storage != nil && h.metricName != "" {
			go h.persist(dp)
		}

		if len(h.points) > h.maxBuckets {
			h.points = h.points[len(h.points)-h.maxBuckets:]
		}
	}

	h.accumulator = 0
	h.count = 0
	h.bucketStart = bucket
}

// bucketValue collapses the current accumulator into one value.
// Must be called with the lock held and count > 0.
func (h *MetricHistory) bucketValue() float64 {
	if h.agg == aggregateMean {
		return h.accumulator / float64(h.count)
	}
	return h.accumulator
}

func (h *MetricHistory) persist(dp DataPoint) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = h.storage.SaveDataPoint(ctx, h.metricName, dp)
}

// Snapshot returns the finalized buckets plus the current partial bucket.
func (h *MetricHistory) Snapshot() []DataPoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rotate(time.Now())

	result := make([]DataPoint, len(h.points), len(h.points)+1)
	copy(result, h.points)

	if h.count > 0 {
		result = append(result, DataPoint{Timestamp: h.bucketStart, Value: h.bucketValue()})
	}

	return result
}

// Since returns the data points at or after the given time.
func (h *MetricHistory) Since(since time.Time) []DataPoint {
	all := h.Snapshot()
	result := make([]DataPoint, 0, len(all))
	for _, dp := range all {
		if !dp.Timestamp.Before(since) {
			result = append(result, dp)
		}
	}
	return result
}

// History series use 5-minute buckets with one hour of retention.
const (
	historyBucketSize = 5 * time.Minute
	historyMaxBuckets = 12
)

// TimeSeriesData holds the time series reported by the stats snapshot.
type TimeSeriesData struct {
	AnalysisRate    *MetricHistory // analyses per bucket
	AnalysisLatency *MetricHistory // mean analysis latency per bucket, in ms
	TiebreakRate    *MetricHistory // tiebreaks applied per bucket
}

// NewTimeSeriesData creates an in-memory time-series collection.
func NewTimeSeriesData() *TimeSeriesData {
	return &TimeSeriesData{
		AnalysisRate:    NewSumHistory(historyBucketSize, historyMaxBuckets),
		AnalysisLatency: NewMeanHistory(historyBucketSize, historyMaxBuckets),
		TiebreakRate:    NewSumHistory(historyBucketSize, historyMaxBuckets),
	}
}

// NewTimeSeriesDataWithRedis creates a time-series collection persisted to
// Redis. Previously saved points are loaded on construction.
func NewTimeSeriesDataWithRedis(storage *RedisStorage) *TimeSeriesData {
	return &TimeSeriesData{
		AnalysisRate:    newHistory(aggregateSum, historyBucketSize, historyMaxBuckets, storage, "analysis_rate"),
		AnalysisLatency: newHistory(aggregateMean, historyBucketSize, historyMaxBuckets, storage, "analysis_latency"),
		TiebreakRate:    newHistory(aggregateSum, historyBucketSize, historyMaxBuckets, storage, "tiebreak_rate"),
	}
}

// RecordAnalysis tracks one completed analysis in the rate and latency
// series.
func (t *TimeSeriesData) RecordAnalysis(latencyMs float64) {
	t.AnalysisRate.Record(1)
	t.AnalysisLatency.Record(latencyMs)
}

// RecordTiebreaks tracks tiebreaks applied during an analysis.
func (t *TimeSeriesData) RecordTiebreaks(n int) {
	t.TiebreakRate.Record(float64(n))
}

// Snapshot returns all series keyed by name.
func (t *TimeSeriesData) Snapshot() map[string][]DataPoint {
	return map[string][]DataPoint{
		"analysis_rate":    t.AnalysisRate.Snapshot(),
		"analysis_latency": t.AnalysisLatency.Snapshot(),
		"tiebreak_rate":    t.TiebreakRate.Snapshot(),
	}
}
