package metrics

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_counter", "A test counter", nil)

	if c.Value() != 0 {
		t.Errorf("expected initial value 0, got %d", c.Value())
	}

	c.Inc()
	if c.Value() != 1 {
		t.Errorf("expected value 1 after Inc(), got %d", c.Value())
	}

	c.Add(5)
	if c.Value() != 6 {
		t.Errorf("expected value 6 after Add(5), got %d", c.Value())
	}

	// Counters can't decrease
	c.Add(-10)
	if c.Value() != 6 {
		t.Errorf("expected value 6 after Add(-10), got %d", c.Value())
	}

	c.Reset()
	if c.Value() != 0 {
		t.Errorf("expected value 0 after Reset(), got %d", c.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "A test gauge", nil)

	if g.Value() != 0 {
		t.Errorf("expected initial value 0, got %f", g.Value())
	}

	g.Set(42.5)
	if g.Value() != 42.5 {
		t.Errorf("expected value 42.5, got %f", g.Value())
	}

	g.Inc()
	if g.Value() != 43.5 {
		t.Errorf("expected value 43.5 after Inc(), got %f", g.Value())
	}

	g.Dec()
	if g.Value() != 42.5 {
		t.Errorf("expected value 42.5 after Dec(), got %f", g.Value())
	}

	g.Add(-10.25)
	if g.Value() != 32.25 {
		t.Errorf("expected value 32.25 after Add(-10.25), got %f", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	buckets := []float64{1, 5, 10, 50, 100}
	h := NewHistogram("test_histogram", "A test histogram", buckets)

	if h.Count() != 0 {
		t.Errorf("expected initial count 0, got %d", h.Count())
	}

	h.Observe(2.5)
	h.Observe(7.0)
	h.Observe(150.0)

	if h.Count() != 3 {
		t.Errorf("expected count 3, got %d", h.Count())
	}

	if h.Sum() != 159.5 {
		t.Errorf("expected sum 159.5, got %f", h.Sum())
	}

	// Cumulative bucket counts: 2.5 <= 5, 7.0 <= 10, 150.0 only <= +Inf.
	want := []int64{0, 1, 2, 2, 2, 3}
	counts := h.BucketCounts()
	if len(counts) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(counts))
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("bucket %d: expected count %d, got %d", i, want[i], counts[i])
		}
	}

	h.Reset()
	if h.Count() != 0 || h.Sum() != 0 {
		t.Errorf("expected zeroed histogram after Reset(), got count %d sum %f",
			h.Count(), h.Sum())
	}
}

func TestHistogramUnsortedBuckets(t *testing.T) {
	h := NewHistogram("test_histogram_sorted", "Bucket ordering", []float64{100, 1, 10})

	got := h.Buckets()
	want := []float64{1, 10, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bucket %d: expected bound %f, got %f", i, want[i], got[i])
		}
	}
}

func TestGaugeVec(t *testing.T) {
	gv := NewGaugeVec("test_gauge_vec", "A test gauge vector", []string{"system", "phase"})

	g1 := gv.WithLabels("Borda Count", "scoring")
	g1.Set(100)

	g2 := gv.WithLabels("Borda Count", "tiebreak")
	g2.Set(500)

	g3 := gv.WithLabels("Schulze", "scoring")
	g3.Set(50)

	gauges := gv.GetAll()
	if len(gauges) != 3 {
		t.Errorf("expected 3 gauges, got %d", len(gauges))
	}

	// Same labels must return the same gauge instance
	g1Again := gv.WithLabels("Borda Count", "scoring")
	if g1 != g1Again {
		t.Error("expected to get same gauge instance for same labels")
	}
}

func TestCounterVec(t *testing.T) {
	cv := NewCounterVec("test_counter_vec", "A test counter vector", []string{"code"})

	c1 := cv.WithLabels("ballot_invalid")
	c1.Inc()
	c1.Inc()

	c2 := cv.WithLabels("internal")
	c2.Inc()

	counters := cv.GetAll()
	if len(counters) != 2 {
		t.Errorf("expected 2 counters, got %d", len(counters))
	}

	if c1.Value() != 2 {
		t.Errorf("expected ballot_invalid counter value 2, got %d", c1.Value())
	}

	if c2.Value() != 1 {
		t.Errorf("expected internal counter value 1, got %d", c2.Value())
	}

	if cv.Total() != 3 {
		t.Errorf("expected total 3, got %d", cv.Total())
	}
}

func TestHistogramVec(t *testing.T) {
	hv := NewHistogramVec("test_histogram_vec", "A test histogram vector",
		[]string{"system"}, []float64{1, 5, 10})

	h1 := hv.WithLabels("Sequential IRV")
	h1.Observe(3)
	h1.Observe(7)

	h1Again := hv.WithLabels("Sequential IRV")
	if h1 != h1Again {
		t.Error("expected to get same histogram instance for same labels")
	}
	if h1Again.Count() != 2 {
		t.Errorf("expected count 2, got %d", h1Again.Count())
	}

	if len(hv.GetAll()) != 1 {
		t.Errorf("expected 1 histogram, got %d", len(hv.GetAll()))
	}
}

func TestMetricsRecording(t *testing.T) {
	m := New()
	defer m.Close()

	// Successful analysis
	m.RecordAnalysis(42, 12, 5, nil)
	if m.AnalysesTotal.Value() != 1 {
		t.Errorf("expected 1 analysis, got %d", m.AnalysesTotal.Value())
	}
	if m.AnalysisLatency.Count() != 1 {
		t.Errorf("expected 1 latency observation, got %d", m.AnalysisLatency.Count())
	}
	if m.CompetitorsPerRun.Count() != 1 || m.JudgesPerRun.Count() != 1 {
		t.Error("expected panel-size observations for successful analysis")
	}

	// Failed analysis counts toward the total but not the distributions
	m.RecordAnalysis(10, 6, 3, apperrors.BallotError("duplicate placement"))
	if m.AnalysesTotal.Value() != 2 {
		t.Errorf("expected 2 analyses, got %d", m.AnalysesTotal.Value())
	}
	if got := m.AnalysisFailures.WithLabels("ballot_invalid").Value(); got != 1 {
		t.Errorf("expected 1 ballot_invalid failure, got %d", got)
	}
	if m.AnalysisLatency.Count() != 1 {
		t.Errorf("expected failed analysis to skip latency, got count %d",
			m.AnalysisLatency.Count())
	}

	// Per-system run with tiebreaks
	m.RecordSystem("Relative Placement", 7, 2, 1, false)
	if got := m.SystemLatency.WithLabels("Relative Placement").Count(); got != 1 {
		t.Errorf("expected 1 system latency observation, got %d", got)
	}
	if got := m.TiebreaksTotal.WithLabels("Relative Placement").Value(); got != 2 {
		t.Errorf("expected 2 tiebreaks, got %d", got)
	}
	if got := m.UnresolvedTies.WithLabels("Relative Placement").Value(); got != 1 {
		t.Errorf("expected 1 unresolved tie, got %d", got)
	}

	// Failed system run records only the failure
	m.RecordSystem("Schulze", 3, 0, 0, true)
	if got := m.SystemFailures.WithLabels("Schulze").Value(); got != 1 {
		t.Errorf("expected 1 system failure, got %d", got)
	}
	if got := m.SystemLatency.WithLabels("Schulze").Count(); got != 0 {
		t.Errorf("expected failed run to skip latency, got count %d", got)
	}

	// Bus publish metrics
	m.RecordBusPublish("analysis.completed", 4, nil)
	m.RecordBusPublish("analysis.completed", 2, errors.New("broker down"))
	if got := m.BusEventsPublished.WithLabels("analysis.completed").Value(); got != 2 {
		t.Errorf("expected 2 published events, got %d", got)
	}
	if got := m.BusErrors.WithLabels("analysis.completed").Value(); got != 1 {
		t.Errorf("expected 1 bus error, got %d", got)
	}

	// HTTP metrics
	m.RecordHTTP("POST", "/v1/analyses", 200, 0.015, 512)
	if got := m.HTTPRequests.WithLabels("POST", "/v1/analyses", "200").Value(); got != 1 {
		t.Errorf("expected 1 http request, got %d", got)
	}
	if got := m.HTTPDuration.WithLabels("POST", "/v1/analyses").Count(); got != 1 {
		t.Errorf("expected 1 duration observation, got %d", got)
	}
	if got := m.HTTPRequestSize.WithLabels("POST", "/v1/analyses").Count(); got != 1 {
		t.Errorf("expected 1 size observation, got %d", got)
	}
}

func TestMetricsReset(t *testing.T) {
	m := New()
	defer m.Close()

	m.RecordAnalysis(42, 12, 5, nil)
	m.RecordSystem("Borda Count", 3, 1, 0, false)
	m.Reset()

	if m.AnalysesTotal.Value() != 0 {
		t.Errorf("expected 0 analyses after Reset(), got %d", m.AnalysesTotal.Value())
	}
	if len(m.SystemLatency.GetAll()) != 0 {
		t.Errorf("expected empty system latency vector after Reset(), got %d",
			len(m.SystemLatency.GetAll()))
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "ballot error",
			err:  apperrors.BallotError("duplicate placement"),
			want: "ballot_invalid",
		},
		{
			name: "wrapped app error",
			err:  apperrors.EngineError("Schulze", errors.New("boom")),
			want: "engine_failure",
		},
		{
			name: "plain error",
			err:  errors.New("something broke"),
			want: "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorCode(tt.err); got != tt.want {
				t.Errorf("errorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrometheusFormat(t *testing.T) {
	m := New()
	defer m.Close()

	m.RecordAnalysis(42, 12, 5, nil)
	m.RecordSystem("Borda Count", 3, 1, 0, false)
	m.RecordBusPublish("analysis.completed", 4, nil)

	output := m.PrometheusFormat()

	requiredStrings := []string{
		"# HELP scrutineer_analyses_total",
		"# TYPE scrutineer_analyses_total counter",
		"scrutineer_analyses_total 1",
		"# TYPE scrutineer_analysis_latency_ms histogram",
		"scrutineer_analysis_latency_ms_count 1",
		"scrutineer_analysis_latency_ms_sum 42",
		"scrutineer_system_latency_ms_bucket{le=\"5\",system=\"Borda Count\"} 1",
		"scrutineer_tiebreaks_total{system=\"Borda Count\"} 1",
		"scrutineer_bus_events_published_total{topic=\"analysis.completed\"} 1",
		"# TYPE scrutineer_http_requests_in_flight gauge",
		"# TYPE scrutineer_goroutines gauge",
	}

	for _, s := range requiredStrings {
		if !strings.Contains(output, s) {
			t.Errorf("expected Prometheus output to contain %q", s)
		}
	}

	// Vectors with no children stay out of the exposition entirely.
	if strings.Contains(output, "scrutineer_system_failures_total") {
		t.Error("expected empty failure vector to be omitted")
	}
}

func TestPrometheusEscaping(t *testing.T) {
	m := New()
	defer m.Close()

	m.RecordSystem("line\nbreak \"quoted\"", 3, 0, 0, false)

	output := m.PrometheusFormat()
	if !strings.Contains(output, `system="line\nbreak \"quoted\""`) {
		t.Error("expected label value to be escaped")
	}
}

func TestLabelsToKey(t *testing.T) {
	tests := []struct {
		name   string
		labels map[string]string
		want   string
	}{
		{
			name:   "empty",
			labels: map[string]string{},
			want:   "",
		},
		{
			name:   "single label",
			labels: map[string]string{"system": "Borda Count"},
			want:   "system=Borda Count",
		},
		{
			name:   "multiple labels sorted",
			labels: map[string]string{"system": "Schulze", "phase": "scoring"},
			want:   "phase=scoring,system=Schulze",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labelsToKey(tt.labels)
			if got != tt.want {
				t.Errorf("labelsToKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkCounterInc(b *testing.B) {
	c := NewCounter("bench_counter", "Benchmark counter", nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Inc()
	}
}

func BenchmarkGaugeSet(b *testing.B) {
	g := NewGauge("bench_gauge", "Benchmark gauge", nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Set(float64(i))
	}
}

func BenchmarkHistogramObserve(b *testing.B) {
	h := NewHistogram("bench_histogram", "Benchmark histogram", nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Observe(float64(i % 1000))
	}
}

func BenchmarkCounterVecWithLabels(b *testing.B) {
	cv := NewCounterVec("bench_counter_vec", "Benchmark counter vector", []string{"system"})
	systems := []string{"Borda Count", "Relative Placement", "Schulze", "Sequential IRV"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cv.WithLabels(systems[i%len(systems)]).Inc()
	}
}

func BenchmarkPrometheusFormat(b *testing.B) {
	m := New()
	defer m.Close()
	m.RecordAnalysis(42, 12, 5, nil)
	m.RecordSystem("Borda Count", 3, 1, 0, false)
	m.RecordHTTP("POST", "/v1/analyses", 200, 0.015, 512)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.PrometheusFormat()
	}
}
