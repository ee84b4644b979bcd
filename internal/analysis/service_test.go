package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/bus"
	"github.com/scrutineering/scrutineer/internal/metrics"
	"github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/voting"
	"github.com/scrutineering/scrutineer/internal/voting/borda"
	"github.com/scrutineering/scrutineer/internal/voting/relplace"
	"github.com/scrutineering/scrutineer/internal/voting/schulze"
	"github.com/scrutineering/scrutineer/internal/voting/seqirv"
	"github.com/scrutineering/scrutineer/internal/voting/votingtest"
)

// eventSink collects every event published on the given topics.
type eventSink struct {
	mu     sync.Mutex
	events map[string][]bus.Event
}

func newEventSink(t *testing.T, b bus.Bus, topics ...string) *eventSink {
	t.Helper()
	sink := &eventSink{events: make(map[string][]bus.Event)}
	for _, topic := range topics {
		err := b.Subscribe(context.Background(), topic, func(ctx context.Context, event bus.Event) error {
			sink.mu.Lock()
			defer sink.mu.Unlock()
			sink.events[event.Type] = append(sink.events[event.Type], event)
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	return sink
}

func (s *eventSink) get(topic string) []bus.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bus.Event(nil), s.events[topic]...)
}

func allTopics() []string {
	return []string{
		bus.TopicAnalysisRequested,
		bus.TopicAnalysisCompleted,
		bus.TopicAnalysisFailed,
	}
}

func TestServiceAnalyze(t *testing.T) {
	memBus := bus.NewMemoryBus()
	defer memBus.Close()
	sink := newEventSink(t, memBus, allTopics()...)

	m := metrics.New()
	defer m.Close()

	svc := NewService(newTestOrchestrator(true), memBus, m, nil)

	sheet := votingtest.Disagreement(t)
	res, err := svc.Analyze(context.Background(), sheet)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if res.ID == "" {
		t.Error("result ID is empty, want a generated analysis ID")
	}
	if res.Fingerprint != sheet.Fingerprint() {
		t.Errorf("fingerprint = %q, want %q", res.Fingerprint, sheet.Fingerprint())
	}
	if len(res.Results) != 4 {
		t.Fatalf("got %d system results, want 4", len(res.Results))
	}

	if !memBus.DrainTimeout(time.Second) {
		t.Fatal("bus did not drain")
	}

	requested := sink.get(bus.TopicAnalysisRequested)
	if len(requested) != 1 {
		t.Fatalf("got %d requested events, want 1", len(requested))
	}
	reqPayload, ok := requested[0].Payload.(RequestedPayload)
	if !ok {
		t.Fatalf("requested payload type = %T, want RequestedPayload", requested[0].Payload)
	}
	if reqPayload.AnalysisID != res.ID || reqPayload.Fingerprint != res.Fingerprint {
		t.Errorf("requested payload = %+v, want ID %s and fingerprint %s", reqPayload, res.ID, res.Fingerprint)
	}
	if reqPayload.NumCompetitors != 4 || reqPayload.NumJudges != 5 {
		t.Errorf("requested payload panel = %d/%d, want 4/5", reqPayload.NumCompetitors, reqPayload.NumJudges)
	}

	completed := sink.get(bus.TopicAnalysisCompleted)
	if len(completed) != 1 {
		t.Fatalf("got %d completed events, want 1", len(completed))
	}
	if completed[0].Source != EventSource {
		t.Errorf("completed source = %q, want %q", completed[0].Source, EventSource)
	}
	comPayload := completed[0].Payload.(CompletedPayload)
	if comPayload.AnalysisID != res.ID || len(comPayload.Systems) != 4 || len(comPayload.FailedSystems) != 0 {
		t.Errorf("completed payload = %+v", comPayload)
	}

	if failed := sink.get(bus.TopicAnalysisFailed); len(failed) != 0 {
		t.Errorf("got %d failed events, want 0", len(failed))
	}

	// Run-level counters
	if got := m.AnalysesTotal.Value(); got != 1 {
		t.Errorf("analyses total = %d, want 1", got)
	}
	if got := m.AnalysisLatency.Count(); got != 1 {
		t.Errorf("analysis latency count = %d, want 1", got)
	}
	if got := m.CompetitorsPerRun.Count(); got != 1 {
		t.Errorf("competitors-per-run count = %d, want 1", got)
	}

	// Per-system samples: every engine contributes one latency observation.
	for _, name := range svc.Registry().Names() {
		if got := m.SystemLatency.WithLabels(name).Count(); got != 1 {
			t.Errorf("system latency count for %s = %d, want 1", name, got)
		}
	}

	// Relative Placement breaks C/D on quality and leaves A/B unresolved.
	if got := m.TiebreaksTotal.WithLabels(voting.NameRelativePlacement).Value(); got != 2 {
		t.Errorf("relative placement tiebreaks = %d, want 2", got)
	}
	if got := m.UnresolvedTies.WithLabels(voting.NameRelativePlacement).Value(); got != 1 {
		t.Errorf("relative placement unresolved = %d, want 1", got)
	}
}

func TestServiceAnalyzeRejected(t *testing.T) {
	memBus := bus.NewMemoryBus()
	defer memBus.Close()
	sink := newEventSink(t, memBus, allTopics()...)

	m := metrics.New()
	defer m.Close()

	svc := NewService(newTestOrchestrator(false), memBus, m, nil)

	sheet := &ballot.Scoresheet{
		Competitors: []string{"A", "B"},
		Judges:      []string{"J1"},
		Rankings: map[string]map[string]int{
			"J1": {"A": 1, "B": 1},
		},
	}

	res, err := svc.Analyze(context.Background(), sheet)
	if err == nil {
		t.Fatalf("Analyze() = %+v, want validation error", res)
	}
	if !errors.IsBallotInvalid(err) {
		t.Errorf("error = %v, want ballot validation failure", err)
	}

	if !memBus.DrainTimeout(time.Second) {
		t.Fatal("bus did not drain")
	}

	if requested := sink.get(bus.TopicAnalysisRequested); len(requested) != 1 {
		t.Errorf("got %d requested events, want 1", len(requested))
	}
	if completed := sink.get(bus.TopicAnalysisCompleted); len(completed) != 0 {
		t.Errorf("got %d completed events, want 0", len(completed))
	}

	failed := sink.get(bus.TopicAnalysisFailed)
	if len(failed) != 1 {
		t.Fatalf("got %d failed events, want 1", len(failed))
	}
	payload := failed[0].Payload.(FailedPayload)
	if payload.Code != errors.CodeBallotInvalid {
		t.Errorf("failed payload code = %q, want %q", payload.Code, errors.CodeBallotInvalid)
	}
	if payload.Error == "" {
		t.Error("failed payload error is empty")
	}

	if got := m.AnalysesTotal.Value(); got != 1 {
		t.Errorf("analyses total = %d, want 1", got)
	}
	if got := m.AnalysisFailures.Total(); got != 1 {
		t.Errorf("analysis failures = %d, want 1", got)
	}
	if got := m.AnalysisLatency.Count(); got != 0 {
		t.Errorf("analysis latency count = %d, want 0 for rejected run", got)
	}
}

func TestServiceAnalyzeNilSheet(t *testing.T) {
	memBus := bus.NewMemoryBus()
	defer memBus.Close()
	sink := newEventSink(t, memBus, allTopics()...)

	svc := NewService(newTestOrchestrator(false), memBus, nil, nil)

	_, err := svc.Analyze(context.Background(), nil)
	if err == nil {
		t.Fatal("Analyze(nil) should error")
	}
	if !errors.IsBallotInvalid(err) {
		t.Errorf("error = %v, want ballot validation failure", err)
	}

	// A nil sheet is rejected before the run is announced.
	if !memBus.DrainTimeout(time.Second) {
		t.Fatal("bus did not drain")
	}
	for _, topic := range allTopics() {
		if events := sink.get(topic); len(events) != 0 {
			t.Errorf("got %d events on %s, want 0", len(events), topic)
		}
	}
}

// The service must work as a plain library wrapper: no bus, no metrics.
func TestServiceWithoutCollaborators(t *testing.T) {
	svc := NewService(newTestOrchestrator(true), nil, nil, nil)

	res, err := svc.Analyze(context.Background(), votingtest.ClearWinner(t))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.ID == "" || res.Fingerprint == "" {
		t.Errorf("result ID = %q, fingerprint = %q, want both set", res.ID, res.Fingerprint)
	}
}

func TestServiceAnalysisIDsUnique(t *testing.T) {
	svc := NewService(newTestOrchestrator(false), nil, nil, nil)

	first, err := svc.Analyze(context.Background(), votingtest.Unanimous(t))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	second, err := svc.Analyze(context.Background(), votingtest.Unanimous(t))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if first.ID == second.ID {
		t.Errorf("both runs got analysis ID %s, want unique IDs", first.ID)
	}
	if first.Fingerprint != second.Fingerprint {
		t.Errorf("fingerprints %q and %q differ for the same sheet", first.Fingerprint, second.Fingerprint)
	}
}

func TestCountTiebreaks(t *testing.T) {
	tests := []struct {
		name           string
		result         voting.Result
		wantTiebreaks  int
		wantUnresolved int
	}{
		{
			name: "borda resolved and unresolved",
			result: voting.Result{Details: borda.Details{
				Tiebreakers: []borda.Tiebreak{
					{Resolution: borda.Resolution{Method: voting.MethodRecursiveBorda}},
					{Resolution: borda.Resolution{Method: voting.MethodUnresolved}},
				},
			}},
			wantTiebreaks:  2,
			wantUnresolved: 1,
		},
		{
			name: "relative placement counts quality and unresolved rounds",
			result: voting.Result{Details: relplace.Details{
				Rounds: []relplace.Round{
					{Method: voting.MethodMajority},
					{Method: voting.MethodQuality},
					{Method: voting.MethodUnresolved},
				},
			}},
			wantTiebreaks:  2,
			wantUnresolved: 1,
		},
		{
			name: "schulze cascade",
			result: voting.Result{Details: schulze.Details{
				Tiebreaks: []schulze.Tiebreak{
					{Method: voting.MethodWinningStrength},
					{Method: voting.MethodUnresolved},
				},
			}},
			wantTiebreaks:  2,
			wantUnresolved: 1,
		},
		{
			name: "sequential irv counts tiebreak rounds and shared slots",
			result: voting.Result{Details: seqirv.Details{
				PlacementRounds: []seqirv.PlacementRound{
					{
						Method: voting.MethodMajority,
						Rounds: []seqirv.Round{
							{Round: 1},
							{Round: 2, Tiebreak: &seqirv.Tiebreak{}},
						},
					},
					{Method: voting.MethodAllTiedEqual, Rounds: []seqirv.Round{{Round: 1}}},
				},
			}},
			wantTiebreaks:  1,
			wantUnresolved: 1,
		},
		{
			name:           "unknown details",
			result:         voting.Result{Details: nil},
			wantTiebreaks:  0,
			wantUnresolved: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiebreaks, unresolved := countTiebreaks(tt.result)
			if tiebreaks != tt.wantTiebreaks || unresolved != tt.wantUnresolved {
				t.Errorf("countTiebreaks() = (%d, %d), want (%d, %d)",
					tiebreaks, unresolved, tt.wantTiebreaks, tt.wantUnresolved)
			}
		})
	}
}
