package analysis

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/bus"
	"github.com/scrutineering/scrutineer/internal/metrics"
	pkgcontext "github.com/scrutineering/scrutineer/internal/pkg/context"
	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/pkg/logger"
	"github.com/scrutineering/scrutineer/internal/pkg/security"
	"github.com/scrutineering/scrutineer/internal/voting"
	"github.com/scrutineering/scrutineer/internal/voting/borda"
	"github.com/scrutineering/scrutineer/internal/voting/relplace"
	"github.com/scrutineering/scrutineer/internal/voting/schulze"
	"github.com/scrutineering/scrutineer/internal/voting/seqirv"
)

// EventSource identifies scrutineer as the origin of bus events.
const EventSource = "scrutineer"

// Service wraps the Orchestrator with the operational concerns the pure core
// avoids: analysis IDs, scoresheet fingerprints, structured logging, metrics,
// and lifecycle event publication.
type Service struct {
	orchestrator *Orchestrator
	bus          bus.Bus
	metrics      *metrics.Metrics
	log          *logger.Logger
}

// NewService creates an analysis service. eventBus and m may be nil, which
// disables event publication and metrics recording respectively.
func NewService(orchestrator *Orchestrator, eventBus bus.Bus, m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		orchestrator: orchestrator,
		bus:          eventBus,
		metrics:      m,
		log:          log,
	}
}

// Registry returns the underlying orchestrator's system registry.
func (s *Service) Registry() *Registry {
	return s.orchestrator.Registry()
}

// RequestedPayload is the analysis.requested event payload.
type RequestedPayload struct {
	AnalysisID      string `json:"analysis_id"`
	Fingerprint     string `json:"scoresheet_fingerprint"`
	CompetitionName string `json:"competition_name,omitempty"`
	NumCompetitors  int    `json:"num_competitors"`
	NumJudges       int    `json:"num_judges"`
}

// CompletedPayload is the analysis.completed event payload. Systems lists
// the engines that reported; FailedSystems the ones that did not.
type CompletedPayload struct {
	AnalysisID    string   `json:"analysis_id"`
	Fingerprint   string   `json:"scoresheet_fingerprint"`
	Systems       []string `json:"systems"`
	FailedSystems []string `json:"failed_systems,omitempty"`
	ElapsedMs     int64    `json:"elapsed_ms"`
}

// FailedPayload is the analysis.failed event payload, published when the
// analysis as a whole is rejected (single-engine failures do not fail a run).
type FailedPayload struct {
	AnalysisID  string `json:"analysis_id"`
	Fingerprint string `json:"scoresheet_fingerprint,omitempty"`
	Code        string `json:"code"`
	Error       string `json:"error"`
}

// Analyze runs every registered system over the sheet, stamps the result
// with a fresh analysis ID and the sheet fingerprint, and reports the run
// through logs, metrics, and bus events.
func (s *Service) Analyze(ctx context.Context, sheet *ballot.Scoresheet) (*Result, error) {
	if sheet == nil {
		return nil, apperrors.BallotError("scoresheet is required")
	}

	start := time.Now()
	id := uuid.NewString()
	fingerprint := sheet.Fingerprint()
	ctx = pkgcontext.WithAnalysisID(ctx, id)
	log := s.log.WithAnalysis(id)

	log.Info("analysis started",
		"fingerprint", fingerprint,
		"competition", security.SanitizeForLog(sheet.CompetitionName),
		"competitors", sheet.NumCompetitors(),
		"judges", sheet.NumJudges(),
	)
	s.publish(ctx, log, bus.TopicAnalysisRequested, RequestedPayload{
		AnalysisID:      id,
		Fingerprint:     fingerprint,
		CompetitionName: sheet.CompetitionName,
		NumCompetitors:  sheet.NumCompetitors(),
		NumJudges:       sheet.NumJudges(),
	})

	result, err := s.orchestrator.Analyze(sheet)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAnalysis(latencyMs, sheet.NumCompetitors(), sheet.NumJudges(), err)
		}
		// Validation errors quote judge and competitor names straight off
		// the scoresheet, so they are sanitized before logging.
		log.Error("analysis rejected", "error", security.SanitizeForLog(err.Error()))
		s.publish(ctx, log, bus.TopicAnalysisFailed, FailedPayload{
			AnalysisID:  id,
			Fingerprint: fingerprint,
			Code:        errorCode(err),
			Error:       err.Error(),
		})
		return nil, err
	}

	result.ID = id
	result.Fingerprint = fingerprint
	s.recordMetrics(result, latencyMs, sheet)

	systems := make([]string, 0, len(result.Results))
	for _, res := range result.Results {
		systems = append(systems, res.SystemName)
	}
	failed := make([]string, 0, len(result.Failures))
	for _, failure := range result.Failures {
		failed = append(failed, failure.System)
		log.Warn("system failed",
			"system", failure.System,
			"code", failure.Code,
			"error", security.SanitizeForLog(failure.Error),
		)
	}

	log.Info("analysis completed",
		"elapsed_ms", result.ElapsedMs,
		"systems", len(systems),
		"failed_systems", len(failed),
	)
	s.publish(ctx, log, bus.TopicAnalysisCompleted, CompletedPayload{
		AnalysisID:    id,
		Fingerprint:   fingerprint,
		Systems:       systems,
		FailedSystems: failed,
		ElapsedMs:     result.ElapsedMs,
	})

	return result, nil
}

// publish sends a lifecycle event. Bus failures are logged, never propagated:
// an analysis result must not be lost to a broker hiccup.
func (s *Service) publish(ctx context.Context, log *logger.Logger, topic string, payload any) {
	if s.bus == nil {
		return
	}
	event := bus.NewEvent(topic, EventSource, payload)
	// All lifecycle events of one run share the analysis ID, so consumers
	// can correlate requested/completed/failed.
	event.CorrelationID = pkgcontext.AnalysisID(ctx)
	if err := s.bus.Publish(ctx, topic, event); err != nil {
		log.Warn("failed to publish event", "topic", topic, "error", err.Error())
	}
}

// recordMetrics records the run-level counters plus one per-system sample
// with the tiebreak activity extracted from each trace.
func (s *Service) recordMetrics(result *Result, latencyMs int64, sheet *ballot.Scoresheet) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordAnalysis(latencyMs, sheet.NumCompetitors(), sheet.NumJudges(), nil)
	for _, res := range result.Results {
		tiebreaks, unresolved := countTiebreaks(res)
		s.metrics.RecordSystem(res.SystemName, result.Timings[res.SystemName], tiebreaks, unresolved, false)
	}
	for _, failure := range result.Failures {
		s.metrics.RecordSystem(failure.System, result.Timings[failure.System], 0, 0, true)
	}
}

// countTiebreaks extracts from a system trace how many ties the system had
// to break and how many it left standing as shared placements.
func countTiebreaks(result voting.Result) (tiebreaks, unresolved int) {
	switch d := result.Details.(type) {
	case borda.Details:
		tiebreaks = len(d.Tiebreakers)
		for _, tb := range d.Tiebreakers {
			if tb.Resolution.Method == voting.MethodUnresolved {
				unresolved++
			}
		}
	case relplace.Details:
		for _, round := range d.Rounds {
			switch round.Method {
			case voting.MethodQuality:
				tiebreaks++
			case voting.MethodUnresolved:
				tiebreaks++
				unresolved++
			}
		}
	case schulze.Details:
		tiebreaks = len(d.Tiebreaks)
		for _, tb := range d.Tiebreaks {
			if tb.Method == voting.MethodUnresolved {
				unresolved++
			}
		}
	case seqirv.Details:
		for _, pr := range d.PlacementRounds {
			if pr.Method == voting.MethodAllTiedEqual {
				unresolved++
			}
			for _, round := range pr.Rounds {
				if round.Tiebreak != nil {
					tiebreaks++
				}
			}
		}
	}
	return tiebreaks, unresolved
}

// errorCode maps an error onto its AppError code for the failed payload.
func errorCode(err error) string {
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return apperrors.CodeInternal
}
