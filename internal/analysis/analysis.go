// Package analysis runs every registered voting system over one scoresheet
// and assembles the combined result: the Orchestrator is the pure core, the
// Service wraps it with logging, metrics, and event publication.
package analysis

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/consensus"
	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/voting"
)

// Summary describes the analyzed scoresheet.
type Summary struct {
	CompetitionName string   `json:"competition_name,omitempty"`
	Competitors     []string `json:"competitors"`
	Judges          []string `json:"judges"`
	NumCompetitors  int      `json:"num_competitors"`
	NumJudges       int      `json:"num_judges"`
}

// SystemFailure records one engine's failure. Sibling engines still report
// normally; the failed system is simply absent from Results.
type SystemFailure struct {
	System string `json:"system"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// Result is the outcome of one full analysis. ID and Fingerprint are filled
// by the Service; library callers going through the Orchestrator directly
// get them empty.
type Result struct {
	ID          string            `json:"analysis_id,omitempty"`
	Fingerprint string            `json:"scoresheet_fingerprint,omitempty"`
	Scoresheet  Summary           `json:"scoresheet"`
	Results     []voting.Result   `json:"results"`
	Failures    []SystemFailure   `json:"failures,omitempty"`
	Consensus   *consensus.Report `json:"consensus,omitempty"`
	Timings     map[string]int64  `json:"system_timings_ms"`
	ElapsedMs   int64             `json:"elapsed_ms"`
}

// Orchestrator runs the registered systems over one scoresheet. It performs
// no logging and no I/O; results depend only on the sheet and the registry's
// randomness source.
type Orchestrator struct {
	registry         *Registry
	includeConsensus bool
}

// NewOrchestrator creates an orchestrator over the given registry.
// includeConsensus attaches the cross-system agreement report to results.
func NewOrchestrator(registry *Registry, includeConsensus bool) *Orchestrator {
	return &Orchestrator{
		registry:         registry,
		includeConsensus: includeConsensus,
	}
}

// Registry returns the orchestrator's system registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Analyze validates the sheet, scores it under every registered system in
// parallel, and assembles the combined result. A malformed sheet is rejected
// before any system runs. A system failure is captured in Result.Failures
// without aborting its siblings; Analyze itself only errors on validation.
func (o *Orchestrator) Analyze(sheet *ballot.Scoresheet) (*Result, error) {
	start := time.Now()
	if err := sheet.Validate(); err != nil {
		return nil, err
	}

	systems := o.registry.Systems()
	results := make([]*voting.Result, len(systems))
	failures := make([]*apperrors.AppError, len(systems))
	timings := make([]time.Duration, len(systems))

	var g errgroup.Group
	for i, system := range systems {
		i, system := i, system
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					failures[i] = apperrors.EngineError(system.Name(), fmt.Errorf("panic: %v", r))
				}
			}()
			began := time.Now()
			res, err := system.Score(sheet)
			timings[i] = time.Since(began)
			if err != nil {
				failures[i] = apperrors.EngineError(system.Name(), err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	// Failures are collected per system rather than propagated, so the wait
	// itself cannot fail.
	_ = g.Wait()

	out := &Result{
		Scoresheet: Summary{
			CompetitionName: sheet.CompetitionName,
			Competitors:     sheet.Competitors,
			Judges:          sheet.Judges,
			NumCompetitors:  sheet.NumCompetitors(),
			NumJudges:       sheet.NumJudges(),
		},
		Results: make([]voting.Result, 0, len(systems)),
		Timings: make(map[string]int64, len(systems)),
	}
	for i, system := range systems {
		out.Timings[system.Name()] = timings[i].Milliseconds()
		if failures[i] != nil {
			out.Failures = append(out.Failures, SystemFailure{
				System: system.Name(),
				Code:   failures[i].Code,
				Error:  failures[i].Error(),
			})
			continue
		}
		out.Results = append(out.Results, *results[i])
	}

	if o.includeConsensus {
		out.Consensus = consensus.Build(sheet.Competitors, out.Results)
	}
	out.ElapsedMs = time.Since(start).Milliseconds()
	return out, nil
}
