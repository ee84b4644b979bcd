// Package voting defines the contract shared by all voting systems: the
// System interface, the Result a system produces, and the randomness source
// used by tiebreak fallbacks.
package voting

import (
	"github.com/scrutineering/scrutineer/internal/ballot"
)

// Canonical system names, as reported in Result.SystemName.
const (
	NameBorda             = "Borda Count"
	NameRelativePlacement = "Relative Placement"
	NameSchulze           = "Schulze Method"
	NameSequentialIRV     = "Sequential IRV"
)

// Resolution method identifiers shared across system traces.
const (
	MethodRecursiveBorda  = "recursive-borda"
	MethodUnresolved      = "unresolved"
	MethodMajority        = "majority"
	MethodLastRemaining   = "last_remaining"
	MethodAllTiedEqual    = "all_tied_equal"
	MethodQuality         = "quality_of_majority"
	MethodWinningStrength = "winning_strength"
	MethodTotalStrength   = "total_strength"
	MethodFewestVotes     = "fewest_votes"
	MethodRestrictedVote  = "restricted_vote"
	MethodRandom          = "random"
)

// System scores one validated scoresheet under a single voting method.
// Implementations are pure: they never mutate the sheet, log, or perform I/O,
// so one System value is safe for concurrent use across analyses.
type System interface {
	// Name returns the human-readable system name.
	Name() string

	// Description returns a one-line summary of how the system works.
	Description() string

	// Score computes the full final ranking plus the system-specific trace.
	// An error means an internal invariant was violated, never a tie: ties
	// are a valid outcome and are reported in the Result itself.
	Score(sheet *ballot.Scoresheet) (*Result, error)
}

// Result is one system's outcome for one scoresheet: the complete ranking
// and the trace explaining how it was derived. Details is the system-specific
// trace structure; its JSON shape is a boundary contract consumed by
// renderers.
type Result struct {
	SystemName   string             `json:"system_name"`
	FinalRanking []ballot.Placement `json:"final_ranking"`
	Details      any                `json:"details"`
}
