// Package seqirv implements Sequential IRV: placements are awarded one at a
// time by running a fresh instant-runoff election among the not-yet-placed
// competitors for each slot. Elimination ties fall through a restricted-vote
// cascade and, only when every restricted preference is exhausted, an
// explicit recorded random pick.
package seqirv

import (
	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/voting"
)

// System is the Sequential IRV voting system. The Picker supplies the random
// fallback for eliminations no restricted vote can separate.
type System struct {
	picker voting.Picker
}

// New returns a Sequential IRV system using the given Picker for random
// eliminations. A nil picker falls back to a time-seeded one.
func New(picker voting.Picker) *System {
	if picker == nil {
		picker = voting.NewTimePicker()
	}
	return &System{picker: picker}
}

// Name implements voting.System.
func (s *System) Name() string {
	return voting.NameSequentialIRV
}

// Description implements voting.System.
func (s *System) Description() string {
	return "Run Instant Runoff Voting repeatedly: find winner, remove, repeat"
}

// Details is the Sequential IRV trace: one entry per placement slot.
type Details struct {
	PlacementRounds []PlacementRound `json:"placement_rounds"`
}

// PlacementRound records one slot's election. Placed holds the single winner
// or, under all_tied_equal, the whole group sharing the slot.
type PlacementRound struct {
	Slot   int      `json:"slot"`
	Placed []string `json:"placed"`
	Tied   bool     `json:"tied"`
	Method string   `json:"method"`
	Rounds []Round  `json:"irv_rounds"`
}

// Round is one IRV counting round: the tally among active candidates and how
// the round ended — a majority winner, an elimination with its reason code,
// or an all-tied declaration closing the slot.
type Round struct {
	Round           int            `json:"round"`
	Active          []string       `json:"active"`
	Votes           map[string]int `json:"votes"`
	MajorityNeeded  int            `json:"majority_needed"`
	ZeroFirstChoice []string       `json:"zero_first_choice,omitempty"`
	Winner          string         `json:"winner,omitempty"`
	Eliminated      string         `json:"eliminated,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Tiebreak        *Tiebreak      `json:"tiebreak,omitempty"`
}

// Tiebreak is the step-by-step record of an elimination tie: every
// restricted-vote depth tried and, if none separated the tie, the recorded
// random pick.
type Tiebreak struct {
	TiedCandidates []string `json:"tied_candidates"`
	Steps          []Step   `json:"steps"`
}

// Step is one stage of the elimination cascade. Restricted-vote steps carry
// the preference depth and per-candidate tallies; the random step carries
// only the pool it picked from. Eliminated is set on the resolving step.
type Step struct {
	Method        string         `json:"method"`
	Choice        int            `json:"choice,omitempty"`
	Candidates    []string       `json:"candidates"`
	Counts        map[string]int `json:"counts,omitempty"`
	Eliminated    string         `json:"eliminated,omitempty"`
	RemainingTied []string       `json:"remaining_tied,omitempty"`
}

// Score implements voting.System.
func (s *System) Score(sheet *ballot.Scoresheet) (*voting.Result, error) {
	remaining := append([]string(nil), sheet.Competitors...)
	finalGroups := make([][]string, 0, len(remaining))
	placements := make([]PlacementRound, 0, len(remaining))
	slot := 1

	for len(remaining) > 0 {
		if len(remaining) == 1 {
			placements = append(placements, PlacementRound{
				Slot:   slot,
				Placed: []string{remaining[0]},
				Method: voting.MethodLastRemaining,
				Rounds: []Round{},
			})
			finalGroups = append(finalGroups, remaining)
			break
		}

		placed, method, rounds := s.runElection(sheet, remaining)
		placements = append(placements, PlacementRound{
			Slot:   slot,
			Placed: placed,
			Tied:   len(placed) > 1,
			Method: method,
			Rounds: rounds,
		})
		finalGroups = append(finalGroups, placed)

		won := make(map[string]bool, len(placed))
		for _, c := range placed {
			won[c] = true
		}
		next := make([]string, 0, len(remaining)-len(placed))
		for _, c := range remaining {
			if !won[c] {
				next = append(next, c)
			}
		}
		remaining = next
		slot += len(placed)
	}

	return &voting.Result{
		SystemName:   s.Name(),
		FinalRanking: ballot.BuildRanking(finalGroups),
		Details:      Details{PlacementRounds: placements},
	}, nil
}

// runElection runs one slot's IRV election among the given candidates.
// It returns the placed competitor(s), the slot method, and the round trace.
func (s *System) runElection(sheet *ballot.Scoresheet, candidates []string) ([]string, string, []Round) {
	threshold := sheet.NumJudges()/2 + 1
	active := append([]string(nil), candidates...)
	var rounds []Round

	for roundNum := 1; ; roundNum++ {
		votes := firstChoiceVotes(sheet, active)
		round := Round{
			Round:          roundNum,
			Active:         append([]string(nil), active...),
			Votes:          votes,
			MajorityNeeded: threshold,
		}
		// Candidates no judge puts first are noted, not removed: they still
		// take their turn in the elimination order.
		if roundNum == 1 {
			for _, c := range active {
				if votes[c] == 0 {
					round.ZeroFirstChoice = append(round.ZeroFirstChoice, c)
				}
			}
		}

		for _, c := range active {
			if votes[c] >= threshold {
				round.Winner = c
				round.Reason = voting.MethodMajority
				rounds = append(rounds, round)
				return []string{c}, voting.MethodMajority, rounds
			}
		}

		if allEqual(active, votes) {
			// No elimination can help: every remaining candidate holds the
			// same sub-majority count, so they share the slot.
			round.Reason = voting.MethodAllTiedEqual
			rounds = append(rounds, round)
			return append([]string(nil), active...), voting.MethodAllTiedEqual, rounds
		}

		fewest := lowestVotes(active, votes)
		var eliminated string
		if len(fewest) == 1 {
			eliminated = fewest[0]
			round.Reason = voting.MethodFewestVotes
		} else {
			var tiebreak *Tiebreak
			eliminated, round.Reason, tiebreak = s.breakEliminationTie(sheet, fewest)
			round.Tiebreak = tiebreak
		}

		round.Eliminated = eliminated
		rounds = append(rounds, round)

		next := make([]string, 0, len(active)-1)
		for _, c := range active {
			if c != eliminated {
				next = append(next, c)
			}
		}
		active = next
	}
}

// breakEliminationTie separates candidates tied on fewest votes. At depth d
// each judge's d-th preference among the original tied set is tallied for
// whichever still-tied candidate holds it; fewest is out. Depths past the
// tied set's size leave only the recorded random pick.
func (s *System) breakEliminationTie(sheet *ballot.Scoresheet, tied []string) (string, string, *Tiebreak) {
	universe := append([]string(nil), tied...)
	current := universe
	tb := &Tiebreak{TiedCandidates: universe, Steps: []Step{}}

	for choice := 1; choice <= len(universe); choice++ {
		counts := make(map[string]int, len(current))
		for _, c := range current {
			counts[c] = 0
		}
		for _, judge := range sheet.Judges {
			pick := sheet.OrderedBy(judge, universe)[choice-1]
			if _, ok := counts[pick]; ok {
				counts[pick]++
			}
		}

		step := Step{
			Method:     voting.MethodRestrictedVote,
			Choice:     choice,
			Candidates: current,
			Counts:     counts,
		}
		fewest := lowestVotes(current, counts)
		if len(fewest) == 1 {
			step.Eliminated = fewest[0]
			tb.Steps = append(tb.Steps, step)
			return fewest[0], voting.MethodRestrictedVote, tb
		}
		step.RemainingTied = fewest
		tb.Steps = append(tb.Steps, step)
		current = fewest
	}

	picked := current[s.picker.Pick(len(current))]
	tb.Steps = append(tb.Steps, Step{
		Method:     voting.MethodRandom,
		Candidates: current,
		Eliminated: picked,
	})
	return picked, voting.MethodRandom, tb
}

// firstChoiceVotes tallies each judge's best-ranked active candidate.
func firstChoiceVotes(sheet *ballot.Scoresheet, active []string) map[string]int {
	votes := make(map[string]int, len(active))
	for _, c := range active {
		votes[c] = 0
	}
	for _, judge := range sheet.Judges {
		votes[sheet.BestOf(judge, active)]++
	}
	return votes
}

func allEqual(candidates []string, votes map[string]int) bool {
	for _, c := range candidates[1:] {
		if votes[c] != votes[candidates[0]] {
			return false
		}
	}
	return true
}

// lowestVotes returns the candidates holding the minimum tally, in candidate
// order.
func lowestVotes(candidates []string, votes map[string]int) []string {
	min := votes[candidates[0]]
	for _, c := range candidates[1:] {
		if votes[c] < min {
			min = votes[c]
		}
	}
	fewest := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if votes[c] == min {
			fewest = append(fewest, c)
		}
	}
	return fewest
}
