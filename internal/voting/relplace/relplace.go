// Package relplace implements Relative Placement, the majority-placement
// method used to scrutineer dance competitions: a competitor earns a slot
// once a majority of judges rank them at the working cutoff or better, with
// simultaneous majorities separated by quality of majority.
package relplace

import (
	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/voting"
)

// Cutoff progression step outcomes.
const (
	outcomeNoMajority       = "no_majority"
	outcomeSingleMajority   = "single_majority"
	outcomeMultipleMajority = "multiple_majority"
)

// System is the Relative Placement voting system.
type System struct{}

// New returns the Relative Placement system.
func New() *System {
	return &System{}
}

// Name implements voting.System.
func (s *System) Name() string {
	return voting.NameRelativePlacement
}

// Description implements voting.System.
func (s *System) Description() string {
	return "Majority placement: earn a slot when a majority of judges rank you there or better"
}

// Details is the Relative Placement trace. CumulativeCounts[c][k] is the
// number of judges ranking c at position k or better; index 0 is unused so
// the cutoff value indexes directly.
type Details struct {
	MajorityThreshold int              `json:"majority_threshold"`
	CumulativeCounts  map[string][]int `json:"cumulative_counts"`
	Rounds            []Round          `json:"rounds"`
}

// Round records how one placement slot was resolved. Placed holds a single
// competitor, or the whole tie group when the progression exhausted every
// cutoff. Candidates are the competitors still unplaced when the slot opened.
type Round struct {
	Slot        int      `json:"slot"`
	Candidates  []string `json:"candidates"`
	Placed      []string `json:"placed"`
	Tied        bool     `json:"tied"`
	Method      string   `json:"method"`
	FinalCutoff int      `json:"final_cutoff"`
	Progression []Step   `json:"cutoff_progression"`
}

// Step is one cutoff examined during a slot's progression: the competitors
// still in contention, their cumulative counts at this cutoff, which of them
// held a majority, and the quality-of-majority sums when more than one did.
type Step struct {
	Cutoff       int            `json:"cutoff"`
	Counts       map[string]int `json:"counts"`
	WithMajority []string       `json:"with_majority"`
	Quality      map[string]int `json:"quality,omitempty"`
	Outcome      string         `json:"outcome"`
}

// Score implements voting.System.
func (s *System) Score(sheet *ballot.Scoresheet) (*voting.Result, error) {
	n := sheet.NumCompetitors()
	threshold := sheet.NumJudges()/2 + 1
	counts := cumulativeCounts(sheet)

	remaining := append([]string(nil), sheet.Competitors...)
	finalGroups := make([][]string, 0, n)
	rounds := make([]Round, 0, n)
	slot := 1

	for len(remaining) > 0 {
		round := resolveSlot(slot, remaining, sheet, counts, threshold)
		rounds = append(rounds, round)
		finalGroups = append(finalGroups, round.Placed)

		placed := make(map[string]bool, len(round.Placed))
		for _, c := range round.Placed {
			placed[c] = true
		}
		next := make([]string, 0, len(remaining)-len(round.Placed))
		for _, c := range remaining {
			if !placed[c] {
				next = append(next, c)
			}
		}
		remaining = next
		slot += len(round.Placed)
	}

	details := Details{
		MajorityThreshold: threshold,
		CumulativeCounts:  counts,
		Rounds:            rounds,
	}

	return &voting.Result{
		SystemName:   s.Name(),
		FinalRanking: ballot.BuildRanking(finalGroups),
		Details:      details,
	}, nil
}

// resolveSlot walks cutoffs 1..N for one slot. The candidate set narrows to
// the quality-tied subset whenever quality fails to separate, so it strictly
// shrinks or resolves; a tie surviving cutoff N is returned whole.
func resolveSlot(slot int, remaining []string, sheet *ballot.Scoresheet, counts map[string][]int, threshold int) Round {
	n := sheet.NumCompetitors()
	round := Round{
		Slot:       slot,
		Candidates: append([]string(nil), remaining...),
	}

	candidates := remaining
	for cutoff := 1; cutoff <= n; cutoff++ {
		step := Step{
			Cutoff: cutoff,
			Counts: make(map[string]int, len(candidates)),
		}
		for _, c := range candidates {
			step.Counts[c] = counts[c][cutoff]
		}

		withMajority := make([]string, 0, len(candidates))
		for _, c := range candidates {
			if counts[c][cutoff] >= threshold {
				withMajority = append(withMajority, c)
			}
		}
		step.WithMajority = withMajority

		if len(withMajority) == 0 {
			step.Outcome = outcomeNoMajority
			round.Progression = append(round.Progression, step)
			continue
		}

		if len(withMajority) == 1 {
			step.Outcome = outcomeSingleMajority
			round.Progression = append(round.Progression, step)
			round.Placed = []string{withMajority[0]}
			round.Method = voting.MethodMajority
			round.FinalCutoff = cutoff
			return round
		}

		// Several simultaneous majorities: quality of majority decides.
		// Lower is better, because those judges placed the competitor more
		// favorably within the cutoff.
		step.Outcome = outcomeMultipleMajority
		step.Quality = make(map[string]int, len(withMajority))
		for _, c := range withMajority {
			step.Quality[c] = qualityAt(sheet, c, cutoff)
		}

		best := lowestQuality(withMajority, step.Quality)
		round.Progression = append(round.Progression, step)

		if len(best) == 1 {
			round.Placed = best
			round.Method = voting.MethodQuality
			round.FinalCutoff = cutoff
			return round
		}

		// Quality tied too: the progression continues at the next cutoff,
		// restricted to the tied subset.
		candidates = best
	}

	round.Placed = append([]string(nil), candidates...)
	round.Tied = true
	round.Method = voting.MethodUnresolved
	round.FinalCutoff = n
	return round
}

// cumulativeCounts builds the majority table: for each competitor, entry k
// holds how many judges ranked them at position k or better. Entry 0 stays
// zero so cutoffs index the table directly.
func cumulativeCounts(sheet *ballot.Scoresheet) map[string][]int {
	n := sheet.NumCompetitors()
	counts := make(map[string][]int, n)

	for _, c := range sheet.Competitors {
		perRank := make([]int, n+1)
		for _, j := range sheet.Judges {
			perRank[sheet.Rank(j, c)]++
		}

		cumulative := make([]int, n+1)
		running := 0
		for k := 1; k <= n; k++ {
			running += perRank[k]
			cumulative[k] = running
		}
		counts[c] = cumulative
	}

	return counts
}

// qualityAt sums the rank values that contributed to a competitor's
// cumulative count at the cutoff: every judge's rank that is cutoff or
// better.
func qualityAt(sheet *ballot.Scoresheet, competitor string, cutoff int) int {
	sum := 0
	for _, j := range sheet.Judges {
		if r := sheet.Rank(j, competitor); r <= cutoff {
			sum += r
		}
	}
	return sum
}

// lowestQuality returns the candidates sharing the minimum quality sum, in
// candidate order.
func lowestQuality(candidates []string, quality map[string]int) []string {
	min := quality[candidates[0]]
	for _, c := range candidates[1:] {
		if quality[c] < min {
			min = quality[c]
		}
	}
	best := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if quality[c] == min {
			best = append(best, c)
		}
	}
	return best
}
