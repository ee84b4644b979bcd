// Package borda implements the Borda count: each judge awards n-1 points to
// their first-place competitor down to 0 for last, totals rank the field, and
// tie groups are resolved by re-running Borda over each judge's relative
// order among just the tied competitors.
package borda

import (
	"sort"

	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/voting"
)

// System is the Borda count voting system.
type System struct{}

// New returns the Borda count system.
func New() *System {
	return &System{}
}

// Name implements voting.System.
func (s *System) Name() string {
	return voting.NameBorda
}

// Description implements voting.System.
func (s *System) Description() string {
	return "Points-based system: 1st = n-1 pts, 2nd = n-2 pts, ..., last = 0 pts"
}

// Details is the Borda trace: totals, per-judge point breakdowns, and every
// tiebreak application in resolution order.
type Details struct {
	Scores      map[string]int       `json:"scores"`
	Breakdowns  map[string]Breakdown `json:"breakdowns"`
	MaxPossible int                  `json:"max_possible"`
	Tiebreakers []Tiebreak           `json:"tiebreakers"`
}

// Breakdown records one competitor's points from each judge, index-aligned
// with Judges.
type Breakdown struct {
	Judges []string `json:"judges"`
	Points []int    `json:"points"`
}

// Tiebreak records one application of the recursive tiebreak: which
// competitors were tied, the score that triggered it (the full-field total at
// level 1, the previous level's relative score below that), how deep in the
// cascade it sat, and how it resolved.
type Tiebreak struct {
	TiedCompetitors []string   `json:"tied_competitors"`
	Score           int        `json:"score"`
	Level           int        `json:"level"`
	Resolution      Resolution `json:"resolution"`
}

// Resolution describes how one tiebreak level ended. Method is
// "recursive-borda" when relative scores separated at least some of the
// group, "unresolved" when every relative score was identical.
type Resolution struct {
	Method         string               `json:"method"`
	RelativeScores map[string]int       `json:"relative_scores,omitempty"`
	Breakdowns     map[string]Breakdown `json:"breakdowns,omitempty"`
	RemainingTied  []string             `json:"remaining_tied,omitempty"`
}

// Score implements voting.System.
func (s *System) Score(sheet *ballot.Scoresheet) (*voting.Result, error) {
	scores, breakdowns := computeScores(sheet.Competitors, sheet)

	groups := groupByScore(sheet.Competitors, scores)

	finalGroups := make([][]string, 0, len(sheet.Competitors))
	tiebreaks := []Tiebreak{}

	for _, group := range groups {
		if len(group.members) == 1 {
			finalGroups = append(finalGroups, group.members)
			continue
		}
		resolved, entries := breakTies(group.members, sheet, 1, group.score)
		finalGroups = append(finalGroups, resolved...)
		tiebreaks = append(tiebreaks, entries...)
	}

	details := Details{
		Scores:      scores,
		Breakdowns:  make(map[string]Breakdown, len(sheet.Competitors)),
		MaxPossible: (sheet.NumCompetitors() - 1) * sheet.NumJudges(),
		Tiebreakers: tiebreaks,
	}
	for _, c := range sheet.Competitors {
		details.Breakdowns[c] = Breakdown{Judges: sheet.Judges, Points: breakdowns[c]}
	}

	return &voting.Result{
		SystemName:   s.Name(),
		FinalRanking: ballot.BuildRanking(finalGroups),
		Details:      details,
	}, nil
}

// computeScores awards relative Borda points among the given competitors:
// for each judge the subset is ordered by that judge's marks and the best of
// the subset earns k-1 points down to 0 for the worst, k = len(competitors).
// Over the full field this is the plain Borda count.
func computeScores(competitors []string, sheet *ballot.Scoresheet) (map[string]int, map[string][]int) {
	k := len(competitors)
	scores := make(map[string]int, k)
	breakdowns := make(map[string][]int, k)
	for _, c := range competitors {
		scores[c] = 0
		breakdowns[c] = make([]int, 0, sheet.NumJudges())
	}

	for _, judge := range sheet.Judges {
		ranked := sheet.OrderedBy(judge, competitors)
		for position, competitor := range ranked {
			points := k - 1 - position
			scores[competitor] += points
			breakdowns[competitor] = append(breakdowns[competitor], points)
		}
	}

	return scores, breakdowns
}

// scoreGroup is one set of competitors sharing a score, in field order.
type scoreGroup struct {
	score   int
	members []string
}

// groupByScore buckets competitors by score, highest score first. Members
// keep their scoresheet order so traces are stable across runs.
func groupByScore(competitors []string, scores map[string]int) []scoreGroup {
	byScore := make(map[int][]string)
	for _, c := range competitors {
		byScore[scores[c]] = append(byScore[scores[c]], c)
	}

	distinct := make([]int, 0, len(byScore))
	for score := range byScore {
		distinct = append(distinct, score)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(distinct)))

	groups := make([]scoreGroup, 0, len(distinct))
	for _, score := range distinct {
		groups = append(groups, scoreGroup{score: score, members: byScore[score]})
	}
	return groups
}

// breakTies resolves one tied group by relative Borda count, recursing on
// any sub-group that remains tied. The group strictly shrinks at each level,
// so depth never exceeds the group size. Returns the resolved tie groups
// (best first) and the trace entries recorded along the way.
func breakTies(tied []string, sheet *ballot.Scoresheet, level, triggerScore int) ([][]string, []Tiebreak) {
	if len(tied) <= 1 {
		return [][]string{tied}, nil
	}

	relativeScores, breakdowns := computeScores(tied, sheet)
	groups := groupByScore(tied, relativeScores)

	// A single group means every relative order was itself tied: unresolved,
	// all members share the rank.
	if len(groups) == 1 {
		entry := Tiebreak{
			TiedCompetitors: tied,
			Score:           triggerScore,
			Level:           level,
			Resolution: Resolution{
				Method:        voting.MethodUnresolved,
				RemainingTied: tied,
			},
		}
		return [][]string{append([]string(nil), tied...)}, []Tiebreak{entry}
	}

	resolution := Resolution{
		Method:         voting.MethodRecursiveBorda,
		RelativeScores: relativeScores,
		Breakdowns:     make(map[string]Breakdown, len(tied)),
	}
	for _, c := range tied {
		resolution.Breakdowns[c] = Breakdown{Judges: sheet.Judges, Points: breakdowns[c]}
	}

	entries := []Tiebreak{{
		TiedCompetitors: tied,
		Score:           triggerScore,
		Level:           level,
		Resolution:      resolution,
	}}

	result := make([][]string, 0, len(groups))
	for _, group := range groups {
		if len(group.members) == 1 {
			result = append(result, group.members)
			continue
		}
		resolved, subEntries := breakTies(group.members, sheet, level+1, group.score)
		result = append(result, resolved...)
		entries = append(entries, subEntries...)
	}

	return result, entries
}
