// Package votingtest provides shared scoresheet fixtures and ranking
// assertions for voting system tests.
package votingtest

import (
	"testing"

	"github.com/scrutineering/scrutineer/internal/ballot"
)

// Sheet builds a validated scoresheet from a rank grid, failing the test on
// any validation error. ranks[i][j] is competitors[i]'s rank from judges[j].
func Sheet(t *testing.T, name string, competitors, judges []string, ranks [][]int) *ballot.Scoresheet {
	t.Helper()
	s, err := ballot.FromGrid(name, competitors, judges, ranks)
	if err != nil {
		t.Fatalf("building %s scoresheet: %v", name, err)
	}
	return s
}

// ClearWinner is 3 judges / 4 competitors with a clean A, B, C, D outcome
// under every system.
//
//	     J1  J2  J3
//	A     1   1   2
//	B     2   3   1
//	C     3   2   3
//	D     4   4   4
func ClearWinner(t *testing.T) *ballot.Scoresheet {
	return Sheet(t, "Clear Winner",
		[]string{"A", "B", "C", "D"},
		[]string{"J1", "J2", "J3"},
		[][]int{
			{1, 1, 2},
			{2, 3, 1},
			{3, 2, 3},
			{4, 4, 4},
		})
}

// Disagreement is 5 judges / 4 competitors where systems split: Relative
// Placement leaves A and B tied at the top while the others produce
// A, B, C, D.
//
//	     J1  J2  J3  J4  J5
//	A     1   2   3   1   4
//	B     2   1   4   3   1
//	C     3   4   1   4   2
//	D     4   3   2   2   3
func Disagreement(t *testing.T) *ballot.Scoresheet {
	return Sheet(t, "Disagreement",
		[]string{"A", "B", "C", "D"},
		[]string{"J1", "J2", "J3", "J4", "J5"},
		[][]int{
			{1, 2, 3, 1, 4},
			{2, 1, 4, 3, 1},
			{3, 4, 1, 4, 2},
			{4, 3, 2, 2, 3},
		})
}

// Unanimous is 3 judges / 3 competitors, every judge voting A, B, C.
func Unanimous(t *testing.T) *ballot.Scoresheet {
	return Sheet(t, "Unanimous",
		[]string{"A", "B", "C"},
		[]string{"J1", "J2", "J3"},
		[][]int{
			{1, 1, 1},
			{2, 2, 2},
			{3, 3, 3},
		})
}

// TwoCompetitors is 3 judges / 2 competitors with A preferred 2-1.
func TwoCompetitors(t *testing.T) *ballot.Scoresheet {
	return Sheet(t, "Two Competitors",
		[]string{"A", "B"},
		[]string{"J1", "J2", "J3"},
		[][]int{
			{1, 2, 1},
			{2, 1, 2},
		})
}

// PerfectCycle is 3 judges / 3 competitors forming a rock-paper-scissors
// cycle: every pairwise preference is 2-1 and no ordering is defensible.
//
//	     J1  J2  J3
//	A     1   3   2
//	B     2   1   3
//	C     3   2   1
func PerfectCycle(t *testing.T) *ballot.Scoresheet {
	return Sheet(t, "Perfect Cycle",
		[]string{"A", "B", "C"},
		[]string{"J1", "J2", "J3"},
		[][]int{
			{1, 3, 2},
			{2, 1, 3},
			{3, 2, 1},
		})
}

// UnanimousFirst is 5 judges / 3 competitors where every judge ranks A first;
// B and C split below.
func UnanimousFirst(t *testing.T) *ballot.Scoresheet {
	return Sheet(t, "Unanimous First",
		[]string{"A", "B", "C"},
		[]string{"J1", "J2", "J3", "J4", "J5"},
		[][]int{
			{1, 1, 1, 1, 1},
			{2, 3, 2, 2, 3},
			{3, 2, 3, 3, 2},
		})
}

// Order returns competitors in final-ranking order (ties in emitted order).
func Order(ranking []ballot.Placement) []string {
	out := make([]string, 0, len(ranking))
	for _, p := range ranking {
		out = append(out, p.Competitor)
	}
	return out
}

// CheckCompetitionRanking asserts that ranking covers exactly the given field
// and respects competition-ranking rank values: the first group holds rank 1,
// a tie group of size k shares one rank and consumes k slots, and Tied flags
// match group sizes.
func CheckCompetitionRanking(t *testing.T, ranking []ballot.Placement, field []string) {
	t.Helper()

	if len(ranking) != len(field) {
		t.Fatalf("ranking has %d entries, want %d", len(ranking), len(field))
	}

	seen := make(map[string]bool, len(ranking))
	for _, p := range ranking {
		if seen[p.Competitor] {
			t.Errorf("competitor %q appears twice in ranking", p.Competitor)
		}
		seen[p.Competitor] = true
	}
	for _, c := range field {
		if !seen[c] {
			t.Errorf("competitor %q missing from ranking", c)
		}
	}

	// Walk tie groups: each must start at the slot index + 1.
	i := 0
	for i < len(ranking) {
		group := 1
		for i+group < len(ranking) && ranking[i+group].Rank == ranking[i].Rank {
			group++
		}
		if want := i + 1; ranking[i].Rank != want {
			t.Errorf("rank %d at position %d, want %d (competition ranking)", ranking[i].Rank, i, want)
		}
		for k := 0; k < group; k++ {
			if wantTied := group > 1; ranking[i+k].Tied != wantTied {
				t.Errorf("%s: Tied = %v, want %v (group size %d)",
					ranking[i+k].Competitor, ranking[i+k].Tied, wantTied, group)
			}
		}
		i += group
	}
}
