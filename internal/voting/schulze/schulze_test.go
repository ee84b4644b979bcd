package schulze

import (
	"reflect"
	"testing"

	"github.com/scrutineering/scrutineer/internal/voting"
	"github.com/scrutineering/scrutineer/internal/voting/votingtest"
)

func TestScoreClearWinner(t *testing.T) {
	sheet := votingtest.ClearWinner(t)

	res, err := New().Score(sheet)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.SystemName != voting.NameSchulze {
		t.Errorf("SystemName = %q, want %q", res.SystemName, voting.NameSchulze)
	}
	details := res.Details.(Details)

	wantWins := map[string]float64{"A": 3, "B": 2, "C": 1, "D": 0}
	if !reflect.DeepEqual(details.Wins, wantWins) {
		t.Errorf("Wins = %v, want %v", details.Wins, wantWins)
	}

	if got := votingtest.Order(res.FinalRanking); !reflect.DeepEqual(got, []string{"A", "B", "C", "D"}) {
		t.Errorf("final order = %v, want [A B C D]", got)
	}
	votingtest.CheckCompetitionRanking(t, res.FinalRanking, sheet.Competitors)

	if len(details.Tiebreaks) != 0 {
		t.Errorf("Tiebreaks = %+v, want none", details.Tiebreaks)
	}
	// Every defeat here is a direct majority, so no path needs explaining.
	if len(details.StrongestPaths) != 0 {
		t.Errorf("StrongestPaths = %+v, want none", details.StrongestPaths)
	}

	if details.Pairwise["A"]["B"] != 2 || details.Pairwise["B"]["A"] != 1 {
		t.Errorf("Pairwise A/B = %d/%d, want 2/1",
			details.Pairwise["A"]["B"], details.Pairwise["B"]["A"])
	}
	if details.PathStrengths["A"]["B"] != 2 || details.PathStrengths["B"]["A"] != 0 {
		t.Errorf("PathStrengths A/B = %d/%d, want 2/0",
			details.PathStrengths["A"]["B"], details.PathStrengths["B"]["A"])
	}
}

func TestScoreDisagreement(t *testing.T) {
	sheet := votingtest.Disagreement(t)

	res, err := New().Score(sheet)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	details := res.Details.(Details)

	if got := votingtest.Order(res.FinalRanking); !reflect.DeepEqual(got, []string{"A", "B", "C", "D"}) {
		t.Errorf("final order = %v, want [A B C D]", got)
	}

	// A edges everyone 3-2; B crushes C 4-1.
	if details.Pairwise["A"]["B"] != 3 || details.Pairwise["B"]["A"] != 2 {
		t.Errorf("Pairwise A/B = %d/%d, want 3/2",
			details.Pairwise["A"]["B"], details.Pairwise["B"]["A"])
	}
	if details.Pairwise["B"]["C"] != 4 || details.Pairwise["C"]["B"] != 1 {
		t.Errorf("Pairwise B/C = %d/%d, want 4/1",
			details.Pairwise["B"]["C"], details.Pairwise["C"]["B"])
	}

	wantWins := map[string]float64{"A": 3, "B": 2, "C": 1, "D": 0}
	if !reflect.DeepEqual(details.Wins, wantWins) {
		t.Errorf("Wins = %v, want %v", details.Wins, wantWins)
	}
}

func TestScoreUnanimous(t *testing.T) {
	sheet := votingtest.Unanimous(t)

	res, err := New().Score(sheet)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if got := votingtest.Order(res.FinalRanking); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("final order = %v, want [A B C]", got)
	}
	details := res.Details.(Details)
	if details.Wins["A"] != 2 {
		t.Errorf("Wins[A] = %v, want 2", details.Wins["A"])
	}
}

func TestScoreTwoCompetitors(t *testing.T) {
	sheet := votingtest.TwoCompetitors(t)

	res, err := New().Score(sheet)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	details := res.Details.(Details)

	if got := votingtest.Order(res.FinalRanking); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("final order = %v, want [A B]", got)
	}
	wantPair := Pair{A: "A", B: "B", StrengthAB: 2, StrengthBA: 0, Winner: "A"}
	if len(details.Pairs) != 1 || details.Pairs[0] != wantPair {
		t.Errorf("Pairs = %+v, want [%+v]", details.Pairs, wantPair)
	}
}

// A perfect cycle closes to identical path strengths in both directions for
// every pair: three half-win ties each, no resolvable order, and every
// indirect strength justified by a two-hop path.
func TestScorePerfectCycle(t *testing.T) {
	sheet := votingtest.PerfectCycle(t)

	res, err := New().Score(sheet)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	details := res.Details.(Details)

	for _, a := range sheet.Competitors {
		for _, b := range sheet.Competitors {
			if a == b {
				continue
			}
			if details.PathStrengths[a][b] != 2 {
				t.Errorf("PathStrengths[%s][%s] = %d, want 2", a, b, details.PathStrengths[a][b])
			}
		}
	}

	wantWins := map[string]float64{"A": 1, "B": 1, "C": 1}
	if !reflect.DeepEqual(details.Wins, wantWins) {
		t.Errorf("Wins = %v, want %v (0.5 per tied pair)", details.Wins, wantWins)
	}
	for _, pair := range details.Pairs {
		if !pair.Tie || pair.Winner != "" {
			t.Errorf("pair %s/%s = %+v, want tie", pair.A, pair.B, pair)
		}
	}

	votingtest.CheckCompetitionRanking(t, res.FinalRanking, sheet.Competitors)
	for _, p := range res.FinalRanking {
		if p.Rank != 1 || !p.Tied {
			t.Errorf("%s placement = %+v, want tied rank 1", p.Competitor, p)
		}
	}

	if len(details.Tiebreaks) != 1 {
		t.Fatalf("got %d tiebreak entries, want 1: %+v", len(details.Tiebreaks), details.Tiebreaks)
	}
	entry := details.Tiebreaks[0]
	if entry.Method != voting.MethodUnresolved {
		t.Errorf("tiebreak method = %q, want %q", entry.Method, voting.MethodUnresolved)
	}
	if want := map[string]int{"A": 0, "B": 0, "C": 0}; !reflect.DeepEqual(entry.WinningStrength, want) {
		t.Errorf("winning strengths = %v, want %v", entry.WinningStrength, want)
	}
	if want := map[string]int{"A": 4, "B": 4, "C": 4}; !reflect.DeepEqual(entry.TotalStrength, want) {
		t.Errorf("total strengths = %v, want %v", entry.TotalStrength, want)
	}
	if !reflect.DeepEqual(entry.RemainingTied, []string{"A", "B", "C"}) {
		t.Errorf("remaining tied = %v, want [A B C]", entry.RemainingTied)
	}

	// Each cycle direction that lacks a direct majority is explained by the
	// two-hop path around the cycle.
	wantPaths := []Path{
		{From: "A", To: "C", Bottleneck: 2, Hops: []Hop{{From: "A", To: "B", Strength: 2}, {From: "B", To: "C", Strength: 2}}},
		{From: "B", To: "A", Bottleneck: 2, Hops: []Hop{{From: "B", To: "C", Strength: 2}, {From: "C", To: "A", Strength: 2}}},
		{From: "C", To: "B", Bottleneck: 2, Hops: []Hop{{From: "C", To: "A", Strength: 2}, {From: "A", To: "B", Strength: 2}}},
	}
	if !reflect.DeepEqual(details.StrongestPaths, wantPaths) {
		t.Errorf("StrongestPaths = %+v, want %+v", details.StrongestPaths, wantPaths)
	}
}

func TestScoreCondorcetWinner(t *testing.T) {
	sheet := votingtest.Sheet(t, "Condorcet",
		[]string{"A", "B", "C"},
		[]string{"J1", "J2", "J3"},
		[][]int{
			{1, 1, 1},
			{2, 3, 2},
			{3, 2, 3},
		})

	res, err := New().Score(sheet)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	details := res.Details.(Details)

	if res.FinalRanking[0].Competitor != "A" || res.FinalRanking[0].Tied {
		t.Errorf("first placement = %+v, want untied A", res.FinalRanking[0])
	}
	if details.Wins["A"] != 2 {
		t.Errorf("Wins[A] = %v, want 2", details.Wins["A"])
	}
}

// The widest-path relaxation must lift an indirect route above a weak or
// missing direct edge, and a second pass over the result must change
// nothing.
func TestRelaxationWidensThroughIntermediate(t *testing.T) {
	// 0 beats 1 (5-0), 1 beats 2 (3-1), 2 beats 0 directly (3-2) -- but the
	// route 0 -> 1 -> 2 carries strength 3, overtaking the missing direct
	// majority for 0 -> 2.
	pref := [][]int{
		{0, 5, 2},
		{0, 0, 3},
		{3, 1, 0},
	}

	strength, next := strongestPaths(pref)

	want := [][]int{
		{0, 5, 3},
		{3, 0, 3},
		{3, 3, 0},
	}
	if !reflect.DeepEqual(strength, want) {
		t.Errorf("strength = %v, want %v", strength, want)
	}

	if got := walkPath(next, 0, 2); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("path 0->2 = %v, want [0 1 2]", got)
	}

	// Fixed point: re-running the relaxation is a no-op.
	if relax(strength, next) {
		t.Error("second relaxation pass changed the matrix, want fixed point")
	}
}

func TestRelaxationFixedPointOnBallots(t *testing.T) {
	sheet := votingtest.Disagreement(t)

	pref := pairwisePreferences(sheet)
	strength, next := strongestPaths(pref)

	if relax(strength, next) {
		t.Error("relaxation of a converged matrix changed values")
	}
}

// Isolated cascade checks: equal win counts separated by winning beatpath
// sums alone, by total sums when winning sums level, and left shared when
// both are level.
func TestBreakTieCascade(t *testing.T) {
	idx := map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}

	t.Run("winning strength resolves", func(t *testing.T) {
		strength := [][]int{
			{0, 4, 5, 3},
			{4, 0, 0, 5},
			{0, 0, 0, 0},
			{0, 0, 0, 0},
		}
		// A's wins: over C (5) and D (3) = 8. B's wins: over D (5) = 5.
		resolved, entry := breakTie([]string{"A", "B"}, 2, idx, strength)

		if want := [][]string{{"A"}, {"B"}}; !reflect.DeepEqual(resolved, want) {
			t.Errorf("resolved = %v, want %v", resolved, want)
		}
		if entry.Method != voting.MethodWinningStrength {
			t.Errorf("method = %q, want %q", entry.Method, voting.MethodWinningStrength)
		}
		if want := map[string]int{"A": 8, "B": 5}; !reflect.DeepEqual(entry.WinningStrength, want) {
			t.Errorf("winning strengths = %v, want %v", entry.WinningStrength, want)
		}
		if entry.TotalStrength != nil {
			t.Errorf("total strengths = %v, want omitted", entry.TotalStrength)
		}
	})

	t.Run("total strength resolves", func(t *testing.T) {
		// A and B each hold one win worth 5, but A carries an extra tied
		// pair against D at strength 2, lifting its total to 11 over 9.
		strength := [][]int{
			{0, 4, 5, 2},
			{4, 0, 0, 5},
			{0, 0, 0, 0},
			{2, 0, 0, 0},
		}
		resolved, entry := breakTie([]string{"A", "B"}, 2, idx, strength)

		if want := [][]string{{"A"}, {"B"}}; !reflect.DeepEqual(resolved, want) {
			t.Errorf("resolved = %v, want %v", resolved, want)
		}
		if entry.Method != voting.MethodTotalStrength {
			t.Errorf("method = %q, want %q", entry.Method, voting.MethodTotalStrength)
		}
		if want := map[string]int{"A": 5, "B": 5}; !reflect.DeepEqual(entry.WinningStrength, want) {
			t.Errorf("winning strengths = %v, want %v", entry.WinningStrength, want)
		}
		if want := map[string]int{"A": 11, "B": 9}; !reflect.DeepEqual(entry.TotalStrength, want) {
			t.Errorf("total strengths = %v, want %v", entry.TotalStrength, want)
		}
	})

	t.Run("both levels tied", func(t *testing.T) {
		strength := [][]int{
			{0, 4, 5, 0},
			{4, 0, 0, 5},
			{0, 0, 0, 0},
			{0, 0, 0, 0},
		}
		resolved, entry := breakTie([]string{"A", "B"}, 2, idx, strength)

		if want := [][]string{{"A", "B"}}; !reflect.DeepEqual(resolved, want) {
			t.Errorf("resolved = %v, want %v", resolved, want)
		}
		if entry.Method != voting.MethodUnresolved {
			t.Errorf("method = %q, want %q", entry.Method, voting.MethodUnresolved)
		}
		if !reflect.DeepEqual(entry.RemainingTied, []string{"A", "B"}) {
			t.Errorf("remaining tied = %v, want [A B]", entry.RemainingTied)
		}
	})
}

func TestSystemIdentity(t *testing.T) {
	s := New()
	if s.Name() != "Schulze Method" {
		t.Errorf("Name() = %q, want %q", s.Name(), "Schulze Method")
	}
	if s.Description() == "" {
		t.Error("Description() is empty")
	}
}
