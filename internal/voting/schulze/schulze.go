// Package schulze implements the Schulze method, a Condorcet method that
// ranks by beatpath strength: A beats B when the strongest chain of pairwise
// majorities from A to B is stronger than the strongest chain back. Cyclic
// judge preferences are absorbed by the path closure instead of breaking the
// ranking.
package schulze

import (
	"sort"

	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/voting"
)

// System is the Schulze method voting system.
type System struct{}

// New returns the Schulze method system.
func New() *System {
	return &System{}
}

// Name implements voting.System.
func (s *System) Name() string {
	return voting.NameSchulze
}

// Description implements voting.System.
func (s *System) Description() string {
	return "Condorcet method using beatpath strengths to handle cyclic preferences"
}

// Details is the Schulze trace: both full matrices, the per-pair verdicts,
// every strongest path whose strength is not explained by a direct majority,
// and the tiebreak cascade entries for win-count ties.
type Details struct {
	Pairwise       map[string]map[string]int `json:"pairwise_preferences"`
	PathStrengths  map[string]map[string]int `json:"path_strengths"`
	Wins           map[string]float64        `json:"wins"`
	Pairs          []Pair                    `json:"pairs"`
	StrongestPaths []Path                    `json:"strongest_paths"`
	Tiebreaks      []Tiebreak                `json:"tiebreaks"`
}

// Pair classifies one unordered pair by final path strengths. Winner is
// empty when the strengths are equal, in which case each side earns half a
// win.
type Pair struct {
	A          string `json:"a"`
	B          string `json:"b"`
	StrengthAB int    `json:"strength_ab"`
	StrengthBA int    `json:"strength_ba"`
	Winner     string `json:"winner,omitempty"`
	Tie        bool   `json:"tie"`
}

// Path is the strongest beatpath behind one nonzero strength cell that a
// direct majority does not explain. Bottleneck equals the weakest hop and is
// exactly the reported path strength.
type Path struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Bottleneck int    `json:"bottleneck"`
	Hops       []Hop  `json:"hops"`
}

// Hop is one majority link on a beatpath, with its direct judge count.
type Hop struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Strength int    `json:"strength"`
}

// Tiebreak records the cascade applied to one group sharing a win count:
// winning beatpath sums first, total beatpath sums for whatever those leave
// level, then an unresolved shared rank. Method names the step the cascade
// stopped at; TotalStrength appears only when the winning sums left a tie.
type Tiebreak struct {
	TiedCompetitors []string       `json:"tied_competitors"`
	Wins            float64        `json:"wins"`
	WinningStrength map[string]int `json:"winning_strength"`
	TotalStrength   map[string]int `json:"total_strength,omitempty"`
	Method          string         `json:"method"`
	RemainingTied   []string       `json:"remaining_tied,omitempty"`
}

// Score implements voting.System.
func (s *System) Score(sheet *ballot.Scoresheet) (*voting.Result, error) {
	competitors := sheet.Competitors
	n := len(competitors)

	pref := pairwisePreferences(sheet)
	strength, next := strongestPaths(pref)

	wins := make(map[string]float64, n)
	pairs := make([]Pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pair := Pair{
				A:          competitors[i],
				B:          competitors[j],
				StrengthAB: strength[i][j],
				StrengthBA: strength[j][i],
			}
			switch {
			case strength[i][j] > strength[j][i]:
				pair.Winner = competitors[i]
				wins[competitors[i]]++
			case strength[j][i] > strength[i][j]:
				pair.Winner = competitors[j]
				wins[competitors[j]]++
			default:
				pair.Tie = true
				wins[competitors[i]] += 0.5
				wins[competitors[j]] += 0.5
			}
			pairs = append(pairs, pair)
		}
	}
	for _, c := range competitors {
		if _, ok := wins[c]; !ok {
			wins[c] = 0
		}
	}

	finalGroups, tiebreaks := rankByWins(competitors, wins, strength)

	details := Details{
		Pairwise:       matrixMap(competitors, pref),
		PathStrengths:  matrixMap(competitors, strength),
		Wins:           wins,
		Pairs:          pairs,
		StrongestPaths: collectPaths(competitors, pref, strength, next),
		Tiebreaks:      tiebreaks,
	}

	return &voting.Result{
		SystemName:   s.Name(),
		FinalRanking: ballot.BuildRanking(finalGroups),
		Details:      details,
	}, nil
}

// pairwisePreferences counts, for every ordered pair, the judges ranking the
// first competitor strictly better than the second.
func pairwisePreferences(sheet *ballot.Scoresheet) [][]int {
	n := sheet.NumCompetitors()
	pref := newMatrix(n)

	for _, judge := range sheet.Judges {
		for i, a := range sheet.Competitors {
			for j, b := range sheet.Competitors {
				if i != j && sheet.Rank(judge, a) < sheet.Rank(judge, b) {
					pref[i][j]++
				}
			}
		}
	}
	return pref
}

// strongestPaths computes the widest-path closure of the majority graph.
// A cell starts at the direct majority count (zero without a majority) and
// grows to the strength of the strongest indirect beatpath; next[i][j] holds
// the first hop of that path for reconstruction.
func strongestPaths(pref [][]int) (strength, next [][]int) {
	n := len(pref)
	strength = newMatrix(n)
	next = newMatrix(n)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			next[i][j] = -1
			if i != j && pref[i][j] > pref[j][i] {
				strength[i][j] = pref[i][j]
				next[i][j] = j
			}
		}
	}

	relax(strength, next)
	return strength, next
}

// relax performs one full widest-path pass over the strength matrix,
// widening each cell through every intermediate in turn. It reports whether
// any cell grew; a second pass over the returned matrix is always a no-op,
// which callers may assert.
func relax(strength, next [][]int) bool {
	n := len(strength)
	changed := false
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if i == k {
				continue
			}
			for j := 0; j < n; j++ {
				if j == i || j == k {
					continue
				}
				via := min(strength[i][k], strength[k][j])
				if via > strength[i][j] {
					strength[i][j] = via
					next[i][j] = next[i][k]
					changed = true
				}
			}
		}
	}
	return changed
}

// rankByWins orders competitors by descending win count, applying the
// strength cascade inside each tied group. Returned groups share a rank only
// when both cascade metrics are level.
func rankByWins(competitors []string, wins map[string]float64, strength [][]int) ([][]string, []Tiebreak) {
	idx := make(map[string]int, len(competitors))
	for i, c := range competitors {
		idx[c] = i
	}

	groups := groupByWins(competitors, wins)

	finalGroups := make([][]string, 0, len(competitors))
	tiebreaks := []Tiebreak{}

	for _, group := range groups {
		if len(group) == 1 {
			finalGroups = append(finalGroups, group)
			continue
		}
		resolved, entry := breakTie(group, wins[group[0]], idx, strength)
		finalGroups = append(finalGroups, resolved...)
		tiebreaks = append(tiebreaks, entry)
	}

	return finalGroups, tiebreaks
}

// groupByWins buckets competitors by win count, highest first, keeping field
// order within each bucket.
func groupByWins(competitors []string, wins map[string]float64) [][]string {
	byWins := make(map[float64][]string)
	for _, c := range competitors {
		byWins[wins[c]] = append(byWins[wins[c]], c)
	}

	distinct := make([]float64, 0, len(byWins))
	for w := range byWins {
		distinct = append(distinct, w)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(distinct)))

	groups := make([][]string, 0, len(distinct))
	for _, w := range distinct {
		groups = append(groups, byWins[w])
	}
	return groups
}

// breakTie applies the two-level strength cascade to one win-tied group.
func breakTie(group []string, groupWins float64, idx map[string]int, strength [][]int) ([][]string, Tiebreak) {
	n := len(strength)

	winning := make(map[string]int, len(group))
	for _, c := range group {
		i := idx[c]
		sum := 0
		for j := 0; j < n; j++ {
			if j != i && strength[i][j] > strength[j][i] {
				sum += strength[i][j]
			}
		}
		winning[c] = sum
	}

	total := make(map[string]int, len(group))
	for _, c := range group {
		i := idx[c]
		sum := 0
		for j := 0; j < n; j++ {
			if j != i {
				sum += strength[i][j]
			}
		}
		total[c] = sum
	}

	ordered := append([]string(nil), group...)
	sort.SliceStable(ordered, func(a, b int) bool {
		if winning[ordered[a]] != winning[ordered[b]] {
			return winning[ordered[a]] > winning[ordered[b]]
		}
		return total[ordered[a]] > total[ordered[b]]
	})

	// Split into subgroups that the cascade could not separate.
	resolved := make([][]string, 0, len(ordered))
	winningTied := false
	var remaining []string
	i := 0
	for i < len(ordered) {
		j := i + 1
		for j < len(ordered) && winning[ordered[j]] == winning[ordered[i]] {
			j++
		}
		if j > i+1 {
			winningTied = true
		}
		// Within equal winning sums, totals decide.
		k := i
		for k < j {
			l := k + 1
			for l < j && total[ordered[l]] == total[ordered[k]] {
				l++
			}
			sub := ordered[k:l]
			resolved = append(resolved, sub)
			if len(sub) > 1 {
				remaining = append(remaining, sub...)
			}
			k = l
		}
		i = j
	}

	entry := Tiebreak{
		TiedCompetitors: group,
		Wins:            groupWins,
		WinningStrength: winning,
	}
	switch {
	case len(remaining) > 0:
		entry.Method = voting.MethodUnresolved
		entry.TotalStrength = total
		entry.RemainingTied = remaining
	case winningTied:
		entry.Method = voting.MethodTotalStrength
		entry.TotalStrength = total
	default:
		entry.Method = voting.MethodWinningStrength
	}

	return resolved, entry
}

// collectPaths reconstructs the strongest path for every nonzero strength
// cell that a direct majority of equal strength does not already explain.
// These paths are the human-facing justification for indirect defeats.
func collectPaths(competitors []string, pref, strength, next [][]int) []Path {
	n := len(competitors)
	paths := []Path{}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || strength[i][j] == 0 {
				continue
			}
			direct := 0
			if pref[i][j] > pref[j][i] {
				direct = pref[i][j]
			}
			if strength[i][j] == direct {
				continue
			}

			seq := walkPath(next, i, j)
			if seq == nil {
				continue
			}
			hops := make([]Hop, 0, len(seq)-1)
			for h := 0; h+1 < len(seq); h++ {
				hops = append(hops, Hop{
					From:     competitors[seq[h]],
					To:       competitors[seq[h+1]],
					Strength: pref[seq[h]][seq[h+1]],
				})
			}
			paths = append(paths, Path{
				From:       competitors[i],
				To:         competitors[j],
				Bottleneck: strength[i][j],
				Hops:       hops,
			})
		}
	}
	return paths
}

// walkPath follows the next matrix from i to j, returning the index
// sequence including both endpoints.
func walkPath(next [][]int, i, j int) []int {
	if next[i][j] < 0 {
		return nil
	}
	seq := []int{i}
	for cur := i; cur != j; {
		cur = next[cur][j]
		seq = append(seq, cur)
	}
	return seq
}

func matrixMap(competitors []string, m [][]int) map[string]map[string]int {
	out := make(map[string]map[string]int, len(competitors))
	for i, a := range competitors {
		row := make(map[string]int, len(competitors))
		for j, b := range competitors {
			row[b] = m[i][j]
		}
		out[a] = row
	}
	return out
}

func newMatrix(n int) [][]int {
	m := make([][]int, n)
	for i := range m {
		m[i] = make([]int, n)
	}
	return m
}
