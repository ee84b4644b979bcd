package consensus

import (
	"math"

	"github.com/scrutineering/scrutineer/internal/ballot"
)

// KendallTauB computes the Kendall rank correlation between two rankings of
// the same competitor set, with the tau-b tie correction: pairs tied in
// either ranking are excluded from the concordant/discordant counts and the
// denominator shrinks accordingly. A constant ranking carries no pair order
// to agree on, so it scores 0 against anything except another constant
// ranking, which counts as full agreement.
func KendallTauB(a, b []ballot.Placement) float64 {
	ra, rb := ballot.RankMap(a), ballot.RankMap(b)
	competitors := make([]string, len(a))
	for i, p := range a {
		competitors[i] = p.Competitor
	}

	var concordant, discordant, tiedA, tiedB int
	for i := 0; i < len(competitors); i++ {
		for j := i + 1; j < len(competitors); j++ {
			da := ra[competitors[i]] - ra[competitors[j]]
			db := rb[competitors[i]] - rb[competitors[j]]
			switch {
			case da == 0 && db == 0:
				tiedA++
				tiedB++
			case da == 0:
				tiedA++
			case db == 0:
				tiedB++
			case (da < 0) == (db < 0):
				concordant++
			default:
				discordant++
			}
		}
	}

	n0 := len(competitors) * (len(competitors) - 1) / 2
	pairsA, pairsB := n0-tiedA, n0-tiedB
	if pairsA == 0 && pairsB == 0 {
		return 1
	}
	if pairsA == 0 || pairsB == 0 {
		return 0
	}
	return float64(concordant-discordant) / math.Sqrt(float64(pairsA)*float64(pairsB))
}

// SpearmanRho computes the Spearman rank correlation between two rankings.
// Tied competitors get the fractional rank of the slots their group spans
// (two tied at rank 2 both count as 2.5), then the coefficient is the
// Pearson correlation of the two rank vectors. Constant rankings follow the
// same convention as KendallTauB.
func SpearmanRho(a, b []ballot.Placement) float64 {
	fa, fb := fractionalRanks(a), fractionalRanks(b)

	n := float64(len(a))
	var meanA, meanB float64
	for _, p := range a {
		meanA += fa[p.Competitor]
		meanB += fb[p.Competitor]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for _, p := range a {
		da := fa[p.Competitor] - meanA
		db := fb[p.Competitor] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 && varB == 0 {
		return 1
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// MeanAbsRankDiff is the mean absolute difference between the competition
// ranks the two rankings assign.
func MeanAbsRankDiff(a, b []ballot.Placement) float64 {
	ra, rb := ballot.RankMap(a), ballot.RankMap(b)
	sum := 0
	for competitor, rank := range ra {
		d := rank - rb[competitor]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(ra))
}

// Identical reports whether both rankings assign every competitor the same
// rank.
func Identical(a, b []ballot.Placement) bool {
	ra, rb := ballot.RankMap(a), ballot.RankMap(b)
	for competitor, rank := range ra {
		if rb[competitor] != rank {
			return false
		}
	}
	return true
}

// fractionalRanks spreads each tie group over the slots it consumes: a group
// of size k at competition rank r becomes r + (k-1)/2 for all its members.
func fractionalRanks(ranking []ballot.Placement) map[string]float64 {
	sizes := make(map[int]int, len(ranking))
	for _, p := range ranking {
		sizes[p.Rank]++
	}
	ranks := make(map[string]float64, len(ranking))
	for _, p := range ranking {
		ranks[p.Competitor] = float64(p.Rank) + float64(sizes[p.Rank]-1)/2
	}
	return ranks
}
