// Package consensus measures cross-system agreement: given the final
// rankings the voting systems produced for one scoresheet, it reports rank
// correlations per system pair and the placement spread per competitor.
package consensus

import (
	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/voting"
)

// Build assembles the agreement report over the given results. Competitors
// fixes the row order of the spread section. It returns nil when fewer than
// two results are available, since a single ranking has nothing to agree
// with.
func Build(competitors []string, results []voting.Result) *Report {
	if len(results) < 2 {
		return nil
	}

	report := &Report{
		Systems:      make([]string, len(results)),
		AllIdentical: true,
		Pairs:        make([]PairAgreement, 0, len(results)*(len(results)-1)/2),
		Competitors:  make([]CompetitorSpread, 0, len(competitors)),
	}
	for i, res := range results {
		report.Systems[i] = res.SystemName
	}

	var tauSum, rhoSum float64
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			pair := PairAgreement{
				SystemA:         results[i].SystemName,
				SystemB:         results[j].SystemName,
				KendallTau:      KendallTauB(results[i].FinalRanking, results[j].FinalRanking),
				Spearman:        SpearmanRho(results[i].FinalRanking, results[j].FinalRanking),
				MeanAbsRankDiff: MeanAbsRankDiff(results[i].FinalRanking, results[j].FinalRanking),
				Identical:       Identical(results[i].FinalRanking, results[j].FinalRanking),
			}
			if !pair.Identical {
				report.AllIdentical = false
			}
			tauSum += pair.KendallTau
			rhoSum += pair.Spearman
			report.Pairs = append(report.Pairs, pair)
		}
	}
	report.MeanKendallTau = tauSum / float64(len(report.Pairs))
	report.MeanSpearman = rhoSum / float64(len(report.Pairs))

	rankMaps := make([]map[string]int, len(results))
	for i, res := range results {
		rankMaps[i] = ballot.RankMap(res.FinalRanking)
	}
	for _, competitor := range competitors {
		spread := CompetitorSpread{
			Competitor: competitor,
			Ranks:      make(map[string]int, len(results)),
		}
		for i, res := range results {
			rank := rankMaps[i][competitor]
			spread.Ranks[res.SystemName] = rank
			if spread.Best == 0 || rank < spread.Best {
				spread.Best = rank
			}
			if rank > spread.Worst {
				spread.Worst = rank
			}
		}
		spread.Spread = spread.Worst - spread.Best
		report.Competitors = append(report.Competitors, spread)
	}

	return report
}
