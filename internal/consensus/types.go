package consensus

// Report summarizes how strongly the voting systems agree on one scoresheet.
type Report struct {
	// Systems lists the compared systems in report order.
	Systems []string `json:"systems"`

	// AllIdentical is true when every system produced the same ranking.
	AllIdentical bool `json:"all_identical"`

	// Pairs holds one agreement entry per unordered system pair.
	Pairs []PairAgreement `json:"pairs"`

	// MeanKendallTau averages the tau-b coefficient over all pairs.
	MeanKendallTau float64 `json:"mean_kendall_tau"`

	// MeanSpearman averages the Spearman coefficient over all pairs.
	MeanSpearman float64 `json:"mean_spearman"`

	// Competitors shows each competitor's placement range across systems.
	Competitors []CompetitorSpread `json:"competitors"`
}

// PairAgreement compares the final rankings of two systems.
type PairAgreement struct {
	SystemA string `json:"system_a"`
	SystemB string `json:"system_b"`

	// KendallTau is the tie-corrected Kendall correlation (tau-b), in [-1, 1].
	KendallTau float64 `json:"kendall_tau"`

	// Spearman is the rank correlation over fractional ranks, in [-1, 1].
	Spearman float64 `json:"spearman"`

	// MeanAbsRankDiff is the mean absolute placement difference.
	MeanAbsRankDiff float64 `json:"mean_abs_rank_diff"`

	// Identical is true when both systems assigned every competitor the
	// same rank.
	Identical bool `json:"identical"`
}

// CompetitorSpread is one competitor's placement under every system.
type CompetitorSpread struct {
	Competitor string `json:"competitor"`

	// Ranks maps system name to the rank it assigned.
	Ranks map[string]int `json:"ranks"`

	Best   int `json:"best"`
	Worst  int `json:"worst"`
	Spread int `json:"spread"`
}
