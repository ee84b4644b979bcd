package ballot

// Placement is one competitor's final position under a voting system.
type Placement struct {
	Competitor string `json:"competitor"`
	Rank       int    `json:"rank"`
	Tied       bool   `json:"tied"`
}

// BuildRanking converts ordered tie groups (best group first) into placements
// using standard competition ranking: a tie group of size k shares one rank
// value and consumes k slots, so two competitors tied at rank 2 are followed
// by rank 4.
func BuildRanking(groups [][]string) []Placement {
	total := 0
	for _, group := range groups {
		total += len(group)
	}

	placements := make([]Placement, 0, total)
	rank := 1
	for _, group := range groups {
		tied := len(group) > 1
		for _, competitor := range group {
			placements = append(placements, Placement{
				Competitor: competitor,
				Rank:       rank,
				Tied:       tied,
			})
		}
		rank += len(group)
	}
	return placements
}

// RankMap inverts a ranking into competitor -> rank lookups.
func RankMap(placements []Placement) map[string]int {
	m := make(map[string]int, len(placements))
	for _, p := range placements {
		m[p.Competitor] = p.Rank
	}
	return m
}
