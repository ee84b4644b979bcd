// Package ballot defines the normalized scoresheet model consumed by every
// voting system: the competitor and judge rosters plus each judge's full
// rank-ordering of the field.
package ballot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/pkg/hash"
)

// Scoresheet is one competition's complete set of ballots. Each judge ranks
// every competitor exactly once with ranks 1..N (1 = best, no ties, no gaps).
// Treat as read-only after Validate: engines never mutate it.
type Scoresheet struct {
	CompetitionName string `json:"competition_name,omitempty" yaml:"competition_name,omitempty"`

	// Competitors and Judges are ordered and unique. Their order fixes
	// iteration order everywhere downstream, which keeps traces stable.
	Competitors []string `json:"competitors" yaml:"competitors"`
	Judges      []string `json:"judges" yaml:"judges"`

	// Rankings maps judge -> competitor -> rank (1 = best).
	Rankings map[string]map[string]int `json:"rankings" yaml:"rankings"`
}

// New builds a validated scoresheet from copies of the given rosters and
// rankings, so later mutation of the inputs cannot reach the sheet.
func New(name string, competitors, judges []string, rankings map[string]map[string]int) (*Scoresheet, error) {
	s := &Scoresheet{
		CompetitionName: name,
		Competitors:     append([]string(nil), competitors...),
		Judges:          append([]string(nil), judges...),
		Rankings:        make(map[string]map[string]int, len(rankings)),
	}
	for judge, marks := range rankings {
		copied := make(map[string]int, len(marks))
		for competitor, rank := range marks {
			copied[competitor] = rank
		}
		s.Rankings[judge] = copied
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromGrid builds a validated scoresheet from a rank grid where
// ranks[i][j] is the rank judges[j] assigned to competitors[i].
func FromGrid(name string, competitors, judges []string, ranks [][]int) (*Scoresheet, error) {
	if len(ranks) != len(competitors) {
		return nil, apperrors.BallotError(
			fmt.Sprintf("rank grid has %d rows, want one per competitor (%d)", len(ranks), len(competitors)))
	}
	for i, row := range ranks {
		if len(row) != len(judges) {
			return nil, apperrors.BallotError(
				fmt.Sprintf("rank grid row for %q has %d columns, want one per judge (%d)",
					competitors[i], len(row), len(judges))).
				WithDetail("competitor", competitors[i])
		}
	}

	rankings := make(map[string]map[string]int, len(judges))
	for j, judge := range judges {
		marks := make(map[string]int, len(competitors))
		for i, competitor := range competitors {
			marks[competitor] = ranks[i][j]
		}
		rankings[judge] = marks
	}

	return New(name, competitors, judges, rankings)
}

// NumCompetitors returns the size of the field.
func (s *Scoresheet) NumCompetitors() int {
	return len(s.Competitors)
}

// NumJudges returns the size of the panel.
func (s *Scoresheet) NumJudges() int {
	return len(s.Judges)
}

// Rank returns the rank judge assigned to competitor (1 = best).
// Only meaningful on a validated sheet.
func (s *Scoresheet) Rank(judge, competitor string) int {
	return s.Rankings[judge][competitor]
}

// OrderedBy returns candidates sorted from the judge's most to least
// preferred. The input slice is not modified.
func (s *Scoresheet) OrderedBy(judge string, candidates []string) []string {
	marks := s.Rankings[judge]
	ordered := append([]string(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return marks[ordered[i]] < marks[ordered[j]]
	})
	return ordered
}

// BestOf returns the candidate the judge ranked best, or "" for an empty set.
func (s *Scoresheet) BestOf(judge string, candidates []string) string {
	marks := s.Rankings[judge]
	best := ""
	for _, c := range candidates {
		if best == "" || marks[c] < marks[best] {
			best = c
		}
	}
	return best
}

// Fingerprint returns a short deterministic identifier for the sheet's
// content. Two sheets with the same rosters and marks share a fingerprint.
func (s *Scoresheet) Fingerprint() string {
	var b strings.Builder
	b.WriteString(s.CompetitionName)
	b.WriteByte('|')
	b.WriteString(strings.Join(s.Competitors, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(s.Judges, ","))
	for _, judge := range s.Judges {
		b.WriteByte('|')
		for _, competitor := range s.Competitors {
			b.WriteString(strconv.Itoa(s.Rankings[judge][competitor]))
			b.WriteByte(',')
		}
	}
	return hash.Short([]byte(b.String()), 16)
}

// Validate checks the scoresheet invariants: non-empty unique rosters and,
// for every judge, a ballot whose ranks are exactly the permutation 1..N.
// The returned error names the offending judge and/or competitor.
func (s *Scoresheet) Validate() error {
	if len(s.Competitors) == 0 {
		return apperrors.BallotError("competitor list is empty")
	}
	if len(s.Judges) == 0 {
		return apperrors.BallotError("judge list is empty")
	}

	competitorSet := make(map[string]bool, len(s.Competitors))
	for _, c := range s.Competitors {
		if c == "" {
			return apperrors.BallotError("competitor identifier is empty")
		}
		if competitorSet[c] {
			return apperrors.BallotError(fmt.Sprintf("duplicate competitor %q", c)).
				WithDetail("competitor", c)
		}
		competitorSet[c] = true
	}

	judgeSet := make(map[string]bool, len(s.Judges))
	for _, j := range s.Judges {
		if j == "" {
			return apperrors.BallotError("judge identifier is empty")
		}
		if judgeSet[j] {
			return apperrors.BallotError(fmt.Sprintf("duplicate judge %q", j)).
				WithDetail("judge", j)
		}
		judgeSet[j] = true
	}

	for judge := range s.Rankings {
		if !judgeSet[judge] {
			return apperrors.BallotError(fmt.Sprintf("ballot from unknown judge %q", judge)).
				WithDetail("judge", judge)
		}
	}

	n := len(s.Competitors)
	for _, judge := range s.Judges {
		marks, ok := s.Rankings[judge]
		if !ok {
			return apperrors.BallotError(fmt.Sprintf("judge %q has no ballot", judge)).
				WithDetail("judge", judge)
		}

		seen := make(map[int]string, n)
		for competitor, rank := range marks {
			if !competitorSet[competitor] {
				return apperrors.BallotError(
					fmt.Sprintf("judge %q ranked unknown competitor %q", judge, competitor)).
					WithDetail("judge", judge).
					WithDetail("competitor", competitor)
			}
			if rank < 1 || rank > n {
				return apperrors.BallotError(
					fmt.Sprintf("judge %q assigned out-of-range rank %d to %q", judge, rank, competitor)).
					WithDetail("judge", judge).
					WithDetail("competitor", competitor)
			}
			if prev, dup := seen[rank]; dup {
				return apperrors.BallotError(
					fmt.Sprintf("judge %q assigned rank %d to both %q and %q", judge, rank, prev, competitor)).
					WithDetail("judge", judge).
					WithDetail("rank", strconv.Itoa(rank))
			}
			seen[rank] = competitor
		}

		// Every competitor ranked and every rank used follows from the
		// permutation check once sizes match.
		if len(marks) != n {
			for _, competitor := range s.Competitors {
				if _, ok := marks[competitor]; !ok {
					return apperrors.BallotError(
						fmt.Sprintf("judge %q did not rank competitor %q", judge, competitor)).
						WithDetail("judge", judge).
						WithDetail("competitor", competitor)
				}
			}
		}
	}

	return nil
}
