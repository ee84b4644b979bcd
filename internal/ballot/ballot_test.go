package ballot

import (
	"strings"
	"testing"

	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
)

func validSheet(t *testing.T) *Scoresheet {
	t.Helper()
	// 3 judges, 4 competitors, all ballots full permutations of 1..4.
	s, err := FromGrid("City Open", []string{"A", "B", "C", "D"}, []string{"J1", "J2", "J3"}, [][]int{
		{1, 1, 2}, // A
		{2, 3, 1}, // B
		{3, 2, 3}, // C
		{4, 4, 4}, // D
	})
	if err != nil {
		t.Fatalf("FromGrid() error = %v", err)
	}
	return s
}

func TestNew_CopiesInputs(t *testing.T) {
	competitors := []string{"A", "B"}
	judges := []string{"J1"}
	rankings := map[string]map[string]int{
		"J1": {"A": 1, "B": 2},
	}

	s, err := New("", competitors, judges, rankings)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Mutating the inputs must not reach the sheet.
	competitors[0] = "X"
	rankings["J1"]["A"] = 99

	if s.Competitors[0] != "A" {
		t.Errorf("Competitors[0] = %q, want A (input mutation leaked)", s.Competitors[0])
	}
	if s.Rank("J1", "A") != 1 {
		t.Errorf("Rank(J1, A) = %d, want 1 (input mutation leaked)", s.Rank("J1", "A"))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sheet   *Scoresheet
		wantErr string // substring of the error message, "" for valid
	}{
		{
			name:    "valid sheet",
			sheet:   mustSheet(t, []string{"A", "B"}, []string{"J1", "J2"}, [][]int{{1, 2}, {2, 1}}),
			wantErr: "",
		},
		{
			name: "empty competitors",
			sheet: &Scoresheet{
				Judges:   []string{"J1"},
				Rankings: map[string]map[string]int{"J1": {}},
			},
			wantErr: "competitor list is empty",
		},
		{
			name: "empty judges",
			sheet: &Scoresheet{
				Competitors: []string{"A"},
				Rankings:    map[string]map[string]int{},
			},
			wantErr: "judge list is empty",
		},
		{
			name: "duplicate competitor",
			sheet: &Scoresheet{
				Competitors: []string{"A", "A"},
				Judges:      []string{"J1"},
				Rankings:    map[string]map[string]int{"J1": {"A": 1}},
			},
			wantErr: `duplicate competitor "A"`,
		},
		{
			name: "duplicate judge",
			sheet: &Scoresheet{
				Competitors: []string{"A"},
				Judges:      []string{"J1", "J1"},
				Rankings:    map[string]map[string]int{"J1": {"A": 1}},
			},
			wantErr: `duplicate judge "J1"`,
		},
		{
			name: "missing ballot",
			sheet: &Scoresheet{
				Competitors: []string{"A"},
				Judges:      []string{"J1", "J2"},
				Rankings:    map[string]map[string]int{"J1": {"A": 1}},
			},
			wantErr: `judge "J2" has no ballot`,
		},
		{
			name: "ballot from unknown judge",
			sheet: &Scoresheet{
				Competitors: []string{"A"},
				Judges:      []string{"J1"},
				Rankings: map[string]map[string]int{
					"J1": {"A": 1},
					"JX": {"A": 1},
				},
			},
			wantErr: `ballot from unknown judge "JX"`,
		},
		{
			name: "unknown competitor on ballot",
			sheet: &Scoresheet{
				Competitors: []string{"A"},
				Judges:      []string{"J1"},
				Rankings:    map[string]map[string]int{"J1": {"A": 1, "Z": 2}},
			},
			wantErr: `ranked unknown competitor "Z"`,
		},
		{
			name: "rank out of range",
			sheet: &Scoresheet{
				Competitors: []string{"A", "B"},
				Judges:      []string{"J1"},
				Rankings:    map[string]map[string]int{"J1": {"A": 1, "B": 3}},
			},
			wantErr: "out-of-range rank 3",
		},
		{
			name: "rank zero",
			sheet: &Scoresheet{
				Competitors: []string{"A", "B"},
				Judges:      []string{"J1"},
				Rankings:    map[string]map[string]int{"J1": {"A": 0, "B": 1}},
			},
			wantErr: "out-of-range rank 0",
		},
		{
			name: "duplicate rank",
			sheet: &Scoresheet{
				Competitors: []string{"A", "B"},
				Judges:      []string{"J1"},
				Rankings:    map[string]map[string]int{"J1": {"A": 1, "B": 1}},
			},
			wantErr: "assigned rank 1 to both",
		},
		{
			name: "unranked competitor",
			sheet: &Scoresheet{
				Competitors: []string{"A", "B"},
				Judges:      []string{"J1"},
				Rankings:    map[string]map[string]int{"J1": {"A": 1}},
			},
			wantErr: `did not rank competitor "B"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sheet.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
			if !apperrors.IsBallotInvalid(err) {
				t.Errorf("Validate() error code = %v, want BALLOT_INVALID", err)
			}
		})
	}
}

func mustSheet(t *testing.T, competitors, judges []string, ranks [][]int) *Scoresheet {
	t.Helper()
	s, err := FromGrid("", competitors, judges, ranks)
	if err != nil {
		t.Fatalf("FromGrid() error = %v", err)
	}
	return s
}

func TestFromGrid_ShapeErrors(t *testing.T) {
	if _, err := FromGrid("", []string{"A", "B"}, []string{"J1"}, [][]int{{1}}); err == nil {
		t.Error("FromGrid() with missing row = nil error, want row count error")
	}

	if _, err := FromGrid("", []string{"A"}, []string{"J1", "J2"}, [][]int{{1}}); err == nil {
		t.Error("FromGrid() with short row = nil error, want column count error")
	}
}

func TestRank(t *testing.T) {
	s := validSheet(t)

	tests := []struct {
		judge      string
		competitor string
		want       int
	}{
		{"J1", "A", 1},
		{"J2", "C", 2},
		{"J3", "B", 1},
		{"J3", "D", 4},
	}

	for _, tt := range tests {
		if got := s.Rank(tt.judge, tt.competitor); got != tt.want {
			t.Errorf("Rank(%s, %s) = %d, want %d", tt.judge, tt.competitor, got, tt.want)
		}
	}
}

func TestOrderedBy(t *testing.T) {
	s := validSheet(t)

	t.Run("full field", func(t *testing.T) {
		got := s.OrderedBy("J2", []string{"A", "B", "C", "D"})
		want := []string{"A", "C", "B", "D"} // J2 ranks: A=1 C=2 B=3 D=4
		if !equalStrings(got, want) {
			t.Errorf("OrderedBy(J2) = %v, want %v", got, want)
		}
	})

	t.Run("subset keeps relative order", func(t *testing.T) {
		got := s.OrderedBy("J2", []string{"D", "B"})
		want := []string{"B", "D"}
		if !equalStrings(got, want) {
			t.Errorf("OrderedBy(J2, subset) = %v, want %v", got, want)
		}
	})

	t.Run("input unchanged", func(t *testing.T) {
		in := []string{"D", "A"}
		s.OrderedBy("J1", in)
		if in[0] != "D" || in[1] != "A" {
			t.Errorf("OrderedBy mutated its input: %v", in)
		}
	})
}

func TestBestOf(t *testing.T) {
	s := validSheet(t)

	if got := s.BestOf("J3", []string{"A", "C", "D"}); got != "A" {
		t.Errorf("BestOf(J3, {A,C,D}) = %q, want A", got)
	}
	if got := s.BestOf("J3", []string{"C", "D"}); got != "C" {
		t.Errorf("BestOf(J3, {C,D}) = %q, want C", got)
	}
	if got := s.BestOf("J1", nil); got != "" {
		t.Errorf("BestOf(J1, nil) = %q, want empty", got)
	}
}

func TestFingerprint(t *testing.T) {
	s1 := validSheet(t)
	s2 := validSheet(t)

	if s1.Fingerprint() != s2.Fingerprint() {
		t.Error("Fingerprint() differs for identical sheets")
	}

	changed := validSheet(t)
	changed.Rankings["J1"]["A"], changed.Rankings["J1"]["B"] = 2, 1
	if s1.Fingerprint() == changed.Fingerprint() {
		t.Error("Fingerprint() identical for different rankings")
	}

	if len(s1.Fingerprint()) != 16 {
		t.Errorf("Fingerprint() length = %d, want 16", len(s1.Fingerprint()))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
