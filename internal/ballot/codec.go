package ballot

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeJSON reads a scoresheet from its JSON form. The result is not
// validated; callers run Validate before handing it to an engine.
func DecodeJSON(r io.Reader) (*Scoresheet, error) {
	var s Scoresheet
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scoresheet JSON: %w", err)
	}
	return &s, nil
}

// DecodeYAML reads a scoresheet from its YAML form.
func DecodeYAML(r io.Reader) (*Scoresheet, error) {
	var s Scoresheet
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scoresheet YAML: %w", err)
	}
	return &s, nil
}

// DecodeCSV reads a scoresheet from a rank grid: a header row naming the
// judges, then one row per competitor with that competitor's rank from each
// judge.
//
//	competitor,J1,J2,J3
//	Ava & Alex,1,2,1
//	Ben & Bria,2,1,2
func DecodeCSV(r io.Reader) (*Scoresheet, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read scoresheet CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("scoresheet CSV needs a header row and at least one competitor row")
	}

	header := rows[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("scoresheet CSV header needs at least one judge column")
	}

	// First header cell is a label for the competitor column; the rest name
	// the judges.
	judges := make([]string, 0, len(header)-1)
	for _, j := range header[1:] {
		judges = append(judges, strings.TrimSpace(j))
	}

	s := &Scoresheet{
		Judges:   judges,
		Rankings: make(map[string]map[string]int, len(judges)),
	}
	for _, judge := range judges {
		s.Rankings[judge] = make(map[string]int, len(rows)-1)
	}

	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("scoresheet CSV row %d has %d columns, want %d", i+2, len(row), len(header))
		}
		competitor := strings.TrimSpace(row[0])
		s.Competitors = append(s.Competitors, competitor)
		for col, cell := range row[1:] {
			rank, err := strconv.Atoi(strings.TrimSpace(cell))
			if err != nil {
				return nil, fmt.Errorf("scoresheet CSV row %d: rank for judge %q is not an integer: %q",
					i+2, judges[col], cell)
			}
			s.Rankings[judges[col]][competitor] = rank
		}
	}

	return s, nil
}

// DecodeFile reads a scoresheet from path, picking the codec by extension
// (.json, .yaml/.yml, or .csv).
func DecodeFile(path string) (*Scoresheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scoresheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeJSON(f)
	case ".yaml", ".yml":
		return DecodeYAML(f)
	case ".csv":
		return DecodeCSV(f)
	default:
		return nil, fmt.Errorf("unsupported scoresheet format %q (want .json, .yaml, or .csv)", filepath.Ext(path))
	}
}
