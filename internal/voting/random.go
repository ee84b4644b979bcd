package voting

import (
	"math/rand"
	"sync"
	"time"
)

// Picker selects one index out of n options. It is the only source of
// non-determinism in any voting system: sequential IRV falls back to it when
// every deterministic tiebreak is exhausted. Tests supply a seeded Picker to
// make runs reproducible.
type Picker interface {
	// Pick returns an index in [0, n). Callers guarantee n >= 1.
	Pick(n int) int
}

type randPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPicker returns a Picker with its own seeded source. Identical seeds
// reproduce identical pick sequences.
func NewPicker(seed int64) Picker {
	return &randPicker{rng: rand.New(rand.NewSource(seed))}
}

// NewTimePicker returns a Picker seeded from the current time, for
// production use where the random fallback should not repeat across runs.
func NewTimePicker() Picker {
	return NewPicker(time.Now().UnixNano())
}

func (p *randPicker) Pick(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

// FixedPicker always picks the same index (clamped to the option count).
// It exists for tests that need a fully predictable random fallback.
type FixedPicker int

// Pick returns the fixed index, clamped to [0, n).
func (f FixedPicker) Pick(n int) int {
	if int(f) >= n {
		return n - 1
	}
	if f < 0 {
		return 0
	}
	return int(f)
}
