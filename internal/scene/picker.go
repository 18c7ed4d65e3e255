package scene

import (
	"math/rand/v2"
	"sync"
)

// Picker selects scenes at random with probability weight / total weight.
// Scenes with weight 0 are never selected.
//
// Thread Safety: Pick is safe for concurrent use.
type Picker struct {
	scenes []Descriptor
	total  int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPicker creates a picker over the table. A nil rng uses the global source.
func NewPicker(table *Table, rng *rand.Rand) (*Picker, error) {
	total := 0
	for _, d := range table.scenes {
		if d.Weight > 0 {
			total += d.Weight
		}
	}
	if total == 0 {
		return nil, ErrNoSelectableScene
	}
	return &Picker{
		scenes: table.Scenes(),
		total:  total,
		rng:    rng,
	}, nil
}

// Pick returns one scene by weighted random choice.
func (p *Picker) Pick() Descriptor {
	var r int
	if p.rng != nil {
		p.mu.Lock()
		r = p.rng.IntN(p.total)
		p.mu.Unlock()
	} else {
		r = rand.IntN(p.total)
	}

	for _, d := range p.scenes {
		if d.Weight <= 0 {
			continue
		}
		if r < d.Weight {
			return d
		}
		r -= d.Weight
	}

	// Unreachable while total is the sum of positive weights.
	return p.scenes[len(p.scenes)-1]
}

// Probability returns the selection probability of the scene at index i.
func (p *Picker) Probability(i int) float64 {
	if i < 0 || i >= len(p.scenes) || p.scenes[i].Weight <= 0 {
		return 0
	}
	return float64(p.scenes[i].Weight) / float64(p.total)
}
