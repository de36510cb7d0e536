package inference

import (
	"math/rand/v2"

	"github.com/ezoic/gpvi/pkg/errors"
)

// MinibatchSelector draws sample indices without replacement each iteration.
// The selection is ephemeral; it owns no state beyond the current iteration.
type MinibatchSelector struct {
	nTotal int
	nBatch int
	rng    *rand.Rand
}

// NewMinibatchSelector creates a selector drawing nBatch of nTotal indices.
func NewMinibatchSelector(nTotal, nBatch int, rng *rand.Rand) (*MinibatchSelector, error) {
	if nTotal <= 0 {
		return nil, errors.NewValueError("NewMinibatchSelector", "nTotal must be positive")
	}
	if nBatch <= 0 || nBatch > nTotal {
		return nil, errors.NewValidationError("n_batch", "must be in [1, nTotal]", nBatch)
	}
	return &MinibatchSelector{nTotal: nTotal, nBatch: nBatch, rng: rng}, nil
}

// Next returns a fresh set of nBatch indices drawn without replacement.
// When nBatch equals nTotal the identity selection is returned.
func (s *MinibatchSelector) Next() []int {
	if s.nBatch == s.nTotal {
		idx := make([]int, s.nTotal)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	return s.rng.Perm(s.nTotal)[:s.nBatch]
}

// Rho returns the minibatch-to-full-data scaling factor |full| / |batch|.
func (s *MinibatchSelector) Rho() float64 {
	return float64(s.nTotal) / float64(s.nBatch)
}
