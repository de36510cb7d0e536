package likelihood

import (
	"math"

	"github.com/ezoic/gpvi/pkg/errors"
)

// Bernoulli is the binary classification observation model with a logit link
//
//	p(y = 1 | f) = sigmoid(f)
//
// Observations must be 0 or 1. The expectation integral has no closed form,
// so the engine integrates it numerically.
type Bernoulli struct{}

// NewBernoulli creates a Bernoulli likelihood with a logit link.
func NewBernoulli() *Bernoulli { return &Bernoulli{} }

// Name returns "Bernoulli".
func (b *Bernoulli) Name() string { return "Bernoulli" }

// Capability returns NumericallyIntegrable.
func (b *Bernoulli) Capability() Capability { return NumericallyIntegrable }

// LogDensity computes y*f - log(1 + exp(f)) in a stable form.
func (b *Bernoulli) LogDensity(y, f float64) float64 {
	// log(1+exp(f)) = max(f,0) + log(1+exp(-|f|))
	softplus := math.Max(f, 0) + math.Log1p(math.Exp(-math.Abs(f)))
	return y*f - softplus
}

// GradLogDensity computes y - sigmoid(f).
func (b *Bernoulli) GradLogDensity(y, f float64) float64 {
	return y - sigmoid(f)
}

// ValidateTargets checks that all targets are 0 or 1.
func (b *Bernoulli) ValidateTargets(y []float64) error {
	for _, v := range y {
		if v != 0 && v != 1 {
			return errors.NewValueError("Bernoulli.ValidateTargets", "targets must be 0 or 1")
		}
	}
	return nil
}

func sigmoid(f float64) float64 {
	if f >= 0 {
		return 1 / (1 + math.Exp(-f))
	}
	e := math.Exp(f)
	return e / (1 + e)
}
