package likelihood

import (
	"math"

	"github.com/ezoic/gpvi/pkg/errors"
)

// Poisson is the count observation model with a log link
//
//	p(y | f) = Poisson(y; exp(f))
//
// Observations must be non-negative integers.
type Poisson struct{}

// NewPoisson creates a Poisson likelihood with a log link.
func NewPoisson() *Poisson { return &Poisson{} }

// Name returns "Poisson".
func (p *Poisson) Name() string { return "Poisson" }

// Capability returns NumericallyIntegrable.
func (p *Poisson) Capability() Capability { return NumericallyIntegrable }

// LogDensity computes y*f - exp(f) - log(y!).
func (p *Poisson) LogDensity(y, f float64) float64 {
	lg, _ := math.Lgamma(y + 1)
	return y*f - errors.StabilizeExp(f) - lg
}

// GradLogDensity computes y - exp(f).
func (p *Poisson) GradLogDensity(y, f float64) float64 {
	return y - errors.StabilizeExp(f)
}

// ValidateTargets checks that all targets are non-negative integers.
func (p *Poisson) ValidateTargets(y []float64) error {
	for _, v := range y {
		if v < 0 || v != math.Trunc(v) {
			return errors.NewValueError("Poisson.ValidateTargets", "targets must be non-negative integers")
		}
	}
	return nil
}
