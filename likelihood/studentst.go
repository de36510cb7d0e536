package likelihood

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ezoic/gpvi/pkg/errors"
)

// StudentsT is a heavy-tailed regression observation model
//
//	p(y | f) = StudentsT(y; f, scale, dof)
//
// useful when the data carries outliers a Gaussian noise model would chase.
type StudentsT struct {
	scale float64
	dof   float64
}

// NewStudentsT creates a Student's t likelihood. Scale must be positive and
// the degrees of freedom must exceed 1.
func NewStudentsT(scale, dof float64) (*StudentsT, error) {
	if scale <= 0 {
		return nil, errors.NewValidationError("scale", "must be positive", scale)
	}
	if dof <= 1 {
		return nil, errors.NewValidationError("dof", "must be greater than 1", dof)
	}
	return &StudentsT{scale: scale, dof: dof}, nil
}

// Name returns "StudentsT".
func (s *StudentsT) Name() string { return "StudentsT" }

// Capability returns NumericallyIntegrable.
func (s *StudentsT) Capability() Capability { return NumericallyIntegrable }

// LogDensity computes log StudentsT(y; f, scale, dof).
func (s *StudentsT) LogDensity(y, f float64) float64 {
	d := distuv.StudentsT{Mu: f, Sigma: s.scale, Nu: s.dof}
	return d.LogProb(y)
}

// GradLogDensity computes d/df log StudentsT(y; f, scale, dof).
func (s *StudentsT) GradLogDensity(y, f float64) float64 {
	r := y - f
	return (s.dof + 1) * r / (s.dof*s.scale*s.scale + r*r)
}

// Variance returns the observation variance implied by the current scale and
// degrees of freedom (defined for dof > 2).
func (s *StudentsT) Variance() float64 {
	if s.dof <= 2 {
		return math.Inf(1)
	}
	return s.scale * s.scale * s.dof / (s.dof - 2)
}
