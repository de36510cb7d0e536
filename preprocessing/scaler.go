// Package preprocessing provides input and target standardization for
// Gaussian process models.
//
// Kernel hyperparameters such as length scales are easiest to initialize
// when features sit on comparable scales, and a zero-mean target matches the
// zero-mean prior assumption of the engine. StandardScaler handles both
// cases: fit it on training inputs or targets, transform before fitting the
// model, and map predictions back with InverseTransform. For targets the
// predictive variances rescale through InverseTransformVariance.
package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/core/model"
	"github.com/ezoic/gpvi/pkg/errors"
)

// StandardScaler shifts each column to zero mean and scales it to unit
// standard deviation. Columns with near-zero spread keep scale one so the
// transform stays invertible.
type StandardScaler struct {
	state *model.StateManager

	mean  []float64
	scale []float64

	withMean bool
	withStd  bool
}

// NewStandardScaler returns a scaler that centers and scales according to
// the two flags. Disabling withMean keeps the original offsets, disabling
// withStd keeps the original spread.
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		withMean: withMean,
		withStd:  withStd,
	}
}

// Fit computes per-column mean and standard deviation from X.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "StandardScaler.Fit")
	}

	s.mean = make([]float64, c)
	s.scale = make([]float64, c)

	for j := 0; j < c; j++ {
		if s.withMean {
			var sum float64
			for i := 0; i < r; i++ {
				sum += X.At(i, j)
			}
			s.mean[j] = sum / float64(r)
		}

		s.scale[j] = 1
		if s.withStd {
			var ss float64
			for i := 0; i < r; i++ {
				d := X.At(i, j) - s.mean[j]
				ss += d * d
			}
			sd := math.Sqrt(ss / float64(r))
			if sd > 1e-8 {
				s.scale[j] = sd
			}
		}
	}

	s.state.SetDimensions(c, r)
	s.state.SetFitted()
	return nil
}

// Transform standardizes X column-wise using the fitted statistics.
func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.state.RequireFitted(); err != nil {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}
	r, c := X.Dims()
	if c != len(s.mean) {
		return nil, errors.NewDimensionError("StandardScaler.Transform", len(s.mean), c, 1)
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (X.At(i, j)-s.mean[j])/s.scale[j])
		}
	}
	return out, nil
}

// FitTransform fits the scaler on X and returns the standardized copy.
func (s *StandardScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps standardized values back to the original scale.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.state.RequireFitted(); err != nil {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}
	r, c := X.Dims()
	if c != len(s.mean) {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", len(s.mean), c, 1)
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(i, j)*s.scale[j]+s.mean[j])
		}
	}
	return out, nil
}

// InverseTransformVariance maps variances computed on the standardized scale
// back to the original scale. Variances pick up the squared column scale and
// ignore the mean shift.
func (s *StandardScaler) InverseTransformVariance(V mat.Matrix) (*mat.Dense, error) {
	if err := s.state.RequireFitted(); err != nil {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransformVariance")
	}
	r, c := V.Dims()
	if c != len(s.mean) {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransformVariance", len(s.mean), c, 1)
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, V.At(i, j)*s.scale[j]*s.scale[j])
		}
	}
	return out, nil
}

// Mean returns a copy of the fitted per-column means.
func (s *StandardScaler) Mean() []float64 {
	out := make([]float64, len(s.mean))
	copy(out, s.mean)
	return out
}

// Scale returns a copy of the fitted per-column standard deviations.
func (s *StandardScaler) Scale() []float64 {
	out := make([]float64, len(s.scale))
	copy(out, s.scale)
	return out
}

// IsFitted reports whether Fit has completed.
func (s *StandardScaler) IsFitted() bool { return s.state.IsFitted() }
