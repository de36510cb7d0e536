package kernel

import (
	"math"

	"github.com/ezoic/gpvi/pkg/errors"
)

// RBF is the radial basis function (squared exponential) kernel
//
//	k(x, x') = variance * exp(-|x - x'|^2 / (2 * lengthScale^2))
type RBF struct {
	variance    float64
	lengthScale float64
}

// NewRBF creates a new RBF kernel. Both parameters must be strictly positive.
func NewRBF(variance, lengthScale float64) (*RBF, error) {
	if variance <= 0 {
		return nil, errors.NewValidationError("variance", "must be positive", variance)
	}
	if lengthScale <= 0 {
		return nil, errors.NewValidationError("length_scale", "must be positive", lengthScale)
	}
	return &RBF{variance: variance, lengthScale: lengthScale}, nil
}

// Eval computes the RBF kernel value between x1 and x2.
func (k *RBF) Eval(x1, x2 []float64) float64 {
	sumSq := 0.0
	for i := range x1 {
		diff := x1[i] - x2[i]
		sumSq += diff * diff
	}
	return k.variance * math.Exp(-sumSq/(2*k.lengthScale*k.lengthScale))
}

// EvalGradParam computes the derivative of Eval with respect to
// hyperparameter param (0: variance, 1: length scale).
func (k *RBF) EvalGradParam(x1, x2 []float64, param int) float64 {
	sumSq := 0.0
	for i := range x1 {
		diff := x1[i] - x2[i]
		sumSq += diff * diff
	}
	e := math.Exp(-sumSq / (2 * k.lengthScale * k.lengthScale))

	switch param {
	case 0:
		return e
	case 1:
		// d/dl [v*exp(-r^2/(2 l^2))] = v*e*r^2/l^3
		return k.variance * e * sumSq / (k.lengthScale * k.lengthScale * k.lengthScale)
	default:
		return 0
	}
}

// EvalGradX computes the derivative of Eval with respect to coordinate dim of
// the first argument.
func (k *RBF) EvalGradX(x1, x2 []float64, dim int) float64 {
	return -k.Eval(x1, x2) * (x1[dim] - x2[dim]) / (k.lengthScale * k.lengthScale)
}

// Params returns {variance, lengthScale}.
func (k *RBF) Params() []float64 {
	return []float64{k.variance, k.lengthScale}
}

// ParamNames returns the hyperparameter names.
func (k *RBF) ParamNames() []string {
	return []string{"variance", "length_scale"}
}

// SetParams sets {variance, lengthScale}.
func (k *RBF) SetParams(params []float64) error {
	if len(params) != 2 {
		return errors.NewDimensionError("RBF.SetParams", 2, len(params), 1)
	}
	if params[0] <= 0 || params[1] <= 0 {
		return errors.NewValidationError("params", "must be positive", params)
	}
	k.variance = params[0]
	k.lengthScale = params[1]
	return nil
}

// VarianceParams reports that parameter 0 is an amplitude.
func (k *RBF) VarianceParams() []int {
	return []int{0}
}
