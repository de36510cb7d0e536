package kernel

import (
	"github.com/ezoic/gpvi/pkg/errors"
)

// Linear is the linear (dot product) kernel
//
//	k(x, x') = variance * <x, x'>
type Linear struct {
	variance float64
}

// NewLinear creates a new linear kernel. The variance must be strictly
// positive.
func NewLinear(variance float64) (*Linear, error) {
	if variance <= 0 {
		return nil, errors.NewValidationError("variance", "must be positive", variance)
	}
	return &Linear{variance: variance}, nil
}

// Eval computes the linear kernel value between x1 and x2.
func (k *Linear) Eval(x1, x2 []float64) float64 {
	dot := 0.0
	for i := range x1 {
		dot += x1[i] * x2[i]
	}
	return k.variance * dot
}

// EvalGradParam computes the derivative of Eval with respect to the variance.
func (k *Linear) EvalGradParam(x1, x2 []float64, param int) float64 {
	if param != 0 {
		return 0
	}
	dot := 0.0
	for i := range x1 {
		dot += x1[i] * x2[i]
	}
	return dot
}

// EvalGradX computes the derivative of Eval with respect to coordinate dim of
// the first argument.
func (k *Linear) EvalGradX(x1, x2 []float64, dim int) float64 {
	return k.variance * x2[dim]
}

// Params returns {variance}.
func (k *Linear) Params() []float64 {
	return []float64{k.variance}
}

// ParamNames returns the hyperparameter names.
func (k *Linear) ParamNames() []string {
	return []string{"variance"}
}

// SetParams sets {variance}.
func (k *Linear) SetParams(params []float64) error {
	if len(params) != 1 {
		return errors.NewDimensionError("Linear.SetParams", 1, len(params), 1)
	}
	if params[0] <= 0 {
		return errors.NewValidationError("variance", "must be positive", params[0])
	}
	k.variance = params[0]
	return nil
}

// VarianceParams reports that parameter 0 is an amplitude.
func (k *Linear) VarianceParams() []int {
	return []int{0}
}
