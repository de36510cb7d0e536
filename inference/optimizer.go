package inference

import (
	"math"

	"github.com/ezoic/gpvi/pkg/errors"
)

// Optimizer turns a raw ascent gradient into a parameter step. Optimizer
// implementations are stateless; all bookkeeping lives in OptimizerState so
// one rule can serve many disjoint parameter sets.
type Optimizer interface {
	// Name returns the rule name, e.g. "adam".
	Name() string

	// Step computes the increment to add to the parameters. The state must
	// have been created for a parameter vector of the same length.
	Step(state *OptimizerState, grad []float64) ([]float64, error)
}

// OptimizerState holds per-parameter-set adaptive step-size bookkeeping.
// One instance exists per latent GP and one per hyperparameter group; each
// spans the whole training run.
type OptimizerState struct {
	t int64
	m []float64 // first raw-moment estimate
	v []float64 // second raw-moment estimate
}

// NewOptimizerState creates bookkeeping for a parameter vector of length n.
func NewOptimizerState(n int) *OptimizerState {
	return &OptimizerState{
		m: make([]float64, n),
		v: make([]float64, n),
	}
}

// Len returns the parameter vector length this state was built for.
func (s *OptimizerState) Len() int { return len(s.m) }

// SGD is a fixed-learning-rate ascent rule.
type SGD struct {
	LearningRate float64
}

// NewSGD creates a fixed-rate rule. The learning rate must be positive.
func NewSGD(learningRate float64) (*SGD, error) {
	if learningRate <= 0 {
		return nil, errors.NewValidationError("learning_rate", "must be positive", learningRate)
	}
	return &SGD{LearningRate: learningRate}, nil
}

// Name returns "sgd".
func (o *SGD) Name() string { return "sgd" }

// Step returns LearningRate * grad.
func (o *SGD) Step(state *OptimizerState, grad []float64) ([]float64, error) {
	if state.Len() != len(grad) {
		return nil, errors.NewDimensionError("SGD.Step", state.Len(), len(grad), 0)
	}
	state.t++

	delta := make([]float64, len(grad))
	for i, g := range grad {
		delta[i] = o.LearningRate * g
	}
	return delta, nil
}

// Adam is the moment-based adaptive rule of Kingma & Ba, applied as ascent.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
}

// NewAdam creates an Adam rule with the usual defaults for the decay terms.
func NewAdam(learningRate float64) (*Adam, error) {
	if learningRate <= 0 {
		return nil, errors.NewValidationError("learning_rate", "must be positive", learningRate)
	}
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}, nil
}

// Name returns "adam".
func (o *Adam) Name() string { return "adam" }

// Step computes the bias-corrected adaptive increment.
func (o *Adam) Step(state *OptimizerState, grad []float64) ([]float64, error) {
	if state.Len() != len(grad) {
		return nil, errors.NewDimensionError("Adam.Step", state.Len(), len(grad), 0)
	}
	state.t++

	c1 := 1 - math.Pow(o.Beta1, float64(state.t))
	c2 := 1 - math.Pow(o.Beta2, float64(state.t))

	delta := make([]float64, len(grad))
	for i, g := range grad {
		state.m[i] = o.Beta1*state.m[i] + (1-o.Beta1)*g
		state.v[i] = o.Beta2*state.v[i] + (1-o.Beta2)*g*g

		mhat := state.m[i] / c1
		vhat := state.v[i] / c2
		if vhat < 0 {
			vhat = 0
		}
		delta[i] = o.LearningRate * mhat / (math.Sqrt(vhat) + o.Epsilon)
	}
	return delta, nil
}
