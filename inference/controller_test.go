package inference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	gpvierrors "github.com/ezoic/gpvi/pkg/errors"
	"github.com/ezoic/gpvi/pkg/log"
)

func identityState(t *testing.T, n int) *NaturalParamState {
	t.Helper()
	mu0 := mat.NewVecDense(n, nil)
	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		K.SetSym(i, i, 1)
	}
	st, err := NewNaturalParamState(mu0, K)
	require.NoError(t, err)
	return st
}

func captureWarnings(t *testing.T) *[]error {
	t.Helper()
	var captured []error
	gpvierrors.SetWarningHandler(func(w error) { captured = append(captured, w) })
	gpvierrors.SetZerologWarnFunc(func(w error) { captured = append(captured, w) })
	t.Cleanup(func() {
		gpvierrors.SetWarningHandler(nil)
		gpvierrors.SetZerologWarnFunc(nil)
	})
	return &captured
}

func TestController_FeasibleStepApplies(t *testing.T) {
	n := 3
	st := identityState(t, n)
	logger, _ := log.NewTestLogger(log.LevelError)

	opt, err := NewSGD(1.0)
	require.NoError(t, err)
	c := NewGlobalUpdateController(opt, true, logger)

	g := &NaturalGradient{
		Eta1: mat.NewVecDense(n, []float64{0.1, -0.2, 0.3}),
		Eta2: mat.NewSymDense(n, nil),
	}
	for i := 0; i < n; i++ {
		g.Eta2.SetSym(i, i, -0.1)
	}

	ostate := NewOptimizerState(OptimizerStateSize(n))
	require.NoError(t, c.Apply(st, g, ostate, 0, 0))
	assert.Equal(t, 0, c.SkippedCovUpdates())

	// Covariance stays positive definite after the step.
	var chol mat.Cholesky
	assert.True(t, chol.Factorize(st.Cov()))
}

func TestController_BackoffShrinksInfeasibleStep(t *testing.T) {
	n := 2
	st := identityState(t, n)
	logger, _ := log.NewTestLogger(log.LevelError)

	opt, err := NewSGD(1.0)
	require.NoError(t, err)
	c := NewGlobalUpdateController(opt, true, logger)

	// At alpha = 1 the implied precision 1 - 2*0.9 is negative, but halving
	// brings it back inside the cone without giving up the update.
	g := &NaturalGradient{
		Eta1: mat.NewVecDense(n, nil),
		Eta2: mat.NewSymDense(n, nil),
	}
	for i := 0; i < n; i++ {
		g.Eta2.SetSym(i, i, 0.9)
	}

	before := st.Cov().At(0, 0)
	ostate := NewOptimizerState(OptimizerStateSize(n))
	require.NoError(t, c.Apply(st, g, ostate, 0, 0))

	assert.Equal(t, 0, c.SkippedCovUpdates())
	assert.NotEqual(t, before, st.Cov().At(0, 0))

	var chol mat.Cholesky
	assert.True(t, chol.Factorize(st.Cov()))
}

func TestController_MeanOnlyFallbackWhenNoAlphaFeasible(t *testing.T) {
	n := 2
	st := identityState(t, n)
	warnings := captureWarnings(t)
	logger, _ := log.NewTestLogger(log.LevelError)

	opt, err := NewSGD(1.0)
	require.NoError(t, err)
	c := NewGlobalUpdateController(opt, true, logger)

	// The covariance step stays infeasible even at the smallest multiplier:
	// 1 - 2e-8 * 1e10 < 0. The mean step must still apply.
	g := &NaturalGradient{
		Eta1: mat.NewVecDense(n, []float64{1, 1}),
		Eta2: mat.NewSymDense(n, nil),
	}
	for i := 0; i < n; i++ {
		g.Eta2.SetSym(i, i, 1e10)
	}

	covBefore := copySym(st.Cov())
	meanBefore := st.Mean().AtVec(0)

	ostate := NewOptimizerState(OptimizerStateSize(n))
	require.NoError(t, c.Apply(st, g, ostate, 4, 1))

	assert.Equal(t, 1, c.SkippedCovUpdates())
	assert.NotEqual(t, meanBefore, st.Mean().AtVec(0))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.Equal(t, covBefore.At(i, j), st.Cov().At(i, j))
		}
	}

	require.NotEmpty(t, *warnings)
	var w *gpvierrors.PosDefBackoffWarning
	assert.ErrorAs(t, (*warnings)[0], &w)
	assert.Equal(t, 1, w.Latent)
	assert.Equal(t, 4, w.Iteration)
}

func TestController_MomentModeBackoff(t *testing.T) {
	n := 2
	st := identityState(t, n)
	logger, _ := log.NewTestLogger(log.LevelError)

	opt, err := NewSGD(1.0)
	require.NoError(t, err)
	c := NewGlobalUpdateController(opt, false, logger)

	// A covariance decrement exceeding the current eigenvalues is shrunk
	// until Sigma + alpha*d2 is feasible.
	g := &NaturalGradient{
		Eta1: mat.NewVecDense(n, nil),
		Eta2: mat.NewSymDense(n, nil),
	}
	for i := 0; i < n; i++ {
		g.Eta2.SetSym(i, i, -1.5)
	}

	ostate := NewOptimizerState(OptimizerStateSize(n))
	require.NoError(t, c.Apply(st, g, ostate, 0, 0))
	assert.Equal(t, 0, c.SkippedCovUpdates())

	var chol mat.Cholesky
	assert.True(t, chol.Factorize(st.Cov()))
	assert.Less(t, st.Cov().At(0, 0), 1.0)
}

func TestController_RejectsNonFiniteGradient(t *testing.T) {
	n := 2
	st := identityState(t, n)
	logger, _ := log.NewTestLogger(log.LevelError)

	opt, err := NewSGD(1.0)
	require.NoError(t, err)
	c := NewGlobalUpdateController(opt, true, logger)

	bad := &NaturalGradient{
		Eta1: mat.NewVecDense(n, []float64{1, 1}),
		Eta2: mat.NewSymDense(n, nil),
	}
	bad.Eta1.SetVec(0, math.NaN())

	ostate := NewOptimizerState(OptimizerStateSize(n))
	err = c.Apply(st, bad, ostate, 0, 0)
	require.Error(t, err)

	var nie *gpvierrors.NumericalInstabilityError
	assert.ErrorAs(t, err, &nie)
}
