package inference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/likelihood"
)

func TestGaussianKL_ZeroAtPrior(t *testing.T) {
	mu0 := mat.NewVecDense(3, []float64{1, -1, 0.5})
	K := mat.NewSymDense(3, []float64{
		2, 0.3, 0,
		0.3, 1.5, 0.2,
		0, 0.2, 1,
	})
	st, err := NewNaturalParamState(mu0, K)
	require.NoError(t, err)

	kl, err := gaussianKL(st)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, kl, 1e-10)
}

func TestGaussianKL_ClosedFormScalar(t *testing.T) {
	// KL(N(m, v) || N(0, 1)) = 1/2 (v + m^2 - 1 - log v).
	st := identityState(t, 1)
	m, v := 0.8, 0.4
	require.NoError(t, st.setMoments(
		mat.NewVecDense(1, []float64{m}),
		mat.NewSymDense(1, []float64{v}),
	))

	kl, err := gaussianKL(st)
	require.NoError(t, err)
	want := 0.5 * (v + m*m - 1 - math.Log(v))
	assert.InDelta(t, want, kl, 1e-10)
}

func TestGaussianKL_NonNegative(t *testing.T) {
	st := identityState(t, 2)
	states := []struct {
		name string
		mean []float64
		cov  []float64
	}{
		{name: "shifted mean", mean: []float64{2, -3}, cov: []float64{1, 0, 0, 1}},
		{name: "shrunk covariance", mean: []float64{0, 0}, cov: []float64{0.1, 0, 0, 0.2}},
		{name: "correlated", mean: []float64{1, 1}, cov: []float64{1, 0.8, 0.8, 1}},
	}

	for _, tt := range states {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, st.setMoments(
				mat.NewVecDense(2, tt.mean),
				mat.NewSymDense(2, tt.cov),
			))
			kl, err := gaussianKL(st)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, kl, 0.0)
		})
	}
}

func TestELBOAccumulator_SparseCorrectionPreservesValue(t *testing.T) {
	lik, err := likelihood.NewGaussian(0.2)
	require.NoError(t, err)
	strategy, err := NewAnalyticUpdateStrategy(lik)
	require.NoError(t, err)
	acc := NewELBOAccumulator(lik)

	st := identityState(t, 2)
	states := []*NaturalParamState{st}

	view := fullBatchView(st, []float64{0.5, -0.5})
	base, err := acc.Terms(strategy, states, view)
	require.NoError(t, err)
	assert.Zero(t, base.Correction)

	// Adding slack lowers the bound through the correction term while the
	// stated expected log-likelihood stays the slack-free one.
	withSlack := fullBatchView(st, []float64{0.5, -0.5})
	withSlack.slack = []float64{0.1, 0.3}
	for i := range withSlack.margVar[0] {
		withSlack.margVar[0][i] += withSlack.slack[i]
	}
	corrected, err := acc.Terms(strategy, states, withSlack)
	require.NoError(t, err)

	wantCorr := (0.1 + 0.3) / (2 * lik.NoiseVariance())
	assert.InDelta(t, wantCorr, corrected.Correction, 1e-10)
	assert.InDelta(t, base.ExpectedLogLik, corrected.ExpectedLogLik, 1e-10)
	assert.Less(t, corrected.Value(), base.Value())
}

func TestELBOTerms_Value(t *testing.T) {
	terms := ELBOTerms{ExpectedLogLik: -10, KL: 2, Correction: 0.5}
	assert.InDelta(t, -12.5, terms.Value(), 1e-12)
}
