package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNaturalParamState_InitializesAtPrior(t *testing.T) {
	mu0 := mat.NewVecDense(2, []float64{0.5, -1})
	K := mat.NewSymDense(2, []float64{2, 0.3, 0.3, 1})

	st, err := NewNaturalParamState(mu0, K)
	require.NoError(t, err)

	assert.Equal(t, 2, st.Dim())
	for i := 0; i < 2; i++ {
		assert.InDelta(t, mu0.AtVec(i), st.Mean().AtVec(i), 1e-12)
		for j := 0; j < 2; j++ {
			assert.InDelta(t, K.At(i, j), st.Cov().At(i, j), 1e-12)
		}
	}
}

func TestNaturalParamState_NaturalMomentConsistency(t *testing.T) {
	mu0 := mat.NewVecDense(3, []float64{1, 2, 3})
	K := mat.NewSymDense(3, []float64{
		2, 0.5, 0.1,
		0.5, 1.5, 0.2,
		0.1, 0.2, 1,
	})

	st, err := NewNaturalParamState(mu0, K)
	require.NoError(t, err)

	// eta2 must equal -1/2 Sigma^-1 and eta1 must equal Sigma^-1 mu.
	var chol mat.Cholesky
	require.True(t, chol.Factorize(st.Cov()))
	prec := mat.NewSymDense(3, nil)
	require.NoError(t, chol.InverseTo(prec))

	eta2 := st.Eta2()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, -0.5*prec.At(i, j), eta2.At(i, j), 1e-10)
		}
	}

	want := mat.NewVecDense(3, nil)
	want.MulVec(prec, st.Mean())
	eta1 := st.Eta1()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want.AtVec(i), eta1.AtVec(i), 1e-10)
	}
}

func TestNaturalParamState_RoundTripThroughNatural(t *testing.T) {
	st := identityState(t, 2)

	mean := mat.NewVecDense(2, []float64{0.7, -0.4})
	cov := mat.NewSymDense(2, []float64{0.5, 0.1, 0.1, 0.8})
	require.NoError(t, st.setMoments(mean, cov))

	require.NoError(t, st.setFromNatural(st.eta1, st.eta2))
	for i := 0; i < 2; i++ {
		assert.InDelta(t, mean.AtVec(i), st.Mean().AtVec(i), 1e-10)
		for j := 0; j < 2; j++ {
			assert.InDelta(t, cov.At(i, j), st.Cov().At(i, j), 1e-10)
		}
	}
}

func TestNaturalParamState_RejectsDimensionMismatch(t *testing.T) {
	mu0 := mat.NewVecDense(3, nil)
	K := mat.NewSymDense(2, []float64{1, 0, 0, 1})

	_, err := NewNaturalParamState(mu0, K)
	assert.Error(t, err)
}

func TestNaturalParamState_RejectsIndefinitePrior(t *testing.T) {
	mu0 := mat.NewVecDense(2, nil)
	K := mat.NewSymDense(2, []float64{1, 2, 2, 1}) // eigenvalues 3, -1

	_, err := NewNaturalParamState(mu0, K)
	assert.Error(t, err)
}

func TestNaturalParamState_SetPriorKeepsPosterior(t *testing.T) {
	st := identityState(t, 2)

	mean := mat.NewVecDense(2, []float64{1, 1})
	cov := mat.NewSymDense(2, []float64{0.5, 0, 0, 0.5})
	require.NoError(t, st.setMoments(mean, cov))

	newK := mat.NewSymDense(2, []float64{3, 0.2, 0.2, 3})
	require.NoError(t, st.SetPrior(mat.NewVecDense(2, nil), newK))

	assert.InDelta(t, 1.0, st.Mean().AtVec(0), 1e-12)
	assert.InDelta(t, 0.5, st.Cov().At(0, 0), 1e-12)

	_, kinv, err := st.priorFactors()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, st.PriorCov().At(0, 0), 1e-12)

	// The refreshed inverse reflects the new prior.
	id := mat.NewDense(2, 2, nil)
	id.Mul(kinv, newK)
	assert.InDelta(t, 1.0, id.At(0, 0), 1e-10)
	assert.InDelta(t, 0.0, id.At(0, 1), 1e-10)
}

func TestNaturalParamState_MeanOnlyUpdateKeepsCovariance(t *testing.T) {
	st := identityState(t, 2)

	eta1 := mat.NewVecDense(2, []float64{2, -1})
	st.setMeanFromEta1(eta1)

	// With identity covariance the mean equals eta1 directly.
	assert.InDelta(t, 2.0, st.Mean().AtVec(0), 1e-12)
	assert.InDelta(t, -1.0, st.Mean().AtVec(1), 1e-12)
	assert.InDelta(t, 1.0, st.Cov().At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, st.Cov().At(1, 1), 1e-12)
}
