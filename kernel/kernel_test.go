package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRBF_Eval(t *testing.T) {
	k, err := NewRBF(2.0, 1.5)
	require.NoError(t, err)

	tests := []struct {
		name string
		x1   []float64
		x2   []float64
		want float64
	}{
		{name: "same point gives variance", x1: []float64{1, 2}, x2: []float64{1, 2}, want: 2.0},
		{name: "unit distance", x1: []float64{0}, x2: []float64{1}, want: 2.0 * math.Exp(-1.0/(2*1.5*1.5))},
		{name: "symmetric", x1: []float64{3, -1}, x2: []float64{0, 0.5}, want: 2.0 * math.Exp(-(9+2.25)/(2*2.25))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, k.Eval(tt.x1, tt.x2), 1e-12)
			assert.InDelta(t, k.Eval(tt.x1, tt.x2), k.Eval(tt.x2, tt.x1), 1e-12)
		})
	}
}

func TestRBF_ParamGradientsMatchFiniteDifferences(t *testing.T) {
	x1 := []float64{0.3, -1.2}
	x2 := []float64{1.1, 0.4}
	h := 1e-6

	base := []float64{1.7, 0.9}
	for p := 0; p < 2; p++ {
		k, err := NewRBF(base[0], base[1])
		require.NoError(t, err)
		analytic := k.EvalGradParam(x1, x2, p)

		up := append([]float64(nil), base...)
		up[p] += h
		down := append([]float64(nil), base...)
		down[p] -= h
		ku, err := NewRBF(up[0], up[1])
		require.NoError(t, err)
		kd, err := NewRBF(down[0], down[1])
		require.NoError(t, err)

		numeric := (ku.Eval(x1, x2) - kd.Eval(x1, x2)) / (2 * h)
		assert.InDelta(t, numeric, analytic, 1e-6, "param %d", p)
	}
}

func TestRBF_PositionGradientMatchesFiniteDifferences(t *testing.T) {
	k, err := NewRBF(1.3, 0.8)
	require.NoError(t, err)

	x1 := []float64{0.5, -0.2}
	x2 := []float64{1.4, 0.9}
	h := 1e-6

	for d := 0; d < 2; d++ {
		analytic := k.EvalGradX(x1, x2, d)

		up := append([]float64(nil), x1...)
		up[d] += h
		down := append([]float64(nil), x1...)
		down[d] -= h
		numeric := (k.Eval(up, x2) - k.Eval(down, x2)) / (2 * h)
		assert.InDelta(t, numeric, analytic, 1e-6, "dim %d", d)
	}
}

func TestLinear_EvalAndGradients(t *testing.T) {
	k, err := NewLinear(0.7)
	require.NoError(t, err)

	x1 := []float64{1, 2}
	x2 := []float64{3, -1}
	assert.InDelta(t, 0.7*1.0, k.Eval(x1, x2), 1e-12)
	assert.InDelta(t, 1.0, k.EvalGradParam(x1, x2, 0), 1e-12)
	assert.InDelta(t, 0.7*3, k.EvalGradX(x1, x2, 0), 1e-12)
	assert.InDelta(t, 0.7*(-1), k.EvalGradX(x1, x2, 1), 1e-12)
}

func TestKernel_SetParamsValidation(t *testing.T) {
	k, err := NewRBF(1, 1)
	require.NoError(t, err)

	assert.Error(t, k.SetParams([]float64{1}))
	assert.Error(t, k.SetParams([]float64{-1, 1}))
	assert.NoError(t, k.SetParams([]float64{2, 0.5}))
	assert.Equal(t, []float64{2, 0.5}, k.Params())
	assert.Equal(t, []int{0}, k.VarianceParams())
}

func TestSymMatrix_PositiveDefiniteWithJitterlessGrid(t *testing.T) {
	k, err := NewRBF(1, 1)
	require.NoError(t, err)

	X := mat.NewDense(5, 1, []float64{0, 0.7, 1.9, 2.4, 3.3})
	K := SymMatrix(k, X)

	var chol mat.Cholesky
	assert.True(t, chol.Factorize(K))

	// Matches the pairwise evaluation and the rectangular form.
	R := Matrix(k, X, X)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			assert.InDelta(t, R.At(i, j), K.At(i, j), 1e-12)
		}
	}
}

func TestSymMatrixGrad_MatchesPointwise(t *testing.T) {
	k, err := NewRBF(1.5, 0.9)
	require.NoError(t, err)

	X := mat.NewDense(3, 2, []float64{0, 0, 1, 0.5, 0.2, 1.3})
	for p := 0; p < 2; p++ {
		G := SymMatrixGrad(k, X, p)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				want := k.EvalGradParam(X.RawRowView(i), X.RawRowView(j), p)
				assert.InDelta(t, want, G.At(i, j), 1e-12)
			}
		}
	}
}

func TestKernel_RejectsInvalidConstruction(t *testing.T) {
	_, err := NewRBF(0, 1)
	assert.Error(t, err)
	_, err = NewRBF(1, -2)
	assert.Error(t, err)
	_, err = NewLinear(0)
	assert.Error(t, err)
}
