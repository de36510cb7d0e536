package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/pkg/errors"
)

func TestPointMetrics(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{1, 2, 3, 4})
	yPred := mat.NewVecDense(4, []float64{1.5, 2, 2.5, 4})

	mse, err := MSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, (0.25+0+0.25+0)/4, mse, 1e-12)

	rmse, err := RMSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(mse), rmse, 1e-12)

	mae, err := MAE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, mae, 1e-12)
}

func TestR2Score(t *testing.T) {
	yTrue := mat.NewVecDense(3, []float64{1, 2, 3})

	t.Run("perfect fit", func(t *testing.T) {
		r2, err := R2Score(yTrue, yTrue)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, r2, 1e-12)
	})

	t.Run("mean predictor", func(t *testing.T) {
		r2, err := R2Score(yTrue, mat.NewVecDense(3, []float64{2, 2, 2}))
		require.NoError(t, err)
		assert.InDelta(t, 0.0, r2, 1e-12)
	})

	t.Run("constant targets rejected", func(t *testing.T) {
		_, err := R2Score(mat.NewVecDense(2, []float64{1, 1}), mat.NewVecDense(2, []float64{1, 1}))
		require.Error(t, err)
	})
}

func TestNegativeLogPredictiveDensity(t *testing.T) {
	// A single standard-normal prediction at the mean scores
	// 0.5*log(2*pi).
	y := mat.NewVecDense(1, []float64{0})
	m := mat.NewVecDense(1, []float64{0})
	v := mat.NewVecDense(1, []float64{1})

	nlpd, err := NegativeLogPredictiveDensity(y, m, v)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*math.Log(2*math.Pi), nlpd, 1e-12)

	t.Run("overconfidence penalized", func(t *testing.T) {
		yOff := mat.NewVecDense(1, []float64{2})
		wide, err := NegativeLogPredictiveDensity(yOff, m, mat.NewVecDense(1, []float64{4}))
		require.NoError(t, err)
		tight, err := NegativeLogPredictiveDensity(yOff, m, mat.NewVecDense(1, []float64{0.01}))
		require.NoError(t, err)
		assert.Less(t, wide, tight)
	})

	t.Run("nonpositive variance rejected", func(t *testing.T) {
		_, err := NegativeLogPredictiveDensity(y, m, mat.NewVecDense(1, []float64{0}))
		require.Error(t, err)
	})
}

func TestCoverageProbability(t *testing.T) {
	// Residuals of 0 and 3 sigma around unit-variance predictions: only
	// the first point is inside any central interval below ~99.7%.
	y := mat.NewVecDense(2, []float64{0, 3})
	m := mat.NewVecDense(2, []float64{0, 0})
	v := mat.NewVecDense(2, []float64{1, 1})

	cov, err := CoverageProbability(y, m, v, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cov, 1e-12)

	_, err = CoverageProbability(y, m, v, 1.5)
	require.Error(t, err)
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestMetricsDimensionMismatch(t *testing.T) {
	a := mat.NewVecDense(2, []float64{1, 2})
	b := mat.NewVecDense(3, []float64{1, 2, 3})

	_, err := MSE(a, b)
	require.Error(t, err)
	var derr *errors.DimensionError
	assert.True(t, errors.As(err, &derr))

	_, err = MSE(new(mat.VecDense), new(mat.VecDense))
	require.Error(t, err)
}
