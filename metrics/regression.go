// Package metrics provides evaluation metrics for probabilistic regression
// models.
//
// Besides the usual point-prediction scores (MSE, RMSE, MAE, R2) the package
// scores full predictive distributions: NegativeLogPredictiveDensity and
// CoverageProbability consume the per-point predictive variances produced by
// a fitted model, so calibration of the uncertainty estimates can be checked
// alongside accuracy.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/pkg/errors"
)

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// MSE returns the mean squared error between true and predicted values.
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE returns the root mean squared error between true and predicted values.
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE returns the mean absolute error between true and predicted values.
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score returns the coefficient of determination. A perfect fit scores 1,
// predicting the mean of yTrue scores 0, and worse-than-mean fits go
// negative. Constant targets yield an error since the score is undefined.
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var mean float64
	for i := 0; i < n; i++ {
		mean += yTrue.AtVec(i)
	}
	mean /= float64(n)

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		res := yTrue.AtVec(i) - yPred.AtVec(i)
		tot := yTrue.AtVec(i) - mean
		ssRes += res * res
		ssTot += tot * tot
	}
	if ssTot == 0 {
		return 0, errors.NewValueError("R2Score", "targets are constant, score undefined")
	}
	return 1 - ssRes/ssTot, nil
}

// NegativeLogPredictiveDensity returns the average negative log density of
// the observations under independent Gaussian predictive distributions with
// the given means and variances. Lower is better; an overconfident model is
// penalized through the quadratic term, an underconfident one through the
// log-variance term.
func NegativeLogPredictiveDensity(yTrue, predMean, predVar *mat.VecDense) (float64, error) {
	n, err := checkPair("NegativeLogPredictiveDensity", yTrue, predMean)
	if err != nil {
		return 0, err
	}
	if predVar.Len() != n {
		return 0, errors.NewDimensionError("NegativeLogPredictiveDensity", n, predVar.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		v := predVar.AtVec(i)
		if v <= 0 {
			return 0, errors.NewValueError("NegativeLogPredictiveDensity", "predictive variance must be positive")
		}
		diff := yTrue.AtVec(i) - predMean.AtVec(i)
		sum += 0.5*math.Log(2*math.Pi*v) + diff*diff/(2*v)
	}
	return sum / float64(n), nil
}

// CoverageProbability returns the fraction of observations that fall inside
// the central Gaussian predictive interval of the given nominal level, e.g.
// level 0.95 for the usual two-sigma band. A well calibrated model reports
// empirical coverage close to the nominal level.
func CoverageProbability(yTrue, predMean, predVar *mat.VecDense, level float64) (float64, error) {
	n, err := checkPair("CoverageProbability", yTrue, predMean)
	if err != nil {
		return 0, err
	}
	if predVar.Len() != n {
		return 0, errors.NewDimensionError("CoverageProbability", n, predVar.Len(), 0)
	}
	if level <= 0 || level >= 1 {
		return 0, errors.NewValidationError("level", "must be in (0, 1)", level)
	}

	z := normQuantile(0.5 + level/2)
	var hits int
	for i := 0; i < n; i++ {
		v := predVar.AtVec(i)
		if v <= 0 {
			return 0, errors.NewValueError("CoverageProbability", "predictive variance must be positive")
		}
		if math.Abs(yTrue.AtVec(i)-predMean.AtVec(i)) <= z*math.Sqrt(v) {
			hits++
		}
	}
	return float64(hits) / float64(n), nil
}

// normQuantile inverts the standard normal CDF by bisection on erf. The
// metric needs only a handful of evaluations per call, so a rational
// approximation is not worth its edge cases.
func normQuantile(p float64) float64 {
	lo, hi := -10.0, 10.0
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if 0.5*(1+math.Erf(mid/math.Sqrt2)) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}
