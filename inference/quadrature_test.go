package inference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussHermite_GaussianMoments(t *testing.T) {
	q, err := NewGaussHermite(20)
	require.NoError(t, err)
	assert.Equal(t, 20, q.Order())

	tests := []struct {
		name     string
		mean     float64
		variance float64
	}{
		{name: "standard normal", mean: 0, variance: 1},
		{name: "shifted", mean: 2.5, variance: 1},
		{name: "wide", mean: -1, variance: 4},
		{name: "narrow", mean: 0.3, variance: 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			one := q.Expect(func(f float64) float64 { return 1 }, tt.mean, tt.variance)
			assert.InDelta(t, 1.0, one, 1e-12)

			first := q.Expect(func(f float64) float64 { return f }, tt.mean, tt.variance)
			assert.InDelta(t, tt.mean, first, 1e-10)

			second := q.Expect(func(f float64) float64 { return f * f }, tt.mean, tt.variance)
			assert.InDelta(t, tt.mean*tt.mean+tt.variance, second, 1e-9)
		})
	}
}

func TestGaussHermite_ExactForPolynomials(t *testing.T) {
	// Order m integrates polynomials up to degree 2m-1 exactly; E[f^4] for
	// N(0,1) is 3.
	q, err := NewGaussHermite(5)
	require.NoError(t, err)

	fourth := q.Expect(func(f float64) float64 { return math.Pow(f, 4) }, 0, 1)
	assert.InDelta(t, 3.0, fourth, 1e-10)
}

func TestGaussHermite_LogisticExpectation(t *testing.T) {
	// E[sigmoid(f)] under N(0, v) is 1/2 by symmetry.
	q, err := NewGaussHermite(20)
	require.NoError(t, err)

	v := q.Expect(func(f float64) float64 { return 1 / (1 + math.Exp(-f)) }, 0, 2)
	assert.InDelta(t, 0.5, v, 1e-8)
}

func TestGaussHermite_PointsSumToOne(t *testing.T) {
	q, err := NewGaussHermite(11)
	require.NoError(t, err)

	points, weights := q.Points(1.5, 0.25, nil, nil)
	require.Len(t, points, 11)
	require.Len(t, weights, 11)

	sum := 0.0
	mean := 0.0
	for k := range weights {
		sum += weights[k]
		mean += weights[k] * points[k]
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, 1.5, mean, 1e-10)
}

func TestGaussHermite_RejectsInvalidOrder(t *testing.T) {
	_, err := NewGaussHermite(0)
	assert.Error(t, err)
}
