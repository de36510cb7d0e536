package likelihood

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradMatchesFiniteDifference checks GradLogDensity against a centered
// difference of LogDensity.
func gradMatchesFiniteDifference(t *testing.T, lik Likelihood, y, f float64) {
	t.Helper()
	h := 1e-6
	numeric := (lik.LogDensity(y, f+h) - lik.LogDensity(y, f-h)) / (2 * h)
	assert.InDelta(t, numeric, lik.GradLogDensity(y, f), 1e-5,
		"%s grad at y=%v f=%v", lik.Name(), y, f)
}

func TestGaussian_DensityAndGradients(t *testing.T) {
	g, err := NewGaussian(0.25)
	require.NoError(t, err)
	assert.Equal(t, AnalyticCompatible, g.Capability())
	assert.Equal(t, 0.25, g.NoiseVariance())

	// Peak of the log density sits at f = y.
	assert.Greater(t, g.LogDensity(1, 1), g.LogDensity(1, 0.5))
	gradMatchesFiniteDifference(t, g, 1.0, 0.3)
	gradMatchesFiniteDifference(t, g, -2.0, 1.7)
}

func TestGaussian_ExpectedLogLikClosedForm(t *testing.T) {
	g, err := NewGaussian(0.5)
	require.NoError(t, err)

	// At zero latent variance the expectation is the plain log density.
	y, m := 0.7, 0.2
	assert.InDelta(t, g.LogDensity(y, m), g.ExpectedLogLik(y, m, 0), 1e-12)

	// Latent variance enters as the linear penalty -v/(2 sigma^2).
	v := 0.3
	assert.InDelta(t, g.LogDensity(y, m)-v/(2*0.5), g.ExpectedLogLik(y, m, v), 1e-12)

	dMean, dVar := g.GradExpectedLogLik(y, m, v)
	assert.InDelta(t, (y-m)/0.5, dMean, 1e-12)
	assert.InDelta(t, -1/(2*0.5), dVar, 1e-12)
}

func TestGaussian_RejectsNonPositiveNoise(t *testing.T) {
	_, err := NewGaussian(0)
	assert.Error(t, err)
	_, err = NewGaussian(-1)
	assert.Error(t, err)
}

func TestBernoulli_DensityAndGradients(t *testing.T) {
	b := NewBernoulli()
	assert.Equal(t, NumericallyIntegrable, b.Capability())

	// p(1|0) = p(0|0) = 1/2.
	assert.InDelta(t, math.Log(0.5), b.LogDensity(1, 0), 1e-12)
	assert.InDelta(t, math.Log(0.5), b.LogDensity(0, 0), 1e-12)

	// Stable at extreme latent values.
	assert.False(t, math.IsNaN(b.LogDensity(1, 700)))
	assert.False(t, math.IsNaN(b.LogDensity(0, -700)))
	assert.InDelta(t, 0.0, b.LogDensity(1, 700), 1e-10)

	gradMatchesFiniteDifference(t, b, 1, 0.5)
	gradMatchesFiniteDifference(t, b, 0, -1.3)
}

func TestBernoulli_ValidateTargets(t *testing.T) {
	b := NewBernoulli()
	assert.NoError(t, b.ValidateTargets([]float64{0, 1, 1, 0}))
	assert.Error(t, b.ValidateTargets([]float64{0, 0.5}))
	assert.Error(t, b.ValidateTargets([]float64{-1}))
}

func TestPoisson_DensityAndGradients(t *testing.T) {
	p := NewPoisson()
	assert.Equal(t, NumericallyIntegrable, p.Capability())

	// Poisson(2; e^0) = e^-1 / 2.
	assert.InDelta(t, math.Log(math.Exp(-1)/2), p.LogDensity(2, 0), 1e-12)

	gradMatchesFiniteDifference(t, p, 3, 0.4)
	gradMatchesFiniteDifference(t, p, 0, -2)
}

func TestPoisson_ValidateTargets(t *testing.T) {
	p := NewPoisson()
	assert.NoError(t, p.ValidateTargets([]float64{0, 1, 5}))
	assert.Error(t, p.ValidateTargets([]float64{1.5}))
	assert.Error(t, p.ValidateTargets([]float64{-1}))
}

func TestStudentsT_DensityAndGradients(t *testing.T) {
	s, err := NewStudentsT(1.0, 4.0)
	require.NoError(t, err)
	assert.Equal(t, NumericallyIntegrable, s.Capability())

	// Symmetric around f = y.
	assert.InDelta(t, s.LogDensity(0, 1), s.LogDensity(0, -1), 1e-12)

	gradMatchesFiniteDifference(t, s, 0.5, -0.2)
	gradMatchesFiniteDifference(t, s, 3, 0)

	assert.InDelta(t, 4.0/2.0, s.Variance(), 1e-12)
}

func TestStudentsT_RejectsInvalidParams(t *testing.T) {
	_, err := NewStudentsT(0, 4)
	assert.Error(t, err)
	_, err = NewStudentsT(1, 1)
	assert.Error(t, err)
}

func TestCapability_String(t *testing.T) {
	assert.Equal(t, "analytic", AnalyticCompatible.String())
	assert.Equal(t, "numerical", NumericallyIntegrable.String())
	assert.Equal(t, "sampling", SamplingOnly.String())
}
