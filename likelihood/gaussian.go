package likelihood

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ezoic/gpvi/pkg/errors"
)

// Gaussian is the homoscedastic Gaussian observation model
//
//	p(y | f) = N(y; f, noiseVariance)
//
// It is conjugate to the Gaussian latent marginal, so both the expectation
// integral and its gradients are exact.
type Gaussian struct {
	noiseVariance float64
}

// NewGaussian creates a Gaussian likelihood. The noise variance must be
// strictly positive.
func NewGaussian(noiseVariance float64) (*Gaussian, error) {
	if noiseVariance <= 0 {
		return nil, errors.NewValidationError("noise_variance", "must be positive", noiseVariance)
	}
	return &Gaussian{noiseVariance: noiseVariance}, nil
}

// Name returns "Gaussian".
func (g *Gaussian) Name() string { return "Gaussian" }

// Capability returns AnalyticCompatible.
func (g *Gaussian) Capability() Capability { return AnalyticCompatible }

// NoiseVariance returns the observation noise variance.
func (g *Gaussian) NoiseVariance() float64 { return g.noiseVariance }

// LogDensity computes log N(y; f, noiseVariance).
func (g *Gaussian) LogDensity(y, f float64) float64 {
	n := distuv.Normal{Mu: f, Sigma: math.Sqrt(g.noiseVariance)}
	return n.LogProb(y)
}

// GradLogDensity computes d/df log N(y; f, noiseVariance) = (y - f) / var.
func (g *Gaussian) GradLogDensity(y, f float64) float64 {
	return (y - f) / g.noiseVariance
}

// ExpectedLogLik computes E_q[log p(y|f)] for f ~ N(mean, variance):
//
//	log N(y; mean, noiseVariance) - variance / (2 * noiseVariance)
func (g *Gaussian) ExpectedLogLik(y, mean, variance float64) float64 {
	return g.LogDensity(y, mean) - variance/(2*g.noiseVariance)
}

// GradExpectedLogLik computes the exact gradients of ExpectedLogLik with
// respect to the latent mean and variance.
func (g *Gaussian) GradExpectedLogLik(y, mean, variance float64) (dMean, dVar float64) {
	return (y - mean) / g.noiseVariance, -1 / (2 * g.noiseVariance)
}
