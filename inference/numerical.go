package inference

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ezoic/gpvi/likelihood"
	"github.com/ezoic/gpvi/pkg/errors"
)

// IntegrationBackend selects how the expectation integrals are approximated.
type IntegrationBackend int

const (
	// IntegrationQuadrature uses fixed-order Gauss-Hermite quadrature:
	// deterministic, exact for polynomial integrands.
	IntegrationQuadrature IntegrationBackend = iota

	// IntegrationMonteCarlo uses Monte Carlo sampling: unbiased, with
	// variance shrinking in the sample count.
	IntegrationMonteCarlo
)

// String returns the backend name.
func (b IntegrationBackend) String() string {
	switch b {
	case IntegrationQuadrature:
		return "quadrature"
	case IntegrationMonteCarlo:
		return "monte-carlo"
	default:
		return "unknown"
	}
}

// NumericalUpdateStrategy approximates the expectation gradients for
// likelihoods without closed forms, then reduces them through the same
// natural-gradient path as the analytic strategy.
//
// The mean gradient is the expectation of the log-density score,
// E[g(f)]; the variance gradient uses Stein's identity,
// d/dv E[h(f)] = E[g(f) (f - mean)] / (2 v), so only first derivatives of
// the log density are required from the likelihood.
type NumericalUpdateStrategy struct {
	lik       likelihood.Likelihood
	backend   IntegrationBackend
	quad      *GaussHermite
	mcSamples int
	seed      uint64
}

// DefaultQuadratureOrder is the Gauss-Hermite order used when none is
// configured.
const DefaultQuadratureOrder = 20

// DefaultMonteCarloSamples is the per-point draw count used when none is
// configured.
const DefaultMonteCarloSamples = 500

// NewNumericalUpdateStrategy creates a numerical strategy. The backend, the
// quadrature order (quadrature backend) and the per-point sample count
// (Monte Carlo backend) are fixed at configuration time.
func NewNumericalUpdateStrategy(lik likelihood.Likelihood, backend IntegrationBackend, order, mcSamples int, seed uint64) (*NumericalUpdateStrategy, error) {
	if lik.Capability() == likelihood.SamplingOnly {
		return nil, errors.NewIncompatibleLikelihoodError(lik.Name(), backend.String())
	}

	s := &NumericalUpdateStrategy{
		lik:       lik,
		backend:   backend,
		mcSamples: mcSamples,
		seed:      seed,
	}

	switch backend {
	case IntegrationQuadrature:
		if order <= 0 {
			order = DefaultQuadratureOrder
		}
		quad, err := NewGaussHermite(order)
		if err != nil {
			return nil, err
		}
		s.quad = quad
	case IntegrationMonteCarlo:
		if mcSamples <= 0 {
			s.mcSamples = DefaultMonteCarloSamples
		}
	default:
		return nil, errors.NewValidationError("backend", "unknown integration backend", backend)
	}

	return s, nil
}

// Name returns the backend name.
func (s *NumericalUpdateStrategy) Name() string { return s.backend.String() }

// NaturalGradients computes the integrated natural gradient for one latent GP.
func (s *NumericalUpdateStrategy) NaturalGradients(st *NaturalParamState, b *minibatchView, latent int) (*NaturalGradient, error) {
	bsz := b.size()
	dMean := make([]float64, bsz)
	dVar := make([]float64, bsz)

	y := b.y[latent]
	mm := b.margMean[latent]
	mv := b.margVar[latent]
	for i := 0; i < bsz; i++ {
		dm, dv, _ := s.pointEstimates(y[i], mm[i], mv[i], b.iter, b.indices[i])
		dMean[i] = dm
		dVar[i] = dv
	}

	return reduceNaturalGradient(st, b, dMean, dVar)
}

// ExpectedLogLik estimates the summed expectation terms over the batch.
func (s *NumericalUpdateStrategy) ExpectedLogLik(st *NaturalParamState, b *minibatchView, latent int) (float64, error) {
	y := b.y[latent]
	mm := b.margMean[latent]
	mv := b.margVar[latent]

	total := 0.0
	for i := range y {
		_, _, e := s.pointEstimates(y[i], mm[i], mv[i], b.iter, b.indices[i])
		total += e
	}
	return total, nil
}

// pointEstimates returns (dMean, dVar, expectedLogLik) for one data point.
func (s *NumericalUpdateStrategy) pointEstimates(y, mean, variance float64, iter, index int) (float64, float64, float64) {
	if s.backend == IntegrationQuadrature {
		return s.quadraturePoint(y, mean, variance)
	}
	return s.monteCarloPoint(y, mean, variance, iter, index)
}

func (s *NumericalUpdateStrategy) quadraturePoint(y, mean, variance float64) (float64, float64, float64) {
	points, weights := s.quad.Points(mean, variance, nil, nil)

	var dMean, dVar, e float64
	for k, f := range points {
		w := weights[k]
		g := s.lik.GradLogDensity(y, f)
		dMean += w * g
		dVar += w * g * (f - mean)
		e += w * s.lik.LogDensity(y, f)
	}
	return dMean, dVar / (2 * variance), e
}

func (s *NumericalUpdateStrategy) monteCarloPoint(y, mean, variance float64, iter, index int) (float64, float64, float64) {
	// Index-addressable stream: the draw sequence for a data point depends
	// only on (seed, iteration, point index), so evaluation order across
	// points cannot change results.
	src := rand.NewPCG(s.seed+uint64(iter)*0x9E3779B97F4A7C15, uint64(index)+1)
	n := distuv.Normal{Mu: mean, Sigma: math.Sqrt(variance), Src: src}

	var dMean, dVar, e float64
	for k := 0; k < s.mcSamples; k++ {
		f := n.Rand()
		g := s.lik.GradLogDensity(y, f)
		dMean += g
		dVar += g * (f - mean)
		e += s.lik.LogDensity(y, f)
	}
	inv := 1 / float64(s.mcSamples)
	return dMean * inv, dVar * inv / (2 * variance), e * inv
}
