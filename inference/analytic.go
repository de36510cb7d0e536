package inference

import (
	"github.com/ezoic/gpvi/likelihood"
	"github.com/ezoic/gpvi/pkg/errors"
)

// AnalyticUpdateStrategy uses the likelihood's closed-form expectation
// gradients to produce conjugate natural-gradient updates. It is only valid
// for likelihoods implementing likelihood.Analytic; compatibility is checked
// once at construction, never per iteration.
type AnalyticUpdateStrategy struct {
	lik likelihood.Analytic
}

// NewAnalyticUpdateStrategy creates the analytic strategy for a likelihood.
// Returns IncompatibleLikelihoodError if the likelihood has no closed-form
// conjugate update.
func NewAnalyticUpdateStrategy(lik likelihood.Likelihood) (*AnalyticUpdateStrategy, error) {
	analytic, ok := lik.(likelihood.Analytic)
	if !ok || lik.Capability() != likelihood.AnalyticCompatible {
		return nil, errors.NewIncompatibleLikelihoodError(lik.Name(), "analytic")
	}
	return &AnalyticUpdateStrategy{lik: analytic}, nil
}

// Name returns "analytic".
func (s *AnalyticUpdateStrategy) Name() string { return "analytic" }

// NaturalGradients computes the conjugate natural gradient for one latent GP.
func (s *AnalyticUpdateStrategy) NaturalGradients(st *NaturalParamState, b *minibatchView, latent int) (*NaturalGradient, error) {
	bsz := b.size()
	dMean := make([]float64, bsz)
	dVar := make([]float64, bsz)

	y := b.y[latent]
	mm := b.margMean[latent]
	mv := b.margVar[latent]
	for i := 0; i < bsz; i++ {
		dMean[i], dVar[i] = s.lik.GradExpectedLogLik(y[i], mm[i], mv[i])
	}

	return reduceNaturalGradient(st, b, dMean, dVar)
}

// ExpectedLogLik sums the exact per-point expectation terms over the batch.
func (s *AnalyticUpdateStrategy) ExpectedLogLik(st *NaturalParamState, b *minibatchView, latent int) (float64, error) {
	y := b.y[latent]
	mm := b.margMean[latent]
	mv := b.margVar[latent]

	total := 0.0
	for i := range y {
		total += s.lik.ExpectedLogLik(y[i], mm[i], mv[i])
	}
	return total, nil
}
