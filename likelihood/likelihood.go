// Package likelihood provides observation models for Gaussian process
// inference.
//
// Each family exposes the pointwise log density and its gradient with respect
// to the latent function value, plus a capability tag telling the inference
// engine which update strategies apply. Families with closed-form expectation
// integrals additionally implement the Analytic interface; all others are
// integrated numerically by the engine.
package likelihood

// Capability describes which inference strategies a likelihood supports.
type Capability int

const (
	// AnalyticCompatible likelihoods admit closed-form expected
	// log-likelihood terms and conjugate natural-gradient updates.
	AnalyticCompatible Capability = iota

	// NumericallyIntegrable likelihoods have smooth one-dimensional log
	// densities suitable for quadrature or Monte Carlo integration.
	NumericallyIntegrable

	// SamplingOnly likelihoods can only be handled by MCMC over the joint.
	SamplingOnly
)

// String returns the name of the capability.
func (c Capability) String() string {
	switch c {
	case AnalyticCompatible:
		return "analytic"
	case NumericallyIntegrable:
		return "numerical"
	case SamplingOnly:
		return "sampling"
	default:
		return "unknown"
	}
}

// Likelihood is the black-box observation model consumed by the engine.
type Likelihood interface {
	// Name returns the family name, e.g. "Gaussian".
	Name() string

	// Capability reports the strongest strategy family this likelihood
	// supports. A capability implies all weaker ones: an analytic family is
	// also numerically integrable and samplable.
	Capability() Capability

	// LogDensity computes log p(y | f) for a single observation y and
	// latent function value f.
	LogDensity(y, f float64) float64

	// GradLogDensity computes d/df log p(y | f).
	GradLogDensity(y, f float64) float64
}

// Analytic is implemented by likelihoods with closed-form expectation terms
// under a Gaussian latent marginal N(mean, variance).
type Analytic interface {
	Likelihood

	// ExpectedLogLik computes E_q[log p(y | f)] for f ~ N(mean, variance).
	ExpectedLogLik(y, mean, variance float64) float64

	// GradExpectedLogLik computes the gradients of ExpectedLogLik with
	// respect to the latent mean and variance.
	GradExpectedLogLik(y, mean, variance float64) (dMean, dVar float64)
}
