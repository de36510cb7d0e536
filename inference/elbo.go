package inference

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/likelihood"
	"github.com/ezoic/gpvi/pkg/errors"
)

// ELBOTerms is the scalar breakdown of the variational lower bound for one
// evaluation. It is recomputed on request and never persisted.
type ELBOTerms struct {
	// ExpectedLogLik is rho * E_q[log p(y | f)] over the minibatch, with
	// the sparse conditional-variance slack stated separately where the
	// likelihood permits it.
	ExpectedLogLik float64

	// KL is the divergence KL(q(f) || p(f)) summed over latent GPs.
	KL float64

	// Correction is the sparse-approximation slack term, zero in the
	// full-batch case.
	Correction float64
}

// Value returns the bound: ExpectedLogLik - KL - Correction.
func (t ELBOTerms) Value() float64 {
	return t.ExpectedLogLik - t.KL - t.Correction
}

// ELBOAccumulator combines the expectation, KL and correction terms into the
// training objective. The bound is the sole externally observable
// convergence signal of the engine.
type ELBOAccumulator struct {
	lik likelihood.Likelihood
}

// NewELBOAccumulator creates an accumulator for the given likelihood.
func NewELBOAccumulator(lik likelihood.Likelihood) *ELBOAccumulator {
	return &ELBOAccumulator{lik: lik}
}

// Terms computes the bound breakdown for the current states and minibatch
// using the strategy's expectation estimates.
func (a *ELBOAccumulator) Terms(strategy UpdateStrategy, states []*NaturalParamState, b *minibatchView) (ELBOTerms, error) {
	var terms ELBOTerms

	for j, st := range states {
		e, err := strategy.ExpectedLogLik(st, b, j)
		if err != nil {
			return ELBOTerms{}, err
		}
		terms.ExpectedLogLik += b.rho * e

		kl, err := gaussianKL(st)
		if err != nil {
			return ELBOTerms{}, err
		}
		terms.KL += kl
	}

	// For the Gaussian likelihood the expectation is linear in the latent
	// variance, so the sparse slack folded into the marginals separates
	// into the Titsias trace term. Restate it as the explicit correction.
	if g, ok := a.lik.(*likelihood.Gaussian); ok && b.slack != nil {
		slackSum := 0.0
		for _, s := range b.slack {
			slackSum += s
		}
		corr := b.rho * slackSum / (2 * g.NoiseVariance()) * float64(len(states))
		terms.ExpectedLogLik += corr
		terms.Correction = corr
	}

	return terms, nil
}

// gaussianKL computes the closed-form KL divergence between the variational
// posterior N(mu, Sigma) and the GP prior N(mu0, K):
//
//	1/2 [ tr(K^-1 Sigma) + (mu-mu0)^T K^-1 (mu-mu0) - n + log|K| - log|Sigma| ]
func gaussianKL(st *NaturalParamState) (float64, error) {
	n := st.Dim()

	priorChol, kinv, err := st.priorFactors()
	if err != nil {
		return 0, err
	}

	var covChol mat.Cholesky
	if ok := covChol.Factorize(st.cov); !ok {
		return 0, errors.WithStack(errors.ErrNotPositiveDefinite)
	}

	// tr(K^-1 Sigma)
	trace := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			trace += kinv.At(i, j) * st.cov.At(j, i)
		}
	}

	resid := mat.NewVecDense(n, nil)
	resid.SubVec(st.mean, st.priorMean)
	tmp := mat.NewVecDense(n, nil)
	tmp.MulVec(kinv, resid)
	quad := mat.Dot(resid, tmp)

	kl := 0.5 * (trace + quad - float64(n) + priorChol.LogDet() - covChol.LogDet())
	return kl, nil
}
