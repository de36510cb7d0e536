// Package inference implements variational inference for Gaussian process
// models.
//
// The engine maintains per-latent-GP variational parameters in both the
// moment parameterization (mean, covariance) and the exponential-family
// natural parameterization (eta1 = Cov^-1 mean, eta2 = -1/2 Cov^-1), performs
// ascent steps that keep the covariance positive-definite, computes the
// evidence lower bound used for monitoring and hyperparameter gradients, and
// dispatches across analytic, numerically integrated and sampling based
// update strategies.
package inference

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/pkg/errors"
)

// NaturalParamState holds the variational posterior of one latent GP
// function over its support points (training inputs in the full-batch case,
// inducing points in the sparse case).
//
// Invariant: the covariance stays symmetric positive-definite after every
// mutation, equivalently -2*eta2 stays positive-definite. The state is
// mutated only by the update controller; all other components read it.
type NaturalParamState struct {
	mean *mat.VecDense // mu
	cov  *mat.SymDense // Sigma
	eta1 *mat.VecDense // Sigma^-1 mu
	eta2 *mat.SymDense // -1/2 Sigma^-1

	priorMean *mat.VecDense // mu0
	priorCov  *mat.SymDense // K

	// Prior factorization cache, recomputed on demand after SetPrior.
	priorChol  mat.Cholesky
	priorInv   *mat.SymDense
	priorDirty bool

	n int
}

// NewNaturalParamState creates the state for one latent GP, initialized at
// the prior: mean = priorMean, covariance = priorCov.
func NewNaturalParamState(priorMean *mat.VecDense, priorCov *mat.SymDense) (*NaturalParamState, error) {
	n := priorCov.SymmetricDim()
	if priorMean.Len() != n {
		return nil, errors.NewDimensionError("NewNaturalParamState", n, priorMean.Len(), 0)
	}

	st := &NaturalParamState{
		mean:       mat.VecDenseCopyOf(priorMean),
		cov:        copySym(priorCov),
		priorMean:  mat.VecDenseCopyOf(priorMean),
		priorCov:   copySym(priorCov),
		priorDirty: true,
		n:          n,
	}

	if err := st.refreshNatural(); err != nil {
		return nil, errors.Wrap(err, "prior covariance is not positive definite")
	}
	return st, nil
}

// Dim returns the number of support points of this latent GP.
func (st *NaturalParamState) Dim() int { return st.n }

// Mean returns a copy of the posterior mean.
func (st *NaturalParamState) Mean() *mat.VecDense {
	return mat.VecDenseCopyOf(st.mean)
}

// Cov returns a copy of the posterior covariance.
func (st *NaturalParamState) Cov() *mat.SymDense {
	return copySym(st.cov)
}

// Eta1 returns a copy of the first natural parameter Sigma^-1 mu.
func (st *NaturalParamState) Eta1() *mat.VecDense {
	return mat.VecDenseCopyOf(st.eta1)
}

// Eta2 returns a copy of the second natural parameter -1/2 Sigma^-1.
func (st *NaturalParamState) Eta2() *mat.SymDense {
	return copySym(st.eta2)
}

// PriorMean returns a copy of the prior mean.
func (st *NaturalParamState) PriorMean() *mat.VecDense {
	return mat.VecDenseCopyOf(st.priorMean)
}

// PriorCov returns a copy of the prior covariance.
func (st *NaturalParamState) PriorCov() *mat.SymDense {
	return copySym(st.priorCov)
}

// SetPrior replaces the prior after a hyperparameter or inducing-location
// change and marks the cached factorization dirty. The variational posterior
// is left untouched.
func (st *NaturalParamState) SetPrior(priorMean *mat.VecDense, priorCov *mat.SymDense) error {
	if priorCov.SymmetricDim() != st.n {
		return errors.NewDimensionError("NaturalParamState.SetPrior", st.n, priorCov.SymmetricDim(), 0)
	}
	if priorMean.Len() != st.n {
		return errors.NewDimensionError("NaturalParamState.SetPrior", st.n, priorMean.Len(), 0)
	}
	st.priorMean.CopyVec(priorMean)
	st.priorCov.CopySym(priorCov)
	st.priorDirty = true
	return nil
}

// priorFactors returns the Cholesky factorization and inverse of the prior
// covariance, recomputing them if the prior changed since the last call.
func (st *NaturalParamState) priorFactors() (*mat.Cholesky, *mat.SymDense, error) {
	if st.priorDirty {
		if ok := st.priorChol.Factorize(st.priorCov); !ok {
			return nil, nil, errors.WithStack(errors.ErrNotPositiveDefinite)
		}
		if st.priorInv == nil {
			st.priorInv = mat.NewSymDense(st.n, nil)
		}
		if err := st.priorChol.InverseTo(st.priorInv); err != nil {
			return nil, nil, errors.Wrap(err, "prior covariance inverse")
		}
		st.priorDirty = false
	}
	return &st.priorChol, st.priorInv, nil
}

// precision returns Sigma^-1, which the state carries exactly as -2*eta2.
func (st *NaturalParamState) precision() *mat.SymDense {
	prec := mat.NewSymDense(st.n, nil)
	for i := 0; i < st.n; i++ {
		for j := i; j < st.n; j++ {
			prec.SetSym(i, j, -2*st.eta2.At(i, j))
		}
	}
	return prec
}

// refreshNatural recomputes (eta1, eta2) from the current (mean, cov).
func (st *NaturalParamState) refreshNatural() error {
	var chol mat.Cholesky
	if ok := chol.Factorize(st.cov); !ok {
		return errors.WithStack(errors.ErrNotPositiveDefinite)
	}

	prec := mat.NewSymDense(st.n, nil)
	if err := chol.InverseTo(prec); err != nil {
		return errors.Wrap(err, "covariance inverse")
	}

	if st.eta1 == nil {
		st.eta1 = mat.NewVecDense(st.n, nil)
		st.eta2 = mat.NewSymDense(st.n, nil)
	}
	st.eta1.MulVec(prec, st.mean)
	for i := 0; i < st.n; i++ {
		for j := i; j < st.n; j++ {
			st.eta2.SetSym(i, j, -0.5*prec.At(i, j))
		}
	}
	return nil
}

// setFromNatural installs new natural parameters and derives (mean, cov)
// from them. The precision -2*eta2 must be positive-definite; the caller is
// expected to have verified feasibility, so a factorization failure here is
// an error, not a back-off signal.
func (st *NaturalParamState) setFromNatural(eta1 *mat.VecDense, eta2 *mat.SymDense) error {
	prec := mat.NewSymDense(st.n, nil)
	for i := 0; i < st.n; i++ {
		for j := i; j < st.n; j++ {
			prec.SetSym(i, j, -2*eta2.At(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(prec); !ok {
		return errors.WithStack(errors.ErrNotPositiveDefinite)
	}

	cov := mat.NewSymDense(st.n, nil)
	if err := chol.InverseTo(cov); err != nil {
		return errors.Wrap(err, "precision inverse")
	}

	st.eta1.CopyVec(eta1)
	st.eta2.CopySym(eta2)
	st.cov.CopySym(cov)
	st.mean.MulVec(cov, eta1)
	return nil
}

// setMoments installs new moment parameters directly. The covariance must be
// positive-definite.
func (st *NaturalParamState) setMoments(mean *mat.VecDense, cov *mat.SymDense) error {
	old := copySym(st.cov)
	st.mean.CopyVec(mean)
	st.cov.CopySym(cov)
	if err := st.refreshNatural(); err != nil {
		st.cov.CopySym(old)
		return err
	}
	return nil
}

// setMeanFromEta1 applies a mean-only update: eta1 is replaced and the mean
// recomputed against the unchanged covariance. Used when the covariance step
// was skipped by the back-off.
func (st *NaturalParamState) setMeanFromEta1(eta1 *mat.VecDense) {
	st.eta1.CopyVec(eta1)
	st.mean.MulVec(st.cov, eta1)
}

func copySym(s *mat.SymDense) *mat.SymDense {
	n := s.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(s)
	return out
}
