package inference

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/pkg/errors"
	"github.com/ezoic/gpvi/pkg/log"
)

// MinBackoffAlpha is the smallest step multiplier the covariance back-off
// will try before giving up the covariance update for the iteration.
const MinBackoffAlpha = 1e-8

// GlobalUpdateController applies optimizer steps to a latent GP's
// parameters. The mean part of the step always applies; the covariance part
// goes through a halving line search on the step multiplier so the resulting
// covariance stays symmetric positive-definite, verified by a Cholesky
// feasibility test. If no multiplier at or above MinBackoffAlpha is feasible
// the covariance update is skipped for the iteration, a non-fatal warning is
// raised, and training continues with the updated mean only.
//
// The controller is the sole writer of NaturalParamState: an iteration's
// update either applies wholly (with its alpha-shrunk covariance step) or
// leaves the covariance untouched.
type GlobalUpdateController struct {
	opt     Optimizer
	natural bool // step in (eta1, eta2) when true, (mu, Sigma) otherwise
	logger  log.Logger

	skippedCov int
	warnEvery  int
}

// NewGlobalUpdateController creates a controller using the given ascent
// rule. When natural is true, steps are taken in the natural coordinates;
// otherwise the same gradient pair is applied to the moment coordinates.
func NewGlobalUpdateController(opt Optimizer, natural bool, logger log.Logger) *GlobalUpdateController {
	return &GlobalUpdateController{
		opt:       opt,
		natural:   natural,
		logger:    logger,
		warnEvery: 50,
	}
}

// SkippedCovUpdates returns how many covariance updates were abandoned by
// the back-off so far. A run that skips on every iteration is misconfigured.
func (c *GlobalUpdateController) SkippedCovUpdates() int { return c.skippedCov }

// Apply executes one controller update for a latent GP.
func (c *GlobalUpdateController) Apply(st *NaturalParamState, g *NaturalGradient, ostate *OptimizerState, iter, latent int) error {
	n := st.Dim()
	if g.Eta1.Len() != n {
		return errors.NewDimensionError("GlobalUpdateController.Apply", n, g.Eta1.Len(), 0)
	}
	if g.Eta2.SymmetricDim() != n {
		return errors.NewDimensionError("GlobalUpdateController.Apply", n, g.Eta2.SymmetricDim(), 0)
	}

	flat := flattenGradient(g, n)
	if err := errors.CheckValues("controller_step", flat, iter); err != nil {
		return err
	}

	delta, err := c.opt.Step(ostate, flat)
	if err != nil {
		return err
	}
	d1, d2 := unflattenStep(delta, n)

	if c.natural {
		return c.applyNatural(st, d1, d2, iter, latent)
	}
	return c.applyMoments(st, d1, d2, iter, latent)
}

// applyNatural steps (eta1, eta2), validating feasibility of the implied
// precision -2*(eta2 + alpha*d2).
func (c *GlobalUpdateController) applyNatural(st *NaturalParamState, d1 *mat.VecDense, d2 *mat.SymDense, iter, latent int) error {
	n := st.Dim()

	eta1 := mat.NewVecDense(n, nil)
	eta1.AddVec(st.eta1, d1)

	eta2 := mat.NewSymDense(n, nil)
	prec := mat.NewSymDense(n, nil)
	var chol mat.Cholesky

	for alpha := 1.0; alpha >= MinBackoffAlpha; alpha /= 2 {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				eta2.SetSym(i, j, st.eta2.At(i, j)+alpha*d2.At(i, j))
				prec.SetSym(i, j, -2*eta2.At(i, j))
			}
		}
		if chol.Factorize(prec) {
			return st.setFromNatural(eta1, eta2)
		}
	}

	c.skipCovariance(iter, latent)
	st.setMeanFromEta1(eta1)
	return nil
}

// applyMoments steps (mu, Sigma) directly, validating feasibility of
// Sigma + alpha*d2.
func (c *GlobalUpdateController) applyMoments(st *NaturalParamState, d1 *mat.VecDense, d2 *mat.SymDense, iter, latent int) error {
	n := st.Dim()

	mean := mat.NewVecDense(n, nil)
	mean.AddVec(st.mean, d1)

	cov := mat.NewSymDense(n, nil)
	var chol mat.Cholesky

	for alpha := 1.0; alpha >= MinBackoffAlpha; alpha /= 2 {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				cov.SetSym(i, j, st.cov.At(i, j)+alpha*d2.At(i, j))
			}
		}
		if chol.Factorize(cov) {
			return st.setMoments(mean, cov)
		}
	}

	c.skipCovariance(iter, latent)
	st.mean.CopyVec(mean)
	return st.refreshNatural()
}

func (c *GlobalUpdateController) skipCovariance(iter, latent int) {
	c.skippedCov++
	if c.skippedCov == 1 || c.skippedCov%c.warnEvery == 0 {
		w := errors.NewPosDefBackoffWarning(latent, iter, MinBackoffAlpha)
		errors.Warn(w)
		if c.logger != nil {
			c.logger.Warn("covariance update skipped",
				log.IterationKey, iter,
				"latent", latent,
				"skipped_total", c.skippedCov,
			)
		}
	}
}

// flattenGradient packs (eta1, eta2) into one vector: the n mean-side
// entries followed by the n*(n+1)/2 upper-triangle covariance-side entries.
func flattenGradient(g *NaturalGradient, n int) []float64 {
	flat := make([]float64, n+n*(n+1)/2)
	for i := 0; i < n; i++ {
		flat[i] = g.Eta1.AtVec(i)
	}
	k := n
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			flat[k] = g.Eta2.At(i, j)
			k++
		}
	}
	return flat
}

func unflattenStep(delta []float64, n int) (*mat.VecDense, *mat.SymDense) {
	d1 := mat.NewVecDense(n, delta[:n])
	d2 := mat.NewSymDense(n, nil)
	k := n
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d2.SetSym(i, j, delta[k])
			k++
		}
	}
	return d1, d2
}

// OptimizerStateSize returns the flattened parameter length the controller
// uses for a latent GP with n support points.
func OptimizerStateSize(n int) int {
	return n + n*(n+1)/2
}
