package inference

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/kernel"
	"github.com/ezoic/gpvi/pkg/errors"
	"github.com/ezoic/gpvi/pkg/log"
)

// KernelVarianceFloor is the smallest value a variance-type kernel
// coefficient may take during hyperparameter ascent. Flooring instead of
// clipping at zero avoids a degenerate zero-kernel singularity.
const KernelVarianceFloor = 1e-6

// SparseBatchInfo carries the minibatch quantities the sparse
// hyperparameter gradient needs beyond the inducing support.
type SparseBatchInfo struct {
	X     *mat.Dense // minibatch input rows
	Kappa *mat.Dense // b x m mapping for the minibatch
	Rho   float64

	// NoiseVariance enables the Gaussian slack-term gradient; zero when
	// the likelihood is not Gaussian.
	NoiseVariance float64
	NLatents      int
}

// HyperparameterGradient performs outer-loop ascent on kernel
// hyperparameters and, optionally, inducing-point locations. It runs at a
// coarser cadence than the variational updates and shares the optimizer
// abstraction of the update controller, with disjoint state.
type HyperparameterGradient struct {
	kern kernel.Kernel
	opt  Optimizer

	kernState *OptimizerState
	locState  *OptimizerState

	every             int
	optimizeLocations bool
	logger            log.Logger
}

// NewHyperparameterGradient creates the hyperparameter ascent step. every
// gives the iteration cadence (every Nth iteration); zero disables
// hyperparameter updates entirely.
func NewHyperparameterGradient(kern kernel.Kernel, opt Optimizer, every int, optimizeLocations bool, logger log.Logger) *HyperparameterGradient {
	return &HyperparameterGradient{
		kern:              kern,
		opt:               opt,
		kernState:         NewOptimizerState(len(kern.Params())),
		every:             every,
		optimizeLocations: optimizeLocations,
		logger:            logger,
	}
}

// Due reports whether iteration iter is a hyperparameter-update iteration.
func (h *HyperparameterGradient) Due(iter int) bool {
	return h.every > 0 && iter > 0 && iter%h.every == 0
}

// Step performs one ascent step on the kernel hyperparameters (and inducing
// locations, when enabled and sparse is non-nil). support holds the prior
// support points: the training inputs in the full-batch case, the inducing
// locations in the sparse case; it is mutated in place by a location step.
// The caller must recompute priors afterwards.
func (h *HyperparameterGradient) Step(states []*NaturalParamState, support *mat.Dense, sparse *SparseBatchInfo, iter int) error {
	m, _ := support.Dims()
	if len(states) == 0 {
		return errors.NewValueError("HyperparameterGradient.Step", "no latent states")
	}
	if states[0].Dim() != m {
		return errors.NewDimensionError("HyperparameterGradient.Step", states[0].Dim(), m, 0)
	}

	// M = K^-1 (Sigma + mu mu^T) K^-1 - K^-1, summed over latents. The
	// trace against dK/dtheta gives the bound's hyperparameter gradient.
	M, err := traceFactor(states)
	if err != nil {
		return err
	}

	params := h.kern.Params()
	grads := make([]float64, len(params))
	for p := range params {
		G := kernel.SymMatrixGrad(h.kern, support, p)
		grads[p] = 0.5 * symTraceProduct(M, G)
		if sparse != nil && sparse.NoiseVariance > 0 {
			grads[p] += h.slackGradient(support, sparse, p)
		}
	}
	if err := errors.CheckValues("hyperparameter_gradient", grads, iter); err != nil {
		return err
	}

	delta, err := h.opt.Step(h.kernState, grads)
	if err != nil {
		return err
	}
	for i := range params {
		params[i] += delta[i]
	}
	h.floorVariances(params)
	if err := h.kern.SetParams(params); err != nil {
		return err
	}

	if h.optimizeLocations && sparse != nil {
		if err := h.stepLocations(M, support, iter); err != nil {
			return err
		}
	}

	if h.logger != nil {
		h.logger.Debug("hyperparameters updated",
			log.IterationKey, iter,
			"params", params,
		)
	}
	return nil
}

// slackGradient computes the Gaussian-likelihood derivative of the sparse
// trace correction, - rho/(2 sigma^2) * sum_i d/dtheta [k_ii - q_ii], with
// q_ii = kappa_i K_mn,i. One copy per latent GP.
func (h *HyperparameterGradient) slackGradient(Z *mat.Dense, sparse *SparseBatchInfo, p int) float64 {
	b, _ := sparse.X.Dims()

	dKnm := kernel.MatrixGrad(h.kern, sparse.X, Z, p)
	dKmm := kernel.SymMatrixGrad(h.kern, Z, p)

	// kappa dKmm, reused across rows.
	var kdk mat.Dense
	kdk.Mul(sparse.Kappa, dKmm)

	total := 0.0
	for i := 0; i < b; i++ {
		xi := sparse.X.RawRowView(i)
		dkii := h.kern.EvalGradParam(xi, xi, p)

		// dq_ii = 2 dk_i . kappa_i - kappa_i dKmm kappa_i^T
		dq := 0.0
		m := Z.RawMatrix().Rows
		for a := 0; a < m; a++ {
			dq += 2*dKnm.At(i, a)*sparse.Kappa.At(i, a) - kdk.At(i, a)*sparse.Kappa.At(i, a)
		}
		total += dkii - dq
	}

	return -sparse.Rho / (2 * sparse.NoiseVariance) * total * float64(sparse.NLatents)
}

// stepLocations applies the trace formula to positional kernel derivatives
// and ascends the inducing locations in place.
func (h *HyperparameterGradient) stepLocations(M *mat.SymDense, Z *mat.Dense, iter int) error {
	m, d := Z.Dims()

	if h.locState == nil {
		h.locState = NewOptimizerState(m * d)
	}

	grads := make([]float64, m*d)
	for i := 0; i < m; i++ {
		zi := Z.RawRowView(i)
		for dim := 0; dim < d; dim++ {
			g := 0.0
			for b := 0; b < m; b++ {
				g += M.At(i, b) * h.kern.EvalGradX(zi, Z.RawRowView(b), dim)
			}
			grads[i*d+dim] = g
		}
	}
	if err := errors.CheckValues("inducing_gradient", grads, iter); err != nil {
		return err
	}

	delta, err := h.opt.Step(h.locState, grads)
	if err != nil {
		return err
	}
	for i := 0; i < m; i++ {
		for dim := 0; dim < d; dim++ {
			Z.Set(i, dim, Z.At(i, dim)+delta[i*d+dim])
		}
	}
	return nil
}

// floorVariances clamps amplitude parameters at the positive floor.
func (h *HyperparameterGradient) floorVariances(params []float64) {
	names := h.kern.ParamNames()
	for _, idx := range h.kern.VarianceParams() {
		if params[idx] < KernelVarianceFloor {
			params[idx] = KernelVarianceFloor
			errors.Warn(errors.NewDegenerateKernelWarning(names[idx], KernelVarianceFloor))
		}
	}
}

// traceFactor computes sum_j [K^-1 (Sigma_j + mu_j mu_j^T) K^-1 - K^-1].
func traceFactor(states []*NaturalParamState) (*mat.SymDense, error) {
	n := states[0].Dim()
	M := mat.NewSymDense(n, nil)

	for _, st := range states {
		_, kinv, err := st.priorFactors()
		if err != nil {
			return nil, err
		}

		// S = Sigma + mu mu^T (mean relative to the prior mean).
		S := mat.NewSymDense(n, nil)
		resid := mat.NewVecDense(n, nil)
		resid.SubVec(st.mean, st.priorMean)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				S.SetSym(i, j, st.cov.At(i, j)+resid.AtVec(i)*resid.AtVec(j))
			}
		}

		// K^-1 S K^-1 - K^-1
		var t1, t2 mat.Dense
		t1.Mul(kinv, S)
		t2.Mul(&t1, kinv)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				M.SetSym(i, j, M.At(i, j)+0.5*(t2.At(i, j)+t2.At(j, i))-kinv.At(i, j))
			}
		}
	}
	return M, nil
}

// symTraceProduct computes tr(A B) for symmetric A, B.
func symTraceProduct(A, B *mat.SymDense) float64 {
	n := A.SymmetricDim()
	tr := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			tr += A.At(i, j) * B.At(j, i)
		}
	}
	return tr
}
