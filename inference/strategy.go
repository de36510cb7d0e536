package inference

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/pkg/errors"
)

// NaturalGradient is the ascent direction for one latent GP in the natural
// coordinates (eta1, eta2).
type NaturalGradient struct {
	Eta1 *mat.VecDense
	Eta2 *mat.SymDense
}

// GradientAccumulator maps latent-GP index to its natural gradient for the
// current iteration. It is owned by the iteration and reset before reuse.
type GradientAccumulator struct {
	grads []*NaturalGradient
}

// NewGradientAccumulator creates an accumulator for nLatents latent GPs.
func NewGradientAccumulator(nLatents int) *GradientAccumulator {
	return &GradientAccumulator{grads: make([]*NaturalGradient, nLatents)}
}

// Set stores the gradient for a latent GP.
func (a *GradientAccumulator) Set(latent int, g *NaturalGradient) {
	a.grads[latent] = g
}

// Get returns the gradient for a latent GP, nil if not set this iteration.
func (a *GradientAccumulator) Get(latent int) *NaturalGradient {
	return a.grads[latent]
}

// Reset discards all gradients.
func (a *GradientAccumulator) Reset() {
	for i := range a.grads {
		a.grads[i] = nil
	}
}

// minibatchView carries the per-iteration quantities shared by the update
// strategies: the selected rows, the minibatch-to-full-data scale, the
// sparse kappa mapping and the latent marginals at the selected rows.
type minibatchView struct {
	indices []int
	rho     float64
	iter    int

	// kappa is the b x m mapping K_nm K_mm^-1 from inducing posterior to
	// minibatch latent values; nil in the full-batch (non-sparse) case,
	// where it acts as the identity.
	kappa *mat.Dense

	// slack is the per-point conditional-variance slack diag(K_nn - Q_nn),
	// zero in the full-batch case.
	slack []float64

	// Per latent GP: targets and latent marginal moments at the selected
	// rows. margVar includes the sparse slack.
	y        [][]float64
	margMean [][]float64
	margVar  [][]float64
}

func (b *minibatchView) size() int { return len(b.indices) }

// UpdateStrategy computes natural gradients and expected log-likelihood
// terms for one latent GP given the current minibatch.
type UpdateStrategy interface {
	// Name returns the strategy name for logging and errors.
	Name() string

	// NaturalGradients computes the ascent direction in (eta1, eta2) for
	// the given latent GP.
	NaturalGradients(st *NaturalParamState, b *minibatchView, latent int) (*NaturalGradient, error)

	// ExpectedLogLik computes (an estimate of) sum_i E_q[log p(y_i | f_i)]
	// over the minibatch for the given latent GP, unscaled by rho.
	ExpectedLogLik(st *NaturalParamState, b *minibatchView, latent int) (float64, error)
}

// reduceNaturalGradient folds per-point expectation gradients into the
// natural-gradient direction. The natural gradient in (eta1, eta2) is the
// ELBO gradient in the mean parameters (mu, Sigma + mu mu^T), which gives
// target-minus-current directions in both coordinates:
//
//	grad eta1 = rho * kappa^T (dMean - 2 diag(dVar) kappa mu) + K^-1 mu0 - eta1
//	grad eta2 = rho * kappa^T diag(dVar) kappa - 1/2 K^-1 - eta2
//
// with kappa = I and rho = 1 in the full-batch case. A unit step from any
// state therefore lands on the conjugate fixed point when one exists.
func reduceNaturalGradient(st *NaturalParamState, b *minibatchView, dMean, dVar []float64) (*NaturalGradient, error) {
	n := st.Dim()
	bsz := b.size()
	if len(dMean) != bsz || len(dVar) != bsz {
		return nil, errors.NewDimensionError("reduceNaturalGradient", bsz, len(dMean), 0)
	}

	_, kinv, err := st.priorFactors()
	if err != nil {
		return nil, err
	}

	prec := st.precision()

	// Target-minus-current pull in eta1: K^-1 mu0 - Sigma^-1 mu.
	pull := mat.NewVecDense(n, nil)
	pull.MulVec(kinv, st.priorMean)
	cur := mat.NewVecDense(n, nil)
	cur.MulVec(prec, st.mean)
	pull.SubVec(pull, cur)

	g1 := mat.NewVecDense(n, nil)
	g2 := mat.NewSymDense(n, nil)

	if b.kappa == nil {
		if bsz != n {
			return nil, errors.NewDimensionError("reduceNaturalGradient", n, bsz, 0)
		}
		for i := 0; i < n; i++ {
			g1.SetVec(i, b.rho*(dMean[i]-2*dVar[i]*st.mean.AtVec(i))+pull.AtVec(i))
		}
		for i := 0; i < n; i++ {
			g2.SetSym(i, i, b.rho*dVar[i]-0.5*(kinv.At(i, i)-prec.At(i, i)))
			for j := i + 1; j < n; j++ {
				g2.SetSym(i, j, -0.5*(kinv.At(i, j)-prec.At(i, j)))
			}
		}
		return &NaturalGradient{Eta1: g1, Eta2: g2}, nil
	}

	kr, kc := b.kappa.Dims()
	if kr != bsz || kc != n {
		return nil, errors.NewDimensionError("reduceNaturalGradient", bsz, kr, 0)
	}

	// kappa^T (dMean - 2 diag(dVar) kappa mu).
	km := mat.NewVecDense(bsz, nil)
	km.MulVec(b.kappa, st.mean)
	adj := mat.NewVecDense(bsz, nil)
	for i := 0; i < bsz; i++ {
		adj.SetVec(i, dMean[i]-2*dVar[i]*km.AtVec(i))
	}
	g1.MulVec(b.kappa.T(), adj)
	g1.ScaleVec(b.rho, g1)
	g1.AddVec(g1, pull)

	// kappa^T diag(dVar) kappa via row-scaled copy.
	scaled := mat.NewDense(bsz, n, nil)
	for i := 0; i < bsz; i++ {
		for j := 0; j < n; j++ {
			scaled.Set(i, j, dVar[i]*b.kappa.At(i, j))
		}
	}
	var lik mat.Dense
	lik.Mul(b.kappa.T(), scaled)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (lik.At(i, j) + lik.At(j, i)) // symmetrize roundoff
			g2.SetSym(i, j, b.rho*v-0.5*(kinv.At(i, j)-prec.At(i, j)))
		}
	}

	return &NaturalGradient{Eta1: g1, Eta2: g2}, nil
}
