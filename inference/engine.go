// Package inference implements variational inference for Gaussian process
// models with non-conjugate likelihoods.
//
// The central object is the Engine, which maintains one NaturalParamState per
// latent GP and iterates natural-gradient ascent on the ELBO. Expectation
// terms come from an UpdateStrategy chosen by the likelihood's capability:
// closed form for conjugate families, Gauss-Hermite quadrature or Monte Carlo
// for smooth non-conjugate ones, and MCMC over the joint as a mutually
// exclusive fallback. Sparse models place the variational state on inducing
// points and map it to data through kappa = K_nm K_mm^-1.
package inference

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/gpvi/core/model"
	"github.com/ezoic/gpvi/kernel"
	"github.com/ezoic/gpvi/likelihood"
	"github.com/ezoic/gpvi/pkg/errors"
	"github.com/ezoic/gpvi/pkg/log"
)

// StrategyKind selects how expectation terms are computed.
type StrategyKind int

const (
	// StrategyAuto picks the strongest strategy the likelihood supports.
	StrategyAuto StrategyKind = iota
	// StrategyAnalytic uses closed-form conjugate updates.
	StrategyAnalytic
	// StrategyQuadrature uses Gauss-Hermite quadrature.
	StrategyQuadrature
	// StrategyMonteCarlo uses reparameterized Monte Carlo draws.
	StrategyMonteCarlo
	// StrategySampling bypasses the variational bound and runs MCMC over
	// the joint density.
	StrategySampling
)

// String returns the strategy name.
func (k StrategyKind) String() string {
	switch k {
	case StrategyAuto:
		return "auto"
	case StrategyAnalytic:
		return "analytic"
	case StrategyQuadrature:
		return "quadrature"
	case StrategyMonteCarlo:
		return "monte-carlo"
	case StrategySampling:
		return "sampling"
	default:
		return "unknown"
	}
}

// Default engine settings.
const (
	DefaultMaxIter         = 1000
	DefaultTol             = 1e-6
	DefaultLearningRate    = 0.1
	DefaultConvergeWindow  = 5
	DefaultHyperUpdateRate = 0

	// priorJitter is added to the prior covariance diagonal to keep the
	// Cholesky factorization of near-degenerate kernels feasible.
	priorJitter = 1e-8
)

// InducingSelector chooses m inducing locations from the training inputs.
type InducingSelector interface {
	Select(X *mat.Dense, m int) (*mat.Dense, error)
}

// Diagnostics summarizes a finished fit.
type Diagnostics struct {
	Iterations        int
	Converged         bool
	FinalELBO         float64
	SkippedCovUpdates int
	DurationMs        int64

	// Sampling-mode counters; zero for variational fits.
	AcceptanceRate float64
	DivergentCount int
}

// Engine fits Gaussian process models by natural-gradient variational
// inference. Construct with NewEngine, configure with options, then call Fit.
type Engine struct {
	state  *model.StateManager
	logger log.Logger

	kern kernel.Kernel
	lik  likelihood.Likelihood

	kind      StrategyKind
	quadOrder int
	mcSamples int

	optimizer    string
	learningRate float64
	natural      bool

	batchSize int
	maxIter   int
	tol       float64
	window    int

	hyperEvery        int
	optimizeLocations bool

	inducing    *mat.Dense
	inducingSel InducingSelector
	nInducing   int

	sampling SamplingConfig

	seed uint64

	// Fitted artifacts.
	latents  []*NaturalParamState
	support  *mat.Dense
	sparse   bool
	trainX   *mat.Dense
	trainY   [][]float64
	history  []ELBOTerms
	diag     Diagnostics
	strategy UpdateStrategy
	sampler  *SamplingUpdateStrategy
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy forces a strategy kind instead of auto-selection.
func WithStrategy(kind StrategyKind) Option {
	return func(e *Engine) { e.kind = kind }
}

// WithQuadratureOrder sets the Gauss-Hermite order.
func WithQuadratureOrder(order int) Option {
	return func(e *Engine) { e.quadOrder = order }
}

// WithMonteCarloSamples sets the number of reparameterized draws per point.
func WithMonteCarloSamples(n int) Option {
	return func(e *Engine) { e.mcSamples = n }
}

// WithOptimizer selects the step-size schedule, "sgd" or "adam".
func WithOptimizer(name string) Option {
	return func(e *Engine) { e.optimizer = name }
}

// WithLearningRate sets the base learning rate.
func WithLearningRate(lr float64) Option {
	return func(e *Engine) { e.learningRate = lr }
}

// WithBatchSize enables minibatching with the given batch size. Requires a
// sparse model; ignored otherwise.
func WithBatchSize(b int) Option {
	return func(e *Engine) { e.batchSize = b }
}

// WithMaxIter sets the iteration budget.
func WithMaxIter(n int) Option {
	return func(e *Engine) { e.maxIter = n }
}

// WithTol sets the ELBO-change convergence tolerance.
func WithTol(tol float64) Option {
	return func(e *Engine) { e.tol = tol }
}

// WithInducingPoints places the variational state on the given m x d
// locations instead of the training inputs.
func WithInducingPoints(Z *mat.Dense) Option {
	return func(e *Engine) { e.inducing = Z }
}

// WithInducingSelector selects m inducing locations from the training
// inputs at fit time.
func WithInducingSelector(sel InducingSelector, m int) Option {
	return func(e *Engine) {
		e.inducingSel = sel
		e.nInducing = m
	}
}

// WithHyperUpdateEvery enables kernel hyperparameter ascent every n
// iterations; zero disables it.
func WithHyperUpdateEvery(n int) Option {
	return func(e *Engine) { e.hyperEvery = n }
}

// WithInducingLocationAscent also optimizes inducing locations during
// hyperparameter updates.
func WithInducingLocationAscent(enabled bool) Option {
	return func(e *Engine) { e.optimizeLocations = enabled }
}

// WithNaturalGradients toggles between natural-coordinate and moment-space
// updates. Natural coordinates are the default.
func WithNaturalGradients(enabled bool) Option {
	return func(e *Engine) { e.natural = enabled }
}

// WithSamplingConfig overrides the MCMC settings used by StrategySampling.
func WithSamplingConfig(cfg SamplingConfig) Option {
	return func(e *Engine) { e.sampling = cfg }
}

// WithRandomState seeds all random draws, making fits reproducible.
func WithRandomState(seed uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

// WithLoggerProvider routes engine logs through the given provider.
func WithLoggerProvider(p log.LoggerProvider) Option {
	return func(e *Engine) { e.logger = p.GetLoggerWithName("inference.engine") }
}

// NewEngine creates an inference engine for the given kernel and likelihood.
// Likelihood-strategy incompatibilities are rejected here, at configuration
// time, never deferred to Fit.
func NewEngine(kern kernel.Kernel, lik likelihood.Likelihood, opts ...Option) (*Engine, error) {
	if kern == nil {
		return nil, errors.NewValueError("NewEngine", "kernel must not be nil")
	}
	if lik == nil {
		return nil, errors.NewValueError("NewEngine", "likelihood must not be nil")
	}

	e := &Engine{
		state:        model.NewStateManager(),
		logger:       log.NewZerologProvider(log.LevelInfo).GetLoggerWithName("inference.engine"),
		kern:         kern,
		lik:          lik,
		kind:         StrategyAuto,
		quadOrder:    DefaultQuadratureOrder,
		mcSamples:    DefaultMonteCarloSamples,
		optimizer:    "sgd",
		learningRate: DefaultLearningRate,
		natural:      true,
		maxIter:      DefaultMaxIter,
		tol:          DefaultTol,
		window:       DefaultConvergeWindow,
		hyperEvery:   DefaultHyperUpdateRate,
		sampling:     DefaultSamplingConfig(),
		seed:         1,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.kind == StrategyAuto {
		e.kind = autoStrategy(lik)
	}
	if err := checkCompatibility(lik, e.kind); err != nil {
		return nil, err
	}
	if e.learningRate <= 0 {
		return nil, errors.NewValidationError("learning_rate", "must be positive", e.learningRate)
	}
	if e.maxIter < 1 {
		return nil, errors.NewValidationError("max_iter", "must be positive", e.maxIter)
	}
	return e, nil
}

// autoStrategy picks the strongest applicable strategy for a likelihood.
func autoStrategy(lik likelihood.Likelihood) StrategyKind {
	switch lik.Capability() {
	case likelihood.AnalyticCompatible:
		if _, ok := lik.(likelihood.Analytic); ok {
			return StrategyAnalytic
		}
		return StrategyQuadrature
	case likelihood.NumericallyIntegrable:
		return StrategyQuadrature
	default:
		return StrategySampling
	}
}

// checkCompatibility rejects likelihood-strategy pairings that cannot work.
func checkCompatibility(lik likelihood.Likelihood, kind StrategyKind) error {
	c := lik.Capability()
	switch kind {
	case StrategyAnalytic:
		if _, ok := lik.(likelihood.Analytic); !ok || c != likelihood.AnalyticCompatible {
			return errors.NewIncompatibleLikelihoodError(lik.Name(), kind.String())
		}
	case StrategyQuadrature, StrategyMonteCarlo:
		if c == likelihood.SamplingOnly {
			return errors.NewIncompatibleLikelihoodError(lik.Name(), kind.String())
		}
	}
	return nil
}

// Fit runs inference on inputs X (n x d) and targets Y, one column per
// latent GP.
func (e *Engine) Fit(X, Y *mat.Dense) error {
	return e.FitContext(context.Background(), X, Y)
}

// FitContext is Fit with cancellation; the context is checked between
// iterations so a cancelled fit leaves the last consistent state in place.
func (e *Engine) FitContext(ctx context.Context, X, Y *mat.Dense) error {
	start := time.Now()
	if err := e.prepare(X, Y); err != nil {
		return err
	}

	var err error
	if e.kind == StrategySampling {
		err = e.fitSampling(ctx)
	} else {
		err = e.fitVariational(ctx)
	}
	if err != nil {
		return err
	}

	e.diag.DurationMs = time.Since(start).Milliseconds()
	n, d := X.Dims()
	e.state.SetDimensions(d, n)
	e.state.SetLatents(len(e.latents))
	e.state.SetFitted()

	e.logger.Info("fit complete",
		log.SamplesKey, n,
		log.FeaturesKey, d,
		log.LatentsKey, len(e.latents),
		log.IterationKey, e.diag.Iterations,
		log.ELBOKey, e.diag.FinalELBO,
		log.DurationMsKey, e.diag.DurationMs,
		"converged", e.diag.Converged,
	)
	return nil
}

// prepare validates inputs, resolves the support set and initializes one
// state per latent GP at the prior.
func (e *Engine) prepare(X, Y *mat.Dense) error {
	if X == nil || Y == nil {
		return errors.WithStack(errors.ErrEmptyData)
	}
	n, _ := X.Dims()
	yn, nl := Y.Dims()
	if n == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if yn != n {
		return errors.NewDimensionError("Fit", n, yn, 0)
	}
	_, d := X.Dims()
	if err := errors.CheckMatrix("Fit", X, n, d, 0); err != nil {
		return err
	}
	if err := errors.CheckMatrix("Fit", Y, yn, nl, 0); err != nil {
		return err
	}

	e.trainX = X
	e.trainY = make([][]float64, nl)
	for j := 0; j < nl; j++ {
		col := make([]float64, n)
		mat.Col(col, j, Y)
		e.trainY[j] = col
	}

	// Resolve the support set: training inputs, explicit inducing
	// locations, or selector output.
	e.support = X
	e.sparse = false
	if e.inducing != nil {
		e.support = mat.DenseCopyOf(e.inducing)
		e.sparse = true
	} else if e.inducingSel != nil {
		if e.nInducing < 1 || e.nInducing > n {
			return errors.NewValidationError("n_inducing", "must be in [1, n]", e.nInducing)
		}
		Z, err := e.inducingSel.Select(X, e.nInducing)
		if err != nil {
			return err
		}
		e.support = Z
		e.sparse = true
	}
	if e.sparse {
		m, d := e.support.Dims()
		_, xd := X.Dims()
		if d != xd {
			return errors.NewDimensionError("Fit", xd, d, 1)
		}
		if m > n {
			return errors.NewValidationError("inducing_points", "more inducing points than data", m)
		}
	}
	if e.kind == StrategySampling && e.sparse {
		return errors.NewValidationError("strategy", "sampling does not support inducing points", e.kind.String())
	}

	K, err := e.priorCov()
	if err != nil {
		return err
	}
	m := K.SymmetricDim()
	mu0 := mat.NewVecDense(m, nil)

	e.latents = make([]*NaturalParamState, nl)
	for j := 0; j < nl; j++ {
		st, err := NewNaturalParamState(mu0, K)
		if err != nil {
			return err
		}
		e.latents[j] = st
	}

	e.history = e.history[:0]
	e.diag = Diagnostics{}
	return nil
}

// priorCov evaluates the kernel on the support set with diagonal jitter.
func (e *Engine) priorCov() (*mat.SymDense, error) {
	K := kernel.SymMatrix(e.kern, e.support)
	m := K.SymmetricDim()
	for i := 0; i < m; i++ {
		K.SetSym(i, i, K.At(i, i)+priorJitter)
	}
	if err := errors.CheckMatrix("priorCov", K, m, m, 0); err != nil {
		return nil, err
	}
	return K, nil
}

// fitVariational runs the natural-gradient ascent loop.
func (e *Engine) fitVariational(ctx context.Context) error {
	n, _ := e.trainX.Dims()
	nl := len(e.latents)
	dim := e.latents[0].Dim()

	strategy, err := e.buildStrategy()
	if err != nil {
		return err
	}
	e.strategy = strategy

	batch := n
	if e.sparse && e.batchSize > 0 && e.batchSize < n {
		batch = e.batchSize
	}
	rng := rand.New(rand.NewPCG(e.seed, 0xda3e39cb94b95bdb))
	selector, err := NewMinibatchSelector(n, batch, rng)
	if err != nil {
		return err
	}

	opt, err := e.buildOptimizer()
	if err != nil {
		return err
	}
	controller := NewGlobalUpdateController(opt, e.natural, e.logger)

	optStates := make([]*OptimizerState, nl)
	for j := range optStates {
		optStates[j] = NewOptimizerState(OptimizerStateSize(dim))
	}

	var hyper *HyperparameterGradient
	if e.hyperEvery > 0 {
		hopt, herr := e.buildOptimizer()
		if herr != nil {
			return herr
		}
		hyper = NewHyperparameterGradient(e.kern, hopt, e.hyperEvery, e.optimizeLocations && e.sparse, e.logger)
	}

	accumulator := NewELBOAccumulator(e.lik)
	accum := NewGradientAccumulator(nl)
	flat := 0 // consecutive iterations with ELBO change below tol

	for iter := 0; iter < e.maxIter; iter++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		view, err := e.makeView(selector, iter)
		if err != nil {
			return err
		}

		accum.Reset()
		for j := 0; j < nl; j++ {
			g, err := strategy.NaturalGradients(e.latents[j], view, j)
			if err != nil {
				return err
			}
			accum.Set(j, g)
		}
		for j := 0; j < nl; j++ {
			if err := controller.Apply(e.latents[j], accum.Get(j), optStates[j], iter, j); err != nil {
				return err
			}
		}

		if hyper != nil && hyper.Due(iter) {
			if err := e.hyperStep(hyper, view, iter); err != nil {
				return err
			}
		}

		// The marginals in the view predate this iteration's updates;
		// refresh so the recorded bound describes the current posterior.
		if err := e.refreshView(view); err != nil {
			return err
		}

		terms, err := accumulator.Terms(strategy, e.latents, view)
		if err != nil {
			return err
		}
		e.history = append(e.history, terms)
		e.diag.Iterations = iter + 1

		if e.logger.Enabled(ctx, log.LevelDebug) {
			e.logger.Debug("iteration",
				log.IterationKey, iter,
				log.ELBOKey, terms.Value(),
				"expected_loglik", terms.ExpectedLogLik,
				"kl", terms.KL,
			)
		}

		if len(e.history) >= 2 {
			prev := e.history[len(e.history)-2].Value()
			if math.Abs(terms.Value()-prev) < e.tol {
				flat++
			} else {
				flat = 0
			}
			if flat >= e.window {
				e.diag.Converged = true
				break
			}
		}
	}

	if !e.diag.Converged {
		errors.Warn(errors.NewConvergenceWarning("natural-gradient-vi", e.diag.Iterations, "iteration budget exhausted before ELBO flattened"))
	}
	if len(e.history) > 0 {
		e.diag.FinalELBO = e.history[len(e.history)-1].Value()
	}
	e.diag.SkippedCovUpdates = controller.SkippedCovUpdates()
	return nil
}

// buildStrategy instantiates the configured update strategy.
func (e *Engine) buildStrategy() (UpdateStrategy, error) {
	switch e.kind {
	case StrategyAnalytic:
		return NewAnalyticUpdateStrategy(e.lik)
	case StrategyQuadrature:
		return NewNumericalUpdateStrategy(e.lik, IntegrationQuadrature, e.quadOrder, e.mcSamples, e.seed)
	case StrategyMonteCarlo:
		return NewNumericalUpdateStrategy(e.lik, IntegrationMonteCarlo, e.quadOrder, e.mcSamples, e.seed)
	default:
		return nil, errors.NewValidationError("strategy", "not a variational strategy", e.kind.String())
	}
}

// buildOptimizer instantiates the configured step-size schedule.
func (e *Engine) buildOptimizer() (Optimizer, error) {
	switch e.optimizer {
	case "sgd":
		return NewSGD(e.learningRate)
	case "adam":
		return NewAdam(e.learningRate)
	default:
		return nil, errors.NewValidationError("optimizer", "unknown optimizer", e.optimizer)
	}
}

// makeView assembles the per-iteration minibatch view: selected rows, the
// kappa mapping and slack in the sparse case, and the latent marginals at
// the selected rows for every latent GP.
func (e *Engine) makeView(selector *MinibatchSelector, iter int) (*minibatchView, error) {
	indices := selector.Next()
	bsz := len(indices)
	nl := len(e.latents)

	view := &minibatchView{
		indices:  indices,
		rho:      selector.Rho(),
		iter:     iter,
		y:        make([][]float64, nl),
		margMean: make([][]float64, nl),
		margVar:  make([][]float64, nl),
	}
	for j := 0; j < nl; j++ {
		yb := make([]float64, bsz)
		for i, idx := range indices {
			yb[i] = e.trainY[j][idx]
		}
		view.y[j] = yb
	}

	if err := e.refreshView(view); err != nil {
		return nil, err
	}
	return view, nil
}

// refreshView recomputes the marginal moments of an existing view, plus the
// kappa mapping and slack in the sparse case, from the current latent states
// and prior. The recorded ELBO must describe a single posterior, so the view
// is refreshed again after the iteration's updates before the bound is
// evaluated.
func (e *Engine) refreshView(view *minibatchView) error {
	indices := view.indices
	bsz := len(indices)

	if !e.sparse {
		for j, st := range e.latents {
			mm := make([]float64, bsz)
			mv := make([]float64, bsz)
			for i := 0; i < bsz; i++ {
				mm[i] = st.mean.AtVec(i)
				mv[i] = st.cov.At(i, i)
			}
			view.margMean[j] = mm
			view.margVar[j] = mv
		}
		return nil
	}

	m := e.latents[0].Dim()
	_, d := e.trainX.Dims()
	Xb := mat.NewDense(bsz, d, nil)
	for i, idx := range indices {
		Xb.SetRow(i, e.trainX.RawRowView(idx))
	}

	chol, _, err := e.latents[0].priorFactors()
	if err != nil {
		return err
	}

	Knm := kernel.Matrix(e.kern, Xb, e.support)
	var sol mat.Dense
	if err := chol.SolveTo(&sol, Knm.T()); err != nil {
		return errors.Wrap(err, "kappa solve failed")
	}
	kappa := mat.NewDense(bsz, m, nil)
	kappa.Copy(sol.T())
	view.kappa = kappa

	// slack_i = k(x_i, x_i) - kappa_i . k_mi, clamped at zero.
	slack := make([]float64, bsz)
	for i := 0; i < bsz; i++ {
		xi := Xb.RawRowView(i)
		q := 0.0
		for c := 0; c < m; c++ {
			q += kappa.At(i, c) * Knm.At(i, c)
		}
		s := e.kern.Eval(xi, xi) - q
		if s < 0 {
			s = 0
		}
		slack[i] = s
	}
	view.slack = slack

	for j, st := range e.latents {
		mm := make([]float64, bsz)
		mv := make([]float64, bsz)
		tmp := mat.NewVecDense(m, nil)
		for i := 0; i < bsz; i++ {
			row := kappa.RawRowView(i)
			kv := mat.NewVecDense(m, row)
			mm[i] = mat.Dot(kv, st.mean)
			tmp.MulVec(st.cov, kv)
			mv[i] = mat.Dot(kv, tmp) + slack[i]
		}
		view.margMean[j] = mm
		view.margVar[j] = mv
	}
	return nil
}

// hyperStep runs one hyperparameter ascent step and refreshes the priors.
func (e *Engine) hyperStep(hyper *HyperparameterGradient, view *minibatchView, iter int) error {
	var sparse *SparseBatchInfo
	if e.sparse {
		bsz := view.size()
		_, d := e.trainX.Dims()
		Xb := mat.NewDense(bsz, d, nil)
		for i, idx := range view.indices {
			Xb.SetRow(i, e.trainX.RawRowView(idx))
		}
		noise := 0.0
		if g, ok := e.lik.(*likelihood.Gaussian); ok {
			noise = g.NoiseVariance()
		}
		sparse = &SparseBatchInfo{
			X:             Xb,
			Kappa:         view.kappa,
			Rho:           view.rho,
			NoiseVariance: noise,
			NLatents:      len(e.latents),
		}
	}

	support := e.support
	if !e.sparse {
		// Location ascent never applies here; pass a copy so a
		// misconfiguration cannot mutate the caller's inputs.
		support = mat.DenseCopyOf(e.trainX)
	}
	if err := hyper.Step(e.latents, support, sparse, iter); err != nil {
		return err
	}
	if e.sparse {
		e.support = support
	}

	K, err := e.priorCov()
	if err != nil {
		return err
	}
	mu0 := mat.NewVecDense(K.SymmetricDim(), nil)
	for _, st := range e.latents {
		if err := st.SetPrior(mu0, K); err != nil {
			return err
		}
	}
	return nil
}

// fitSampling runs the MCMC fallback and installs the empirical posterior
// moments into the latent states.
func (e *Engine) fitSampling(ctx context.Context) error {
	rng := rand.New(rand.NewPCG(e.seed, 0x9e3779b97f4a7c15))
	sampler, err := NewSamplingUpdateStrategy(e.sampling, e.lik, e.latents, e.trainY, rng, e.logger)
	if err != nil {
		return err
	}
	e.sampler = sampler

	if err := sampler.Run(ctx); err != nil {
		return err
	}

	for j, st := range e.latents {
		mean, cov, err := sampler.SampleMoments(j)
		if err != nil {
			return err
		}
		if err := st.setMoments(mean, cov); err != nil {
			return err
		}
	}

	e.diag.Iterations = sampler.draws
	e.diag.Converged = sampler.Phase() == PhaseTerminal
	e.diag.AcceptanceRate = sampler.AcceptanceRate()
	e.diag.DivergentCount = sampler.DivergentCount()
	return nil
}

// ELBOHistory returns the per-iteration ELBO decomposition of the last fit.
func (e *Engine) ELBOHistory() []ELBOTerms { return e.history }

// Diagnostics returns counters from the last fit.
func (e *Engine) Diagnostics() Diagnostics { return e.diag }

// Sampler returns the MCMC sampler of a sampling-mode fit, nil otherwise.
func (e *Engine) Sampler() *SamplingUpdateStrategy { return e.sampler }

// PosteriorMean returns the posterior mean over the support set for one
// latent GP.
func (e *Engine) PosteriorMean(latent int) (*mat.VecDense, error) {
	if err := e.state.RequireFitted(); err != nil {
		return nil, errors.NewNotFittedError("Engine", "PosteriorMean")
	}
	if latent < 0 || latent >= len(e.latents) {
		return nil, errors.NewValidationError("latent", "out of range", latent)
	}
	return e.latents[latent].Mean(), nil
}

// PosteriorCov returns the posterior covariance over the support set for one
// latent GP.
func (e *Engine) PosteriorCov(latent int) (*mat.SymDense, error) {
	if err := e.state.RequireFitted(); err != nil {
		return nil, errors.NewNotFittedError("Engine", "PosteriorCov")
	}
	if latent < 0 || latent >= len(e.latents) {
		return nil, errors.NewValidationError("latent", "out of range", latent)
	}
	return e.latents[latent].Cov(), nil
}

// InducingLocations returns the (possibly optimized) inducing locations of a
// sparse fit, nil for a full model.
func (e *Engine) InducingLocations() *mat.Dense {
	if !e.sparse {
		return nil
	}
	return mat.DenseCopyOf(e.support)
}

// Predict computes the latent predictive mean and variance at new inputs,
// one column per latent GP.
func (e *Engine) Predict(Xstar *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	if err := e.state.RequireFitted(); err != nil {
		return nil, nil, errors.NewNotFittedError("Engine", "Predict")
	}
	if Xstar == nil {
		return nil, nil, errors.WithStack(errors.ErrEmptyData)
	}
	ns, d := Xstar.Dims()
	nf, _ := e.state.GetDimensions()
	if d != nf {
		return nil, nil, errors.NewDimensionError("Predict", nf, d, 1)
	}

	m := e.latents[0].Dim()
	nl := len(e.latents)

	chol, _, err := e.latents[0].priorFactors()
	if err != nil {
		return nil, nil, err
	}

	Ksm := kernel.Matrix(e.kern, Xstar, e.support)
	var sol mat.Dense
	if err := chol.SolveTo(&sol, Ksm.T()); err != nil {
		return nil, nil, errors.Wrap(err, "predictive solve failed")
	}
	kappa := mat.NewDense(ns, m, nil)
	kappa.Copy(sol.T())

	means := mat.NewDense(ns, nl, nil)
	vars := mat.NewDense(ns, nl, nil)
	tmp := mat.NewVecDense(m, nil)

	for i := 0; i < ns; i++ {
		xi := Xstar.RawRowView(i)
		kv := mat.NewVecDense(m, kappa.RawRowView(i))

		// Conditional-prior slack at the prediction point.
		q := 0.0
		for c := 0; c < m; c++ {
			q += kappa.At(i, c) * Ksm.At(i, c)
		}
		slack := e.kern.Eval(xi, xi) - q
		if slack < 0 {
			slack = 0
		}

		for j, st := range e.latents {
			means.Set(i, j, mat.Dot(kv, st.mean))
			tmp.MulVec(st.cov, kv)
			vars.Set(i, j, mat.Dot(kv, tmp)+slack)
		}
	}
	return means, vars, nil
}

// IsFitted reports whether Fit has completed successfully.
func (e *Engine) IsFitted() bool { return e.state.IsFitted() }
