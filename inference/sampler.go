package inference

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ezoic/gpvi/likelihood"
	"github.com/ezoic/gpvi/pkg/errors"
	"github.com/ezoic/gpvi/pkg/log"
)

// SamplerPhase is the state of the sampling run.
type SamplerPhase int

const (
	// PhaseBurnIn discards draws and tunes the step size.
	PhaseBurnIn SamplerPhase = iota
	// PhaseSampling retains every k-th draw into the store.
	PhaseSampling
	// PhaseTerminal holds the collected samples; Step is a no-op.
	PhaseTerminal
)

// String returns the phase name.
func (p SamplerPhase) String() string {
	switch p {
	case PhaseBurnIn:
		return "burn-in"
	case PhaseSampling:
		return "sampling"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// SamplerKind selects the transition kernel.
type SamplerKind int

const (
	// SamplerHMC uses leapfrog-integrated Hamiltonian trajectories.
	SamplerHMC SamplerKind = iota
	// SamplerGibbs uses Metropolis-within-Gibbs sweeps over latent
	// coordinates with prior conditionals as proposals.
	SamplerGibbs
)

// SamplingConfig is the configuration surface of the sampling strategy.
type SamplingConfig struct {
	Kind          SamplerKind
	BurnIn        int     // discarded adaptation draws
	NumSamples    int     // retained draws before the run terminates
	Thinning      int     // keep every Thinning-th draw
	LeapfrogSteps int     // HMC trajectory length
	StepSize      float64 // initial leapfrog step size
	TargetAccept  float64 // step-size adaptation target
}

// DefaultSamplingConfig returns the defaults used by the engine.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Kind:          SamplerHMC,
		BurnIn:        200,
		NumSamples:    500,
		Thinning:      2,
		LeapfrogSteps: 10,
		StepSize:      0.05,
		TargetAccept:  0.75,
	}
}

// SamplingUpdateStrategy draws samples from the true joint
// likelihood x GP prior instead of optimizing a bound. It is an alternative,
// mutually exclusive mode that bypasses the natural-gradient path entirely.
//
// Transitions follow the state machine burn-in -> sampling -> terminal. A
// trajectory producing a non-finite energy is rejected and the previous
// state retained, never propagated as a failure.
type SamplingUpdateStrategy struct {
	cfg SamplingConfig
	lik likelihood.Likelihood

	// prior support: one state per latent GP supplies (mu0, K).
	states []*NaturalParamState
	y      [][]float64

	f     []*mat.VecDense // current position per latent GP
	phase SamplerPhase

	stepSize  float64
	draws     int // total transitions attempted
	sinceKeep int

	accepted  int
	rejected  int
	divergent int

	store [][]*mat.VecDense // retained draws, store[s][latent]

	rng    *rand.Rand
	logger log.Logger
}

// NewSamplingUpdateStrategy creates a sampler over the joint density of the
// given latent states and targets. y[latent][i] aligns with the state
// support points.
func NewSamplingUpdateStrategy(cfg SamplingConfig, lik likelihood.Likelihood, states []*NaturalParamState, y [][]float64, rng *rand.Rand, logger log.Logger) (*SamplingUpdateStrategy, error) {
	if len(states) == 0 {
		return nil, errors.NewValueError("NewSamplingUpdateStrategy", "no latent states")
	}
	if len(y) != len(states) {
		return nil, errors.NewDimensionError("NewSamplingUpdateStrategy", len(states), len(y), 0)
	}
	n := states[0].Dim()
	for j := range y {
		if len(y[j]) != n {
			return nil, errors.NewDimensionError("NewSamplingUpdateStrategy", n, len(y[j]), 0)
		}
	}
	if cfg.Thinning < 1 {
		cfg.Thinning = 1
	}
	if cfg.NumSamples < 1 {
		return nil, errors.NewValidationError("num_samples", "must be positive", cfg.NumSamples)
	}
	if cfg.Kind == SamplerHMC {
		if cfg.StepSize <= 0 {
			return nil, errors.NewValidationError("step_size", "must be positive", cfg.StepSize)
		}
		if cfg.LeapfrogSteps < 1 {
			return nil, errors.NewValidationError("leapfrog_steps", "must be positive", cfg.LeapfrogSteps)
		}
	}

	s := &SamplingUpdateStrategy{
		cfg:      cfg,
		lik:      lik,
		states:   states,
		y:        y,
		stepSize: cfg.StepSize,
		rng:      rng,
		logger:   logger,
		store:    make([][]*mat.VecDense, 0, cfg.NumSamples),
	}
	s.f = make([]*mat.VecDense, len(states))
	for j, st := range states {
		s.f[j] = st.PriorMean()
	}
	if cfg.BurnIn <= 0 {
		s.phase = PhaseSampling
	}
	return s, nil
}

// Phase returns the current state of the run.
func (s *SamplingUpdateStrategy) Phase() SamplerPhase { return s.phase }

// AcceptanceRate returns the fraction of accepted proposals so far.
func (s *SamplingUpdateStrategy) AcceptanceRate() float64 {
	total := s.accepted + s.rejected
	if total == 0 {
		return 0
	}
	return float64(s.accepted) / float64(total)
}

// DivergentCount returns the number of rejected non-finite trajectories.
func (s *SamplingUpdateStrategy) DivergentCount() int { return s.divergent }

// StepSize returns the current (possibly adapted) leapfrog step size.
func (s *SamplingUpdateStrategy) StepSize() float64 { return s.stepSize }

// Samples returns the retained draws: Samples()[s][latent] is one latent
// vector. The slice aliases internal storage and must not be mutated.
func (s *SamplingUpdateStrategy) Samples() [][]*mat.VecDense { return s.store }

// Run advances the state machine to completion, checking for cancellation
// between transitions.
func (s *SamplingUpdateStrategy) Run(ctx context.Context) error {
	for s.phase != PhaseTerminal {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step performs one transition: a Hamiltonian trajectory or one Gibbs
// sweep, followed by phase bookkeeping.
func (s *SamplingUpdateStrategy) Step() error {
	if s.phase == PhaseTerminal {
		return nil
	}

	var err error
	switch s.cfg.Kind {
	case SamplerHMC:
		err = s.hmcTransition()
	case SamplerGibbs:
		err = s.gibbsSweep()
	default:
		err = errors.NewValidationError("kind", "unknown sampler kind", s.cfg.Kind)
	}
	if err != nil {
		return err
	}

	s.draws++
	switch s.phase {
	case PhaseBurnIn:
		if s.draws >= s.cfg.BurnIn {
			s.phase = PhaseSampling
			s.sinceKeep = 0
			if s.logger != nil {
				s.logger.Info("burn-in complete",
					"draws", s.draws,
					"step_size", s.stepSize,
					"acceptance_rate", s.AcceptanceRate(),
				)
			}
		}
	case PhaseSampling:
		s.sinceKeep++
		if s.sinceKeep >= s.cfg.Thinning {
			s.sinceKeep = 0
			s.keep()
			if len(s.store) >= s.cfg.NumSamples {
				s.phase = PhaseTerminal
			}
		}
	}
	return nil
}

// keep retains a copy of the current position in the store.
func (s *SamplingUpdateStrategy) keep() {
	draw := make([]*mat.VecDense, len(s.f))
	for j := range s.f {
		draw[j] = mat.VecDenseCopyOf(s.f[j])
	}
	s.store = append(s.store, draw)
}

// hmcTransition runs one leapfrog trajectory with a Metropolis correction.
func (s *SamplingUpdateStrategy) hmcTransition() error {
	n := s.states[0].Dim()
	nl := len(s.states)

	// Fresh unit-mass momenta.
	p := make([]*mat.VecDense, nl)
	kinetic0 := 0.0
	for j := 0; j < nl; j++ {
		pj := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			v := s.rng.NormFloat64()
			pj.SetVec(i, v)
			kinetic0 += 0.5 * v * v
		}
		p[j] = pj
	}

	logp0, err := s.logJoint(s.f)
	if err != nil {
		return err
	}
	h0 := -logp0 + kinetic0

	// Leapfrog.
	q := make([]*mat.VecDense, nl)
	for j := range s.f {
		q[j] = mat.VecDenseCopyOf(s.f[j])
	}
	grad, err := s.gradLogJoint(q)
	if err != nil {
		return err
	}
	eps := s.stepSize
	for step := 0; step < s.cfg.LeapfrogSteps; step++ {
		for j := 0; j < nl; j++ {
			p[j].AddScaledVec(p[j], eps/2, grad[j])
			q[j].AddScaledVec(q[j], eps, p[j])
		}
		grad, err = s.gradLogJoint(q)
		if err != nil {
			return err
		}
		for j := 0; j < nl; j++ {
			p[j].AddScaledVec(p[j], eps/2, grad[j])
		}
	}

	logp1, err := s.logJoint(q)
	if err != nil {
		return err
	}
	kinetic1 := 0.0
	for j := 0; j < nl; j++ {
		for i := 0; i < n; i++ {
			v := p[j].AtVec(i)
			kinetic1 += 0.5 * v * v
		}
	}
	h1 := -logp1 + kinetic1

	if math.IsNaN(h1) || math.IsInf(h1, 0) {
		s.divergent++
		s.rejected++
		errors.Warn(errors.NewDivergentTrajectoryWarning(s.draws, h1))
		s.adapt(0)
		return nil
	}

	acceptProb := math.Min(1, math.Exp(h0-h1))
	if s.rng.Float64() < acceptProb {
		for j := range q {
			s.f[j].CopyVec(q[j])
		}
		s.accepted++
	} else {
		s.rejected++
	}
	s.adapt(acceptProb)
	return nil
}

// adapt tunes the step size toward the target acceptance rate during
// burn-in with a decaying Robbins-Monro schedule.
func (s *SamplingUpdateStrategy) adapt(acceptProb float64) {
	if s.phase != PhaseBurnIn || s.cfg.Kind != SamplerHMC {
		return
	}
	rate := 1.0 / math.Sqrt(float64(s.draws+1))
	s.stepSize *= math.Exp(rate * (acceptProb - s.cfg.TargetAccept))
}

// gibbsSweep performs one Metropolis-within-Gibbs pass over all latent
// coordinates, proposing from the prior conditional and correcting with the
// likelihood ratio.
func (s *SamplingUpdateStrategy) gibbsSweep() error {
	n := s.states[0].Dim()

	for j, st := range s.states {
		_, prec, err := st.priorFactors()
		if err != nil {
			return err
		}
		fj := s.f[j]
		mu0 := st.priorMean

		for i := 0; i < n; i++ {
			pii := prec.At(i, i)
			if pii <= 0 {
				return errors.WithStack(errors.ErrNotPositiveDefinite)
			}

			// Prior conditional of coordinate i given the rest.
			cross := 0.0
			for k := 0; k < n; k++ {
				if k == i {
					continue
				}
				cross += prec.At(i, k) * (fj.AtVec(k) - mu0.AtVec(k))
			}
			condMean := mu0.AtVec(i) - cross/pii
			condSD := math.Sqrt(1 / pii)

			proposal := condMean + condSD*s.rng.NormFloat64()
			cur := fj.AtVec(i)

			logRatio := s.lik.LogDensity(s.y[j][i], proposal) - s.lik.LogDensity(s.y[j][i], cur)
			if math.IsNaN(logRatio) {
				s.divergent++
				s.rejected++
				errors.Warn(errors.NewDivergentTrajectoryWarning(s.draws, logRatio))
				continue
			}
			if logRatio >= 0 || s.rng.Float64() < math.Exp(logRatio) {
				fj.SetVec(i, proposal)
				s.accepted++
			} else {
				s.rejected++
			}
		}
	}
	return nil
}

// logJoint computes log p(y | f) + sum_j log N(f_j; mu0, K).
func (s *SamplingUpdateStrategy) logJoint(f []*mat.VecDense) (float64, error) {
	n := s.states[0].Dim()
	total := 0.0

	for j, st := range s.states {
		chol, kinv, err := st.priorFactors()
		if err != nil {
			return 0, err
		}

		fj := f[j]
		for i := 0; i < n; i++ {
			total += s.lik.LogDensity(s.y[j][i], fj.AtVec(i))
		}

		resid := mat.NewVecDense(n, nil)
		resid.SubVec(fj, st.priorMean)
		tmp := mat.NewVecDense(n, nil)
		tmp.MulVec(kinv, resid)
		total += -0.5*mat.Dot(resid, tmp) - 0.5*chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
	}
	return total, nil
}

// gradLogJoint computes, per latent GP, the likelihood score plus the prior
// contribution -K^-1 (f - mu0).
func (s *SamplingUpdateStrategy) gradLogJoint(f []*mat.VecDense) ([]*mat.VecDense, error) {
	n := s.states[0].Dim()
	grads := make([]*mat.VecDense, len(s.states))

	for j, st := range s.states {
		_, kinv, err := st.priorFactors()
		if err != nil {
			return nil, err
		}

		fj := f[j]
		g := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			g.SetVec(i, s.lik.GradLogDensity(s.y[j][i], fj.AtVec(i)))
		}

		resid := mat.NewVecDense(n, nil)
		resid.SubVec(fj, st.priorMean)
		pull := mat.NewVecDense(n, nil)
		pull.MulVec(kinv, resid)
		g.SubVec(g, pull)
		grads[j] = g
	}
	return grads, nil
}

// SampleMoments returns the empirical mean and covariance of the retained
// draws for one latent GP.
func (s *SamplingUpdateStrategy) SampleMoments(latent int) (*mat.VecDense, *mat.SymDense, error) {
	if latent < 0 || latent >= len(s.states) {
		return nil, nil, errors.NewValidationError("latent", "out of range", latent)
	}
	if len(s.store) == 0 {
		return nil, nil, errors.NewValueError("SampleMoments", "no samples collected")
	}

	n := s.states[0].Dim()
	ns := len(s.store)

	cols := make([][]float64, n)
	for i := range cols {
		cols[i] = make([]float64, ns)
	}
	for t, draw := range s.store {
		for i := 0; i < n; i++ {
			cols[i][t] = draw[latent].AtVec(i)
		}
	}

	mean := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		mean.SetVec(i, stat.Mean(cols[i], nil))
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, stat.Covariance(cols[i], cols[j], nil))
		}
	}
	return mean, cov, nil
}
