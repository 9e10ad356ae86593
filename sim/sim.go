// Package sim implements the simulation smoother: draws of states and disturbances
// from their joint distribution conditional on the observations.
package sim

import (
	"context"
	"fmt"
	"runtime"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/kalman/kf"
	"github.com/milosgajdos/go-statespace/matrix"
	"github.com/milosgajdos/go-statespace/model"
	"github.com/milosgajdos/go-statespace/noise"
	"github.com/milosgajdos/go-statespace/rnd"
	"github.com/milosgajdos/go-statespace/smooth/ks"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Smoother is a simulation smoother.
// Smoother holds read-only configuration and can be shared between goroutines.
type Smoother struct {
	// m is state space model
	m statespace.Representation
	// obs are observations draws are conditioned on
	obs *model.Observations
	// opts are filter and smoother options
	opts statespace.Options
	// f are disturbance covariance factors
	f *factors
	// log is run logger
	log logrus.FieldLogger
}

// New creates new simulation smoother of model m conditioned on observations obs and returns it.
// It returns statespace.ConfigError if obs do not match m or opts are invalid
// and statespace.NumericalError if the disturbance covariances can not be factorized.
func New(m statespace.Representation, obs *model.Observations, opts statespace.Options) (*Smoother, error) {
	if m == nil {
		return nil, &statespace.ConfigError{Op: "simulate", Msg: "nil model"}
	}

	kEndog, kStates, kPosdef := m.Dims()
	if kEndog <= 0 || kStates <= 0 || kPosdef <= 0 {
		return nil, &statespace.ConfigError{Op: "simulate", Msg: fmt.Sprintf("invalid model dimensions: [%d x %d x %d]", kEndog, kStates, kPosdef)}
	}

	if err := model.CheckObservations(m, obs); err != nil {
		return nil, err
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	opts = opts.WithDefaults()

	f, err := newFactors(m)
	if err != nil {
		return nil, err
	}

	return &Smoother{
		m:    m,
		obs:  obs,
		opts: opts,
		f:    f,
		log:  opts.Logger.WithField("component", "sim"),
	}, nil
}

// Model returns Smoother model
func (s *Smoother) Model() statespace.Representation {
	return s.m
}

// Observations returns observations the draws are conditioned on
func (s *Smoother) Observations() *model.Observations {
	return s.obs
}

// Run filters and smooths Smoother observations and returns the results
// the draws are computed from.
func (s *Smoother) Run() (*kf.Results, *ks.Results, error) {
	f, err := kf.New(s.m, s.opts)
	if err != nil {
		return nil, nil, err
	}

	fr, err := f.Run(s.obs)
	if err != nil {
		return nil, nil, fmt.Errorf("filter: %w", err)
	}

	k, err := ks.New(s.m, s.opts)
	if err != nil {
		return nil, nil, err
	}

	sr, err := k.Smooth(fr)
	if err != nil {
		return nil, nil, fmt.Errorf("smooth: %w", err)
	}

	return fr, sr, nil
}

// Simulate computes a single draw from filter results fr and smoother results sr of
// the Smoother observations using the given standard normal variates:
//
//  1. simulate states, disturbances and observations y+ of the unconditional model
//  2. filter and smooth y+ the same way fr and sr were computed
//  3. draw = simulated - smoothed(y+) + smoothed(y)
//
// disturbance holds nobs*k_endog measurement variates (time-major) followed by
// nobs*k_posdef state variates; initial holds k_states initial state variates.
// Identical variates produce identical draws.
// It returns statespace.ConfigError if the results or variates do not match the Smoother.
func (s *Smoother) Simulate(fr *kf.Results, sr *ks.Results, disturbance, initial []float64) (*Draw, error) {
	if fr == nil || fr.Arena() == nil || sr == nil {
		return nil, &statespace.ConfigError{Op: "simulate", Msg: "nil filter or smoother results"}
	}

	kEndog, kStates, kPosdef := s.m.Dims()
	_, n := s.obs.Dims()

	if fr.Nobs() != n || sr.Nobs() != n {
		return nil, &statespace.ConfigError{Op: "simulate", Msg: fmt.Sprintf("results have %d and %d steps, expected %d", fr.Nobs(), sr.Nobs(), n)}
	}

	if len(disturbance) != n*(kEndog+kPosdef) {
		return nil, &statespace.ConfigError{Op: "simulate", Matrix: "disturbance_variates", Msg: fmt.Sprintf("length %d, expected %d", len(disturbance), n*(kEndog+kPosdef))}
	}

	if len(initial) != kStates {
		return nil, &statespace.ConfigError{Op: "simulate", Matrix: "initial_state_variates", Msg: fmt.Sprintf("length %d, expected %d", len(initial), kStates)}
	}

	// the diffuse part of the initial state is left at its mean
	L, err := rnd.Factor(fr.PredictedStateCov(0))
	if err != nil {
		return nil, &statespace.NumericalError{Op: "simulate", T: 0, Matrix: "predicted_state_cov", Msg: err.Error()}
	}

	x0 := &mat.VecDense{}
	x0.MulVec(L, mat.NewVecDense(kStates, initial))
	x0.AddVec(x0, fr.PredictedState(0))

	plus, err := generate(s.m, s.f, x0, n, disturbance)
	if err != nil {
		return nil, err
	}

	obs, err := model.NewObservations(plus.obs, s.obs.Mask())
	if err != nil {
		return nil, err
	}

	srPlus, err := s.smooth(fr, sr, obs)
	if err != nil {
		return nil, err
	}

	return s.combine(sr, srPlus, plus)
}

// Draw computes a single draw reading the variates from src.
// Measurement and state variates are read first, initial state variates last.
func (s *Smoother) Draw(src noise.Source, fr *kf.Results, sr *ks.Results) (*Draw, error) {
	if src == nil {
		return nil, &statespace.ConfigError{Op: "simulate", Msg: "nil noise source"}
	}

	kEndog, kStates, kPosdef := s.m.Dims()
	_, n := s.obs.Dims()

	disturbance := src.Variates(make([]float64, n*(kEndog+kPosdef)))
	initial := src.Variates(make([]float64, kStates))

	return s.Simulate(fr, sr, disturbance, initial)
}

// DrawN computes n independent draws concurrently.
// Draw i reads its variates from standard Gaussian noise seeded with the i-th
// value of a generator seeded with seed, so the draws do not depend on scheduling.
// It returns the first error encountered or the context error if ctx is cancelled.
func (s *Smoother) DrawN(ctx context.Context, n int, seed uint64, fr *kf.Results, sr *ks.Results) ([]*Draw, error) {
	if n <= 0 {
		return nil, &statespace.ConfigError{Op: "simulate", Msg: fmt.Sprintf("invalid number of draws: %d", n)}
	}

	seeds := make([]uint64, n)
	gen := rand.New(rand.NewSource(seed))
	for i := range seeds {
		seeds[i] = gen.Uint64()
	}

	draws := make([]*Draw, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			src, err := noise.NewStandard(1, seeds[i])
			if err != nil {
				return err
			}

			d, err := s.Draw(src, fr, sr)
			if err != nil {
				return fmt.Errorf("draw %d: %w", i, err)
			}
			draws[i] = d

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"draws": n,
		"seed":  seed,
	}).Debug("simulation finished")

	return draws, nil
}

// smooth filters and smooths obs with the options fr and sr were computed with.
func (s *Smoother) smooth(fr *kf.Results, sr *ks.Results, obs *model.Observations) (*ks.Results, error) {
	opts := fr.Arena().Options
	opts.Filter = fr.Method()
	opts.FallbackUnivariate = false
	opts.Smooth = sr.Method()

	f, err := kf.New(s.m, opts)
	if err != nil {
		return nil, err
	}

	frPlus, err := f.Run(obs)
	if err != nil {
		return nil, fmt.Errorf("simulate: filter: %w", err)
	}

	k, err := ks.New(s.m, opts)
	if err != nil {
		return nil, err
	}

	srPlus, err := k.Smooth(frPlus)
	if err != nil {
		return nil, fmt.Errorf("simulate: smooth: %w", err)
	}

	return srPlus, nil
}

// combine returns plus - smoothed(plus) + smoothed(obs) for states and disturbances.
func (s *Smoother) combine(sr, srPlus *ks.Results, plus *Path) (*Draw, error) {
	kEndog, kStates, kPosdef := s.m.Dims()
	n := plus.Nobs()

	d := newDraw(kEndog, kStates, kPosdef, n)

	for t := 0; t < n; t++ {
		x := mat.VecDenseCopyOf(plus.state.ColView(t))
		x.SubVec(x, srPlus.SmoothedState(t))
		x.AddVec(x, sr.SmoothedState(t))

		eta := mat.VecDenseCopyOf(plus.eta.ColView(t))
		eta.SubVec(eta, srPlus.SmoothedStateDisturbance(t))
		eta.AddVec(eta, sr.SmoothedStateDisturbance(t))

		ePlus := mat.VecDenseCopyOf(plus.eps.ColView(t))

		var eps *mat.VecDense
		if sr.Space(t) == statespace.Observed && srPlus.Space(t) == statespace.Observed {
			eps = mat.VecDenseCopyOf(ePlus)
			eps.SubVec(eps, srPlus.SmoothedMeasurementDisturbance(t))
			eps.AddVec(eps, sr.SmoothedMeasurementDisturbance(t))
		} else {
			var err error
			if eps, err = s.residual(t, x, ePlus); err != nil {
				return nil, err
			}
		}

		setCol(d.state, t, x)
		setCol(d.eta, t, eta)
		setCol(d.eps, t, eps)
	}

	return d, nil
}

// residual returns measurement disturbance draw at time t given state draw x for
// steps whose smoothed disturbances are not in the observed space.
// Observed entries equal y - d - Z*x. Missing entries e_m are drawn conditional
// on the observed ones with G = H_mo*H_oo^-1:
//
//	e_m = e+_m + G*(e_o - e+_o)
func (s *Smoother) residual(t int, x, ePlus *mat.VecDense) (*mat.VecDense, error) {
	kEndog, _, _ := s.m.Dims()
	idx := s.obs.Present(t)

	out := mat.VecDenseCopyOf(ePlus)
	if len(idx) == 0 {
		return out, nil
	}

	fit, err := model.Observe(s.m, t, x, nil)
	if err != nil {
		return nil, err
	}

	diff := mat.NewVecDense(len(idx), nil)
	for i, j := range idx {
		y, _ := s.obs.Value(j, t)
		out.SetVec(j, y-fit.AtVec(j))
		diff.SetVec(i, out.AtVec(j)-ePlus.AtVec(j))
	}

	if len(idx) == kEndog {
		return out, nil
	}

	present := make([]bool, kEndog)
	for _, j := range idx {
		present[j] = true
	}
	var miss []int
	for j := 0; j < kEndog; j++ {
		if !present[j] {
			miss = append(miss, j)
		}
	}

	H := s.m.ObsCov(t)
	hmo := matrix.Block(H, miss, idx)
	if matrix.IsZero(hmo) {
		return out, nil
	}

	var ch mat.Cholesky
	if ok := ch.Factorize(matrix.SymSubset(H, idx)); !ok {
		return nil, &statespace.NumericalError{Op: "simulate", T: t, Matrix: "obs_cov", Msg: "observed block not positive definite"}
	}

	sol := &mat.VecDense{}
	if err := ch.SolveVecTo(sol, diff); err != nil {
		return nil, &statespace.NumericalError{Op: "simulate", T: t, Matrix: "obs_cov", Msg: err.Error()}
	}

	g := &mat.VecDense{}
	g.MulVec(hmo, sol)

	for i, j := range miss {
		out.SetVec(j, out.AtVec(j)+g.AtVec(i))
	}

	return out, nil
}
