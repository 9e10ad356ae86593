package kf

import (
	"errors"
	"fmt"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/internal/arena"
	"github.com/milosgajdos/go-statespace/matrix"
	"github.com/milosgajdos/go-statespace/model"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// KF is Kalman Filter for linear Gaussian state space models.
// KF holds read-only configuration and can be shared between goroutines:
// every Run allocates its own working buffers.
type KF struct {
	// m is state space model
	m statespace.Representation
	// opts are run options
	opts statespace.Options
	// log is run logger
	log logrus.FieldLogger
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - m:    state space model
//   - opts: filter options
//
// It returns statespace.ConfigError if either of the following conditions is met:
//   - invalid model is given: model dimensions must be positive integers
//   - invalid options are given
//   - collapsed filtering is requested for a model with k_endog <= k_states
func New(m statespace.Representation, opts statespace.Options) (*KF, error) {
	if m == nil {
		return nil, &statespace.ConfigError{Op: "filter", Msg: "nil model"}
	}

	kEndog, kStates, kPosdef := m.Dims()
	if kEndog <= 0 || kStates <= 0 || kPosdef <= 0 {
		return nil, &statespace.ConfigError{Op: "filter", Msg: fmt.Sprintf("invalid model dimensions: [%d x %d x %d]", kEndog, kStates, kPosdef)}
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.Collapsed && kEndog <= kStates {
		return nil, &statespace.ConfigError{
			Op:  "filter",
			Msg: fmt.Sprintf("collapsed filtering requires k_endog > k_states: %d <= %d", kEndog, kStates),
		}
	}

	opts = opts.WithDefaults()

	return &KF{
		m:    m,
		opts: opts,
		log:  opts.Logger.WithField("component", "kf"),
	}, nil
}

// Model returns KF model
func (k *KF) Model() statespace.Representation {
	return k.m
}

// Options returns KF options
func (k *KF) Options() statespace.Options {
	return k.opts
}

// Run runs the forward filter pass over observations obs and returns its results.
// It returns statespace.ConfigError if obs do not match the model and
// statespace.NumericalError if the recursion fails at some time step.
// When FallbackUnivariate is set a failed conventional pass is re-run univariate.
func (k *KF) Run(obs *model.Observations) (*Results, error) {
	if err := model.CheckObservations(k.m, obs); err != nil {
		return nil, err
	}

	a, err := k.run(obs, k.opts.Filter)
	if err != nil {
		var nerr *statespace.NumericalError
		if !errors.As(err, &nerr) || k.opts.Filter != statespace.FilterConventional || !k.opts.FallbackUnivariate {
			return nil, err
		}

		k.log.WithFields(logrus.Fields{
			"t":      nerr.T,
			"matrix": nerr.Matrix,
		}).Warn("conventional filter failed: falling back to univariate filter")

		a, err = k.run(obs, statespace.FilterUnivariate)
		if err != nil {
			return nil, err
		}
	}

	return &Results{a: a}, nil
}

func (k *KF) run(obs *model.Observations, method statespace.FilterMethod) (*arena.Arena, error) {
	_, nobs := obs.Dims()
	_, kStates, _ := k.m.Dims()

	a := &arena.Arena{
		Steps:   make([]arena.Step, nobs),
		Method:  method,
		Options: k.opts,
	}
	a.Options.Filter = method

	init := k.m.Init()
	x := mat.VecDenseCopyOf(init.State())
	P := matrix.CloneSym(init.Cov())

	var Pinf *mat.SymDense
	if dc := init.DiffuseCov(); dc != nil && matrix.MaxAbs(dc) > k.opts.DiffuseTolerance {
		Pinf = matrix.CloneSym(dc)
	}

	if k.opts.TimingInitFiltered {
		x, P, Pinf = k.predict(0, x, P, Pinf)
	}

	for t := 0; t < nobs; t++ {
		st := &a.Steps[t]
		st.Predicted = matrix.CloneVec(x)
		st.PredictedCov = matrix.CloneSym(P)
		st.PredictedDiffuseCov = matrix.CloneSym(Pinf)
		st.Present = obs.Present(t)

		b := newBlock(k.m, obs, t)

		var err error
		switch {
		case Pinf != nil:
			x, P, Pinf, err = k.diffuse(t, st, b, x, P, Pinf)
		case len(b.idx) == 0:
			k.missing(t, st)
		default:
			if k.opts.Collapsed && len(b.idx) > kStates {
				var adj float64
				if b, adj, err = k.collapse(t, b); err != nil {
					return nil, err
				}
				st.Space = statespace.Collapsed
				st.LogLikelihood += adj
			}
			switch method {
			case statespace.FilterUnivariate:
				x, P, err = k.univariate(t, st, b, x, P)
			default:
				x, P, err = k.joint(t, st, b, x, P)
			}
		}
		if err != nil {
			return nil, err
		}

		st.Filtered = matrix.CloneVec(x)
		st.FilteredCov = matrix.CloneSym(P)
		st.FilteredDiffuseCov = matrix.CloneSym(Pinf)

		x, P, Pinf = k.predict(t, x, P, Pinf)

		if Pinf != nil && matrix.MaxAbs(Pinf) <= k.opts.DiffuseTolerance {
			Pinf = nil
			a.DiffusePeriods = t + 1
			k.log.WithField("t", t).Debug("diffuse state covariance resolved")
		}
	}

	if Pinf != nil {
		a.DiffusePeriods = nobs
		k.log.WithField("nobs", nobs).Warn("diffuse state covariance not resolved within sample")
	}

	a.Predicted = x
	a.PredictedCov = P

	return a, nil
}

// predict propagates filtered moments at time t to time t+1:
//
//	a = c + T*a
//	P = T*P*T' + R*Q*R'
//	Pinf = T*Pinf*T'
func (k *KF) predict(t int, x *mat.VecDense, P, Pinf *mat.SymDense) (*mat.VecDense, *mat.SymDense, *mat.SymDense) {
	T := k.m.Transition(t)

	xNext := &mat.VecDense{}
	xNext.MulVec(T, x)
	xNext.AddVec(xNext, k.m.StateIntercept(t))

	pNext := matrix.Quad(T, P)
	pNext.AddSym(pNext, matrix.Quad(k.m.Selection(t), k.m.StateCov(t)))

	var pInfNext *mat.SymDense
	if Pinf != nil {
		pInfNext = matrix.Quad(T, Pinf)
	}

	return xNext, pNext, pInfNext
}

// missing records a step with no observed entries: filtered moments equal predicted ones.
func (k *KF) missing(t int, st *arena.Step) {
	kEndog, _, _ := k.m.Dims()
	st.Kind = arena.Missing
	st.Space = statespace.Observed

	st.Forecast = &mat.VecDense{}
	st.Forecast.MulVec(k.m.Design(t), st.Predicted)
	st.Forecast.AddVec(st.Forecast, k.m.ObsIntercept(t))
	st.ForecastError = matrix.NaNVec(kEndog)
	st.ForecastErrorCov = matrix.Quad(k.m.Design(t), st.PredictedCov)
	st.ForecastErrorCov.AddSym(st.ForecastErrorCov, k.m.ObsCov(t))
	st.StandardizedForecastError = matrix.NaNVec(kEndog)
}
