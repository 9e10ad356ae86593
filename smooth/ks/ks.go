package ks

import (
	"fmt"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/internal/arena"
	"github.com/milosgajdos/go-statespace/kalman/kf"
	"github.com/milosgajdos/go-statespace/matrix"
	"github.com/milosgajdos/go-statespace/model"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// KS is Kalman smoother for linear Gaussian state space models.
// KS holds read-only configuration and can be shared between goroutines.
type KS struct {
	// m is state space model
	m statespace.Representation
	// opts are smoother options
	opts statespace.Options
	// log is run logger
	log logrus.FieldLogger
}

// New creates new KS and returns it.
// It returns statespace.ConfigError if the model dimensions or options are invalid.
func New(m statespace.Representation, opts statespace.Options) (*KS, error) {
	if m == nil {
		return nil, &statespace.ConfigError{Op: "smooth", Msg: "nil model"}
	}

	kEndog, kStates, kPosdef := m.Dims()
	if kEndog <= 0 || kStates <= 0 || kPosdef <= 0 {
		return nil, &statespace.ConfigError{Op: "smooth", Msg: fmt.Sprintf("invalid model dimensions: [%d x %d x %d]", kEndog, kStates, kPosdef)}
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	opts = opts.WithDefaults()

	return &KS{
		m:    m,
		opts: opts,
		log:  opts.Logger.WithField("component", "ks"),
	}, nil
}

// Run filters observations obs and smooths the filter output.
func Run(m statespace.Representation, obs *model.Observations, opts statespace.Options) (*Results, error) {
	f, err := kf.New(m, opts)
	if err != nil {
		return nil, err
	}

	fr, err := f.Run(obs)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	s, err := New(m, opts)
	if err != nil {
		return nil, err
	}

	return s.Smooth(fr)
}

// Model returns KS model
func (s *KS) Model() statespace.Representation {
	return s.m
}

// Options returns KS options
func (s *KS) Options() statespace.Options {
	return s.opts
}

// Smooth runs backward smoothing pass over filter results fr and returns smoothed results.
// It returns statespace.ConfigError if univariate smoothing is requested for
// conventionally filtered results and statespace.NumericalError if a backward step fails.
func (s *KS) Smooth(fr *kf.Results) (*Results, error) {
	if fr == nil || fr.Arena() == nil {
		return nil, &statespace.ConfigError{Op: "smooth", Msg: "nil filter results"}
	}

	a := fr.Arena()

	method, err := s.method(a)
	if err != nil {
		return nil, err
	}

	n := a.Nobs()
	_, kStates, _ := s.m.Dims()

	res := newResults(fr, method, n)

	bk := &backward{
		r0: mat.NewVecDense(kStates, nil),
		N0: mat.NewSymDense(kStates, nil),
	}
	res.r[n] = matrix.CloneVec(bk.r0)
	res.N[n] = matrix.CloneSym(bk.N0)

	for t := n - 1; t >= 0; t-- {
		st := &a.Steps[t]

		// r[t+1] and N[t+1]
		rNext, NNext := bk.r0, bk.N0

		res.eta[t], res.etaCov[t] = s.stateDisturbance(t, rNext, NNext)

		var eps *mat.VecDense
		var epsCov *mat.SymDense
		switch st.Kind {
		case arena.Missing:
			eps, epsCov = s.missing(t, bk)
		case arena.Joint:
			eps, epsCov, err = s.joint(t, st, bk, method)
		case arena.Univariate:
			eps, epsCov = s.univariate(t, st, bk)
		case arena.Diffuse:
			eps, epsCov = s.diffuse(t, st, bk)
		default:
			err = &statespace.NumericalError{Op: "smooth", T: t, Msg: fmt.Sprintf("unknown step kind: %d", st.Kind)}
		}
		if err != nil {
			return nil, err
		}

		if st.Space == statespace.Observed && st.Kind != arena.Missing && len(st.Present) > 0 {
			if eps, epsCov, err = s.expand(t, st.Present, eps, epsCov); err != nil {
				return nil, err
			}
		}
		res.eps[t], res.epsCov[t] = eps, epsCov

		res.r[t] = matrix.CloneVec(bk.r0)
		res.N[t] = matrix.CloneSym(bk.N0)

		switch {
		case st.Kind == arena.Diffuse:
			res.state[t], res.stateCov[t] = s.diffuseState(st, bk)
		case method == statespace.SmoothAlternative:
			res.state[t], res.stateCov[t] = s.alternative(t, st, rNext, NNext)
		case method == statespace.SmoothClassical:
			res.state[t], res.stateCov[t], err = s.classical(t, a, res)
		default:
			res.state[t], res.stateCov[t] = conventional(st, bk.r0, bk.N0)
		}
		if err != nil {
			return nil, err
		}

		res.forecast[t] = &mat.VecDense{}
		res.forecast[t].MulVec(s.m.Design(t), res.state[t])
		res.forecast[t].AddVec(res.forecast[t], s.m.ObsIntercept(t))
	}

	s.log.WithFields(logrus.Fields{
		"method": method,
		"nobs":   n,
	}).Debug("smoothing finished")

	return res, nil
}

// method resolves smoothing method for filter output a.
func (s *KS) method(a *arena.Arena) (statespace.SmoothMethod, error) {
	switch s.opts.Smooth {
	case statespace.SmoothDefault:
		if a.Method == statespace.FilterUnivariate {
			return statespace.SmoothUnivariate, nil
		}
		return statespace.SmoothConventional, nil
	case statespace.SmoothUnivariate:
		if a.Method != statespace.FilterUnivariate {
			return 0, &statespace.ConfigError{Op: "smooth", Msg: "univariate smoothing requires univariate filter results"}
		}
	}

	return s.opts.Smooth, nil
}

// stateDisturbance returns smoothed state disturbance and its covariance given r[t+1] and N[t+1]:
//
//	eta = Q*R'*r
//	Var = Q - Q*R'*N*R*Q
func (s *KS) stateDisturbance(t int, r *mat.VecDense, N *mat.SymDense) (*mat.VecDense, *mat.SymDense) {
	Q := s.m.StateCov(t)
	R := s.m.Selection(t)

	qr := &mat.Dense{}
	qr.Mul(Q, R.T())

	eta := &mat.VecDense{}
	eta.MulVec(qr, r)

	cov := matrix.SubSym(Q, matrix.Quad(qr, N))

	return eta, cov
}

// conventional returns smoothed state from predicted moments: a + P*r, P - P*N*P
func conventional(st *arena.Step, r *mat.VecDense, N *mat.SymDense) (*mat.VecDense, *mat.SymDense) {
	x := &mat.VecDense{}
	x.MulVec(st.PredictedCov, r)
	x.AddVec(x, st.Predicted)

	cov := matrix.SubSym(st.PredictedCov, matrix.Quad(st.PredictedCov, N))

	return x, cov
}

// alternative returns smoothed state from filtered moments given r[t+1] and N[t+1]:
//
//	x   = a[t|t] + P[t|t]*T'*r
//	Var = P[t|t] - P[t|t]*T'*N*T*P[t|t]
func (s *KS) alternative(t int, st *arena.Step, r *mat.VecDense, N *mat.SymDense) (*mat.VecDense, *mat.SymDense) {
	pt := &mat.Dense{}
	pt.Mul(st.FilteredCov, s.m.Transition(t).T())

	x := &mat.VecDense{}
	x.MulVec(pt, r)
	x.AddVec(x, st.Filtered)

	cov := matrix.SubSym(st.FilteredCov, matrix.Quad(pt, N))

	return x, cov
}
