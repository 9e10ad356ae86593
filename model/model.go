package model

import (
	"fmt"

	"github.com/milosgajdos/go-statespace"
	"gonum.org/v1/gonum/mat"
)

// System holds state space system matrices.
// Every field is a list of per-time slices: a list of length 1 is time-invariant,
// a list of length nobs is time-varying. Intercepts and the observation
// covariance may be left empty in which case they default to zero.
type System struct {
	// Z is design matrix: k_endog x k_states
	Z []*mat.Dense
	// D is observation intercept: k_endog
	D []*mat.VecDense
	// H is observation disturbance covariance: k_endog x k_endog
	H []*mat.SymDense
	// T is transition matrix: k_states x k_states
	T []*mat.Dense
	// C is state intercept: k_states
	C []*mat.VecDense
	// R is selection matrix: k_states x k_posdef
	R []*mat.Dense
	// Q is state disturbance covariance: k_posdef x k_posdef
	Q []*mat.SymDense
}

// Model is a validated state space representation.
// It implements statespace.Representation.
type Model struct {
	sys    System
	kEndog int
	kState int
	kPos   int
	nobs   int
	init   *Init
}

// Option configures Model
type Option func(*Model) error

// WithInit sets model initialization
func WithInit(init *Init) Option {
	return func(m *Model) error {
		if init == nil {
			return &statespace.ConfigError{Op: "model", Matrix: "init", Msg: "nil initialization"}
		}
		m.init = init
		return nil
	}
}

// New creates new Model from system matrices and returns it.
// Initialization defaults to approximate diffuse with DefaultKappa.
// It returns statespace.ConfigError if either of the following conditions is met:
//   - T is missing or not square, or Z, R or Q are missing
//   - Z column count, R row count or c length differ from k_states
//   - R column count differs from Q dimension
//   - H dimension or d length differ from k_endog
//   - slices of a matrix differ in shape
//   - a time-varying matrix has a number of slices other than 1 or nobs
//   - initialization dimensions differ from k_states
func New(sys System, opts ...Option) (*Model, error) {
	if len(sys.T) == 0 || len(sys.Z) == 0 || len(sys.R) == 0 || len(sys.Q) == 0 {
		return nil, &statespace.ConfigError{Op: "model", Msg: "Z, T, R and Q must be defined"}
	}

	if isNil(sys.Z[0]) || isNil(sys.R[0]) {
		return nil, &statespace.ConfigError{Op: "model", Msg: "Z and R must be defined"}
	}

	kEndog, kStates := sys.Z[0].Dims()
	_, kPosdef := sys.R[0].Dims()

	if kEndog <= 0 || kStates <= 0 || kPosdef <= 0 {
		return nil, &statespace.ConfigError{Op: "model", Msg: fmt.Sprintf("invalid dimensions: [%d x %d x %d]", kEndog, kStates, kPosdef)}
	}

	if len(sys.D) == 0 {
		sys.D = []*mat.VecDense{mat.NewVecDense(kEndog, nil)}
	}
	if len(sys.H) == 0 {
		sys.H = []*mat.SymDense{mat.NewSymDense(kEndog, nil)}
	}
	if len(sys.C) == 0 {
		sys.C = []*mat.VecDense{mat.NewVecDense(kStates, nil)}
	}

	m := &Model{
		sys:    sys,
		kEndog: kEndog,
		kState: kStates,
		kPos:   kPosdef,
	}

	checks := []struct {
		name string
		n    int
		dims func(i int) (int, int)
		r, c int
	}{
		{"design", len(sys.Z), func(i int) (int, int) { return dims(sys.Z[i]) }, kEndog, kStates},
		{"obs_intercept", len(sys.D), func(i int) (int, int) { return vecDims(sys.D[i]) }, kEndog, 1},
		{"obs_cov", len(sys.H), func(i int) (int, int) { return dims(sys.H[i]) }, kEndog, kEndog},
		{"transition", len(sys.T), func(i int) (int, int) { return dims(sys.T[i]) }, kStates, kStates},
		{"state_intercept", len(sys.C), func(i int) (int, int) { return vecDims(sys.C[i]) }, kStates, 1},
		{"selection", len(sys.R), func(i int) (int, int) { return dims(sys.R[i]) }, kStates, kPosdef},
		{"state_cov", len(sys.Q), func(i int) (int, int) { return dims(sys.Q[i]) }, kPosdef, kPosdef},
	}

	for _, c := range checks {
		if c.n > 1 {
			if m.nobs != 0 && m.nobs != c.n {
				return nil, &statespace.ConfigError{
					Op:     "model",
					Matrix: c.name,
					Msg:    fmt.Sprintf("time dimension %d does not match nobs %d", c.n, m.nobs),
				}
			}
			m.nobs = c.n
		}
		for i := 0; i < c.n; i++ {
			r, cols := c.dims(i)
			if r != c.r || cols != c.c {
				return nil, &statespace.ConfigError{
					Op:     "model",
					Matrix: c.name,
					Msg:    fmt.Sprintf("slice %d has dimensions [%d x %d], expected [%d x %d]", i, r, cols, c.r, c.c),
				}
			}
		}
	}

	for _, o := range opts {
		if err := o(m); err != nil {
			return nil, err
		}
	}

	if m.init == nil {
		m.init = NewApproximateDiffuse(mat.NewVecDense(kStates, nil), DefaultKappa)
	}

	if err := m.init.resolve(m); err != nil {
		return nil, err
	}

	return m, nil
}

// NewTimeInvariant creates a time-invariant Model from single system matrices.
// d, H and c may be nil.
func NewTimeInvariant(Z *mat.Dense, d *mat.VecDense, H *mat.SymDense, T *mat.Dense, c *mat.VecDense, R *mat.Dense, Q *mat.SymDense, opts ...Option) (*Model, error) {
	sys := System{
		Z: []*mat.Dense{Z},
		T: []*mat.Dense{T},
		R: []*mat.Dense{R},
		Q: []*mat.SymDense{Q},
	}
	if d != nil {
		sys.D = []*mat.VecDense{d}
	}
	if H != nil {
		sys.H = []*mat.SymDense{H}
	}
	if c != nil {
		sys.C = []*mat.VecDense{c}
	}

	for _, m := range []mat.Matrix{Z, T, R, Q} {
		if isNil(m) {
			return nil, &statespace.ConfigError{Op: "model", Msg: "Z, T, R and Q must be defined"}
		}
	}

	return New(sys, opts...)
}

// Dims returns observation, state and state disturbance dimensions.
func (m *Model) Dims() (kEndog, kStates, kPosdef int) {
	return m.kEndog, m.kState, m.kPos
}

// Nobs returns number of time-varying slices or 0 if the model is time-invariant.
func (m *Model) Nobs() int {
	return m.nobs
}

// Design returns design matrix Z at time t
func (m *Model) Design(t int) mat.Matrix { return m.sys.Z[at(len(m.sys.Z), t)] }

// ObsIntercept returns observation intercept d at time t
func (m *Model) ObsIntercept(t int) mat.Vector { return m.sys.D[at(len(m.sys.D), t)] }

// ObsCov returns observation disturbance covariance H at time t
func (m *Model) ObsCov(t int) mat.Symmetric { return m.sys.H[at(len(m.sys.H), t)] }

// Transition returns transition matrix T at time t
func (m *Model) Transition(t int) mat.Matrix { return m.sys.T[at(len(m.sys.T), t)] }

// StateIntercept returns state intercept c at time t
func (m *Model) StateIntercept(t int) mat.Vector { return m.sys.C[at(len(m.sys.C), t)] }

// Selection returns selection matrix R at time t
func (m *Model) Selection(t int) mat.Matrix { return m.sys.R[at(len(m.sys.R), t)] }

// StateCov returns state disturbance covariance Q at time t
func (m *Model) StateCov(t int) mat.Symmetric { return m.sys.Q[at(len(m.sys.Q), t)] }

// Init returns model initialization
func (m *Model) Init() statespace.InitCond { return m.init }

// CheckObservations checks that obs can be filtered with representation m.
// It returns statespace.ConfigError if observation dimension differs from k_endog
// or if a time-varying representation has a different number of slices than obs.
func CheckObservations(m statespace.Representation, obs *Observations) error {
	if obs == nil {
		return &statespace.ConfigError{Op: "observations", Msg: "nil observations"}
	}

	kEndog, _, _ := m.Dims()
	n, nobs := obs.Dims()
	if n != kEndog {
		return &statespace.ConfigError{
			Op:     "observations",
			Matrix: "design",
			Msg:    fmt.Sprintf("observation dimension %d does not match k_endog %d", n, kEndog),
		}
	}

	if m.Nobs() != 0 && m.Nobs() != nobs {
		return &statespace.ConfigError{
			Op:  "observations",
			Msg: fmt.Sprintf("observation count %d does not match time-varying nobs %d", nobs, m.Nobs()),
		}
	}

	return nil
}

func at(n, t int) int {
	if n == 1 {
		return 0
	}
	return t
}

func dims(m mat.Matrix) (int, int) {
	if isNil(m) {
		return 0, 0
	}
	return m.Dims()
}

func vecDims(v *mat.VecDense) (int, int) {
	if v == nil {
		return 0, 0
	}
	return v.Len(), 1
}

func isNil(m mat.Matrix) bool {
	switch v := m.(type) {
	case nil:
		return true
	case *mat.Dense:
		return v == nil
	case *mat.SymDense:
		return v == nil
	}
	return false
}
