package sim

import (
	"fmt"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/matrix"
	"github.com/milosgajdos/go-statespace/model"
	"github.com/milosgajdos/go-statespace/noise"
	"github.com/milosgajdos/go-statespace/rnd"
	"gonum.org/v1/gonum/mat"
)

// Path is a simulated realisation of a state space model.
// Every matrix stores one time step per column.
type Path struct {
	state *mat.Dense
	obs   *mat.Dense
	eps   *mat.Dense
	eta   *mat.Dense
}

func newPath(kEndog, kStates, kPosdef, nobs int) *Path {
	return &Path{
		state: mat.NewDense(kStates, nobs, nil),
		obs:   mat.NewDense(kEndog, nobs, nil),
		eps:   mat.NewDense(kEndog, nobs, nil),
		eta:   mat.NewDense(kPosdef, nobs, nil),
	}
}

// Nobs returns number of simulated time steps
func (p *Path) Nobs() int {
	_, n := p.state.Dims()
	return n
}

// States returns simulated states: k_states x nobs
func (p *Path) States() *mat.Dense {
	return matrix.CloneDense(p.state)
}

// Observations returns simulated observations: k_endog x nobs
func (p *Path) Observations() *mat.Dense {
	return matrix.CloneDense(p.obs)
}

// MeasurementDisturbances returns simulated measurement disturbances: k_endog x nobs
func (p *Path) MeasurementDisturbances() *mat.Dense {
	return matrix.CloneDense(p.eps)
}

// StateDisturbances returns simulated state disturbances: k_posdef x nobs
func (p *Path) StateDisturbances() *mat.Dense {
	return matrix.CloneDense(p.eta)
}

// Generate simulates nobs steps of model m driven by standard normal variates read from src.
// The initial state is drawn from the finite part of the model initialization:
// diffuse states start at the initial state mean.
// It returns statespace.ConfigError if nobs does not match a time-varying model
// and statespace.NumericalError if a disturbance covariance can not be factorized.
func Generate(m statespace.Representation, nobs int, src noise.Source) (*Path, error) {
	if m == nil || src == nil {
		return nil, &statespace.ConfigError{Op: "generate", Msg: "nil model or noise source"}
	}

	if nobs <= 0 || (m.Nobs() != 0 && m.Nobs() != nobs) {
		return nil, &statespace.ConfigError{Op: "generate", Msg: fmt.Sprintf("invalid number of steps: %d", nobs)}
	}

	kEndog, _, kPosdef := m.Dims()

	init := m.Init()
	if init == nil || init.State() == nil || init.Cov() == nil {
		return nil, &statespace.ConfigError{Op: "generate", Matrix: "init", Msg: "unresolved initialization"}
	}

	u, err := rnd.WithCovN(init.Cov(), 1, src)
	if err != nil {
		return nil, &statespace.NumericalError{Op: "generate", T: 0, Matrix: "initial_state_cov", Msg: err.Error()}
	}

	x0 := mat.VecDenseCopyOf(u.ColView(0))
	x0.AddVec(x0, init.State())

	f, err := newFactors(m)
	if err != nil {
		return nil, err
	}

	return generate(m, f, x0, nobs, src.Variates(make([]float64, nobs*(kEndog+kPosdef))))
}

// generate simulates nobs steps of m from state x0.
// disturbance holds nobs*k_endog measurement variates (time-major)
// followed by nobs*k_posdef state variates.
func generate(m statespace.Representation, f *factors, x0 *mat.VecDense, nobs int, disturbance []float64) (*Path, error) {
	kEndog, kStates, kPosdef := m.Dims()
	p := newPath(kEndog, kStates, kPosdef, nobs)

	off := nobs * kEndog
	x := x0

	for t := 0; t < nobs; t++ {
		lh, lq, err := f.at(t)
		if err != nil {
			return nil, err
		}

		e := &mat.VecDense{}
		e.MulVec(lh, mat.NewVecDense(kEndog, disturbance[t*kEndog:(t+1)*kEndog]))

		eta := &mat.VecDense{}
		eta.MulVec(lq, mat.NewVecDense(kPosdef, disturbance[off+t*kPosdef:off+(t+1)*kPosdef]))

		y, err := model.Observe(m, t, x, e)
		if err != nil {
			return nil, err
		}

		setCol(p.state, t, x)
		setCol(p.obs, t, y)
		setCol(p.eps, t, e)
		setCol(p.eta, t, eta)

		if x, err = model.Propagate(m, t, x, eta); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// factors holds disturbance covariance factors L*L' = H and L*L' = Q.
// Factors of time-invariant models are computed once; factors is read-only after creation.
type factors struct {
	m  statespace.Representation
	lh *mat.Dense
	lq *mat.Dense
}

func newFactors(m statespace.Representation) (*factors, error) {
	f := &factors{m: m}
	if m.Nobs() != 0 {
		return f, nil
	}

	var err error
	if f.lh, f.lq, err = factorize(m, 0); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *factors) at(t int) (*mat.Dense, *mat.Dense, error) {
	if f.lh != nil {
		return f.lh, f.lq, nil
	}

	return factorize(f.m, t)
}

func factorize(m statespace.Representation, t int) (*mat.Dense, *mat.Dense, error) {
	lh, err := rnd.Factor(m.ObsCov(t))
	if err != nil {
		return nil, nil, &statespace.NumericalError{Op: "simulate", T: t, Matrix: "obs_cov", Msg: err.Error()}
	}

	lq, err := rnd.Factor(m.StateCov(t))
	if err != nil {
		return nil, nil, &statespace.NumericalError{Op: "simulate", T: t, Matrix: "state_cov", Msg: err.Error()}
	}

	return lh, lq, nil
}

func setCol(m *mat.Dense, j int, v mat.Vector) {
	for i := 0; i < v.Len(); i++ {
		m.Set(i, j, v.AtVec(i))
	}
}
