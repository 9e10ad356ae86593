package sim

import (
	"fmt"

	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
)

// Draw is a single draw from the joint distribution of states and disturbances
// conditional on the observations. Draw is immutable: every accessor returns a copy.
type Draw struct {
	state *mat.Dense
	eps   *mat.Dense
	eta   *mat.Dense
}

func newDraw(kEndog, kStates, kPosdef, nobs int) *Draw {
	return &Draw{
		state: mat.NewDense(kStates, nobs, nil),
		eps:   mat.NewDense(kEndog, nobs, nil),
		eta:   mat.NewDense(kPosdef, nobs, nil),
	}
}

// Nobs returns number of time steps of the draw
func (d *Draw) Nobs() int {
	_, n := d.state.Dims()
	return n
}

// State returns simulated state at time t or nil if t is out of range
func (d *Draw) State(t int) *mat.VecDense {
	return col(d.state, t)
}

// MeasurementDisturbance returns simulated measurement disturbance at time t or nil if t is out of range
func (d *Draw) MeasurementDisturbance(t int) *mat.VecDense {
	return col(d.eps, t)
}

// StateDisturbance returns simulated state disturbance at time t or nil if t is out of range
func (d *Draw) StateDisturbance(t int) *mat.VecDense {
	return col(d.eta, t)
}

// States returns simulated states: k_states x nobs
func (d *Draw) States() *mat.Dense {
	return matrix.CloneDense(d.state)
}

// MeasurementDisturbances returns simulated measurement disturbances: k_endog x nobs
func (d *Draw) MeasurementDisturbances() *mat.Dense {
	return matrix.CloneDense(d.eps)
}

// StateDisturbances returns simulated state disturbances: k_posdef x nobs
func (d *Draw) StateDisturbances() *mat.Dense {
	return matrix.CloneDense(d.eta)
}

// StateMoments returns sample mean and covariance of the simulated states at time t.
// It returns error if fewer than two draws are given, if draws differ in
// dimensions or if t is out of range.
func StateMoments(draws []*Draw, t int) (*mat.VecDense, *mat.SymDense, error) {
	if len(draws) < 2 {
		return nil, nil, fmt.Errorf("at least two draws required: %d", len(draws))
	}

	kStates, nobs := draws[0].state.Dims()
	if t < 0 || t >= nobs {
		return nil, nil, fmt.Errorf("invalid time index: %d", t)
	}

	x := mat.NewDense(kStates, len(draws), nil)
	for j, d := range draws {
		if r, c := d.state.Dims(); r != kStates || c != nobs {
			return nil, nil, fmt.Errorf("draw %d dimensions mismatch: [%d x %d]", j, r, c)
		}
		x.SetCol(j, mat.Col(nil, t, d.state))
	}

	cov, err := matrix.SampleCov(x)
	if err != nil {
		return nil, nil, err
	}

	return mat.NewVecDense(kStates, matrix.RowMeans(x)), cov, nil
}

func col(m *mat.Dense, t int) *mat.VecDense {
	_, n := m.Dims()
	if t < 0 || t >= n {
		return nil
	}

	return mat.VecDenseCopyOf(m.ColView(t))
}
