package model

import (
	"errors"
	"math"
	"testing"

	"github.com/milosgajdos/go-statespace"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNew(t *testing.T) {
	assert := assert.New(t)

	m, err := NewTimeInvariant(Z, nil, nil, T, nil, R, Q)
	assert.NotNil(m)
	assert.NoError(err)

	kEndog, kStates, kPosdef := m.Dims()
	assert.Equal(1, kEndog)
	assert.Equal(2, kStates)
	assert.Equal(1, kPosdef)
	assert.Equal(0, m.Nobs())

	// broadcast constant matrices
	assert.Equal(Z, m.Design(0))
	assert.Equal(Z, m.Design(100))
	assert.Equal(0.0, m.ObsIntercept(5).AtVec(0))
	assert.Equal(0.0, m.ObsCov(5).At(0, 0))

	// default initialization
	init := m.Init()
	assert.Nil(init.DiffuseCov())
	assert.Equal(DefaultKappa, init.Cov().At(1, 1))
}

func TestNewInvalid(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		name string
		sys  System
	}{
		{"missing", System{Z: []*mat.Dense{Z}}},
		{"transition not square", System{
			Z: []*mat.Dense{Z}, T: []*mat.Dense{mat.NewDense(2, 3, nil)},
			R: []*mat.Dense{R}, Q: []*mat.SymDense{Q},
		}},
		{"selection vs state cov", System{
			Z: []*mat.Dense{Z}, T: []*mat.Dense{T},
			R: []*mat.Dense{R}, Q: []*mat.SymDense{mat.NewSymDense(2, nil)},
		}},
		{"obs cov", System{
			Z: []*mat.Dense{Z}, T: []*mat.Dense{T}, H: []*mat.SymDense{mat.NewSymDense(3, nil)},
			R: []*mat.Dense{R}, Q: []*mat.SymDense{Q},
		}},
		{"time dimension", System{
			Z: []*mat.Dense{Z, Z, Z}, T: []*mat.Dense{T, T},
			R: []*mat.Dense{R}, Q: []*mat.SymDense{Q},
		}},
		{"slice shape", System{
			Z: []*mat.Dense{Z, mat.NewDense(2, 2, nil)}, T: []*mat.Dense{T},
			R: []*mat.Dense{R}, Q: []*mat.SymDense{Q},
		}},
	} {
		m, err := New(test.sys)
		assert.Nil(m, test.name)
		assert.Error(err, test.name)

		var cerr *statespace.ConfigError
		assert.True(errors.As(err, &cerr), test.name)
	}

	// nil matrix
	m, err := NewTimeInvariant(nil, nil, nil, T, nil, R, Q)
	assert.Nil(m)
	assert.Error(err)
}

func TestTimeVarying(t *testing.T) {
	assert := assert.New(t)

	Z2 := mat.NewDense(1, 2, []float64{2.0, 0.0})
	m, err := New(System{
		Z: []*mat.Dense{Z, Z2, Z},
		T: []*mat.Dense{T},
		R: []*mat.Dense{R},
		Q: []*mat.SymDense{Q},
	})
	assert.NoError(err)
	assert.Equal(3, m.Nobs())
	assert.Equal(2.0, m.Design(1).At(0, 0))
	assert.Equal(T, m.Transition(2))

	obs, err := NewObservations(mat.NewDense(1, 3, nil), nil)
	assert.NoError(err)
	assert.NoError(CheckObservations(m, obs))

	obs, err = NewObservations(mat.NewDense(1, 4, nil), nil)
	assert.NoError(err)
	assert.Error(CheckObservations(m, obs))

	obs, err = NewObservations(mat.NewDense(2, 3, nil), nil)
	assert.NoError(err)
	assert.Error(CheckObservations(m, obs))
}

func TestInit(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(2, []float64{1.0, 3.0})
	cov := mat.NewSymDense(2, []float64{0.25, 0, 0, 0.25})

	m, err := NewTimeInvariant(Z, d, H, T, c, R, Q, WithInit(NewKnown(state, cov)))
	assert.NoError(err)
	ic := m.Init()
	for i := 0; i < state.Len(); i++ {
		assert.Equal(state.AtVec(i), ic.State().AtVec(i))
	}
	for i := 0; i < cov.SymmetricDim(); i++ {
		for j := 0; j < cov.SymmetricDim(); j++ {
			assert.Equal(cov.At(i, j), ic.Cov().At(i, j))
		}
	}

	m, err = NewTimeInvariant(Z, d, H, T, c, R, Q, WithInit(NewExactDiffuse()))
	assert.NoError(err)
	assert.Equal(1.0, m.Init().DiffuseCov().At(1, 1))
	assert.Equal(0.0, m.Init().Cov().At(1, 1))

	// invalid kappa
	m, err = NewTimeInvariant(Z, d, H, T, c, R, Q, WithInit(NewApproximateDiffuse(nil, -1)))
	assert.Nil(m)
	assert.Error(err)

	// invalid state length
	m, err = NewTimeInvariant(Z, d, H, T, c, R, Q, WithInit(NewKnown(mat.NewVecDense(3, nil), cov)))
	assert.Nil(m)
	assert.Error(err)

	// nil initialization
	m, err = NewTimeInvariant(Z, d, H, T, c, R, Q, WithInit(nil))
	assert.Nil(m)
	assert.Error(err)

	// local linear trend is not stationary
	m, err = NewTimeInvariant(Z, d, H, T, c, R, Q, WithInit(NewStationary()))
	assert.Nil(m)
	assert.Error(err)
}

func TestInitStationary(t *testing.T) {
	assert := assert.New(t)

	phi, sigma2 := 0.5, 2.0
	m, err := NewTimeInvariant(
		mat.NewDense(1, 1, []float64{1.0}), nil, nil,
		mat.NewDense(1, 1, []float64{phi}), mat.NewVecDense(1, []float64{1.0}),
		mat.NewDense(1, 1, []float64{1.0}), mat.NewSymDense(1, []float64{sigma2}),
		WithInit(NewStationary()),
	)
	assert.NoError(err)

	init := m.Init()
	assert.InDelta(1.0/(1-phi), init.State().AtVec(0), 1e-12)
	assert.InDelta(sigma2/(1-phi*phi), init.Cov().At(0, 0), 1e-12)

	// VAR(1): P = T*P*T' + Q
	T2 := mat.NewDense(2, 2, []float64{0.5, 0.1, -0.2, 0.3})
	Q2 := mat.NewSymDense(2, []float64{1.0, 0.3, 0.3, 2.0})
	m, err = NewTimeInvariant(mat.NewDense(1, 2, []float64{1, 0}), nil, nil, T2, nil, mat.NewDense(2, 2, []float64{1, 0, 0, 1}), Q2, WithInit(NewStationary()))
	assert.NoError(err)

	P := m.Init().Cov()
	tpt := &mat.Dense{}
	tpt.Mul(T2, P)
	tpt.Mul(tpt, T2.T())
	tpt.Add(tpt, Q2)
	assert.True(mat.EqualApprox(P, tpt, 1e-10))
}

func TestObservations(t *testing.T) {
	assert := assert.New(t)

	y := mat.NewDense(2, 3, []float64{
		1, math.NaN(), 3,
		0, 5, math.NaN(),
	})
	obs, err := NewObservationsNaN(y)
	assert.NoError(err)

	kEndog, nobs := obs.Dims()
	assert.Equal(2, kEndog)
	assert.Equal(3, nobs)
	assert.Equal([]int{0, 1}, obs.Present(0))
	assert.Equal([]int{1}, obs.Present(1))
	assert.Equal([]int{0}, obs.Present(2))
	assert.False(obs.Missing(1))

	// zero is a legitimate observation
	v, ok := obs.Value(1, 0)
	assert.True(ok)
	assert.Equal(0.0, v)

	col := obs.Col(1)
	assert.True(math.IsNaN(col.AtVec(0)))
	assert.Equal(5.0, col.AtVec(1))

	mask := obs.Mask()
	mask[0][0] = false
	assert.True(obs.IsPresent(0, 0))

	// fully missing step
	obs, err = NewObservations(mat.NewDense(1, 2, []float64{1, 2}), [][]bool{{true}, {false}})
	assert.NoError(err)
	assert.True(obs.Missing(1))

	// invalid mask
	obs, err = NewObservations(mat.NewDense(1, 2, nil), [][]bool{{true}})
	assert.Nil(obs)
	assert.Error(err)

	obs, err = NewObservations(mat.NewDense(1, 2, nil), [][]bool{{true}, {true, false}})
	assert.Nil(obs)
	assert.Error(err)

	obs, err = NewObservations(nil, nil)
	assert.Nil(obs)
	assert.Error(err)
}
