package model

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	x, u, e    *mat.VecDense
	Z, T, R    *mat.Dense
	H, Q       *mat.SymDense
	d, c       *mat.VecDense
	localTrend *Model
)

func setup() {
	x = mat.NewVecDense(2, []float64{0.5, 0.6})
	u = mat.NewVecDense(1, []float64{-1.0})
	e = mat.NewVecDense(1, []float64{0.25})

	Z = mat.NewDense(1, 2, []float64{1.0, 0.0})
	d = mat.NewVecDense(1, []float64{0.1})
	H = mat.NewSymDense(1, []float64{0.25})
	T = mat.NewDense(2, 2, []float64{1.0, 1.0, 0.0, 1.0})
	c = mat.NewVecDense(2, []float64{0.0, 0.0})
	R = mat.NewDense(2, 1, []float64{0.5, 1.0})
	Q = mat.NewSymDense(1, []float64{0.1})

	var err error
	localTrend, err = NewTimeInvariant(Z, d, H, T, c, R, Q)
	if err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestPropagate(t *testing.T) {
	assert := assert.New(t)

	v, err := Propagate(localTrend, 0, x, u)
	assert.NotNil(v)
	assert.NoError(err)
	// T*x + R*u
	assert.InDelta(1.1-0.5, v.AtVec(0), 1e-12)
	assert.InDelta(0.6-1.0, v.AtVec(1), 1e-12)

	v, err = Propagate(localTrend, 0, x, nil)
	assert.NoError(err)
	assert.InDelta(1.1, v.AtVec(0), 1e-12)

	// invalid disturbance vector
	v, err = Propagate(localTrend, 0, x, mat.NewVecDense(10, nil))
	assert.Nil(v)
	assert.Error(err)

	// invalid state vector
	v, err = Propagate(localTrend, 0, mat.NewVecDense(10, nil), u)
	assert.Nil(v)
	assert.Error(err)
}

func TestObserve(t *testing.T) {
	assert := assert.New(t)

	y, err := Observe(localTrend, 0, x, e)
	assert.NotNil(y)
	assert.NoError(err)
	assert.InDelta(0.1+0.5+0.25, y.AtVec(0), 1e-12)

	// invalid disturbance vector
	y, err = Observe(localTrend, 0, x, mat.NewVecDense(10, nil))
	assert.Nil(y)
	assert.Error(err)

	// invalid state vector
	y, err = Observe(localTrend, 0, mat.NewVecDense(10, nil), e)
	assert.Nil(y)
	assert.Error(err)
}
