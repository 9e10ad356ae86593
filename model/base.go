package model

import (
	"fmt"

	"github.com/milosgajdos/go-statespace"
	"gonum.org/v1/gonum/mat"
)

// Propagate propagates state x at time t to the next step given state disturbance u:
//
//	x[t+1] = c[t] + T[t]*x[t] + R[t]*u[t]
//
// If u is nil no disturbance is added.
func Propagate(m statespace.Representation, t int, x, u mat.Vector) (*mat.VecDense, error) {
	_, kStates, kPosdef := m.Dims()
	if x.Len() != kStates {
		return nil, fmt.Errorf("invalid state vector: %d", x.Len())
	}

	if u != nil && u.Len() != kPosdef {
		return nil, fmt.Errorf("invalid state disturbance vector: %d", u.Len())
	}

	out := &mat.VecDense{}
	out.MulVec(m.Transition(t), x)
	out.AddVec(out, m.StateIntercept(t))

	if u != nil {
		outU := &mat.VecDense{}
		outU.MulVec(m.Selection(t), u)
		out.AddVec(out, outU)
	}

	return out, nil
}

// Observe returns observation of state x at time t given measurement disturbance e:
//
//	y[t] = d[t] + Z[t]*x[t] + e[t]
//
// If e is nil no disturbance is added.
func Observe(m statespace.Representation, t int, x, e mat.Vector) (*mat.VecDense, error) {
	kEndog, kStates, _ := m.Dims()
	if x.Len() != kStates {
		return nil, fmt.Errorf("invalid state vector: %d", x.Len())
	}

	if e != nil && e.Len() != kEndog {
		return nil, fmt.Errorf("invalid measurement disturbance vector: %d", e.Len())
	}

	out := &mat.VecDense{}
	out.MulVec(m.Design(t), x)
	out.AddVec(out, m.ObsIntercept(t))

	if e != nil {
		out.AddVec(out, e)
	}

	return out, nil
}
