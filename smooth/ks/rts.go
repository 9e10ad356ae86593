package ks

import (
	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/internal/arena"
	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
)

// classical implements Rauch-Tung-Striebel smoothing step at time t.
// It computes smoothed state from filtered moments and the smoothed state at t+1:
//
//	C   = P[t|t]*T'*P[t+1]^-1
//	x   = a[t|t] + C*(x[t+1] - a[t+1])
//	Var = P[t|t] + C*(Var[t+1] - P[t+1])*C'
//
// Smoothed state at the last time step equals the filtered state.
func (s *KS) classical(t int, a *arena.Arena, res *Results) (*mat.VecDense, *mat.SymDense, error) {
	st := &a.Steps[t]
	if t == a.Nobs()-1 {
		return matrix.CloneVec(st.Filtered), matrix.CloneSym(st.FilteredCov), nil
	}

	next := &a.Steps[t+1]

	// Pk*Tk'
	c := &mat.Dense{}
	c.Mul(st.FilteredCov, s.m.Transition(t).T())

	// P_(k+1)^-1 inverse
	pinv := &mat.Dense{}
	if err := pinv.Inverse(next.PredictedCov); err != nil {
		return nil, nil, &statespace.NumericalError{Op: "smooth", T: t + 1, Matrix: "predicted_state_cov", Msg: err.Error()}
	}
	// Pk*Tk'*P_(k+1)^-1
	c.Mul(c, pinv)

	// smooth the state
	x := &mat.VecDense{}
	x.SubVec(res.state[t+1], next.Predicted)
	// c*x
	x.MulVec(c, x)
	// xk + Ck*x_sub
	x.AddVec(st.Filtered, x)

	// smooth covariance
	sub := matrix.SubSym(res.stateCov[t+1], next.PredictedCov)
	// Pk + Ck*P_sub*Ck'
	cov := matrix.Quad(c, sub)
	cov.AddSym(cov, st.FilteredCov)

	return x, cov, nil
}
