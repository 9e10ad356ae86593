package ks

import (
	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/internal/arena"
	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
)

// backward holds scaled smoothed estimators carried between time steps.
// r1, N1 and N2 are only used in the diffuse period.
type backward struct {
	r0 *mat.VecDense
	N0 *mat.SymDense
	r1 *mat.VecDense
	N1 *mat.Dense
	N2 *mat.SymDense
}

// missing transports the estimators through a step with no observation:
//
//	r = T'*r
//	N = T'*N*T
//
// Smoothed measurement disturbance is zero with covariance H.
func (s *KS) missing(t int, bk *backward) (*mat.VecDense, *mat.SymDense) {
	T := s.m.Transition(t)
	kEndog, _, _ := s.m.Dims()

	r := &mat.VecDense{}
	r.MulVec(T.T(), bk.r0)
	bk.r0 = r
	bk.N0 = matrix.Quad(T.T(), bk.N0)

	return mat.NewVecDense(kEndog, nil), matrix.CloneSym(s.m.ObsCov(t))
}

// joint runs conventional backward step:
//
//	e   = H*(F^-1*v - K'*r)
//	Var = H - H*(F^-1 + K'*N*K)*H
//	r   = Z'*F^-1*v + L'*r
//	N   = Z'*F^-1*Z + L'*N*L
//
// where K is Kalman gain and L = T - K*Z. Conventional smoothing
// re-factorizes F; other methods use the solves stored by the filter.
func (s *KS) joint(t int, st *arena.Step, bk *backward, method statespace.SmoothMethod) (*mat.VecDense, *mat.SymDense, error) {
	fInv, fInvV, fInvZ := st.FInv, st.FInvV, st.FInvZ

	if method == statespace.SmoothConventional {
		var ch mat.Cholesky
		if ok := ch.Factorize(st.F); !ok {
			return nil, nil, &statespace.NumericalError{Op: "smooth", T: t, Matrix: "forecast_error_cov", Msg: "not positive definite"}
		}
		fInv, fInvV, fInvZ = &mat.SymDense{}, &mat.VecDense{}, &mat.Dense{}
		if err := ch.InverseTo(fInv); err != nil {
			return nil, nil, &statespace.NumericalError{Op: "smooth", T: t, Matrix: "forecast_error_cov", Msg: err.Error()}
		}
		if err := ch.SolveVecTo(fInvV, st.V); err != nil {
			return nil, nil, &statespace.NumericalError{Op: "smooth", T: t, Matrix: "forecast_error_cov", Msg: err.Error()}
		}
		if err := ch.SolveTo(fInvZ, st.Z); err != nil {
			return nil, nil, &statespace.NumericalError{Op: "smooth", T: t, Matrix: "forecast_error_cov", Msg: err.Error()}
		}
	}

	T := s.m.Transition(t)
	K := st.K
	r, N := bk.r0, bk.N0

	// F^-1*v - K'*r
	u := &mat.VecDense{}
	u.MulVec(K.T(), r)
	u.SubVec(fInvV, u)

	eps := &mat.VecDense{}
	eps.MulVec(st.H, u)

	D := matrix.Quad(K.T(), N)
	D.AddSym(D, fInv)
	epsCov := matrix.SubSym(st.H, matrix.Quad(st.H, D))

	// T - K*Z
	L := &mat.Dense{}
	L.Mul(K, st.Z)
	L.Sub(T, L)

	rNext := &mat.VecDense{}
	rNext.MulVec(L.T(), r)
	zv := &mat.VecDense{}
	zv.MulVec(st.Z.T(), fInvV)
	rNext.AddVec(rNext, zv)

	zfz := &mat.Dense{}
	zfz.Mul(st.Z.T(), fInvZ)
	NNext := matrix.Sym(zfz)
	NNext.AddSym(NNext, matrix.Quad(L.T(), N))

	bk.r0, bk.N0 = rNext, NNext

	return eps, epsCov, nil
}

// univariate runs backward step over the scalar updates of the step in reverse order.
// Starting from r = T'*r and N = T'*N*T, for every element i:
//
//	e   = h/F*(v - K'*r)
//	Var = h - h^2/F^2*(F + K'*N*K)
//	r   = z*v/F + L'*r
//	N   = z*z'/F + L'*N*L
//
// where K = P*z' and L = I - K*z'/F. Covariance of the measurement
// disturbance holds element variances only.
func (s *KS) univariate(t int, st *arena.Step, bk *backward) (*mat.VecDense, *mat.SymDense) {
	T := s.m.Transition(t)

	r := &mat.VecDense{}
	r.MulVec(T.T(), bk.r0)
	N := matrix.Quad(T.T(), bk.N0)

	p := len(st.Elems)
	eps := mat.NewVecDense(p, nil)
	epsCov := mat.NewSymDense(p, nil)

	for i := p - 1; i >= 0; i-- {
		e := st.Elems[i]
		if e.Skip {
			epsCov.SetSym(i, i, e.H)
			continue
		}

		eps.SetVec(i, e.H/e.F*(e.V-mat.Dot(e.K, r)))
		epsCov.SetSym(i, i, e.H-e.H*e.H/(e.F*e.F)*(e.F+mat.Inner(e.K, N, e.K)))

		L := gainComplement(e.K, e.Z, 1/e.F)

		rNext := &mat.VecDense{}
		rNext.MulVec(L.T(), r)
		rNext.AddScaledVec(rNext, e.V/e.F, e.Z)

		NNext := matrix.Quad(L.T(), N)
		NNext.SymRankOne(NNext, 1/e.F, e.Z)

		r, N = rNext, NNext
	}

	bk.r0, bk.N0 = r, N

	return eps, epsCov
}

// gainComplement returns I - alpha*k*z'
func gainComplement(k, z mat.Vector, alpha float64) *mat.Dense {
	L := matrix.Eye(k.Len())
	L.RankOne(L, -alpha, k, z)

	return L
}
