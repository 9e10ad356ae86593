package ks

import (
	"github.com/milosgajdos/go-statespace/internal/arena"
	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
)

// diffuse runs exact diffuse backward step over the scalar updates of the step in reverse order.
// For elements with non-zero Finf:
//
//	L0 = I - Kinf*z'/Finf
//	L1 = (Kinf*F/Finf - K)*z'/Finf
//	r1 = z*v/Finf + L1'*r0 + L0'*r1
//	r0 = L0'*r0
//	N2 = -z*z'*F/Finf^2 + L0'*N2*L0 + L0'*N1*L1 + (L0'*N1*L1)' + L1'*N0*L1
//	N1 = z*z'/Finf + L0'*N1*L0 + L1'*N0*L0
//	N0 = L0'*N0*L0
//
// Remaining elements update r0 and N0 as the univariate recursion does.
// Steps with no observed entries return zero disturbance with covariance H.
func (s *KS) diffuse(t int, st *arena.Step, bk *backward) (*mat.VecDense, *mat.SymDense) {
	_, kStates, _ := s.m.Dims()
	T := s.m.Transition(t)

	if bk.r1 == nil {
		bk.r1 = mat.NewVecDense(kStates, nil)
		bk.N1 = mat.NewDense(kStates, kStates, nil)
		bk.N2 = mat.NewSymDense(kStates, nil)
	}

	r0 := &mat.VecDense{}
	r0.MulVec(T.T(), bk.r0)
	r1 := &mat.VecDense{}
	r1.MulVec(T.T(), bk.r1)
	N0 := matrix.Quad(T.T(), bk.N0)
	N1 := &mat.Dense{}
	N1.Mul(T.T(), bk.N1)
	N1.Mul(N1, T)
	N2 := matrix.Quad(T.T(), bk.N2)

	// no observed entries: estimators are only transported through T'
	if len(st.Elems) == 0 {
		bk.r0, bk.r1 = r0, r1
		bk.N0, bk.N1, bk.N2 = N0, N1, N2

		kEndog, _, _ := s.m.Dims()
		return mat.NewVecDense(kEndog, nil), matrix.CloneSym(s.m.ObsCov(t))
	}

	p := len(st.Elems)
	eps := mat.NewVecDense(p, nil)
	epsCov := mat.NewSymDense(p, nil)

	for i := p - 1; i >= 0; i-- {
		e := st.Elems[i]
		switch {
		case e.Diffuse:
			k0 := &mat.VecDense{}
			k0.ScaleVec(1/e.FInf, e.KInf)

			eps.SetVec(i, -e.H*mat.Dot(k0, r0))
			epsCov.SetSym(i, i, e.H-e.H*e.H*mat.Inner(k0, N0, k0))

			L0 := gainComplement(k0, e.Z, 1)

			// (K0*F - K)/Finf
			k1 := &mat.VecDense{}
			k1.ScaleVec(e.F, k0)
			k1.SubVec(k1, e.K)
			L1 := mat.NewDense(kStates, kStates, nil)
			L1.RankOne(L1, 1/e.FInf, k1, e.Z)

			r1Next := &mat.VecDense{}
			r1Next.MulVec(L0.T(), r1)
			tmp := &mat.VecDense{}
			tmp.MulVec(L1.T(), r0)
			r1Next.AddVec(r1Next, tmp)
			r1Next.AddScaledVec(r1Next, e.V/e.FInf, e.Z)

			r0Next := &mat.VecDense{}
			r0Next.MulVec(L0.T(), r0)

			// L0'*N1*L1
			n1l1 := &mat.Dense{}
			n1l1.Mul(L0.T(), N1)
			n1l1.Mul(n1l1, L1)

			N2Next := matrix.Quad(L0.T(), N2)
			N2Next.AddSym(N2Next, matrix.Quad(L1.T(), N0))
			cross := &mat.Dense{}
			cross.Add(n1l1, n1l1.T())
			N2Next.AddSym(N2Next, matrix.Sym(cross))
			N2Next.SymRankOne(N2Next, -e.F/(e.FInf*e.FInf), e.Z)

			N1Next := &mat.Dense{}
			N1Next.Mul(L0.T(), N1)
			N1Next.Mul(N1Next, L0)
			l1n0 := &mat.Dense{}
			l1n0.Mul(L1.T(), N0)
			l1n0.Mul(l1n0, L0)
			N1Next.Add(N1Next, l1n0)
			N1Next.RankOne(N1Next, 1/e.FInf, e.Z, e.Z)

			N0Next := matrix.Quad(L0.T(), N0)

			r0, r1 = r0Next, r1Next
			N0, N1, N2 = N0Next, N1Next, N2Next
		case !e.Skip:
			eps.SetVec(i, e.H/e.F*(e.V-mat.Dot(e.K, r0)))
			epsCov.SetSym(i, i, e.H-e.H*e.H/(e.F*e.F)*(e.F+mat.Inner(e.K, N0, e.K)))

			L := gainComplement(e.K, e.Z, 1/e.F)

			r0Next := &mat.VecDense{}
			r0Next.MulVec(L.T(), r0)
			r0Next.AddScaledVec(r0Next, e.V/e.F, e.Z)

			N0Next := matrix.Quad(L.T(), N0)
			N0Next.SymRankOne(N0Next, 1/e.F, e.Z)

			N1Next := &mat.Dense{}
			N1Next.Mul(N1, L)

			r0, N0, N1 = r0Next, N0Next, N1Next
		default:
			epsCov.SetSym(i, i, e.H)
		}
	}

	bk.r0, bk.r1 = r0, r1
	bk.N0, bk.N1, bk.N2 = N0, N1, N2

	return eps, epsCov
}

// diffuseState returns smoothed state of the diffuse period:
//
//	x   = a + P*r0 + Pinf*r1
//	Var = P - P*N0*P - A - A' - Pinf*N2*Pinf,  A = Pinf*N1*P
func (s *KS) diffuseState(st *arena.Step, bk *backward) (*mat.VecDense, *mat.SymDense) {
	x, cov := conventional(st, bk.r0, bk.N0)

	Pinf := st.PredictedDiffuseCov
	if Pinf == nil {
		return x, cov
	}

	pr := &mat.VecDense{}
	pr.MulVec(Pinf, bk.r1)
	x.AddVec(x, pr)

	A := &mat.Dense{}
	A.Mul(Pinf, bk.N1)
	A.Mul(A, st.PredictedCov)
	aa := &mat.Dense{}
	aa.Add(A, A.T())

	cov = matrix.SubSym(cov, matrix.Sym(aa))
	cov = matrix.SubSym(cov, matrix.Quad(Pinf, bk.N2))

	return x, cov
}
