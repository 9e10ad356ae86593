package ks

import (
	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
)

// expand maps smoothed measurement disturbance of the observed entries idx to all
// k_endog entries. Disturbances of missing entries are predicted from the observed
// ones through their covariance with G = H_mo*H_oo^-1:
//
//	e_m   = G*e_o
//	Var_m = H_mm - G*H_om + G*Var_o*G'
//
// Missing entries uncorrelated with the observed ones are zero with covariance H_mm.
func (s *KS) expand(t int, idx []int, eps *mat.VecDense, cov *mat.SymDense) (*mat.VecDense, *mat.SymDense, error) {
	kEndog, _, _ := s.m.Dims()
	if len(idx) == kEndog {
		return eps, cov, nil
	}

	H := s.m.ObsCov(t)

	outEps := mat.NewVecDense(kEndog, nil)
	outCov := mat.NewSymDense(kEndog, nil)

	present := make(map[int]bool, len(idx))
	for _, j := range idx {
		present[j] = true
	}
	var miss []int
	for j := 0; j < kEndog; j++ {
		if !present[j] {
			miss = append(miss, j)
		}
	}

	for i, r := range idx {
		outEps.SetVec(r, eps.AtVec(i))
		for j := i; j < len(idx); j++ {
			outCov.SetSym(r, idx[j], cov.At(i, j))
		}
	}

	hmm := matrix.SymSubset(H, miss)
	for i, r := range miss {
		for j := i; j < len(miss); j++ {
			outCov.SetSym(r, miss[j], hmm.At(i, j))
		}
	}

	if len(idx) == 0 {
		return outEps, outCov, nil
	}

	hmo := matrix.Block(H, miss, idx)
	if matrix.IsZero(hmo) {
		return outEps, outCov, nil
	}

	var ch mat.Cholesky
	if ok := ch.Factorize(matrix.SymSubset(H, idx)); !ok {
		return nil, nil, &statespace.NumericalError{Op: "smooth", T: t, Matrix: "obs_cov", Msg: "observed block not positive definite"}
	}

	// G' = H_oo^-1*H_om
	gt := &mat.Dense{}
	if err := ch.SolveTo(gt, hmo.T()); err != nil {
		return nil, nil, &statespace.NumericalError{Op: "smooth", T: t, Matrix: "obs_cov", Msg: err.Error()}
	}
	G := mat.DenseCopyOf(gt.T())

	em := &mat.VecDense{}
	em.MulVec(G, eps)

	gh := &mat.Dense{}
	gh.Mul(G, hmo.T())
	vm := matrix.SubSym(hmm, matrix.Sym(gh))
	vm.AddSym(vm, matrix.Quad(G, cov))

	// Cov(e_m, e_o) = G*Var_o
	cross := &mat.Dense{}
	cross.Mul(G, cov)

	for i, r := range miss {
		outEps.SetVec(r, em.AtVec(i))
		for j := i; j < len(miss); j++ {
			outCov.SetSym(r, miss[j], vm.At(i, j))
		}
		for j, c := range idx {
			outCov.SetSym(r, c, cross.At(i, j))
		}
	}

	return outEps, outCov, nil
}
