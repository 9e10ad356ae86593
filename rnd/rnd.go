// Package rnd draws correlated Gaussian samples.
package rnd

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-statespace/noise"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Factor returns matrix L such that L*L' = cov.
// It uses Cholesky factorization and falls back to SVD when cov is singular,
// e.g. for degenerate or zero covariances.
// It fails with error if SVD factorization of cov fails.
func Factor(cov mat.Symmetric) (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); ok {
		L := &mat.TriDense{}
		chol.LTo(L)
		return mat.DenseCopyOf(L), nil
	}

	// SVD is numerically stable for (almost) singular cov
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	return U, nil
}

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// Standard normal variates are read from src; if src is nil the global gonum source is used.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is non-positive or if factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, src noise.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	L, err := Factor(cov)
	if err != nil {
		return nil, err
	}

	rows := cov.SymmetricDim()
	data := make([]float64, rows*n)
	if src != nil {
		src.Variates(data)
	} else {
		for i := range data {
			data[i] = distuv.UnitNormal.Rand()
		}
	}

	samples := mat.NewDense(rows, n, data)
	samples.Mul(L, samples)

	return samples, nil
}
