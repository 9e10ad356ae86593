package matrix

import (
	"math"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Eye returns n x n identity matrix.
// It panics if n is not positive.
func Eye(n int) *mat.Dense {
	eye, err := matrix.NewDenseValIdentity(n, 1.0)
	if err != nil {
		panic(err)
	}

	return eye
}

// Sym returns symmetric part of the square matrix m: (m + m')/2.
func Sym(m mat.Matrix) *mat.SymDense {
	r, _ := m.Dims()
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		s.SetSym(i, i, m.At(i, i))
		for j := i + 1; j < r; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s
}

// Rows returns a matrix built from the rows of m selected by idx.
func Rows(m mat.Matrix, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(r, j))
		}
	}

	return out
}

// SubVec returns a vector built from the elements of v selected by idx.
func SubVec(v mat.Vector, idx []int) *mat.VecDense {
	out := mat.NewVecDense(len(idx), nil)
	for i, r := range idx {
		out.SetVec(i, v.AtVec(r))
	}

	return out
}

// SymSubset returns the symmetric submatrix of s with rows and columns selected by idx.
func SymSubset(s mat.Symmetric, idx []int) *mat.SymDense {
	out := mat.NewSymDense(len(idx), nil)
	for i, r := range idx {
		for j := i; j < len(idx); j++ {
			out.SetSym(i, j, s.At(r, idx[j]))
		}
	}

	return out
}

// Block returns the len(rows) x len(cols) submatrix of m.
func Block(m mat.Matrix, rows, cols []int) *mat.Dense {
	out := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for j, c := range cols {
			out.Set(i, j, m.At(r, c))
		}
	}

	return out
}

// SubSym returns a - b.
func SubSym(a, b mat.Symmetric) *mat.SymDense {
	n := a.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, a.At(i, j)-b.At(i, j))
		}
	}

	return out
}

// IsDiagonal returns true if all off-diagonal elements of s are zero.
func IsDiagonal(s mat.Symmetric) bool {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if s.At(i, j) != 0 {
				return false
			}
		}
	}

	return true
}

// IsZero returns true if every element of m is zero.
func IsZero(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}

	return true
}

// MaxAbs returns the largest absolute element of m.
func MaxAbs(m mat.Matrix) float64 {
	r, c := m.Dims()
	max := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			max = math.Max(max, math.Abs(m.At(i, j)))
		}
	}

	return max
}

// Quad returns symmetric b * a * b'.
func Quad(b mat.Matrix, a mat.Matrix) *mat.SymDense {
	tmp := &mat.Dense{}
	tmp.Mul(b, a)
	out := &mat.Dense{}
	out.Mul(tmp, b.T())

	return Sym(out)
}

// NaNVec returns vector of length n filled with NaN.
func NaNVec(n int) *mat.VecDense {
	data := make([]float64, n)
	floats.AddConst(math.NaN(), data)

	return mat.NewVecDense(n, data)
}

// CloneVec returns a copy of v. It returns nil if v is nil.
func CloneVec(v mat.Vector) *mat.VecDense {
	if v == nil {
		return nil
	}
	if vd, ok := v.(*mat.VecDense); ok && vd == nil {
		return nil
	}
	out := &mat.VecDense{}
	out.CloneFromVec(v)

	return out
}

// CloneSym returns a copy of s. It returns nil if s is nil.
func CloneSym(s mat.Symmetric) *mat.SymDense {
	if s == nil {
		return nil
	}
	if sd, ok := s.(*mat.SymDense); ok && sd == nil {
		return nil
	}
	out := mat.NewSymDense(s.SymmetricDim(), nil)
	out.CopySym(s)

	return out
}

// CloneDense returns a copy of m. It returns nil if m is nil.
func CloneDense(m mat.Matrix) *mat.Dense {
	if m == nil {
		return nil
	}
	if md, ok := m.(*mat.Dense); ok && md == nil {
		return nil
	}

	return mat.DenseCopyOf(m)
}

// RowMeans returns a slice containing m row means.
// It panics if m is nil.
func RowMeans(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	means := make([]float64, rows)

	for i := 0; i < rows; i++ {
		means[i] = floats.Sum(m.RawRowView(i)) / float64(cols)
	}

	return means
}

// SampleCov returns covariance of the samples stored in the columns of m.
func SampleCov(m *mat.Dense) (*mat.SymDense, error) {
	return matrix.Cov(m, "cols")
}
