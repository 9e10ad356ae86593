package kf

import (
	"math"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/internal/arena"
	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
)

// rotate diagonalizes observation covariance of block b: H = U*L*U'.
// It returns b unchanged with nil rotation if H is already diagonal.
// Rotated block holds U'*y, U'*d, U'*Z and eigenvalues of H clamped at zero.
func (k *KF) rotate(t int, b *block) (*block, *mat.Dense, error) {
	if matrix.IsDiagonal(b.h) {
		return b, nil, nil
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(b.h, true); !ok {
		return nil, nil, &statespace.NumericalError{Op: "filter", T: t, Matrix: "obs_cov", Msg: "eigen decomposition failed"}
	}

	U := &mat.Dense{}
	eig.VectorsTo(U)
	vals := eig.Values(nil)

	p := len(vals)
	h := mat.NewSymDense(p, nil)
	for i, v := range vals {
		h.SetSym(i, i, math.Max(v, 0))
	}

	y := &mat.VecDense{}
	y.MulVec(U.T(), b.y)
	d := &mat.VecDense{}
	d.MulVec(U.T(), b.d)
	z := &mat.Dense{}
	z.Mul(U.T(), b.z)

	return &block{idx: b.idx, y: y, d: d, z: z, h: h}, U, nil
}

// univariate runs sequential scalar updates of predicted moments x, P over the
// entries of block b. For every entry i:
//
//	v = y_i - d_i - z_i*x
//	F = z_i*P*z_i' + h_i
//	x = x + P*z_i'*v/F
//	P = P - P*z_i'*z_i*P/F
//
// Entries whose F does not exceed the filter tolerance are skipped.
func (k *KF) univariate(t int, st *arena.Step, b *block, x *mat.VecDense, P *mat.SymDense) (*mat.VecDense, *mat.SymDense, error) {
	st.Kind = arena.Univariate
	if st.Space != statespace.Collapsed {
		st.Space = statespace.Observed
	}

	b, U, err := k.rotate(t, b)
	if err != nil {
		return nil, nil, err
	}
	if U != nil {
		st.Rotation = U
		if st.Space == statespace.Observed {
			st.Space = statespace.Transformed
		}
	}

	x = matrix.CloneVec(x)
	P = matrix.CloneSym(P)

	p := b.y.Len()
	st.Z = b.z
	st.H = b.h
	st.Elems = make([]arena.Elem, p)

	for i := 0; i < p; i++ {
		z := mat.VecDenseCopyOf(b.z.RowView(i))
		h := b.h.At(i, i)

		// P*z'
		pz := &mat.VecDense{}
		pz.MulVec(P, z)

		f := mat.Dot(z, pz) + h
		v := b.y.AtVec(i) - b.d.AtVec(i) - mat.Dot(z, x)

		e := arena.Elem{Z: z, H: h, V: v, F: f, K: pz}
		if f > k.opts.Tolerance {
			x.AddScaledVec(x, v/f, pz)
			P.SymRankOne(P, -1/f, pz)
			st.LogLikelihood += -0.5 * (log2Pi + math.Log(f) + v*v/f)
		} else {
			e.Skip = true
		}
		st.Elems[i] = e
	}

	k.elemOutputs(t, st, b)

	return x, P, nil
}

// diffuse runs exact diffuse sequential updates of predicted moments x, P, Pinf.
// For every entry i with Finf = z_i*Pinf*z_i' above the diffuse tolerance:
//
//	x    = x + Minf*v/Finf
//	P    = P + Minf*Minf'*F/Finf^2 - (M*Minf' + Minf*M')/Finf
//	Pinf = Pinf - Minf*Minf'/Finf
//
// where Minf = Pinf*z_i', M = P*z_i' and F = z_i*P*z_i' + h_i.
// Remaining entries are updated as in the univariate filter.
func (k *KF) diffuse(t int, st *arena.Step, b *block, x *mat.VecDense, P, Pinf *mat.SymDense) (*mat.VecDense, *mat.SymDense, *mat.SymDense, error) {
	x = matrix.CloneVec(x)
	P = matrix.CloneSym(P)
	Pinf = matrix.CloneSym(Pinf)

	if len(b.idx) == 0 {
		k.missing(t, st)
		st.Kind = arena.Diffuse
		return x, P, Pinf, nil
	}

	st.Kind = arena.Diffuse
	st.Space = statespace.Observed

	b, U, err := k.rotate(t, b)
	if err != nil {
		return nil, nil, nil, err
	}
	if U != nil {
		st.Rotation = U
		st.Space = statespace.Transformed
	}

	p := b.y.Len()
	st.Z = b.z
	st.H = b.h
	st.Elems = make([]arena.Elem, p)

	for i := 0; i < p; i++ {
		z := mat.VecDenseCopyOf(b.z.RowView(i))
		h := b.h.At(i, i)

		mInf := &mat.VecDense{}
		mInf.MulVec(Pinf, z)
		fInf := mat.Dot(z, mInf)

		m := &mat.VecDense{}
		m.MulVec(P, z)
		f := mat.Dot(z, m) + h

		v := b.y.AtVec(i) - b.d.AtVec(i) - mat.Dot(z, x)

		e := arena.Elem{Z: z, H: h, V: v, F: f, K: m, FInf: fInf, KInf: mInf}
		switch {
		case fInf > k.opts.DiffuseTolerance:
			e.Diffuse = true
			x.AddScaledVec(x, v/fInf, mInf)
			P.SymRankOne(P, f/(fInf*fInf), mInf)
			P.RankTwo(P, -1/fInf, m, mInf)
			Pinf.SymRankOne(Pinf, -1/fInf, mInf)
			st.LogLikelihood += -0.5 * (log2Pi + math.Log(fInf))
		case f > k.opts.Tolerance:
			x.AddScaledVec(x, v/f, m)
			P.SymRankOne(P, -1/f, m)
			st.LogLikelihood += -0.5 * (log2Pi + math.Log(f) + v*v/f)
		default:
			e.Skip = true
		}
		st.Elems[i] = e
	}

	k.elemOutputs(t, st, b)

	return x, P, Pinf, nil
}

// elemOutputs stores observation outputs of a sequential step.
// Observed space outputs have k_endog entries with missing series predicted from
// the predicted state; transformed and collapsed outputs follow the order of b.
func (k *KF) elemOutputs(t int, st *arena.Step, b *block) {
	p := len(st.Elems)

	diffuse := st.Kind == arena.Diffuse
	forecast := mat.NewVecDense(p, nil)
	fe := mat.NewVecDense(p, nil)
	sfe := matrix.NaNVec(p)
	fc := mat.NewSymDense(p, nil)
	var fcInf *mat.SymDense
	if diffuse {
		fcInf = mat.NewSymDense(p, nil)
	}

	for i, e := range st.Elems {
		forecast.SetVec(i, b.y.AtVec(i)-e.V)
		fe.SetVec(i, e.V)
		fc.SetSym(i, i, e.F)
		if diffuse {
			fcInf.SetSym(i, i, e.FInf)
		}
		if !e.Skip && !e.Diffuse && e.F > 0 {
			sfe.SetVec(i, e.V/math.Sqrt(e.F))
		}
	}

	if st.Space != statespace.Observed {
		st.Forecast = forecast
		st.ForecastError = fe
		st.ForecastErrorCov = fc
		st.ForecastErrorDiffuseCov = fcInf
		st.StandardizedForecastError = sfe
		return
	}

	kEndog, _, _ := k.m.Dims()

	full := &mat.VecDense{}
	full.MulVec(k.m.Design(t), st.Predicted)
	full.AddVec(full, k.m.ObsIntercept(t))

	cov := matrix.Quad(k.m.Design(t), st.PredictedCov)
	cov.AddSym(cov, k.m.ObsCov(t))

	st.Forecast = full
	st.ForecastError = matrix.NaNVec(kEndog)
	st.StandardizedForecastError = matrix.NaNVec(kEndog)
	st.ForecastErrorCov = mat.NewSymDense(kEndog, nil)
	if diffuse {
		st.ForecastErrorDiffuseCov = mat.NewSymDense(kEndog, nil)
	}

	present := make(map[int]int, len(b.idx))
	for i, j := range b.idx {
		present[j] = i
	}

	for j := 0; j < kEndog; j++ {
		i, ok := present[j]
		if !ok {
			st.ForecastErrorCov.SetSym(j, j, cov.At(j, j))
			continue
		}
		st.Forecast.SetVec(j, forecast.AtVec(i))
		st.ForecastError.SetVec(j, fe.AtVec(i))
		st.StandardizedForecastError.SetVec(j, sfe.AtVec(i))
		st.ForecastErrorCov.SetSym(j, j, fc.At(i, i))
		if diffuse {
			st.ForecastErrorDiffuseCov.SetSym(j, j, fcInf.At(i, i))
		}
	}
}
