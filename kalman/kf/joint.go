package kf

import (
	"math"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/internal/arena"
	"github.com/milosgajdos/go-statespace/matrix"
	"github.com/milosgajdos/go-statespace/model"
	"gonum.org/v1/gonum/mat"
)

var log2Pi = math.Log(2 * math.Pi)

// block is the observation equation restricted to the entries observed at a time step
type block struct {
	// idx holds indices of observed entries
	idx []int
	// y holds observed values
	y *mat.VecDense
	// d is observation intercept
	d *mat.VecDense
	// z is design matrix
	z *mat.Dense
	// h is observation disturbance covariance
	h *mat.SymDense
}

func newBlock(m statespace.Representation, obs *model.Observations, t int) *block {
	idx := obs.Present(t)
	if len(idx) == 0 {
		return &block{}
	}

	y := mat.NewVecDense(len(idx), nil)
	for i, j := range idx {
		v, _ := obs.Value(j, t)
		y.SetVec(i, v)
	}

	return &block{
		idx: idx,
		y:   y,
		d:   matrix.SubVec(m.ObsIntercept(t), idx),
		z:   matrix.Rows(m.Design(t), idx),
		h:   matrix.SymSubset(m.ObsCov(t), idx),
	}
}

// joint runs a conventional multivariate update of predicted moments x, P at time t:
//
//	v = y - d - Z*x
//	F = Z*P*Z' + H
//	x = x + P*Z'*F^-1*v
//	P = P - P*Z'*F^-1*Z*P
//
// It returns statespace.NumericalError if F is not positive definite.
func (k *KF) joint(t int, st *arena.Step, b *block, x *mat.VecDense, P *mat.SymDense) (*mat.VecDense, *mat.SymDense, error) {
	p := len(b.idx)
	if st.Space == statespace.Collapsed {
		p = b.y.Len()
	}

	st.Kind = arena.Joint

	// forecast: d + Z*x
	yHat := &mat.VecDense{}
	yHat.MulVec(b.z, x)
	yHat.AddVec(yHat, b.d)

	v := &mat.VecDense{}
	v.SubVec(b.y, yHat)

	// Z*P
	zp := &mat.Dense{}
	zp.Mul(b.z, P)

	// Z*P*Z' + H
	fd := &mat.Dense{}
	fd.Mul(zp, b.z.T())
	F := matrix.Sym(fd)
	F.AddSym(F, b.h)

	var ch mat.Cholesky
	if ok := ch.Factorize(F); !ok {
		return nil, nil, &statespace.NumericalError{
			Op:     "filter",
			T:      t,
			Matrix: "forecast_error_cov",
			Msg:    "not positive definite",
		}
	}

	fInvV := &mat.VecDense{}
	if err := ch.SolveVecTo(fInvV, v); err != nil {
		return nil, nil, &statespace.NumericalError{Op: "filter", T: t, Matrix: "forecast_error_cov", Msg: err.Error()}
	}

	fInvZ := &mat.Dense{}
	if err := ch.SolveTo(fInvZ, b.z); err != nil {
		return nil, nil, &statespace.NumericalError{Op: "filter", T: t, Matrix: "forecast_error_cov", Msg: err.Error()}
	}

	fInv := &mat.SymDense{}
	if err := ch.InverseTo(fInv); err != nil {
		return nil, nil, &statespace.NumericalError{Op: "filter", T: t, Matrix: "forecast_error_cov", Msg: err.Error()}
	}

	// F^-1*Z*P
	fInvZP := &mat.Dense{}
	fInvZP.Mul(fInvZ, P)

	// x + (Z*P)'*F^-1*v
	corr := &mat.VecDense{}
	corr.MulVec(zp.T(), fInvV)
	xNext := &mat.VecDense{}
	xNext.AddVec(x, corr)

	// P - (Z*P)'*F^-1*Z*P
	pc := &mat.Dense{}
	pc.Mul(zp.T(), fInvZP)
	pd := &mat.Dense{}
	pd.Sub(P, pc)
	pNext := matrix.Sym(pd)

	// T*P*Z'*F^-1
	gain := &mat.Dense{}
	gain.Mul(k.m.Transition(t), fInvZP.T())

	// standardized forecast error: L^-1*v where F = L*L'
	var L mat.TriDense
	ch.LTo(&L)
	std := &mat.VecDense{}
	if err := std.SolveVec(&L, v); err != nil {
		std = matrix.NaNVec(p)
	}

	st.Z = b.z
	st.H = b.h
	st.V = v
	st.F = F
	st.FInv = fInv
	st.FInvV = fInvV
	st.FInvZ = fInvZ
	st.K = gain
	st.Gain = gain
	st.LogLikelihood += -0.5 * (float64(p)*log2Pi + ch.LogDet() + mat.Dot(v, fInvV))

	if st.Space == statespace.Collapsed {
		st.Forecast = yHat
		st.ForecastError = v
		st.ForecastErrorCov = F
		st.StandardizedForecastError = std
		return xNext, pNext, nil
	}

	k.expand(t, st, b, x, P, yHat, v, std)

	return xNext, pNext, nil
}

// expand stores observation outputs of an observed-space step in k_endog dimensional vectors.
// Entries of missing series hold the prediction d + Z*x and NaN forecast errors.
// Forecast error covariance is Z*P*Z' + H over all entries: its observed block equals F.
func (k *KF) expand(t int, st *arena.Step, b *block, x *mat.VecDense, P *mat.SymDense, yHat, v, std *mat.VecDense) {
	kEndog, _, _ := k.m.Dims()

	forecast := &mat.VecDense{}
	forecast.MulVec(k.m.Design(t), x)
	forecast.AddVec(forecast, k.m.ObsIntercept(t))

	fe := matrix.NaNVec(kEndog)
	sfe := matrix.NaNVec(kEndog)
	for i, j := range b.idx {
		forecast.SetVec(j, yHat.AtVec(i))
		fe.SetVec(j, v.AtVec(i))
		sfe.SetVec(j, std.AtVec(i))
	}

	fc := matrix.Quad(k.m.Design(t), P)
	fc.AddSym(fc, k.m.ObsCov(t))

	st.Forecast = forecast
	st.ForecastError = fe
	st.StandardizedForecastError = sfe
	st.ForecastErrorCov = fc
}

// collapse projects observation block b onto the k_states dimensional space:
//
//	y* = (Z'H^-1Z)^-1 Z'H^-1 (y - d),  Z* = I,  H* = (Z'H^-1Z)^-1
//
// It returns the collapsed block and the log-likelihood of the discarded component.
// It returns statespace.NumericalError if either H or Z'H^-1Z is not positive definite.
func (k *KF) collapse(t int, b *block) (*block, float64, error) {
	p, m := b.z.Dims()

	var hc mat.Cholesky
	if ok := hc.Factorize(b.h); !ok {
		return nil, 0, &statespace.NumericalError{Op: "collapse", T: t, Matrix: "obs_cov", Msg: "not positive definite"}
	}

	// H^-1*Z
	w := &mat.Dense{}
	if err := hc.SolveTo(w, b.z); err != nil {
		return nil, 0, &statespace.NumericalError{Op: "collapse", T: t, Matrix: "obs_cov", Msg: err.Error()}
	}

	// Z'*H^-1*Z
	cd := &mat.Dense{}
	cd.Mul(b.z.T(), w)
	C := matrix.Sym(cd)

	var cc mat.Cholesky
	if ok := cc.Factorize(C); !ok {
		return nil, 0, &statespace.NumericalError{Op: "collapse", T: t, Matrix: "design", Msg: "Z'H^-1Z not positive definite"}
	}

	hStar := &mat.SymDense{}
	if err := cc.InverseTo(hStar); err != nil {
		return nil, 0, &statespace.NumericalError{Op: "collapse", T: t, Matrix: "design", Msg: err.Error()}
	}

	yd := &mat.VecDense{}
	yd.SubVec(b.y, b.d)

	wy := &mat.VecDense{}
	wy.MulVec(w.T(), yd)

	yStar := &mat.VecDense{}
	if err := cc.SolveVecTo(yStar, wy); err != nil {
		return nil, 0, &statespace.NumericalError{Op: "collapse", T: t, Matrix: "design", Msg: err.Error()}
	}

	// e = y - d - Z*y*
	e := &mat.VecDense{}
	e.MulVec(b.z, yStar)
	e.SubVec(yd, e)

	he := &mat.VecDense{}
	if err := hc.SolveVecTo(he, e); err != nil {
		return nil, 0, &statespace.NumericalError{Op: "collapse", T: t, Matrix: "obs_cov", Msg: err.Error()}
	}

	// log|H| - log|H*| = log|H| + log|Z'H^-1Z|
	adj := -0.5 * (float64(p-m)*log2Pi + hc.LogDet() + cc.LogDet() + mat.Dot(e, he))

	return &block{
		idx: b.idx,
		y:   yStar,
		d:   mat.NewVecDense(m, nil),
		z:   matrix.Eye(m),
		h:   hStar,
	}, adj, nil
}
