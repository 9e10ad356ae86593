package ks

import (
	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/estimate"
	"github.com/milosgajdos/go-statespace/kalman/kf"
	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
)

// Results holds output of a backward smoothing pass.
// Results are immutable: every accessor returns a copy.
// Accessors return nil when t is out of range.
type Results struct {
	fr     *kf.Results
	method statespace.SmoothMethod

	// r and N have nobs+1 entries with r[nobs] = 0 and N[nobs] = 0
	r []*mat.VecDense
	N []*mat.SymDense

	state    []*mat.VecDense
	stateCov []*mat.SymDense
	eta      []*mat.VecDense
	etaCov   []*mat.SymDense
	eps      []*mat.VecDense
	epsCov   []*mat.SymDense
	forecast []*mat.VecDense
}

func newResults(fr *kf.Results, method statespace.SmoothMethod, n int) *Results {
	return &Results{
		fr:       fr,
		method:   method,
		r:        make([]*mat.VecDense, n+1),
		N:        make([]*mat.SymDense, n+1),
		state:    make([]*mat.VecDense, n),
		stateCov: make([]*mat.SymDense, n),
		eta:      make([]*mat.VecDense, n),
		etaCov:   make([]*mat.SymDense, n),
		eps:      make([]*mat.VecDense, n),
		epsCov:   make([]*mat.SymDense, n),
		forecast: make([]*mat.VecDense, n),
	}
}

// Filter returns filter results the smoother ran on
func (r *Results) Filter() *kf.Results {
	return r.fr
}

// Method returns smoothing method used
func (r *Results) Method() statespace.SmoothMethod {
	return r.method
}

// Nobs returns number of smoothed time steps
func (r *Results) Nobs() int {
	return len(r.state)
}

// Space returns the space measurement disturbances at time t are expressed in
func (r *Results) Space(t int) statespace.Space {
	return r.fr.Space(t)
}

// SmoothedState returns smoothed state
func (r *Results) SmoothedState(t int) *mat.VecDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneVec(r.state[t])
}

// SmoothedStateCov returns smoothed state covariance
func (r *Results) SmoothedStateCov(t int) *mat.SymDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneSym(r.stateCov[t])
}

// Smoothed returns smoothed state estimate
func (r *Results) Smoothed(t int) statespace.Estimate {
	if !r.in(t) {
		return nil
	}

	e, err := estimate.NewBaseWithCov(r.state[t], r.stateCov[t])
	if err != nil {
		return nil
	}

	return e
}

// SmoothedStateDisturbance returns smoothed state disturbance
func (r *Results) SmoothedStateDisturbance(t int) *mat.VecDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneVec(r.eta[t])
}

// SmoothedStateDisturbanceCov returns smoothed state disturbance covariance
func (r *Results) SmoothedStateDisturbanceCov(t int) *mat.SymDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneSym(r.etaCov[t])
}

// SmoothedMeasurementDisturbance returns smoothed measurement disturbance.
// Observed space disturbances have k_endog entries; see Space for other steps.
func (r *Results) SmoothedMeasurementDisturbance(t int) *mat.VecDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneVec(r.eps[t])
}

// SmoothedMeasurementDisturbanceCov returns smoothed measurement disturbance covariance.
// Univariate and diffuse steps only report element variances.
func (r *Results) SmoothedMeasurementDisturbanceCov(t int) *mat.SymDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneSym(r.epsCov[t])
}

// ScaledSmoothedEstimator returns scaled smoothed estimator r[t] for t = 0..nobs
func (r *Results) ScaledSmoothedEstimator(t int) *mat.VecDense {
	if t < 0 || t >= len(r.r) {
		return nil
	}

	return matrix.CloneVec(r.r[t])
}

// ScaledSmoothedEstimatorCov returns covariance N[t] of the scaled smoothed estimator for t = 0..nobs
func (r *Results) ScaledSmoothedEstimatorCov(t int) *mat.SymDense {
	if t < 0 || t >= len(r.N) {
		return nil
	}

	return matrix.CloneSym(r.N[t])
}

// SmoothedForecast returns d + Z*x where x is smoothed state
func (r *Results) SmoothedForecast(t int) *mat.VecDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneVec(r.forecast[t])
}

func (r *Results) in(t int) bool {
	return t >= 0 && t < len(r.state)
}
