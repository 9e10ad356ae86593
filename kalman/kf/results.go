package kf

import (
	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/estimate"
	"github.com/milosgajdos/go-statespace/internal/arena"
	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
)

// Results holds output of a forward filter pass.
// Results are immutable: every accessor returns a copy.
// Accessors return nil when t is out of range.
type Results struct {
	a *arena.Arena
}

// Arena returns per time step filter quantities consumed by smoothers.
// Returned data must not be modified.
func (r *Results) Arena() *arena.Arena {
	return r.a
}

// Nobs returns number of filtered time steps
func (r *Results) Nobs() int {
	return r.a.Nobs()
}

// Method returns filter method the results were computed with.
// It differs from the requested method when the univariate fallback was used.
func (r *Results) Method() statespace.FilterMethod {
	return r.a.Method
}

// DiffusePeriods returns number of time steps filtered with exact diffuse recursions
func (r *Results) DiffusePeriods() int {
	return r.a.DiffusePeriods
}

// Space returns the space observation outputs at time t are expressed in
func (r *Results) Space(t int) statespace.Space {
	if !r.in(t) {
		return statespace.Observed
	}

	return r.a.Steps[t].Space
}

// PredictedState returns state prediction a[t] for t = 0..nobs
func (r *Results) PredictedState(t int) *mat.VecDense {
	if t == r.a.Nobs() {
		return matrix.CloneVec(r.a.Predicted)
	}
	if !r.in(t) {
		return nil
	}

	return matrix.CloneVec(r.a.Steps[t].Predicted)
}

// PredictedStateCov returns state prediction covariance P[t] for t = 0..nobs
func (r *Results) PredictedStateCov(t int) *mat.SymDense {
	if t == r.a.Nobs() {
		return matrix.CloneSym(r.a.PredictedCov)
	}
	if !r.in(t) {
		return nil
	}

	return matrix.CloneSym(r.a.Steps[t].PredictedCov)
}

// PredictedDiffuseStateCov returns diffuse part of state prediction covariance.
// It returns nil outside of the diffuse period.
func (r *Results) PredictedDiffuseStateCov(t int) *mat.SymDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneSym(r.a.Steps[t].PredictedDiffuseCov)
}

// Predicted returns state prediction estimate for t = 0..nobs
func (r *Results) Predicted(t int) statespace.Estimate {
	return newEstimate(r.PredictedState(t), r.PredictedStateCov(t))
}

// FilteredState returns filtered state a[t|t]
func (r *Results) FilteredState(t int) *mat.VecDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneVec(r.a.Steps[t].Filtered)
}

// FilteredStateCov returns filtered state covariance P[t|t]
func (r *Results) FilteredStateCov(t int) *mat.SymDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneSym(r.a.Steps[t].FilteredCov)
}

// Filtered returns filtered state estimate
func (r *Results) Filtered(t int) statespace.Estimate {
	return newEstimate(r.FilteredState(t), r.FilteredStateCov(t))
}

// Forecast returns observation forecast.
// Observed space forecasts have k_endog entries: d + Z*a for missing entries.
func (r *Results) Forecast(t int) *mat.VecDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneVec(r.a.Steps[t].Forecast)
}

// ForecastError returns forecast error. Missing entries hold NaN.
func (r *Results) ForecastError(t int) *mat.VecDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneVec(r.a.Steps[t].ForecastError)
}

// ForecastErrorCov returns forecast error covariance.
// Sequentially filtered steps report the diagonal of per-entry variances.
func (r *Results) ForecastErrorCov(t int) *mat.SymDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneSym(r.a.Steps[t].ForecastErrorCov)
}

// ForecastErrorDiffuseCov returns diffuse part of forecast error covariance.
// It returns nil outside of the diffuse period.
func (r *Results) ForecastErrorDiffuseCov(t int) *mat.SymDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneSym(r.a.Steps[t].ForecastErrorDiffuseCov)
}

// StandardizedForecastError returns forecast error scaled by the inverse
// Cholesky factor of its covariance. Missing and diffuse entries hold NaN.
func (r *Results) StandardizedForecastError(t int) *mat.VecDense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneVec(r.a.Steps[t].StandardizedForecastError)
}

// Gain returns Kalman gain T*P*Z'*F^-1 of a jointly filtered step.
// It returns nil for missing, univariate and diffuse steps.
func (r *Results) Gain(t int) *mat.Dense {
	if !r.in(t) {
		return nil
	}

	return matrix.CloneDense(r.a.Steps[t].Gain)
}

// LogLikelihoodObs returns log-likelihood contributions of every time step
func (r *Results) LogLikelihoodObs() []float64 {
	llf := make([]float64, r.a.Nobs())
	for t := range r.a.Steps {
		llf[t] = r.a.Steps[t].LogLikelihood
	}

	return llf
}

// LogLikelihood returns log-likelihood of observations
func (r *Results) LogLikelihood() float64 {
	llf := 0.0
	for t := range r.a.Steps {
		llf += r.a.Steps[t].LogLikelihood
	}

	return llf
}

func (r *Results) in(t int) bool {
	return t >= 0 && t < r.a.Nobs()
}

func newEstimate(val *mat.VecDense, cov *mat.SymDense) statespace.Estimate {
	if val == nil || cov == nil {
		return nil
	}

	e, err := estimate.NewBaseWithCov(val, cov)
	if err != nil {
		return nil
	}

	return e
}
