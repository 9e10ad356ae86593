// Package arena holds per time step quantities written once by the forward
// filter pass and read by the backward smoother pass.
package arena

import (
	"github.com/milosgajdos/go-statespace"
	"gonum.org/v1/gonum/mat"
)

// Kind is the recursion used to update the state at a time step
type Kind int

const (
	// Missing step: no observation entry present
	Missing Kind = iota
	// Joint step: single multivariate update (conventional or collapsed)
	Joint
	// Univariate step: one scalar update per present entry
	Univariate
	// Diffuse step: exact diffuse univariate update
	Diffuse
)

// Elem is a scalar update of the univariate and diffuse recursions
type Elem struct {
	// Z is design row of the element
	Z *mat.VecDense
	// H is observation disturbance variance of the element
	H float64
	// V is forecast error
	V float64
	// F is forecast error variance (finite part in diffuse steps)
	F float64
	// K is P*Z' (finite part in diffuse steps)
	K *mat.VecDense
	// FInf is diffuse forecast error variance
	FInf float64
	// KInf is Pinf*Z'
	KInf *mat.VecDense
	// Diffuse is true when FInf is non-zero
	Diffuse bool
	// Skip is true when the element carried no information
	Skip bool
}

// Step holds filter quantities at a single time step
type Step struct {
	// Kind is recursion used at this step
	Kind Kind
	// Space is the space observation outputs are expressed in
	Space statespace.Space
	// Present holds indices of observed entries
	Present []int

	// Z is design restricted to present entries (identity when collapsed)
	Z *mat.Dense
	// H is observation covariance restricted to present entries
	H *mat.SymDense
	// V is forecast error of joint steps
	V *mat.VecDense
	// F is forecast error covariance of joint steps
	F *mat.SymDense
	// FInv is F^-1
	FInv *mat.SymDense
	// FInvV is F^-1*v
	FInvV *mat.VecDense
	// FInvZ is F^-1*Z
	FInvZ *mat.Dense
	// K is T*P*Z'*F^-1
	K *mat.Dense

	// Elems are scalar updates of univariate and diffuse steps
	Elems []Elem
	// Rotation holds eigenvectors of H when H is not diagonal
	Rotation *mat.Dense

	Predicted           *mat.VecDense
	PredictedCov        *mat.SymDense
	PredictedDiffuseCov *mat.SymDense
	Filtered            *mat.VecDense
	FilteredCov         *mat.SymDense
	FilteredDiffuseCov  *mat.SymDense

	Forecast                  *mat.VecDense
	ForecastError             *mat.VecDense
	ForecastErrorCov          *mat.SymDense
	ForecastErrorDiffuseCov   *mat.SymDense
	StandardizedForecastError *mat.VecDense
	Gain                      *mat.Dense
	LogLikelihood             float64
}

// Arena is filter output indexed by time
type Arena struct {
	// Steps holds filter quantities for t = 0..nobs-1
	Steps []Step
	// Predicted is state prediction for t = nobs
	Predicted *mat.VecDense
	// PredictedCov is state prediction covariance for t = nobs
	PredictedCov *mat.SymDense
	// DiffusePeriods is number of steps run with exact diffuse recursions
	DiffusePeriods int
	// Method is filter method used
	Method statespace.FilterMethod
	// Options are run options
	Options statespace.Options
}

// Nobs returns number of time steps
func (a *Arena) Nobs() int {
	return len(a.Steps)
}
