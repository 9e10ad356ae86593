package statespace

import "gonum.org/v1/gonum/mat"

// Representation is a linear Gaussian state space model:
//
//	y[t]   = d[t] + Z[t]*a[t] + e[t],      e[t] ~ N(0, H[t])
//	a[t+1] = c[t] + T[t]*a[t] + R[t]*u[t], u[t] ~ N(0, Q[t])
//
// Matrices may be time-varying. Accessors must broadcast time-invariant
// matrices to any t and must not be modified by callers.
type Representation interface {
	// Dims returns observation, state and state disturbance dimensions
	Dims() (kEndog, kStates, kPosdef int)
	// Nobs returns number of time-varying slices or 0 if the model is time-invariant
	Nobs() int
	// Design returns design matrix Z at time t
	Design(t int) mat.Matrix
	// ObsIntercept returns observation intercept d at time t
	ObsIntercept(t int) mat.Vector
	// ObsCov returns observation disturbance covariance H at time t
	ObsCov(t int) mat.Symmetric
	// Transition returns transition matrix T at time t
	Transition(t int) mat.Matrix
	// StateIntercept returns state intercept c at time t
	StateIntercept(t int) mat.Vector
	// Selection returns selection matrix R at time t
	Selection(t int) mat.Matrix
	// StateCov returns state disturbance covariance Q at time t
	StateCov(t int) mat.Symmetric
	// Init returns initial state distribution
	Init() InitCond
}

// InitCond is initial state distribution of the model
type InitCond interface {
	// State returns initial state mean
	State() mat.Vector
	// Cov returns finite part of the initial state covariance
	Cov() mat.Symmetric
	// DiffuseCov returns diffuse part of the initial state covariance.
	// It returns nil if the initialization has no diffuse part.
	DiffuseCov() mat.Symmetric
}

// Estimate is a Gaussian estimate of a model quantity
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Space identifies the space observation related outputs are expressed in
type Space int

const (
	// Observed means outputs match raw observation entries
	Observed Space = iota
	// Transformed means outputs are in the space rotated by the eigenvectors of H
	Transformed
	// Collapsed means outputs are in the k_states dimensional collapsed space
	Collapsed
)

// String implements the Stringer interface.
func (s Space) String() string {
	switch s {
	case Observed:
		return "observed"
	case Transformed:
		return "transformed"
	case Collapsed:
		return "collapsed"
	}

	return "unknown"
}
