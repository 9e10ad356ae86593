package statespace

import "fmt"

// ConfigError is returned when model dimensions, observations or run options
// are inconsistent. It is detected before any recursion starts.
type ConfigError struct {
	// Op is the operation that rejected the configuration
	Op string
	// Matrix names the offending matrix, if any
	Matrix string
	// Msg describes the problem
	Msg string
}

// Error implements error interface.
func (e *ConfigError) Error() string {
	if e.Matrix == "" {
		return fmt.Sprintf("%s: invalid configuration: %s", e.Op, e.Msg)
	}

	return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Matrix, e.Msg)
}

// NumericalError is returned when a recursion cannot proceed, e.g. when
// a forecast error covariance is not positive definite.
// The whole forward or backward pass is aborted.
type NumericalError struct {
	// Op is the recursion that failed
	Op string
	// T is the time index of the failure
	T int
	// Matrix names the offending matrix
	Matrix string
	// Msg describes the failure
	Msg string
}

// Error implements error interface.
func (e *NumericalError) Error() string {
	return fmt.Sprintf("%s: t=%d: %s: %s", e.Op, e.T, e.Matrix, e.Msg)
}
