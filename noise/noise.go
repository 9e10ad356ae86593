// Package noise provides sources of Gaussian noise variates used to drive simulations.
package noise

// Source is a source of noise variates
type Source interface {
	// Variates fills dst with noise variates and returns it
	Variates(dst []float64) []float64
}
