package model

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-statespace"
	"gonum.org/v1/gonum/mat"
)

// Observations is a k_endog x nobs matrix of observations with an explicit
// presence mask. Values of missing entries are never read.
type Observations struct {
	y       *mat.Dense
	present [][]bool
	idx     [][]int
}

// NewObservations creates new Observations from y (k_endog x nobs) and
// presence mask present indexed as present[t][i].
// If present is nil every entry is present.
// It returns statespace.ConfigError if the mask dimensions do not match y.
func NewObservations(y mat.Matrix, present [][]bool) (*Observations, error) {
	if y == nil {
		return nil, &statespace.ConfigError{Op: "observations", Msg: "nil observations"}
	}

	kEndog, nobs := y.Dims()

	if present == nil {
		present = make([][]bool, nobs)
		for t := range present {
			present[t] = make([]bool, kEndog)
			for i := range present[t] {
				present[t][i] = true
			}
		}
	}

	if len(present) != nobs {
		return nil, &statespace.ConfigError{Op: "observations", Msg: fmt.Sprintf("mask has %d time steps, expected %d", len(present), nobs)}
	}

	o := &Observations{
		y:       mat.DenseCopyOf(y),
		present: make([][]bool, nobs),
		idx:     make([][]int, nobs),
	}

	for t := 0; t < nobs; t++ {
		if len(present[t]) != kEndog {
			return nil, &statespace.ConfigError{Op: "observations", Msg: fmt.Sprintf("mask at t=%d has %d entries, expected %d", t, len(present[t]), kEndog)}
		}
		o.present[t] = make([]bool, kEndog)
		copy(o.present[t], present[t])
		for i := 0; i < kEndog; i++ {
			if present[t][i] {
				o.idx[t] = append(o.idx[t], i)
			}
		}
	}

	return o, nil
}

// NewObservationsNaN creates new Observations from y marking NaN entries as missing.
func NewObservationsNaN(y mat.Matrix) (*Observations, error) {
	if y == nil {
		return nil, &statespace.ConfigError{Op: "observations", Msg: "nil observations"}
	}

	kEndog, nobs := y.Dims()
	present := make([][]bool, nobs)
	for t := range present {
		present[t] = make([]bool, kEndog)
		for i := range present[t] {
			present[t][i] = !math.IsNaN(y.At(i, t))
		}
	}

	return NewObservations(y, present)
}

// Dims returns number of series and number of time steps
func (o *Observations) Dims() (kEndog, nobs int) {
	return o.y.Dims()
}

// Value returns value of series i at time t and whether it is present
func (o *Observations) Value(i, t int) (float64, bool) {
	return o.y.At(i, t), o.present[t][i]
}

// IsPresent returns true if series i is observed at time t
func (o *Observations) IsPresent(i, t int) bool {
	return o.present[t][i]
}

// Present returns indices of the series observed at time t.
// The returned slice must not be modified.
func (o *Observations) Present(t int) []int {
	return o.idx[t]
}

// Missing returns true if no series is observed at time t
func (o *Observations) Missing(t int) bool {
	return len(o.idx[t]) == 0
}

// Col returns a copy of observations at time t. Missing entries are NaN.
func (o *Observations) Col(t int) *mat.VecDense {
	kEndog, _ := o.y.Dims()
	v := mat.NewVecDense(kEndog, nil)
	for i := 0; i < kEndog; i++ {
		if o.present[t][i] {
			v.SetVec(i, o.y.At(i, t))
			continue
		}
		v.SetVec(i, math.NaN())
	}

	return v
}

// Mask returns a copy of the presence mask indexed as mask[t][i]
func (o *Observations) Mask() [][]bool {
	mask := make([][]bool, len(o.present))
	for t := range o.present {
		mask[t] = make([]bool, len(o.present[t]))
		copy(mask[t], o.present[t])
	}

	return mask
}
