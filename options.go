package statespace

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// FilterMethod is Kalman filter update method
type FilterMethod int

const (
	// FilterConventional runs a single joint update per time step
	FilterConventional FilterMethod = iota
	// FilterUnivariate runs one scalar update per observation entry
	FilterUnivariate
)

// String implements the Stringer interface.
func (m FilterMethod) String() string {
	switch m {
	case FilterConventional:
		return "conventional"
	case FilterUnivariate:
		return "univariate"
	}

	return fmt.Sprintf("FilterMethod(%d)", int(m))
}

// SmoothMethod is Kalman smoother backward recursion method
type SmoothMethod int

const (
	// SmoothDefault picks conventional smoothing, or univariate smoothing
	// when the filter ran univariate
	SmoothDefault SmoothMethod = iota
	// SmoothConventional computes smoothed states from predicted moments
	SmoothConventional
	// SmoothClassical computes smoothed states from filtered moments (Rauch-Tung-Striebel)
	SmoothClassical
	// SmoothAlternative computes smoothed states from filtered moments using
	// forecast error solves stored by the forward pass
	SmoothAlternative
	// SmoothUnivariate runs the backward recursion per observation entry
	SmoothUnivariate
)

// String implements the Stringer interface.
func (m SmoothMethod) String() string {
	switch m {
	case SmoothDefault:
		return "default"
	case SmoothConventional:
		return "conventional"
	case SmoothClassical:
		return "classical"
	case SmoothAlternative:
		return "alternative"
	case SmoothUnivariate:
		return "univariate"
	}

	return fmt.Sprintf("SmoothMethod(%d)", int(m))
}

const (
	// DefaultTolerance is the threshold below which a scalar forecast error
	// variance is treated as zero by the univariate recursions
	DefaultTolerance = 1e-12
	// DefaultDiffuseTolerance is the threshold below which the diffuse state
	// covariance is treated as fully resolved
	DefaultDiffuseTolerance = 1e-9
)

// Options configure a single filter, smoother or simulation smoother run.
// The zero value is a valid configuration: conventional filtering, default smoothing.
type Options struct {
	// Filter is filter update method
	Filter FilterMethod
	// Collapsed projects observations onto a k_states dimensional space before filtering
	Collapsed bool
	// Smooth is smoother method
	Smooth SmoothMethod
	// TimingInitFiltered treats the initial state as the filtered state of the pre-sample step
	TimingInitFiltered bool
	// FallbackUnivariate re-runs the filter univariate when a conventional update fails
	FallbackUnivariate bool
	// Tolerance is scalar forecast error variance tolerance
	Tolerance float64
	// DiffuseTolerance is diffuse covariance tolerance
	DiffuseTolerance float64
	// Logger logs run events; nil means no logging
	Logger logrus.FieldLogger
}

// WithDefaults returns a copy of o with unset tolerances and logger filled in.
func (o Options) WithDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.DiffuseTolerance <= 0 {
		o.DiffuseTolerance = DefaultDiffuseTolerance
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}

	return o
}

// Validate checks the method combination.
// It returns ConfigError if the filter or smoother method is unknown,
// or if univariate smoothing is requested for a conventional filter.
// A fallback to univariate filtering is not known to happen before the run,
// so univariate smoothing of fallback runs is selected with SmoothDefault.
func (o Options) Validate() error {
	switch o.Filter {
	case FilterConventional, FilterUnivariate:
	default:
		return &ConfigError{Op: "options", Msg: fmt.Sprintf("unknown filter method: %v", o.Filter)}
	}

	switch o.Smooth {
	case SmoothDefault, SmoothConventional, SmoothClassical, SmoothAlternative:
	case SmoothUnivariate:
		if o.Filter != FilterUnivariate {
			return &ConfigError{Op: "options", Msg: "univariate smoothing requires univariate filtering"}
		}
	default:
		return &ConfigError{Op: "options", Msg: fmt.Sprintf("unknown smooth method: %v", o.Smooth)}
	}

	if o.Tolerance < 0 || o.DiffuseTolerance < 0 {
		return &ConfigError{Op: "options", Msg: "tolerances must be non-negative"}
	}

	return nil
}
