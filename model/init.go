package model

import (
	"fmt"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
)

// DefaultKappa is default approximate diffuse initial state variance
const DefaultKappa = 1e6

// InitKind is initialization mode
type InitKind int

const (
	// Known initialization uses supplied mean and covariance
	Known InitKind = iota
	// ApproximateDiffuse uses supplied mean and kappa*I covariance
	ApproximateDiffuse
	// ExactDiffuse treats every state as diffuse
	ExactDiffuse
	// PartialDiffuse uses supplied mean, finite covariance and diffuse covariance
	PartialDiffuse
	// Stationary uses the unconditional mean and covariance of the state process
	Stationary
)

// String implements the Stringer interface.
func (k InitKind) String() string {
	switch k {
	case Known:
		return "known"
	case ApproximateDiffuse:
		return "approximate_diffuse"
	case ExactDiffuse:
		return "exact_diffuse"
	case PartialDiffuse:
		return "partial_diffuse"
	case Stationary:
		return "stationary"
	}

	return fmt.Sprintf("InitKind(%d)", int(k))
}

// Init is initial state distribution.
// It implements statespace.InitCond.
type Init struct {
	kind    InitKind
	state   *mat.VecDense
	cov     *mat.SymDense
	diffuse *mat.SymDense
	kappa   float64
}

// NewKnown returns initialization with known mean and covariance
func NewKnown(state mat.Vector, cov mat.Symmetric) *Init {
	return &Init{
		kind:  Known,
		state: matrix.CloneVec(state),
		cov:   matrix.CloneSym(cov),
	}
}

// NewApproximateDiffuse returns initialization with kappa*I covariance.
// If state is nil the mean is zero.
func NewApproximateDiffuse(state mat.Vector, kappa float64) *Init {
	return &Init{
		kind:  ApproximateDiffuse,
		state: matrix.CloneVec(state),
		kappa: kappa,
	}
}

// NewExactDiffuse returns initialization with every state diffuse
func NewExactDiffuse() *Init {
	return &Init{kind: ExactDiffuse}
}

// NewPartialDiffuse returns initialization with finite covariance cov and diffuse covariance diffuse
func NewPartialDiffuse(state mat.Vector, cov, diffuse mat.Symmetric) *Init {
	return &Init{
		kind:    PartialDiffuse,
		state:   matrix.CloneVec(state),
		cov:     matrix.CloneSym(cov),
		diffuse: matrix.CloneSym(diffuse),
	}
}

// NewStationary returns initialization from the unconditional distribution of
// the state process, computed from the first time slice of the model
func NewStationary() *Init {
	return &Init{kind: Stationary}
}

// Kind returns initialization mode
func (i *Init) Kind() InitKind {
	return i.kind
}

// State returns initial state mean
func (i *Init) State() mat.Vector {
	return matrix.CloneVec(i.state)
}

// Cov returns finite part of initial state covariance
func (i *Init) Cov() mat.Symmetric {
	return matrix.CloneSym(i.cov)
}

// DiffuseCov returns diffuse part of the initial covariance or nil
func (i *Init) DiffuseCov() mat.Symmetric {
	if i.diffuse == nil {
		return nil
	}
	return matrix.CloneSym(i.diffuse)
}

// resolve validates the initialization against m and fills in derived moments.
func (i *Init) resolve(m *Model) error {
	_, k, _ := m.Dims()

	if i.state == nil {
		i.state = mat.NewVecDense(k, nil)
	}

	switch i.kind {
	case ApproximateDiffuse:
		if i.kappa <= 0 {
			return &statespace.ConfigError{Op: "init", Matrix: "kappa", Msg: fmt.Sprintf("non-positive diffuse variance: %g", i.kappa)}
		}
		i.cov = mat.NewSymDense(k, nil)
		for j := 0; j < k; j++ {
			i.cov.SetSym(j, j, i.kappa)
		}
	case ExactDiffuse:
		i.cov = mat.NewSymDense(k, nil)
		i.diffuse = mat.NewSymDense(k, nil)
		for j := 0; j < k; j++ {
			i.diffuse.SetSym(j, j, 1.0)
		}
	case Stationary:
		state, cov, err := stationary(m)
		if err != nil {
			return err
		}
		i.state, i.cov = state, cov
	case Known, PartialDiffuse:
	default:
		return &statespace.ConfigError{Op: "init", Msg: fmt.Sprintf("unknown initialization: %v", i.kind)}
	}

	if i.state.Len() != k {
		return &statespace.ConfigError{Op: "init", Matrix: "initial_state", Msg: fmt.Sprintf("length %d, expected %d", i.state.Len(), k)}
	}

	if i.cov == nil || i.cov.SymmetricDim() != k {
		return &statespace.ConfigError{Op: "init", Matrix: "initial_state_cov", Msg: fmt.Sprintf("expected [%d x %d] covariance", k, k)}
	}

	if i.diffuse != nil && i.diffuse.SymmetricDim() != k {
		return &statespace.ConfigError{Op: "init", Matrix: "initial_diffuse_state_cov", Msg: fmt.Sprintf("expected [%d x %d] covariance", k, k)}
	}

	return nil
}

// stationary solves a = c + T*a and P = T*P*T' + R*Q*R'.
func stationary(m *Model) (*mat.VecDense, *mat.SymDense, error) {
	_, k, _ := m.Dims()
	T := m.Transition(0)

	eye := matrix.Eye(k)
	ia := &mat.Dense{}
	ia.Sub(eye, T)

	state := &mat.VecDense{}
	if err := state.SolveVec(ia, m.StateIntercept(0)); err != nil {
		return nil, nil, &statespace.ConfigError{Op: "init", Matrix: "transition", Msg: fmt.Sprintf("non-stationary transition: %v", err)}
	}

	rqr := matrix.Quad(m.Selection(0), m.StateCov(0))

	// vec(P) = (I - T⊗T)^-1 vec(RQR')
	kron := &mat.Dense{}
	kron.Kronecker(T, T)
	lhs := &mat.Dense{}
	lhs.Sub(matrix.Eye(k*k), kron)

	rhs := mat.NewVecDense(k*k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			rhs.SetVec(i*k+j, rqr.At(i, j))
		}
	}

	vec := &mat.VecDense{}
	if err := vec.SolveVec(lhs, rhs); err != nil {
		return nil, nil, &statespace.ConfigError{Op: "init", Matrix: "transition", Msg: fmt.Sprintf("non-stationary transition: %v", err)}
	}

	cov := mat.NewDense(k, k, vec.RawVector().Data)

	return state, matrix.Sym(cov), nil
}
