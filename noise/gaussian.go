package noise

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/milosgajdos/go-statespace/matrix"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is gaussian noise drawn from a seeded source.
// Gaussian is not safe for concurrent use.
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov *mat.SymDense
	// seed seeds the random source
	seed uint64
	// buf holds a single sample
	buf []float64
}

// NewGaussian creates new Gaussian noise with given mean and covariance seeded with seed.
// It returns error if cov is not positive definite or its dimensions do not match mean.
func NewGaussian(mean []float64, cov mat.Symmetric, seed uint64) (*Gaussian, error) {
	if cov == nil || cov.SymmetricDim() != len(mean) {
		return nil, fmt.Errorf("invalid Gaussian dimensions: mean %d", len(mean))
	}

	g := &Gaussian{
		mean: append([]float64(nil), mean...),
		cov:  matrix.CloneSym(cov),
		seed: seed,
		buf:  make([]float64, len(mean)),
	}

	if err := g.Reset(); err != nil {
		return nil, err
	}

	return g, nil
}

// NewStandard creates new standard normal noise of given size seeded with seed.
func NewStandard(size int, seed uint64) (*Gaussian, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", size)
	}

	cov := mat.NewSymDense(size, nil)
	for i := 0; i < size; i++ {
		cov.SetSym(i, i, 1.0)
	}

	return NewGaussian(make([]float64, size), cov, seed)
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Variates fills dst with consecutive components of Gaussian samples and returns it.
// Standard Gaussian noise fills dst with independent standard normal variates.
func (g *Gaussian) Variates(dst []float64) []float64 {
	for i := 0; i < len(dst); i += len(g.buf) {
		g.dist.Rand(g.buf)
		copy(dst[i:], g.buf)
	}

	return dst
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	return matrix.CloneSym(g.cov)
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	mean := make([]float64, len(g.mean))
	copy(mean, g.mean)

	return mean
}

// Seed returns Gaussian seed.
func (g *Gaussian) Seed() uint64 {
	return g.seed
}

// Reset reseeds Gaussian noise: samples drawn after Reset repeat the sequence drawn after NewGaussian.
// It returns error if it fails to reset the noise.
func (g *Gaussian) Reset() error {
	dist, ok := distmv.NewNormal(g.mean, g.cov, rand.NewSource(g.seed))
	if !ok {
		return fmt.Errorf("failed to create Gaussian noise: covariance not positive definite")
	}
	g.dist = dist

	return nil
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
