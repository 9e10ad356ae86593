package main

import (
	"fmt"
	"io"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/model"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Config is a time-invariant state space model and run options read from YAML
type Config struct {
	Design         [][]float64 `yaml:"design"`
	ObsIntercept   []float64   `yaml:"obs_intercept,omitempty"`
	ObsCov         [][]float64 `yaml:"obs_cov,omitempty"`
	Transition     [][]float64 `yaml:"transition"`
	StateIntercept []float64   `yaml:"state_intercept,omitempty"`
	Selection      [][]float64 `yaml:"selection"`
	StateCov       [][]float64 `yaml:"state_cov"`
	Init           InitConfig  `yaml:"init"`
	Options        RunConfig   `yaml:"options"`
}

// InitConfig is initial state distribution
type InitConfig struct {
	Kind       string      `yaml:"kind"`
	State      []float64   `yaml:"state,omitempty"`
	Cov        [][]float64 `yaml:"cov,omitempty"`
	DiffuseCov [][]float64 `yaml:"diffuse_cov,omitempty"`
	Kappa      float64     `yaml:"kappa,omitempty"`
}

// RunConfig configures filter and smoother
type RunConfig struct {
	Filter             string  `yaml:"filter,omitempty"`
	Smooth             string  `yaml:"smooth,omitempty"`
	Collapsed          bool    `yaml:"collapsed,omitempty"`
	TimingInitFiltered bool    `yaml:"timing_init_filtered,omitempty"`
	FallbackUnivariate bool    `yaml:"fallback_univariate,omitempty"`
	Tolerance          float64 `yaml:"tolerance,omitempty"`
	DiffuseTolerance   float64 `yaml:"diffuse_tolerance,omitempty"`
}

// LoadConfig decodes YAML config from r.
func LoadConfig(r io.Reader) (*Config, error) {
	c := &Config{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("decode model config: %w", err)
	}

	return c, nil
}

// Model creates new model from c.
func (c *Config) Model() (*model.Model, error) {
	Z, err := dense("design", c.Design)
	if err != nil {
		return nil, err
	}

	T, err := dense("transition", c.Transition)
	if err != nil {
		return nil, err
	}

	R, err := dense("selection", c.Selection)
	if err != nil {
		return nil, err
	}

	Q, err := sym("state_cov", c.StateCov)
	if err != nil {
		return nil, err
	}

	var H *mat.SymDense
	if c.ObsCov != nil {
		if H, err = sym("obs_cov", c.ObsCov); err != nil {
			return nil, err
		}
	}

	init, err := c.Init.init()
	if err != nil {
		return nil, err
	}

	return model.NewTimeInvariant(Z, vec(c.ObsIntercept), H, T, vec(c.StateIntercept), R, Q, model.WithInit(init))
}

// RunOptions returns run options of c.
func (c *Config) RunOptions() (statespace.Options, error) {
	opts := statespace.Options{
		Collapsed:          c.Options.Collapsed,
		TimingInitFiltered: c.Options.TimingInitFiltered,
		FallbackUnivariate: c.Options.FallbackUnivariate,
		Tolerance:          c.Options.Tolerance,
		DiffuseTolerance:   c.Options.DiffuseTolerance,
	}

	switch c.Options.Filter {
	case "", "conventional":
		opts.Filter = statespace.FilterConventional
	case "univariate":
		opts.Filter = statespace.FilterUnivariate
	default:
		return opts, &statespace.ConfigError{Op: "config", Msg: fmt.Sprintf("unknown filter method: %q", c.Options.Filter)}
	}

	switch c.Options.Smooth {
	case "", "default":
		opts.Smooth = statespace.SmoothDefault
	case "conventional":
		opts.Smooth = statespace.SmoothConventional
	case "classical":
		opts.Smooth = statespace.SmoothClassical
	case "alternative":
		opts.Smooth = statespace.SmoothAlternative
	case "univariate":
		opts.Smooth = statespace.SmoothUnivariate
	default:
		return opts, &statespace.ConfigError{Op: "config", Msg: fmt.Sprintf("unknown smooth method: %q", c.Options.Smooth)}
	}

	return opts, opts.Validate()
}

func (i InitConfig) init() (*model.Init, error) {
	switch i.Kind {
	case "", model.ApproximateDiffuse.String():
		kappa := i.Kappa
		if kappa == 0 {
			kappa = model.DefaultKappa
		}
		return model.NewApproximateDiffuse(vec(i.State), kappa), nil
	case model.Known.String():
		cov, err := sym("init.cov", i.Cov)
		if err != nil {
			return nil, err
		}
		return model.NewKnown(vec(i.State), cov), nil
	case model.ExactDiffuse.String():
		return model.NewExactDiffuse(), nil
	case model.PartialDiffuse.String():
		cov, err := sym("init.cov", i.Cov)
		if err != nil {
			return nil, err
		}
		diffuse, err := sym("init.diffuse_cov", i.DiffuseCov)
		if err != nil {
			return nil, err
		}
		return model.NewPartialDiffuse(vec(i.State), cov, diffuse), nil
	case model.Stationary.String():
		return model.NewStationary(), nil
	}

	return nil, &statespace.ConfigError{Op: "config", Matrix: "init", Msg: fmt.Sprintf("unknown initialization: %q", i.Kind)}
}

func dense(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, &statespace.ConfigError{Op: "config", Matrix: name, Msg: "empty matrix"}
	}

	r, c := len(rows), len(rows[0])
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, &statespace.ConfigError{Op: "config", Matrix: name, Msg: fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), c)}
		}
		data = append(data, row...)
	}

	return mat.NewDense(r, c, data), nil
}

func sym(name string, rows [][]float64) (*mat.SymDense, error) {
	m, err := dense(name, rows)
	if err != nil {
		return nil, err
	}

	if !mat.EqualApprox(m, m.T(), 1e-12) {
		return nil, &statespace.ConfigError{Op: "config", Matrix: name, Msg: "matrix not symmetric"}
	}

	r, _ := m.Dims()
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}

	return s, nil
}

func vec(v []float64) *mat.VecDense {
	if len(v) == 0 {
		return nil
	}

	return mat.NewVecDense(len(v), append([]float64(nil), v...))
}
