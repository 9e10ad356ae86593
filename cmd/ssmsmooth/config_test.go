package main

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/model"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	assert := assert.New(t)

	f, err := os.Open("testdata/trend.yaml")
	assert.NoError(err)
	defer f.Close()

	c, err := LoadConfig(f)
	assert.NoError(err)
	assert.Equal("exact_diffuse", c.Init.Kind)

	m, err := c.Model()
	assert.NoError(err)

	kEndog, kStates, kPosdef := m.Dims()
	assert.Equal(2, kEndog)
	assert.Equal(2, kStates)
	assert.Equal(2, kPosdef)
	assert.Equal(0.5, m.ObsIntercept(0).AtVec(1))
	assert.Equal(0.1, m.ObsCov(0).At(1, 0))
	assert.NotNil(m.Init().DiffuseCov())

	opts, err := c.RunOptions()
	assert.NoError(err)
	assert.Equal(statespace.FilterConventional, opts.Filter)
	assert.Equal(statespace.SmoothDefault, opts.Smooth)

	// unknown fields are rejected
	_, err = LoadConfig(strings.NewReader("desing: [[1]]\n"))
	assert.Error(err)
}

func TestConfigInvalid(t *testing.T) {
	assert := assert.New(t)

	base := Config{
		Design:     [][]float64{{1}},
		Transition: [][]float64{{1}},
		Selection:  [][]float64{{1}},
		StateCov:   [][]float64{{1}},
	}

	var cerr *statespace.ConfigError

	c := base
	c.Transition = [][]float64{{1, 0}, {0}}
	_, err := c.Model()
	assert.True(errors.As(err, &cerr))

	c = base
	c.ObsCov = [][]float64{{1, 0.2}, {0.1, 1}}
	_, err = c.Model()
	assert.True(errors.As(err, &cerr))

	c = base
	c.Init.Kind = "flat"
	_, err = c.Model()
	assert.True(errors.As(err, &cerr))

	c = base
	c.Options.Filter = "joint"
	_, err = c.RunOptions()
	assert.True(errors.As(err, &cerr))

	c = base
	c.Options.Smooth = "univariate"
	_, err = c.RunOptions()
	assert.True(errors.As(err, &cerr))
}

func TestConfigInit(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		init InitConfig
		kind model.InitKind
	}{
		{init: InitConfig{}, kind: model.ApproximateDiffuse},
		{init: InitConfig{Kind: "known", State: []float64{1}, Cov: [][]float64{{2}}}, kind: model.Known},
		{init: InitConfig{Kind: "exact_diffuse"}, kind: model.ExactDiffuse},
		{init: InitConfig{Kind: "partial_diffuse", Cov: [][]float64{{0}}, DiffuseCov: [][]float64{{1}}}, kind: model.PartialDiffuse},
		{init: InitConfig{Kind: "stationary"}, kind: model.Stationary},
	} {
		i, err := test.init.init()
		assert.NoError(err)
		assert.Equal(test.kind, i.Kind())
	}
}
