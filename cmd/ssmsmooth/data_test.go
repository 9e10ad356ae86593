package main

import (
	"bytes"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadCSV(t *testing.T) {
	assert := assert.New(t)

	f, err := os.Open("testdata/trend.csv")
	assert.NoError(err)
	defer f.Close()

	obs, names, err := ReadCSV(f)
	assert.NoError(err)
	assert.Equal([]string{"sales", "orders"}, names)

	kEndog, nobs := obs.Dims()
	assert.Equal(2, kEndog)
	assert.Equal(8, nobs)

	v, ok := obs.Value(1, 0)
	assert.True(ok)
	assert.Equal(1.9, v)

	assert.False(obs.IsPresent(1, 1))
	assert.True(obs.Missing(2))
	assert.Equal([]int{0}, obs.Present(5))

	for _, in := range []string{
		"a,b\n",
		"a,b\n1,x\n",
		"a,b\n1,2,3\n",
	} {
		_, _, err := ReadCSV(strings.NewReader(in))
		assert.Error(err)
	}
}

func TestWriteCSV(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	err := WriteCSV(&buf, []string{"t", "x"}, [][]float64{{0, 1.5}, {1, math.NaN()}})
	assert.NoError(err)
	assert.Equal("t,x\n0,1.5\n1,NaN\n", buf.String())
}
