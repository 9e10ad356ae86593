package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/milosgajdos/go-statespace/model"
	"gonum.org/v1/gonum/mat"
)

// ReadCSV reads observations from r. The first row holds series names,
// every following row holds observations of a single time step.
// Empty, NA and NaN cells are missing.
func ReadCSV(r io.Reader) (*model.Observations, []string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}

	if len(records) < 2 {
		return nil, nil, fmt.Errorf("read csv: expected header and at least one row")
	}

	names := records[0]
	kEndog, nobs := len(names), len(records)-1

	y := mat.NewDense(kEndog, nobs, nil)
	present := make([][]bool, nobs)

	for t, rec := range records[1:] {
		present[t] = make([]bool, kEndog)
		for i, cell := range rec {
			cell = strings.TrimSpace(cell)
			switch strings.ToUpper(cell) {
			case "", "NA", "NAN":
				y.Set(i, t, math.NaN())
				continue
			}

			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("read csv: row %d column %q: %w", t+1, names[i], err)
			}
			y.Set(i, t, v)
			present[t][i] = true
		}
	}

	obs, err := model.NewObservations(y, present)
	if err != nil {
		return nil, nil, err
	}

	return obs, names, nil
}

// WriteCSV writes header and rows to w.
func WriteCSV(w io.Writer, header []string, rows [][]float64) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(header))
	for _, row := range rows {
		for i, v := range row {
			rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec[:len(row)]); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
