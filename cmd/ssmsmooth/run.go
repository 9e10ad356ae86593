package main

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/kalman/kf"
	"github.com/milosgajdos/go-statespace/model"
	"github.com/milosgajdos/go-statespace/sim"
	"github.com/milosgajdos/go-statespace/smooth/ks"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"
)

func (a *app) doFilter(cmd *cobra.Command, args []string) error {
	in, err := a.load(cmd)
	if err != nil {
		return err
	}

	f, err := kf.New(in.m, in.opts)
	if err != nil {
		return err
	}

	fr, err := f.Run(in.obs)
	if err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"method":          fr.Method(),
		"llf":             fr.LogLikelihood(),
		"diffuse_periods": fr.DiffusePeriods(),
	}).Info("filter finished")

	kEndog, kStates, _ := in.m.Dims()

	header := []string{"t"}
	header = append(header, indexed("filtered_state", kStates)...)
	header = append(header, indexed("filtered_state_var", kStates)...)
	header = append(header, named("forecast", in.names)...)
	header = append(header, named("forecast_error", in.names)...)
	header = append(header, "llf")

	llf := fr.LogLikelihoodObs()
	rows := make([][]float64, fr.Nobs())
	for t := range rows {
		row := []float64{float64(t)}
		row = append(row, values(fr.FilteredState(t))...)
		row = append(row, diag(fr.FilteredStateCov(t))...)
		row = append(row, observed(fr.Forecast(t), fr.Space(t), kEndog)...)
		row = append(row, observed(fr.ForecastError(t), fr.Space(t), kEndog)...)
		row = append(row, llf[t])
		rows[t] = row
	}

	return write(cmd, header, rows)
}

func (a *app) doSmooth(cmd *cobra.Command, args []string) error {
	in, err := a.load(cmd)
	if err != nil {
		return err
	}

	f, err := kf.New(in.m, in.opts)
	if err != nil {
		return err
	}

	fr, err := f.Run(in.obs)
	if err != nil {
		return err
	}

	k, err := ks.New(in.m, in.opts)
	if err != nil {
		return err
	}

	sr, err := k.Smooth(fr)
	if err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"filter": fr.Method(),
		"smooth": sr.Method(),
		"llf":    fr.LogLikelihood(),
	}).Info("smoother finished")

	_, kStates, _ := in.m.Dims()

	header := []string{"t"}
	header = append(header, indexed("smoothed_state", kStates)...)
	header = append(header, indexed("smoothed_state_var", kStates)...)
	header = append(header, named("smoothed_forecast", in.names)...)

	rows := make([][]float64, sr.Nobs())
	for t := range rows {
		row := []float64{float64(t)}
		row = append(row, values(sr.SmoothedState(t))...)
		row = append(row, diag(sr.SmoothedStateCov(t))...)
		row = append(row, values(sr.SmoothedForecast(t))...)
		rows[t] = row
	}

	if err := write(cmd, header, rows); err != nil {
		return err
	}

	return a.plot(cmd, in, fr, sr, nil)
}

func (a *app) doSimulate(cmd *cobra.Command, args []string) error {
	in, err := a.load(cmd)
	if err != nil {
		return err
	}

	seed, err := cmd.Flags().GetUint64("seed")
	if err != nil {
		return err
	}

	n, err := cmd.Flags().GetInt("draws")
	if err != nil {
		return err
	}

	s, err := sim.New(in.m, in.obs, in.opts)
	if err != nil {
		return err
	}

	fr, sr, err := s.Run()
	if err != nil {
		return err
	}

	draws, err := s.DrawN(cmd.Context(), n, seed, fr, sr)
	if err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"draws": n,
		"seed":  seed,
	}).Info("simulation finished")

	_, kStates, kPosdef := in.m.Dims()

	header := []string{"draw", "t"}
	header = append(header, indexed("state", kStates)...)
	header = append(header, named("measurement_disturbance", in.names)...)
	header = append(header, indexed("state_disturbance", kPosdef)...)

	var rows [][]float64
	for i, d := range draws {
		for t := 0; t < d.Nobs(); t++ {
			row := []float64{float64(i), float64(t)}
			row = append(row, values(d.State(t))...)
			row = append(row, values(d.MeasurementDisturbance(t))...)
			row = append(row, values(d.StateDisturbance(t))...)
			rows = append(rows, row)
		}
	}

	if err := write(cmd, header, rows); err != nil {
		return err
	}

	return a.plot(cmd, in, fr, sr, draws)
}

// plot saves plot of the observed series selected by the series flag
// against its filtered, smoothed and simulated signal d + Z*x.
func (a *app) plot(cmd *cobra.Command, in *input, fr *kf.Results, sr *ks.Results, draws []*sim.Draw) error {
	path, err := cmd.Flags().GetString("plot")
	if err != nil || path == "" {
		return err
	}

	j, err := cmd.Flags().GetInt("series")
	if err != nil {
		return err
	}

	kEndog, nobs := in.obs.Dims()
	if j < 0 || j >= kEndog {
		return fmt.Errorf("invalid series index: %d", j)
	}

	observed := make([]float64, nobs)
	filtered := make([]float64, nobs)
	smoothed := make([]float64, nobs)
	simulated := make([][]float64, len(draws))
	for i := range simulated {
		simulated[i] = make([]float64, nobs)
	}

	for t := 0; t < nobs; t++ {
		y, ok := in.obs.Value(j, t)
		if !ok {
			y = math.NaN()
		}
		observed[t] = y

		if filtered[t], err = signal(in.m, t, j, fr.FilteredState(t)); err != nil {
			return err
		}
		if smoothed[t], err = signal(in.m, t, j, sr.SmoothedState(t)); err != nil {
			return err
		}
		for i, d := range draws {
			if simulated[i][t], err = signal(in.m, t, j, d.State(t)); err != nil {
				return err
			}
		}
	}

	p, err := sim.NewSeriesPlot(in.names[j], observed, filtered, smoothed, simulated...)
	if err != nil {
		return err
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}

	a.log.WithField("plot", path).Info("plot saved")

	return nil
}

func signal(m statespace.Representation, t, j int, x mat.Vector) (float64, error) {
	y, err := model.Observe(m, t, x, nil)
	if err != nil {
		return 0, err
	}

	return y.AtVec(j), nil
}

func write(cmd *cobra.Command, header []string, rows [][]float64) error {
	w, err := output(cmd)
	if err != nil {
		return err
	}

	if err := WriteCSV(w, header, rows); err != nil {
		w.Close()
		return fmt.Errorf("write output: %w", err)
	}

	return w.Close()
}

// observed returns v if it is expressed in the observed space and NaNs otherwise.
func observed(v *mat.VecDense, space statespace.Space, kEndog int) []float64 {
	out := make([]float64, kEndog)
	if space != statespace.Observed || v == nil || v.Len() != kEndog {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	for i := range out {
		out[i] = v.AtVec(i)
	}

	return out
}

func diag(s mat.Symmetric) []float64 {
	n := s.SymmetricDim()
	out := make([]float64, n)
	for i := range out {
		out[i] = s.At(i, i)
	}

	return out
}

func indexed(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s_%d", prefix, i)
	}

	return out
}

func named(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = prefix + "_" + name
	}

	return out
}

func values(v mat.Vector) []float64 {
	return mat.Col(nil, 0, v)
}
