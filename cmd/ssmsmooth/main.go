// Command ssmsmooth filters, smooths and simulates linear Gaussian state space models
// described by a YAML model file over observations read from a CSV file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(NewCmd().ExecuteContext(context.Background()))
}

// app holds state shared by the subcommands
type app struct {
	log *logrus.Logger
}

// NewCmd creates ssmsmooth root command.
func NewCmd() *cobra.Command {
	a := &app{log: logrus.New()}

	rootCmd := &cobra.Command{
		Use:           "ssmsmooth [command] [flags]",
		Short:         "ssmsmooth runs Kalman filter, smoother and simulation smoother",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: a.setupLog,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.PersistentFlags().StringP("model", "m", "", "`<ModelFile>` path to YAML model")
	rootCmd.PersistentFlags().StringP("data", "d", "", "`<DataFile>` path to CSV observations")
	rootCmd.PersistentFlags().StringP("out", "o", "", "`<OutFile>` path to CSV output; stdout if empty")
	rootCmd.PersistentFlags().String("log-level", "info", "`<Level>` log level")
	rootCmd.MarkPersistentFlagRequired("model")
	rootCmd.MarkPersistentFlagRequired("data")

	filterCmd := &cobra.Command{
		Use:   "filter [flags]",
		Short: "Run Kalman filter",
		RunE:  a.doFilter,
	}

	smoothCmd := &cobra.Command{
		Use:   "smooth [flags]",
		Short: "Run Kalman filter and smoother",
		RunE:  a.doSmooth,
	}
	plotFlags(smoothCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate [flags]",
		Short: "Draw states from the simulation smoother",
		RunE:  a.doSimulate,
	}
	simulateCmd.Flags().Uint64("seed", 1, "`<Seed>` random seed")
	simulateCmd.Flags().Int("draws", 100, "`<Draws>` number of draws")
	plotFlags(simulateCmd)

	rootCmd.AddCommand(
		filterCmd,
		smoothCmd,
		simulateCmd,
	)

	return rootCmd
}

func plotFlags(cmd *cobra.Command) {
	cmd.Flags().String("plot", "", "`<PlotFile>` path to PNG plot of a single series")
	cmd.Flags().Int("series", 0, "`<Series>` index of the plotted series")
}

func (a *app) setupLog(cmd *cobra.Command, args []string) error {
	lvl, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}

	level, err := logrus.ParseLevel(lvl)
	if err != nil {
		return err
	}

	a.log.SetOutput(cmd.ErrOrStderr())
	a.log.SetLevel(level)
	a.log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return nil
}

// input is model, observations and options read from the command flags
type input struct {
	m     *model.Model
	obs   *model.Observations
	names []string
	opts  statespace.Options
}

func (a *app) load(cmd *cobra.Command) (*input, error) {
	modelPath, err := cmd.Flags().GetString("model")
	if err != nil {
		return nil, err
	}

	dataPath, err := cmd.Flags().GetString("data")
	if err != nil {
		return nil, err
	}

	mf, err := os.Open(modelPath)
	if err != nil {
		return nil, err
	}
	defer mf.Close()

	c, err := LoadConfig(mf)
	if err != nil {
		return nil, err
	}

	m, err := c.Model()
	if err != nil {
		return nil, err
	}

	opts, err := c.RunOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = a.log

	df, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	defer df.Close()

	obs, names, err := ReadCSV(df)
	if err != nil {
		return nil, err
	}

	if err := model.CheckObservations(m, obs); err != nil {
		return nil, err
	}

	kEndog, nobs := obs.Dims()
	a.log.WithFields(logrus.Fields{
		"model":  modelPath,
		"data":   dataPath,
		"series": kEndog,
		"nobs":   nobs,
	}).Info("loaded model and observations")

	return &input{m: m, obs: obs, names: names, opts: opts}, nil
}

// output opens the output file or returns stdout.
func output(cmd *cobra.Command) (io.WriteCloser, error) {
	path, err := cmd.Flags().GetString("out")
	if err != nil {
		return nil, err
	}

	if path == "" {
		return nopCloser{cmd.OutOrStdout()}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
