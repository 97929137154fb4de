package main

import (
	"github.com/spf13/cobra"

	"meridian/internal/backend"
)

var monteCarloFlags struct {
	format string
}

var monteCarloCmd = &cobra.Command{
	Use:     "montecarlo",
	Aliases: []string{"monte-carlo"},
	Short:   "Show the Monte Carlo risk distribution",
	Args:    cobra.NoArgs,
	RunE:    runMonteCarlo,
}

func init() {
	monteCarloCmd.Flags().StringVar(&monteCarloFlags.format, "format", formatText, "Output format: text, json or yaml")
}

func runMonteCarlo(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(monteCarloFlags.format); err != nil {
		return err
	}
	client, err := backend.New(cfg.BackendURL, cfg.HTTPTimeout)
	if err != nil {
		return err
	}
	mc, err := client.MonteCarlo(cmd.Context())
	if err != nil {
		return err
	}
	if monteCarloFlags.format != formatText {
		return writeStructured(cmd.OutOrStdout(), monteCarloFlags.format, mc)
	}
	writeMonteCarlo(cmd.OutOrStdout(), mc)
	return nil
}
