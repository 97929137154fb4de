package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"meridian/internal/app"
	"meridian/internal/simulation"
)

var simulateFlags struct {
	batch  bool
	format string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate [type count]",
	Short: "Run a what-if mutation against the current project",
	Long: "Simulate one mutation, for example 'meridian simulate add_developers 2',\n" +
		"or the standard batch of what-ifs with --batch.\n" +
		"Types: add_developers, extend_deadline, remove_scope, close_prs.",
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.BoolVar(&simulateFlags.batch, "batch", false, "Run the standard scenarios concurrently")
	f.StringVar(&simulateFlags.format, "format", formatText, "Output format: text, json or yaml")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := checkFormat(simulateFlags.format); err != nil {
		return err
	}
	scenarios, err := simulateArgs(args)
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ms := make([]simulation.Mutation, len(scenarios))
	for i, s := range scenarios {
		ms[i] = s.Mutation
	}
	outcomes := a.Simulator.SimulateBatch(cmd.Context(), ms)

	out := cmd.OutOrStdout()
	if simulateFlags.format != formatText {
		return writeStructured(out, simulateFlags.format, batchView(scenarios, outcomes))
	}
	failed := 0
	for i, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(out, "%s: %v\n", scenarios[i].Label, o.Err)
			continue
		}
		writeResult(out, scenarios[i].Label, o.Result)
	}
	if failed == len(outcomes) {
		return fmt.Errorf("all %d simulations failed", failed)
	}
	return nil
}

// simulateArgs resolves the positional arguments, or the standard batch.
func simulateArgs(args []string) ([]simulation.Scenario, error) {
	if simulateFlags.batch {
		if len(args) > 0 {
			return nil, fmt.Errorf("--batch takes no arguments")
		}
		return simulation.DefaultScenarios(), nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("want <type> <count>, got %d argument(s)", len(args))
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: count %q is not an integer", simulation.ErrInvalidMutation, args[1])
	}
	m, err := simulation.ParseMutation(args[0], n)
	if err != nil {
		return nil, err
	}
	return []simulation.Scenario{{Label: args[0], Mutation: m}}, nil
}

type batchEntry struct {
	Label  string             `json:"label" yaml:"label"`
	Result *simulation.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string             `json:"error,omitempty" yaml:"error,omitempty"`
}

func batchView(scenarios []simulation.Scenario, outcomes []simulation.BatchOutcome) []batchEntry {
	out := make([]batchEntry, len(outcomes))
	for i, o := range outcomes {
		out[i] = batchEntry{Label: scenarios[i].Label, Result: o.Result}
		if o.Err != nil {
			out[i].Error = o.Err.Error()
		}
	}
	return out
}
