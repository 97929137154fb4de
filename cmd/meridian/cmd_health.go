package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meridian/internal/backend"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, _ []string) error {
	client, err := backend.New(cfg.BackendURL, cfg.HTTPTimeout)
	if err != nil {
		return err
	}
	h, err := client.Health(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", client.BaseURL(), h.Status, h.System)
	return nil
}
