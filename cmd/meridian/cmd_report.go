package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"meridian/internal/archive"
)

var reportFlags struct {
	format string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Browse archived analysis reports",
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived run IDs",
	Args:  cobra.NoArgs,
	RunE:  runReportList,
}

var reportShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one archived report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

func init() {
	reportCmd.PersistentFlags().StringVar(&reportFlags.format, "format", formatText, "Output format: text, json or yaml")
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
}

func runReportList(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(reportFlags.format); err != nil {
		return err
	}
	store, err := archive.Open(cmd.Context(), cfg.ArchiveStore())
	if err != nil {
		return err
	}
	defer store.Close()
	ids, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if reportFlags.format != formatText {
		return writeStructured(out, reportFlags.format, ids)
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No archived reports.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func runReportShow(cmd *cobra.Command, args []string) error {
	if err := checkFormat(reportFlags.format); err != nil {
		return err
	}
	store, err := archive.Open(cmd.Context(), cfg.ArchiveStore())
	if err != nil {
		return err
	}
	defer store.Close()
	report, err := store.Get(cmd.Context(), args[0])
	if errors.Is(err, archive.ErrNotFound) {
		return fmt.Errorf("no report for run %q", args[0])
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if reportFlags.format != formatText {
		return writeStructured(out, reportFlags.format, report)
	}
	fmt.Fprintf(out, "Archived:  %s\n", report.ArchivedAt.Format("2006-01-02 15:04:05Z07:00"))
	writeSummary(out, report.State)
	return nil
}
