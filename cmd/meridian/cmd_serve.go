package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"meridian/internal/app"
)

var serveFlags struct {
	port    string
	noRun   bool
	drainIn time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API and live state websocket",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.port, "port", "", "Listen address, overrides config")
	f.BoolVar(&serveFlags.noRun, "no-run", false, "Do not start an analysis on boot")
	f.DurationVar(&serveFlags.drainIn, "shutdown-timeout", 5*time.Second, "Graceful shutdown deadline")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveFlags.port != "" {
		cfg.Port = serveFlags.port
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Start()
	}()
	if !serveFlags.noRun {
		if runID, err := a.Session.StartRun(cmd.Context()); err != nil {
			slog.Warn("initial run not started", "error", err)
		} else {
			slog.Info("initial run started", "run_id", runID)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
		slog.Info("shutting down server")
	case serveErr = <-errCh:
		if serveErr != nil {
			slog.Error("server error", "error", serveErr)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), serveFlags.drainIn)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		return err
	}
	slog.Info("server exiting")
	return serveErr
}
