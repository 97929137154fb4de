package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"meridian/internal/config"
	"meridian/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	backendURL string
	logLevel   string
	logFormat  string
}

// cfg is loaded once per invocation by the root pre-run hook.
var cfg *config.Config

var logFile io.Closer

var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Real-time project risk dashboard client",
	Long: "Meridian streams a five-agent project risk analysis, falls back to the\n" +
		"snapshot endpoint when the stream breaks, and runs what-if simulations.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
	},
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "YAML config file (default $MERIDIAN_CONFIG)")
	pf.StringVar(&rootFlags.backendURL, "backend", "", "Backend base URL, overrides config")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "text or json")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(monteCarloCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.Version = version
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(rootFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if v := strings.TrimSpace(rootFlags.backendURL); v != "" {
		if loaded, err = loaded.WithBackend(v); err != nil {
			return err
		}
	}
	if rootFlags.logLevel != "" {
		loaded.Log.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		loaded.Log.Format = rootFlags.logFormat
	}

	level, err := logging.ParseLevel(loaded.Log.Level)
	if err != nil {
		return err
	}
	writers := []io.Writer{cmd.ErrOrStderr()}
	if loaded.Log.File != "" {
		f, err := logging.OpenFile(loaded.Log.File)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		writers = append(writers, f)
	}
	logging.Init(level, loaded.Log.Format, writers...)
	cfg = loaded
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
