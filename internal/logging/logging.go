package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Init configures the global slog default. Every writer receives every record;
// with no writers os.Stderr is used. Format is "text" or "json".
func Init(level slog.Level, format string, w ...io.Writer) {
	writers := make([]io.Writer, 0, len(w))
	for _, wr := range w {
		if wr != nil {
			writers = append(writers, wr)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	opts := &slog.HandlerOptions{Level: level}
	handlers := make([]slog.Handler, 0, len(writers))
	for _, wr := range writers {
		switch format {
		case "json":
			handlers = append(handlers, slog.NewJSONHandler(wr, opts))
		default:
			handlers = append(handlers, slog.NewTextHandler(wr, opts))
		}
	}

	if len(handlers) == 1 {
		slog.SetDefault(slog.New(handlers[0]))
		return
	}
	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
}

// New returns a logger with a "component" attribute for package-scoped logging.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}

// ParseLevel maps debug/info/warn/error onto slog levels. Empty means info.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// OpenFile opens path for appending log output.
func OpenFile(path string) (*os.File, error) {
	return os.OpenFile(strings.TrimSpace(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
