package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/homecore/internal/infrastructure/config"
)

// serviceName is attached to every record.
const serviceName = "homecore"

// Logger wraps slog.Logger with homecore defaults.
//
// It satisfies the small Logger interfaces declared by the bridge,
// automation and mqtt packages.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the configured output.
//
// It configures:
//   - Output format (JSON unless logging.format is "text")
//   - Level filtering (debug, info, warn, error; unknown means info)
//   - Default fields (service "homecore", version)
//   - Destination (stdout, or stderr when logging.output is "stderr")
//
// Parameters:
//   - cfg: logging section of config.yaml
//   - version: build version attached to every record
//
// Returns:
//   - *Logger: ready for use, safe for concurrent callers
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return NewWithWriter(cfg, version, output)
}

// NewWithWriter creates a Logger writing to w.
//
// Format "text" selects the human-readable handler; anything else is JSON.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
// Unknown values fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Component returns a Logger tagged with the subsystem name, so records can
// be filtered per component (bridge, automation, api, ...).
//
//	bridgeLog := logger.Component("bridge")
//	bridgeLog.Info("devices announced", "count", 12)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates the logger used before configuration is loaded:
// JSON on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
