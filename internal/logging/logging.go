// Package logging builds the runner's slog loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/droidrun-stack/droidrun-runner/internal/config"
)

// Attribute keys shared by every run-scoped log line.
const (
	KeyRunID  = "run_id"
	KeyDevice = "device"
)

// NewFromConfig creates the process logger. Output goes to stderr and, when
// logging.file is set, is also appended to that file. The returned closer is
// non-nil only when a log file was opened.
func NewFromConfig(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer

	if logPath := cfg.LogFile(); logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, nil, err
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		w, closer = io.MultiWriter(os.Stderr, file), file
	}

	return slog.New(newHandler(cfg.Logging.Format, w, parseLevel(cfg.Logging.Level))), closer, nil
}

// NewForTest creates a silent logger for tests.
func NewForTest() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ForRun scopes logger to one run on one device.
func ForRun(logger *slog.Logger, runID, device string) *slog.Logger {
	return logger.With(KeyRunID, runID, KeyDevice, device)
}

func parseLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(format config.LogFormat, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redactKeys}
	if format == config.LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// redactKeys masks any attribute that carries a provider API key.
func redactKeys(groups []string, a slog.Attr) slog.Attr {
	if strings.HasSuffix(strings.ToUpper(a.Key), "_API_KEY") && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}
