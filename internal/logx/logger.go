// Package logx builds the process-wide structured logger: a slog text
// handler over stdout plus an optional log file, short time format.
// Room/Hub/Registry code takes a *slog.Logger field explicitly rather
// than reaching for an ambient global — New just builds the handler.
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// New builds a *slog.Logger at the given level ("debug", "info", "warn",
// "error"), writing to stdout and, if logFile is non-empty, appending to
// that file as well.
func New(level string, logFile string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logx: open log file: %w", err)
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	return slog.New(handler), nil
}
