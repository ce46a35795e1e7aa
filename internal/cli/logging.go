package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/config"
)

// logLevel resolves the effective level. --verbose and --quiet win over the
// configured level.
func logLevel(configured string, verbose, quiet bool) slog.Level {
	switch {
	case verbose:
		return slog.LevelDebug
	case quiet:
		return slog.LevelWarn
	}
	switch strings.ToLower(configured) {
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

// newLogger builds the run logger. Logs go to w and, when cfg.File is set,
// are also appended to that file. The returned close func releases the file.
func newLogger(w io.Writer, cfg config.LoggingConfig, format string, verbose, quiet bool) (*slog.Logger, func() error, error) {
	closeFn := func() error { return nil }
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(w, f)
		closeFn = f.Close
	}

	if format == "" {
		format = cfg.Format
	}
	opts := &slog.HandlerOptions{Level: logLevel(cfg.Level, verbose, quiet)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closeFn, nil
}
