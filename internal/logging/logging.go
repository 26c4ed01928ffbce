// Package logging builds the process logger: JSON records on stdout, tee'd to
// a size-rotated file when one is configured.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. An empty File disables the file sink.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a JSON logger writing to out and, when opts.File is set, to a
// rotating file. The returned func closes the file sink.
func New(out io.Writer, opts Options) (*slog.Logger, func() error) {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	closer := func() error { return nil }

	if opts.File == "" {
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), closer
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		logger := slog.New(slog.NewJSONHandler(out, handlerOpts))
		logger.Warn("log file disabled",
			slog.String("file", opts.File),
			slog.String("error", err.Error()),
		)
		return logger, closer
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	w := io.MultiWriter(out, file)
	return slog.New(slog.NewJSONHandler(w, handlerOpts)), file.Close
}
