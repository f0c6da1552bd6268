// Package logging builds the libsync [log/slog] logger and carries it through
// contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hupe1980/libsync/internal/config"
)

// Rotation settings for the optional log file.
const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
	logFileMaxAgeDays = 28
)

type ctxKey struct{}

// Setup builds the process logger from cfg and installs it with
// slog.SetDefault. Records go to stderr and, when cfg.LogFile is set, to a
// rotating log file as well.
func Setup(cfg *config.Config) *slog.Logger {
	var w io.Writer = os.Stderr

	if cfg.LogFile != "" {
		w = io.MultiWriter(os.Stderr, NewRotatingFile(cfg.LogFile))
	}

	return SetupWithWriter(cfg, w)
}

// SetupWithWriter is Setup with an explicit destination.
func SetupWithWriter(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := slog.New(newHandler(cfg.LogFormat, w, &slog.HandlerOptions{
		Level: ParseLevel(cfg.EffectiveLogLevel()),
	}))
	slog.SetDefault(logger)

	return logger
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if format == config.LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

// NewRotatingFile returns a size-rotated, compressed log file writer.
func NewRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
		Compress:   true,
	}
}

// ParseLevel maps a configured level name onto slog. Unknown names map to
// info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}

	return l
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewContext returns a child context carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from ctx, falling back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}
