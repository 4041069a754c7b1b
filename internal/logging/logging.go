// Package logging installs the process-wide slog logger: a colored console
// handler for operators and a rotated JSON file for debugging sessions after
// the fact.
package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Setup.
type Options struct {
	Level      string // console level: debug, info, warn, error
	File       string // JSON log path; empty disables the file handler
	MaxSizeMB  int    // rotate after this size
	MaxBackups int    // rotated files kept
	Console    bool   // log to stderr
}

// Setup installs the default logger and returns a close func for the log
// file. Safe to call with everything disabled; logging then goes nowhere.
func Setup(opts Options) (func(), error) {
	var console, file slog.Handler
	var lj *lumberjack.Logger

	if opts.Console {
		console = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      parseLevel(opts.Level),
			TimeFormat: time.TimeOnly,
		})
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		lj = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			LocalTime:  true,
		}
		file = slog.NewJSONHandler(lj, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(&multiHandler{console: console, file: file}))

	cleanup := func() {
		if lj != nil {
			if err := lj.Close(); err != nil {
				slog.Error("failed to close log file", "error", err)
			}
		}
	}
	return cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// multiHandler dispatches log records to the console and file handlers by
// their own level gates. Either handler may be nil.
type multiHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.console != nil && h.console.Enabled(ctx, level) {
		return true
	}
	return h.file != nil && h.file.Enabled(ctx, level)
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.file != nil && h.file.Enabled(ctx, r.Level) {
		if err := h.file.Handle(ctx, r); err != nil {
			return err
		}
	}
	if h.console != nil && h.console.Enabled(ctx, r.Level) {
		if err := h.console.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &multiHandler{}
	if h.console != nil {
		next.console = h.console.WithAttrs(attrs)
	}
	if h.file != nil {
		next.file = h.file.WithAttrs(attrs)
	}
	return next
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := &multiHandler{}
	if h.console != nil {
		next.console = h.console.WithGroup(name)
	}
	if h.file != nil {
		next.file = h.file.WithGroup(name)
	}
	return next
}
