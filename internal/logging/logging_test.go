package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestMultiHandlerRoutesByLevel(t *testing.T) {
	var consoleBuf, fileBuf bytes.Buffer
	h := &multiHandler{
		console: slog.NewTextHandler(&consoleBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		file:    slog.NewTextHandler(&fileBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	logger := slog.New(h)

	logger.Debug("quiet detail")
	logger.Info("normal event")

	if strings.Contains(consoleBuf.String(), "quiet detail") {
		t.Error("debug record reached the console handler")
	}
	if !strings.Contains(consoleBuf.String(), "normal event") {
		t.Error("info record missing from the console handler")
	}
	if !strings.Contains(fileBuf.String(), "quiet detail") {
		t.Error("debug record missing from the file handler")
	}
	if !strings.Contains(fileBuf.String(), "normal event") {
		t.Error("info record missing from the file handler")
	}
}

func TestMultiHandlerToleratesNilHandlers(t *testing.T) {
	h := &multiHandler{}
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Error("empty handler reported enabled")
	}

	var buf bytes.Buffer
	h = &multiHandler{
		file: slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	logger := slog.New(h).With("component", "test")
	logger.WithGroup("inner").Info("event", "k", "v")

	if !strings.Contains(buf.String(), "component=test") {
		t.Errorf("WithAttrs lost attributes: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
