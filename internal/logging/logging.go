// Package logging sets up the process-wide slog logger and hands out
// per-component loggers that follow it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"lightnode/internal/config"
)

var level = new(slog.LevelVar) // supports runtime changes via SetLevel

// Init configures the global slog logger on stderr. Call once at startup.
// Unknown levels fall back to info, unknown formats to text; Validate on
// the config rejects them earlier.
func Init(cfg config.LoggingConfig) {
	initTo(os.Stderr, cfg)
}

func initTo(w io.Writer, cfg config.LoggingConfig) {
	parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// For returns a logger tagged with the given component name.
// The returned logger delegates to slog.Default() on every call, so
// package-level loggers pick up Init and CaptureForTest made after they
// were created.
func For(component string) *slog.Logger {
	return slog.New(&dynamicHandler{component: component})
}

// SetLevel changes the log level at runtime. Useful in tests.
func SetLevel(l slog.Level) {
	level.Set(l)
}

func parseLevel(s string) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// dynamicHandler resolves slog.Default().Handler() per record, tags it
// with the component, and replays any With/WithGroup calls on top.
type dynamicHandler struct {
	component string
	wrap      []func(slog.Handler) slog.Handler
}

func (h *dynamicHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, l)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.Default().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	for _, w := range h.wrap {
		out = w(out)
	}
	return out.Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *dynamicHandler) with(w func(slog.Handler) slog.Handler) *dynamicHandler {
	wrap := make([]func(slog.Handler) slog.Handler, len(h.wrap), len(h.wrap)+1)
	copy(wrap, h.wrap)
	return &dynamicHandler{component: h.component, wrap: append(wrap, w)}
}
