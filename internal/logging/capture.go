package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Capture collects log entries for test assertions. CaptureForTest installs
// it as the global handler; Restore puts the previous one back.
type Capture struct {
	mu      sync.Mutex
	entries []entry

	prev      *slog.Logger
	prevLevel slog.Level
}

// entry is one captured record with the handler attributes (such as the
// component tag) already merged into its own.
type entry struct {
	level slog.Level
	msg   string
	attrs []slog.Attr
}

// CaptureForTest routes every log call, at every level, into a Capture.
func CaptureForTest() *Capture {
	c := &Capture{
		prev:      slog.Default(),
		prevLevel: level.Level(),
	}
	slog.SetDefault(slog.New(&captureHandler{capture: c}))
	SetLevel(slog.LevelDebug)
	return c
}

// Restore reinstates the previous global logger and log level.
func (c *Capture) Restore() {
	slog.SetDefault(c.prev)
	level.Set(c.prevLevel)
}

// Has reports whether an entry at lvl has a message containing msg.
func (c *Capture) Has(lvl slog.Level, msg string) bool {
	_, ok := c.find(func(e entry) bool {
		return e.level == lvl && strings.Contains(e.msg, msg)
	})
	return ok
}

// Attr returns attribute key of the first entry whose message contains msg
// and that carries key.
func (c *Capture) Attr(msg, key string) (slog.Value, bool) {
	var val slog.Value
	_, ok := c.find(func(e entry) bool {
		if !strings.Contains(e.msg, msg) {
			return false
		}
		for _, a := range e.attrs {
			if a.Key == key {
				val = a.Value
				return true
			}
		}
		return false
	})
	return val, ok
}

func (c *Capture) find(match func(entry) bool) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if match(e) {
			return e, true
		}
	}
	return entry{}, false
}

// captureHandler flattens groups: tests look attributes up by bare key.
type captureHandler struct {
	capture *Capture
	attrs   []slog.Attr
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	e := entry{level: r.Level, msg: r.Message}
	r.Attrs(func(a slog.Attr) bool {
		e.attrs = append(e.attrs, slog.Attr{Key: a.Key, Value: a.Value.Resolve()})
		return true
	})
	e.attrs = append(e.attrs, h.attrs...)

	h.capture.mu.Lock()
	h.capture.entries = append(h.capture.entries, e)
	h.capture.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureHandler{
		capture: h.capture,
		attrs:   append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
	}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }
