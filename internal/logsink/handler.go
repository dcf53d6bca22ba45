package logsink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Handler adapts a Sink to slog.Handler so any component's
// *slog.Logger can be routed through the single serialized stream.
type Handler struct {
	sink  *Sink
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewHandler wraps sink. level gates which records are forwarded.
func NewHandler(sink *Sink, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{sink: sink, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})

	source := "slog"
	if h.group != "" {
		source = h.group
	}

	color := 0
	switch {
	case r.Level >= slog.LevelError:
		color = 1
	case r.Level >= slog.LevelWarn:
		color = 3
	}

	h.sink.Log(source, b.String(), color)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &n
}

func (h *Handler) WithGroup(name string) slog.Handler {
	n := *h
	n.group = name
	return &n
}
