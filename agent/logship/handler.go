package logship

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/logship/logship/pkg/types"
)

// Handler returns a slog.Handler that ships records through c. Records are
// tagged with stack and pkg; a top-level attribute named "package" overrides
// pkg for that record. Attributes are appended to the message as key=value
// pairs, with group names joined by dots.
func (c *Client) Handler(stack, pkg string) slog.Handler {
	return &handler{client: c, stack: stack, pkg: pkg}
}

type handler struct {
	client *Client
	stack  string
	pkg    string
	attrs  []slog.Attr // keys already qualified with the group open when added
	group  string      // dotted path of the open groups
}

func (h *handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	pkg := h.pkg
	var b strings.Builder
	b.WriteString(r.Message)

	write := func(a slog.Attr) {
		if a.Key == "package" {
			pkg = a.Value.String()
			return
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a, ok := h.qualify(a); ok {
			write(a)
		}
		return true
	})

	t := r.Time
	if t.IsZero() {
		t = h.client.now()
	}
	h.client.emit(t, h.stack, levelFor(r.Level), pkg, b.String())
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if a, ok := h.qualify(a); ok {
			nh.attrs = append(nh.attrs, a)
		}
	}
	return &nh
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	nh.group = name
	return &nh
}

// qualify resolves a and prefixes its key with the open group. Empty
// attributes report false.
func (h *handler) qualify(a slog.Attr) (slog.Attr, bool) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return a, false
	}
	if h.group != "" {
		a.Key = h.group + "." + a.Key
	}
	return a, true
}

func levelFor(l slog.Level) types.Level {
	switch {
	case l >= slog.LevelError:
		return types.LevelError
	case l >= slog.LevelWarn:
		return types.LevelWarn
	case l >= slog.LevelInfo:
		return types.LevelInfo
	default:
		return types.LevelDebug
	}
}
