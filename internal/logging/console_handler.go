package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// consoleHandler writes one line per record:
//
//	2026-03-01T12:00:00.000Z INFO worker[host-1]: batch processed row=01J... mode=unit claimed=2
//
// component and resolver form the line head; row_id and review_mode follow
// the message ahead of the remaining attributes.
type consoleHandler struct {
	out    *syncWriter
	level  slog.Leveler
	source bool
	fields []field
	prefix string
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

type field struct {
	key string
	val slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, source bool) *consoleHandler {
	return &consoleHandler{out: &syncWriter{w: w}, level: level, source: source}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fields = appendFields(append([]field(nil), h.fields...), h.prefix, attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.fields...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFields(fields, h.prefix, attr)
		return true
	})

	var component, resolver, rowID, mode string
	rest := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = textOrKeep(component, f.val)
		case FieldResolver:
			resolver = textOrKeep(resolver, f.val)
		case FieldRowID:
			rowID = textOrKeep(rowID, f.val)
		case FieldReviewMode:
			mode = textOrKeep(mode, f.val)
		default:
			rest = append(rest, f)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.UTC().Format(timeLayout))
	b.WriteByte(' ')
	b.WriteString(levelName(record.Level))
	b.WriteByte(' ')
	if component != "" || resolver != "" {
		b.WriteString(component)
		if resolver != "" {
			b.WriteString("[" + resolver + "]")
		}
		b.WriteString(": ")
	}
	b.WriteString(strings.TrimSpace(record.Message))
	if h.source {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	if rowID != "" {
		b.WriteString(" row=" + quoteIfNeeded(rowID))
	}
	if mode != "" {
		b.WriteString(" mode=" + quoteIfNeeded(mode))
	}
	for _, f := range rest {
		b.WriteString(" " + f.key + "=" + render(f.val))
	}
	b.WriteByte('\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := io.WriteString(h.out.w, b.String())
	return err
}

func appendFields(dst []field, prefix string, attrs ...slog.Attr) []field {
	for _, attr := range attrs {
		attr.Value = attr.Value.Resolve()
		if attr.Equal(slog.Attr{}) {
			continue
		}
		if attr.Value.Kind() == slog.KindGroup {
			next := prefix
			if attr.Key != "" {
				next = prefix + attr.Key + "."
			}
			dst = appendFields(dst, next, attr.Value.Group()...)
			continue
		}
		dst = append(dst, field{key: prefix + attr.Key, val: attr.Value})
	}
	return dst
}

// textOrKeep keeps the first non-empty value seen for a promoted key.
func textOrKeep(current string, v slog.Value) string {
	if current != "" {
		return current
	}
	return text(v)
}

func text(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(timeLayout)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func render(v slog.Value) string {
	return quoteIfNeeded(text(v))
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '"' || r == '=' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
