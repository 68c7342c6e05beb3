package log

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// consoleHandler adapts a LogFormatter (formatter.go) to slog.Handler, so
// the node can emit human-readable console output -- colored or plain text
// -- as an alternative to the default JSON stream from New, without
// teaching every call site a second logging API. This is the format an
// operator asks for when running a node interactively rather than piping
// logs to a collector.
type consoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	format LogFormatter
	attrs  map[string]interface{}
}

// NewConsole creates a Logger that renders every record through f and
// writes the result, one line per record, to w. Use TextFormatter for
// plain console output or ColorFormatter for an ANSI-colored terminal.
func NewConsole(level slog.Level, w io.Writer, f LogFormatter) *Logger {
	h := &consoleHandler{
		mu:     &sync.Mutex{},
		w:      w,
		level:  level,
		format: f,
		attrs:  map[string]interface{}{},
	}
	return &Logger{inner: slog.New(h)}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	line := h.format.Format(LogEntry{
		Timestamp: r.Time,
		Level:     levelFromSlog(r.Level),
		Message:   r.Message,
		Fields:    fields,
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make(map[string]interface{}, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		merged[k] = v
	}
	for _, a := range attrs {
		merged[a.Key] = a.Value.Any()
	}
	return &consoleHandler{mu: h.mu, w: h.w, level: h.level, format: h.format, attrs: merged}
}

func (h *consoleHandler) WithGroup(_ string) slog.Handler {
	// Grouping has no representation in the flat LogEntry.Fields map the
	// formatters render; fields keep their names ungrouped.
	return h
}

// levelFromSlog maps an slog.Level onto the LogLevel scale formatter.go
// renders, rounding any custom intermediate level down to the nearest
// named one.
func levelFromSlog(l slog.Level) LogLevel {
	switch {
	case l < slog.LevelInfo:
		return DEBUG
	case l < slog.LevelWarn:
		return INFO
	case l < slog.LevelError:
		return WARN
	default:
		return ERROR
	}
}
