// Package logging configures structured logging and carries per-request
// attributes on the context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

type ctxKey string

const (
	ErrKey = "error"
)

const (
	slogFields      ctxKey = "slog_fields"
	logLevelDefault        = slog.LevelInfo

	priorityCritical = "critical"
)

type contextHandler struct {
	slog.Handler
}

// Handle adds contextual attributes to the Record before calling the underlying handler.
func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(slogFields).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// AppendCtx adds an slog attribute to the provided context so that it will be
// included in any Record created with such context.
func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if v, ok := parent.Value(slogFields).([]slog.Attr); ok {
		// clone so sibling contexts never share a backing array
		v = append(slices.Clone(v), attr)
		return context.WithValue(parent, slogFields, v)
	}

	return context.WithValue(parent, slogFields, []slog.Attr{attr})
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values fall
// back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		return slog.LevelInfo
	default:
		return logLevelDefault
	}
}

// New returns a JSON logger writing to w that includes context attributes.
func New(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	addSource := os.Getenv("LOG_ADD_SOURCE")
	opts.AddSource = addSource == "true" || addSource == "t" || addSource == "1"

	return slog.New(contextHandler{slog.NewJSONHandler(w, opts)})
}

// InitStructureLogConfig builds the process logger and installs it as the slog default.
func InitStructureLogConfig(level string) *slog.Logger {
	logger := New(os.Stdout, level)
	slog.SetDefault(logger)
	logger.Info("log config", "logLevel", ParseLevel(level).String())
	return logger
}

// Priority creates a slog.Attr for error priority classification.
func Priority(level string) slog.Attr {
	return slog.String("priority", level)
}

// PriorityCritical marks errors that need an operator to act, such as a
// reconciliation that ran out of attempts.
func PriorityCritical() slog.Attr {
	return Priority(priorityCritical)
}
