// Package logger configures the process-wide slog logger. Records keep time,
// level and msg at the root; every other attribute goes under a `data` group.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Level   string
	Format  string
	Service string
	Env     string
	Output  string
	// Writer overrides Output when set.
	Writer io.Writer
}

type ctxKey int

const (
	ctxKeyLogger ctxKey = iota
	ctxKeyRequestID
)

var (
	levelVar      slog.LevelVar
	defaultLogger *slog.Logger
)

func Default() *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger
	}
	return slog.Default()
}

func Init(cfg Config) *slog.Logger {
	SetLevel(cfg.Level)

	w := cfg.Writer
	if w == nil {
		w = openOutput(cfg.Output)
	}
	opts := &slog.HandlerOptions{Level: &levelVar}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	service := cfg.Service
	if strings.TrimSpace(service) == "" {
		service = filepath.Base(os.Args[0])
	}

	base := slog.New(h).WithGroup("data").With("service", service)
	if cfg.Env != "" {
		base = base.With("env", cfg.Env)
	}
	if v := os.Getenv("VERSION"); v != "" {
		base = base.With("version", v)
	}

	defaultLogger = base
	slog.SetDefault(base)
	return base
}

// SetLevel changes the level of every logger built by Init. Unknown names
// leave the level untouched.
func SetLevel(level string) {
	if l, ok := parseLevel(level); ok {
		levelVar.Set(l)
	}
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}

func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, l)
}

// FromContext returns the logger stored in ctx, or the default one, tagged with
// the request id when ctx carries one.
func FromContext(ctx context.Context) *slog.Logger {
	l := Default()
	if ctx == nil {
		return l
	}
	if lg, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok && lg != nil {
		l = lg
	}
	if id := RequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	return l
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func openOutput(output string) io.Writer {
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}
