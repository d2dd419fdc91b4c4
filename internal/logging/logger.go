package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

type Config struct {
	Level       string
	ServiceName string
	Environment string
	Version     string
	Output      io.Writer
	AddSource   bool
}

// Logger wraps slog.Logger with the settlement-specific helpers.
type Logger struct {
	*slog.Logger
}

func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	base := slog.New(slog.NewJSONHandler(output, opts)).With(
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"version", cfg.Version,
	)
	return &Logger{Logger: base}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithComponent(component string) *Logger { return l.with("component", component) }

func (l *Logger) WithOperation(operation string) *Logger { return l.with("operation", operation) }

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// WithContext adds the request-scoped attributes stored in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	if v := ctx.Value(requestIDKey); v != nil {
		attrs = append(attrs, "requestId", v)
	}
	if v := ctx.Value(pharmacyIDKey); v != nil {
		attrs = append(attrs, "pharmacyId", v)
	}
	if v := ctx.Value(userIDKey); v != nil {
		attrs = append(attrs, "userId", v)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

// Audit records a state-changing settlement action.
func (l *Logger) Audit(ctx context.Context, action, resource string, resourceID int64, details ...any) {
	attrs := append([]any{
		"auditAction", action,
		"resource", resource,
		"resourceId", resourceID,
	}, details...)
	l.WithContext(ctx).Info("audit event", attrs...)
}

func (l *Logger) HTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, clientIP string) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}
	l.WithContext(ctx).Log(ctx, level, "http request",
		"method", method,
		"path", path,
		"status", status,
		"durationMs", duration.Milliseconds(),
		"clientIP", clientIP,
	)
}

func (l *Logger) Panic(ctx context.Context, recovered any) {
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	l.WithContext(ctx).Error("panic recovered",
		"panic", recovered,
		"stack", string(stack[:n]),
	)
}

type contextKey string

const (
	requestIDKey  contextKey = "requestId"
	pharmacyIDKey contextKey = "pharmacyId"
	userIDKey     contextKey = "userId"
)

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func ContextWithActor(ctx context.Context, pharmacyID, userID int64) context.Context {
	ctx = context.WithValue(ctx, pharmacyIDKey, pharmacyID)
	return context.WithValue(ctx, userIDKey, userID)
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
