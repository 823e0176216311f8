// Package logger owns the process-wide zap logger.
//
// The level is atomic so operators can raise it on a running server
// through HTTPHandler. Request-scoped fields (request id, acting user)
// travel in the context and are picked up by FromContext.
package logger

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats accepted by Init.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

var (
	global *zap.Logger
	// helpers logs through the package functions below; its caller skip
	// points entries at their call site.
	helpers     *zap.Logger
	atomicLevel = zap.NewAtomicLevel()
	once        sync.Once
)

type ctxKey struct{}

// Init builds the global logger once. Later calls are no-ops.
func Init(level, format string) error {
	var initErr error
	once.Do(func() {
		if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
			initErr = fmt.Errorf("parse log level %q: %w", level, err)
			return
		}
		cfg, err := configFor(format)
		if err != nil {
			initErr = err
			return
		}
		cfg.Level = atomicLevel

		l, err := cfg.Build()
		if err != nil {
			initErr = fmt.Errorf("build logger: %w", err)
			return
		}
		setGlobal(l.With(zap.String("service", "minerva")))
	})
	return initErr
}

func setGlobal(l *zap.Logger) {
	global = l
	helpers = l.WithOptions(zap.AddCallerSkip(1))
}

func configFor(format string) (zap.Config, error) {
	switch format {
	case FormatConsole:
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return cfg, nil
	case FormatJSON, "":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
		return cfg, nil
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatJSON, FormatConsole)
	}
}

// SetLevel changes the level of the running logger.
func SetLevel(level string) error {
	return atomicLevel.UnmarshalText([]byte(level))
}

// GetLevel returns the current level.
func GetLevel() zapcore.Level {
	return atomicLevel.Level()
}

// HTTPHandler serves GET (read) and PUT (change) of the level as JSON,
// e.g. PUT {"level":"debug"}.
func HTTPHandler() http.Handler {
	return atomicLevel
}

// L returns the global logger. Panics before Init.
func L() *zap.Logger {
	if global == nil {
		panic("logger: Init must run before use")
	}
	return global
}

// WithContext returns a context whose logger carries fields in addition
// to those already attached to ctx.
func WithContext(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, FromContext(ctx).With(fields...))
}

// FromContext returns the logger attached to ctx, or the global one.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return L()
}

// OrderID tags an entry with the service order it concerns.
func OrderID(id string) zap.Field { return zap.String("order_id", id) }

// StepID tags an entry with a workflow step.
func StepID(id string) zap.Field { return zap.String("step_id", id) }

func h() *zap.Logger {
	L()
	return helpers
}

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) { h().Debug(msg, fields...) }

// Info logs at info level.
func Info(msg string, fields ...zap.Field) { h().Info(msg, fields...) }

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) { h().Warn(msg, fields...) }

// Error logs at error level.
func Error(msg string, fields ...zap.Field) { h().Error(msg, fields...) }

// Sync flushes buffered entries. Safe before Init.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}
