package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// These tests swap package state and must not run in parallel.

func reset() {
	global, helpers = nil, nil
	atomicLevel = zap.NewAtomicLevel()
	once = sync.Once{}
}

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	reset()
	core, logs := observer.New(zapcore.DebugLevel)
	setGlobal(zap.New(core))
	t.Cleanup(reset)
	return logs
}

func TestInit(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zapcore.Level
		wantErr   string
	}{
		{"json info", "info", FormatJSON, zapcore.InfoLevel, ""},
		{"console debug", "debug", FormatConsole, zapcore.DebugLevel, ""},
		{"empty format means json", "warn", "", zapcore.WarnLevel, ""},
		{"bad level", "loud", FormatJSON, 0, "parse log level"},
		{"bad format", "info", "logfmt", 0, "unknown log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			t.Cleanup(reset)
			err := Init(tt.level, tt.format)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantLevel, GetLevel())
			require.NotNil(t, L())
		})
	}
}

func TestInit_OnlyFirstCallWins(t *testing.T) {
	reset()
	t.Cleanup(reset)
	require.NoError(t, Init("error", FormatJSON))
	require.NoError(t, Init("debug", FormatConsole))
	require.Equal(t, zapcore.ErrorLevel, GetLevel())
}

func TestL_PanicsBeforeInit(t *testing.T) {
	reset()
	require.Panics(t, func() { Info("too early") })
	require.NoError(t, Sync())
}

func TestHTTPHandler_ChangesLevel(t *testing.T) {
	reset()
	t.Cleanup(reset)
	require.NoError(t, Init("info", FormatJSON))

	w := httptest.NewRecorder()
	HTTPHandler().ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"level":"debug"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, zapcore.DebugLevel, GetLevel())

	require.Error(t, SetLevel("chatty"))
	require.NoError(t, SetLevel("warn"))
	require.Equal(t, zapcore.WarnLevel, GetLevel())
}

func TestContextLogger_AccumulatesFields(t *testing.T) {
	logs := observe(t)

	ctx := WithContext(context.Background(), zap.String("request_id", "rid-1"))
	ctx = WithContext(ctx, zap.String("actor_id", "ana"))
	FromContext(ctx).Info("order opened", OrderID("o1"))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, map[string]any{
		"request_id": "rid-1",
		"actor_id":   "ana",
		"order_id":   "o1",
	}, entries[0].ContextMap())
}

func TestContextLogger_FallsBackToGlobal(t *testing.T) {
	logs := observe(t)

	require.Same(t, L(), FromContext(context.Background()))
	require.Equal(t, context.Background(), WithContext(context.Background()))

	Warn("step stalled", StepID("s1"))
	require.Equal(t, 1, logs.FilterField(zap.String("step_id", "s1")).Len())
}
