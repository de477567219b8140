package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitTracerDisabled(t *testing.T) {
	_, err := InitTracer(context.Background(), "", "worker")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestInitTracer(t *testing.T) {
	tp, err := InitTracer(context.Background(), "http://127.0.0.1:4318/v1/traces", "cli")
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestStartWithoutEndpointLogsInfo(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	shutdown := Start(context.Background(), "", "server", zap.New(core))
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "tracing disabled", entry.Message)
}

func TestStartWithEndpoint(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	shutdown := Start(context.Background(), "http://127.0.0.1:4318/v1/traces", "worker", zap.New(core))
	assert.NoError(t, shutdown(context.Background()))
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}
