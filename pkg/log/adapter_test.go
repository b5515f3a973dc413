package log

import (
	"testing"

	"DocketWatch/internal/conf"

	kratoslog "github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewZapLogger(t *testing.T) {
	logger, err := NewZapLogger(&conf.Log{Level: "info", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewZapLogger_NilConfig(t *testing.T) {
	_, err := NewZapLogger(nil)
	require.Error(t, err)
}

func TestNewZapLogger_InvalidLevel(t *testing.T) {
	_, err := NewZapLogger(&conf.Log{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestKratosAdapter_MapsLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	adapter := NewKratosAdapter(zap.New(core))

	require.NoError(t, adapter.Log(kratoslog.LevelInfo, "msg", "starting", "count", 3))
	require.NoError(t, adapter.Log(kratoslog.LevelWarn, "msg", "degraded"))
	require.NoError(t, adapter.Log(kratoslog.LevelError, "msg", "failed"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "starting", fields["msg"])
	assert.Equal(t, int64(3), fields["count"])
}

func TestKratosAdapter_EmptyAndOddKeyvals(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	adapter := NewKratosAdapter(zap.New(core))

	require.NoError(t, adapter.Log(kratoslog.LevelInfo))
	require.NoError(t, adapter.Log(kratoslog.LevelInfo, "dangling"))

	// No entry for empty keyvals; the dangling key is dropped but still logs
	require.Len(t, logs.All(), 1)
	assert.Empty(t, logs.All()[0].ContextMap())
}
