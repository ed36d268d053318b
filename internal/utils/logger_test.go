package utils

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerFieldsReachZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLogger(zap.New(core))

	l.Warn("gate rejected", map[string]interface{}{
		"stage": "api_key",
		"err":   errors.New("mismatch"),
	})
	l.Infof("relay %s", "ok")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "gate rejected", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "api_key", ctx["stage"])
	assert.Equal(t, "mismatch", ctx["err"])
	assert.Equal(t, "relay ok", entries[1].Message)
}

func TestSetLoggerReplacesGlobal(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	l := NewLogger(zap.NewNop())
	SetLogger(l)
	assert.Same(t, l, GetLogger())
}

func TestDefaultLoggerReportsCallSite(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })
	SetLogger(nil)

	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLogger(GetLogger().Zap().WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core })))
	l.Info("hello", nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.True(t, entries[0].Caller.Defined)
	assert.Equal(t, "logger_test.go", filepath.Base(entries[0].Caller.File))
}
