package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })

	require.NoError(t, Init("debug", "console"))
	require.NoError(t, Init("warn", "json"))
	assert.False(t, L().Core().Enabled(zap.InfoLevel))
	assert.True(t, L().Core().Enabled(zap.WarnLevel))

	assert.Error(t, Init("loud", "json"))
}

func TestHelpersWriteToGlobal(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })

	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core))

	Debug("d")
	Info("i", zap.String("k", "v"))
	Warn("w")
	Error("e")

	require.Equal(t, 4, logs.Len())
	assert.Equal(t, "v", logs.All()[1].ContextMap()["k"])
}
