package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", "production", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l.SugaredLogger)
	}
}

func TestLogger_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).With("run_id", "r-1")

	l.Info("loaded", "rows", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "loaded", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "r-1", fields["run_id"])
	assert.EqualValues(t, 3, fields["rows"])
}

func TestNop_DoesNotPanic(t *testing.T) {
	l := Nop()
	l.Debug("x")
	l.Warn("y", "k", "v")
	l.Error("z")
	l.Sync()
}
