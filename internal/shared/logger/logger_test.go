package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_LevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")

	l, err := New("settlement-service", "prod")
	require.NoError(t, err)

	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))
}

func TestNew_InvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")

	_, err := New("settlement-service", "local")
	assert.Error(t, err)
}
