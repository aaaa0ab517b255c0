package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Levels(t *testing.T) {
	logger, err := NewLogger("feed-handler", "debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("feed-handler", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger("feed-handler", "loud")
	assert.Error(t, err)
}
