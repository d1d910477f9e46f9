package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/gomcpgo/remote_image_ai/pkg/config"
)

func TestNew_Levels(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "warn", Format: "json"}, false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = New(config.LogConfig{Level: "warn"}, true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(config.LogConfig{Level: "bogus", Format: "console"}, false)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_RejectsStdout(t *testing.T) {
	_, err := New(config.LogConfig{OutputPaths: []string{"stdout"}}, false)
	require.Error(t, err)

	logger := MustNew(config.LogConfig{OutputPaths: []string{"stdout"}}, false)
	assert.NotNil(t, logger)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
