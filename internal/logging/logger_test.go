package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vehicle-hud/internal/config"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hud.log")
	logger := New(config.LogConfig{Level: "info", Filename: path, MaxSize: 1})

	logger.Info("engine on", zap.Int32("rpm", 800))
	logger.Debug("filtered out")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"engine on"`)
	assert.Contains(t, string(data), `"level":"INFO"`)
	assert.NotContains(t, string(data), "filtered out")
}

func TestNew_BadLevelFallsBackToDebug(t *testing.T) {
	logger := New(config.LogConfig{Level: "chatty"})
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}
