package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		opts    LogOptions
		level   zapcore.Level
		wantErr bool
	}{
		{name: "defaults", opts: LogOptions{}, level: zapcore.InfoLevel},
		{name: "debug json", opts: LogOptions{Level: "debug", Format: "json"}, level: zapcore.DebugLevel},
		{name: "warn console", opts: LogOptions{Level: "warn", Format: "console"}, level: zapcore.WarnLevel},
		{name: "bad level", opts: LogOptions{Level: "loud"}, wantErr: true},
		{name: "bad format", opts: LogOptions{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candyarb.log")
	logger, err := NewLogger(LogOptions{Level: "info", Outputs: []string{path}})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("visible")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"visible"`)
	assert.Contains(t, string(data), `"logger":"candyarb"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestInitLoggerReplacesGlobal(t *testing.T) {
	first := GetLogger()
	require.NotNil(t, first)
	assert.Same(t, first, GetLogger())

	second, err := InitLogger(LogOptions{Level: "debug"})
	require.NoError(t, err)
	assert.Same(t, second, GetLogger())
	assert.True(t, GetLogger().Core().Enabled(zapcore.DebugLevel))

	_, err = InitLogger(LogOptions{Level: "loud"})
	assert.Error(t, err)
	assert.Same(t, second, GetLogger())
	CleanupLogger()
}
