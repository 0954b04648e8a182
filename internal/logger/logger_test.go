package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggerNoopBeforeInitialize(t *testing.T) {
	assert.NotPanics(t, func() {
		Debug("debug")
		Info("info", zap.String("key", "value"))
		Warn("warn")
		Error("error")
	})
}

func TestInitializeWritesFiles(t *testing.T) {
	previous := log
	t.Cleanup(func() { log = previous })

	dir := t.TempDir()
	logFile := filepath.Join(dir, "raffled.log")
	errorFile := filepath.Join(dir, "raffled.error.log")

	require.NoError(t, Initialize(Configuration{LogFile: logFile, ErrorFile: errorFile, Level: "info"}))

	Debug("hidden")
	Info("visible", zap.String("raffle_id", "r-1"))
	Error("failure")
	Sync()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "visible")
	assert.Contains(t, string(content), "r-1")
	assert.NotContains(t, string(content), "hidden")

	errors, err := os.ReadFile(errorFile)
	require.NoError(t, err)
	assert.Contains(t, string(errors), "failure")
	assert.NotContains(t, string(errors), "visible")
}

func TestInitializeRejectsUnwritablePath(t *testing.T) {
	previous := log
	t.Cleanup(func() { log = previous })

	err := Initialize(Configuration{LogFile: filepath.Join(t.TempDir(), "missing", "raffled.log")})
	require.Error(t, err)
}
