package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnernvsinjsbt/futurebot/config"
)

func TestNew(t *testing.T) {
	t.Parallel()

	log, err := New(config.LogConfig{Level: "info", Format: "console", Environment: "dev"})
	require.NoError(t, err)
	require.NotNil(t, log)
	log.Info("hello")
}

func TestNewInvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWithFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "futurebot.log")
	log, err := New(config.LogConfig{Level: "debug", Format: "json", OutputFile: path})
	require.NoError(t, err)

	log.Info("to file")
	_ = log.Sync() // stdout sync fails on some platforms; the file write is unbuffered

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
