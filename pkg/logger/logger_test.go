package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "okx.log")
	require.NoError(t, Init(Config{Level: "debug", Format: "json", OutputFile: path, MaxSize: 1}))
	t.Cleanup(func() { _ = Close() })

	Component("ledger").WithField("order_id", "42").Debug("hello")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"ledger"`)
	assert.Contains(t, string(data), `"order_id":"42"`)
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
}

func TestInitBadLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "loud"}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	assert.NoError(t, Close())
}
