package tracestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camhal/internal/logger"
)

// Not parallel: swaps the global logger.
func TestStoreLogsThroughGlobalLoggerSetAfterInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camhal.log")
	central, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
	})
	require.NoError(t, err)

	previous := logger.Global()
	logger.SetGlobal(central)
	t.Cleanup(func() {
		logger.SetGlobal(previous)
		_ = central.Close()
	})

	store, err := Open(MemoryPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, central.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"trace database opened"`)
	assert.Contains(t, string(data), `"module":"tracestore"`)
}
