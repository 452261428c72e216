package tracestore

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camhal/internal/errors"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFinishRunStoresCounters(t *testing.T) {
	t.Parallel()

	store := openMemory(t)
	first, err := store.BeginRun(uuid.NewString(), "first", "0")
	require.NoError(t, err)
	second, err := store.BeginRun(uuid.NewString(), "second", "1")
	require.NoError(t, err)

	first.Submitted, first.Shutters, first.RequestErrors = 10, 9, 1
	require.NoError(t, store.FinishRun(first))

	got, err := store.Run(first.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Submitted)
	assert.Equal(t, 9, got.Shutters)
	assert.Equal(t, 1, got.RequestErrors)
	require.NotNil(t, got.FinishedAt)

	runs, err := store.Runs(0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	limited, err := store.Runs(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	other, err := store.Run(second.ID)
	require.NoError(t, err)
	assert.Nil(t, other.FinishedAt)
}

func TestRunNotFound(t *testing.T) {
	t.Parallel()

	store := openMemory(t)
	_, err := store.Run("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, errors.IsCategory(err, errors.CategoryTraceStore))
}

func TestOpenFileDatabase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "trace.db")
	store, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())

	run, err := store.BeginRun(uuid.NewString(), "file", "0")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Run(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "file", got.Scenario)
}
