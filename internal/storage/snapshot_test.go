package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrabot/sentra/internal/storage"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	require.NoError(t, storage.SaveSnapshot(path, payload{Name: "spam", Count: 3}))

	var loaded payload
	require.NoError(t, storage.LoadSnapshot(path, &loaded))
	assert.Equal(t, payload{Name: "spam", Count: 3}, loaded)

	// No temporary file left behind.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	t.Parallel()

	var loaded payload
	err := storage.LoadSnapshot(filepath.Join(t.TempDir(), "absent.json"), &loaded)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadSnapshotCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var loaded payload
	err := storage.LoadSnapshot(path, &loaded)
	require.ErrorIs(t, err, storage.ErrCorruptSnapshot)
}

func TestSaveSnapshotReplacesExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, storage.SaveSnapshot(path, payload{Name: "old"}))
	require.NoError(t, storage.SaveSnapshot(path, payload{Name: "new"}))

	var loaded payload
	require.NoError(t, storage.LoadSnapshot(path, &loaded))
	assert.Equal(t, "new", loaded.Name)
}
