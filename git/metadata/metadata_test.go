package metadata_test

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2thetop/scalar/errors"
	"github.com/2thetop/scalar/git/metadata"
)

const dotScalar = "/src/.scalar"

func TestOpen(t *testing.T) {
	t.Run("creates empty store when file is missing", func(t *testing.T) {
		store, err := metadata.Open(memfs.New(), dotScalar)
		require.NoError(t, err)

		_, ok := store.Entry(metadata.KeyEnlistmentID)
		assert.False(t, ok)
		assert.Equal(t, "/src/.scalar/databases/repo-metadata.json", store.Path())
	})

	t.Run("loads persisted entries", func(t *testing.T) {
		fs := memfs.New()
		store, err := metadata.Open(fs, dotScalar)
		require.NoError(t, err)
		require.NoError(t, store.SetEntry("maintenance.commit_graph.last_run", "1700000000"))

		reopened, err := metadata.Open(fs, dotScalar)
		require.NoError(t, err)
		value, ok := reopened.Entry("maintenance.commit_graph.last_run")
		require.True(t, ok)
		assert.Equal(t, "1700000000", value)
	})

	t.Run("rejects corrupt file", func(t *testing.T) {
		fs := memfs.New()
		require.NoError(t, util.WriteFile(fs, dotScalar+"/"+metadata.FileName, []byte("{not json"), 0o644))

		_, err := metadata.Open(fs, dotScalar)
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
	})

	t.Run("rejects unknown version", func(t *testing.T) {
		fs := memfs.New()
		require.NoError(t, util.WriteFile(fs, dotScalar+"/"+metadata.FileName, []byte(`{"version":"9","entries":{}}`), 0o644))

		_, err := metadata.Open(fs, dotScalar)
		require.Error(t, err)
	})
}

func TestStore_EnlistmentID(t *testing.T) {
	fs := osfs.New(t.TempDir())
	store, err := metadata.Open(fs, ".scalar")
	require.NoError(t, err)

	id, err := store.EnlistmentID()
	require.NoError(t, err)
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")

	again, err := store.EnlistmentID()
	require.NoError(t, err)
	assert.Equal(t, id, again)

	reopened, err := metadata.Open(fs, ".scalar")
	require.NoError(t, err)
	persisted, err := reopened.EnlistmentID()
	require.NoError(t, err)
	assert.Equal(t, id, persisted)

	_, err = fs.Stat(".scalar/" + metadata.FileName + ".tmp")
	assert.Error(t, err, "temporary file should be renamed away")
}

func TestStore_DiskLayoutVersion(t *testing.T) {
	t.Run("missing version", func(t *testing.T) {
		store, err := metadata.Open(memfs.New(), dotScalar)
		require.NoError(t, err)

		_, _, err = store.DiskLayoutVersion()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Enlistment disk layout version not found")
	})

	t.Run("unparsable major version", func(t *testing.T) {
		store, err := metadata.Open(memfs.New(), dotScalar)
		require.NoError(t, err)
		require.NoError(t, store.SetEntry(metadata.KeyDiskLayoutMajorVersion, "abc"))

		_, _, err = store.DiskLayoutVersion()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Failed to parse persisted disk layout version number: abc")
	})

	t.Run("bad minor version reads as zero", func(t *testing.T) {
		store, err := metadata.Open(memfs.New(), dotScalar)
		require.NoError(t, err)
		require.NoError(t, store.SetEntry(metadata.KeyDiskLayoutMajorVersion, "3"))
		require.NoError(t, store.SetEntry(metadata.KeyDiskLayoutMinorVersion, "x"))

		major, minor, err := store.DiskLayoutVersion()
		require.NoError(t, err)
		assert.Equal(t, 3, major)
		assert.Equal(t, 0, minor)
	})

	t.Run("saved by clone metadata", func(t *testing.T) {
		store, err := metadata.Open(memfs.New(), dotScalar)
		require.NoError(t, err)
		require.NoError(t, store.SaveCloneMetadata(1, 2))

		major, minor, err := store.DiskLayoutVersion()
		require.NoError(t, err)
		assert.Equal(t, 1, major)
		assert.Equal(t, 2, minor)

		id, ok := store.Entry(metadata.KeyEnlistmentID)
		assert.True(t, ok)
		assert.Len(t, id, 32)
	})
}

func TestStore_Close(t *testing.T) {
	store, err := metadata.Open(memfs.New(), dotScalar)
	require.NoError(t, err)
	require.NoError(t, store.SetEntry("k", "v"))

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err = store.SetEntry("k", "other")
	require.Error(t, err)

	value, _ := store.Entry("k")
	assert.Equal(t, "v", value)
}
