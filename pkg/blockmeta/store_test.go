package blockmeta

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateReadAppendDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tok, err := store.Lock(ctx, "v1")
	require.NoError(t, err)
	defer tok.Unlock()

	assert.False(t, store.Access("v1", "b1"))

	require.NoError(t, store.AppendHeader("v1", "b1", "VOLUME", "v1"))
	require.NoError(t, store.AppendHeader("v1", "b1", "GBID", "gbid-1"))
	require.NoError(t, store.AppendHeader("v1", "b1", "HA", "2"))
	require.NoError(t, store.AppendEntryStatus("v1", "b1", EntryCreate, EntryInProgress))
	require.NoError(t, store.AppendHeader("v1", "b1", "SIZE", "4096"))
	require.NoError(t, store.AppendEntryStatus("v1", "b1", EntryCreate, EntrySuccess))

	assert.True(t, store.Access("v1", "b1"))

	m, err := store.ReadMeta("v1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "gbid-1", m.GBID)
	assert.Equal(t, 2, m.Mpath)
	assert.Equal(t, int64(4096), m.Size)
	assert.Equal(t, EntrySuccess, m.EntryOutcome)

	require.NoError(t, store.AppendHostStatus("v1", "b1", "10.0.0.1", StatusConfigInProgress))
	require.NoError(t, store.AppendHostStatus("v1", "b1", "10.0.0.1", StatusConfigSuccess))

	m, err = store.ReadMeta("v1", "b1")
	require.NoError(t, err)
	st, ok := m.HostStatus("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, StatusConfigSuccess, st)

	blocks, err := store.ListBlocks("v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, blocks)

	require.NoError(t, store.AppendEntryStatus("v1", "b1", EntryDelete, EntrySuccess))
	require.NoError(t, store.DeleteMeta("v1", "b1"))
	assert.False(t, store.Access("v1", "b1"))
}

func TestStore_ReadMissingBlock(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.ReadMeta("v1", "missing")
	require.Error(t, err)
	var metaErr *Error
	require.ErrorAs(t, err, &metaErr)
	assert.Equal(t, ErrNotFound, metaErr.Code)
}

func TestStore_CreateBackingFile(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	require.NoError(t, store.CreateBackingFile("v1", "b1", 1<<20, false))

	path := store.BackingFilePath("v1", "b1")
	assert.FileExists(t, path)

	require.NoError(t, store.RemoveBackingFile("v1", "b1"))
	assert.NoFileExists(t, path)
}

func TestStore_LockExcludesSecondLocker(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx := context.Background()

	tok, err := store.Lock(ctx, "v1")
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = store.Lock(shortCtx, "v1")
	require.Error(t, err)

	tok.Unlock()

	tok2, err := store.Lock(ctx, "v1")
	require.NoError(t, err)
	tok2.Unlock()
}

func TestStore_ListBlocksExcludesLockFile(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	_, err := store.OpenVolume("v1")
	require.NoError(t, err)

	require.NoError(t, store.AppendHeader("v1", "b1", "VOLUME", "v1"))

	blocks, err := store.ListBlocks("v1")
	require.NoError(t, err)
	for _, b := range blocks {
		assert.NotEqual(t, lockFileName, b)
		assert.NotEqual(t, filepath.Base(lockFileName), b)
	}
}
