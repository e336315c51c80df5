package inode_test

import (
	"testing"

	"github.com/halvorsen/simplefs/block"
	"github.com/halvorsen/simplefs/inode"
	"github.com/halvorsen/simplefs/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgetOutOfRange(t *testing.T) {
	dev := block.NewMemDevice(4)
	store := inode.NewStore(dev, 1, 32)

	_, _, err := store.Iget(0)
	assert.Error(t, err, "ino 0 is NoneInode and must be rejected")

	_, _, err = store.Iget(32)
	assert.Error(t, err)
}

func TestIgetCachesAndReportsExisting(t *testing.T) {
	dev := block.NewMemDevice(4)
	store := inode.NewStore(dev, 1, 32)

	first, existed, err := store.Iget(3)
	require.NoError(t, err)
	assert.False(t, existed)

	second, existed, err := store.Iget(3)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Same(t, first, second)
}

func TestPutPersistsAcrossCacheEviction(t *testing.T) {
	dev := block.NewMemDevice(4)
	store := inode.NewStore(dev, 1, 32)

	ino, _, err := store.Iget(5)
	require.NoError(t, err)
	ino.Mode = layout.ModeRegular | 0o644
	ino.Nlink = 1
	require.NoError(t, store.Put(ino))

	reopened := inode.NewStore(dev, 1, 32)
	reloaded, _, err := reopened.Iget(5)
	require.NoError(t, err)
	assert.Equal(t, ino.Mode, reloaded.Mode)
	assert.Equal(t, ino.Nlink, reloaded.Nlink)
}

func TestCacheCapEvictsOldestButPutSurvivesReload(t *testing.T) {
	dev := block.NewMemDevice(4)
	store := inode.NewStore(dev, 1, 32)
	store.SetCacheCap(2)

	first, _, err := store.Iget(1)
	require.NoError(t, err)
	first.Mode = layout.ModeRegular | 0o644
	first.Nlink = 1
	require.NoError(t, store.Put(first))

	_, _, err = store.Iget(2)
	require.NoError(t, err)
	_, _, err = store.Iget(3)
	require.NoError(t, err) // pushes ino 1 out of a 2-entry cache

	reloaded, existed, err := store.Iget(1)
	require.NoError(t, err)
	assert.False(t, existed, "ino 1 was evicted, so this re-reads from disk")
	assert.Equal(t, first.Mode, reloaded.Mode, "Put flushed to disk before eviction")
	assert.Equal(t, first.Nlink, reloaded.Nlink)
}

func TestForgetZeroesRecord(t *testing.T) {
	dev := block.NewMemDevice(4)
	store := inode.NewStore(dev, 1, 32)

	ino, _, err := store.Iget(6)
	require.NoError(t, err)
	ino.Mode = layout.ModeRegular
	ino.Nlink = 1
	require.NoError(t, store.Put(ino))

	require.NoError(t, store.Forget(6))

	reloaded, existed, err := store.Iget(6)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.True(t, reloaded.IsZero())
}
