package extent_test

import (
	"testing"

	"github.com/halvorsen/simplefs/bitmap"
	"github.com/halvorsen/simplefs/block"
	"github.com/halvorsen/simplefs/extent"
	"github.com/halvorsen/simplefs/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlloc(t *testing.T, dev block.Device, totalBlocks uint32) *bitmap.Allocator {
	t.Helper()
	// Block 0 holds the bitmap itself; reserving it leaves blocks
	// 1..totalBlocks for data, so no extent ever starts at NoneBlock.
	alloc, err := bitmap.Load(dev, 0, 1, totalBlocks+1, totalBlocks+1)
	require.NoError(t, err)
	_, err = alloc.Alloc()
	require.NoError(t, err)
	return alloc
}

func TestSearchFindsCoveringExtent(t *testing.T) {
	idx := &layout.ExtentIndexBlock{}
	idx.Extents[0] = layout.ExtentRecord{Block: 0, Len: 8, Start: 10}
	idx.Extents[1] = layout.ExtentRecord{Block: 8, Len: 8, Start: 20}

	i, ok := extent.Search(idx, 9)
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = extent.Search(idx, 16)
	assert.False(t, ok)
}

func TestAvailableExtPicksFirstNonFullExtent(t *testing.T) {
	idx := &layout.ExtentIndexBlock{}
	idx.Extents[0] = layout.ExtentRecord{Block: 0, Len: 8, Start: 10, NrFiles: layout.EntriesPerExtent}
	idx.Extents[1] = layout.ExtentRecord{Block: 120, Len: 8, Start: 20, NrFiles: 5}

	i, ok := extent.AvailableExt(idx, layout.EntriesPerExtent+5)
	require.True(t, ok)
	assert.Equal(t, 1, i)
}

func TestAvailableExtFallsBackToEmptySlot(t *testing.T) {
	idx := &layout.ExtentIndexBlock{}
	idx.Extents[0] = layout.ExtentRecord{Block: 0, Len: 8, Start: 10, NrFiles: layout.EntriesPerExtent}

	i, ok := extent.AvailableExt(idx, layout.EntriesPerExtent)
	require.True(t, ok)
	assert.Equal(t, 1, i)
}

func TestAvailableExtEmptyDirectory(t *testing.T) {
	idx := &layout.ExtentIndexBlock{}
	i, ok := extent.AvailableExt(idx, 0)
	require.True(t, ok)
	assert.Equal(t, 0, i)
}

func TestPutNewExtentSeedsDirectoryBlocks(t *testing.T) {
	dev := block.NewMemDevice(1 + layout.MaxBlocksPerExtent)
	alloc := newAlloc(t, dev, layout.MaxBlocksPerExtent)

	idx := &layout.ExtentIndexBlock{}
	require.NoError(t, extent.PutNewExtent(idx, 0, alloc, dev, true))

	e := idx.Extents[0]
	assert.EqualValues(t, 0, e.Block)
	assert.EqualValues(t, layout.MaxBlocksPerExtent, e.Len)
	assert.NotEqual(t, layout.NoneBlock, e.Start)

	buf, err := dev.ReadBlock(e.Start)
	require.NoError(t, err)
	db, err := layout.DecodeDirectoryBlock(buf)
	require.NoError(t, err)
	assert.True(t, db.Files[0].IsFree())
	assert.EqualValues(t, layout.EntriesPerBlock, db.Files[0].NrBlk)
}

func TestPutNewExtentChainsLogicalBlock(t *testing.T) {
	dev := block.NewMemDevice(1 + 2*layout.MaxBlocksPerExtent)
	alloc := newAlloc(t, dev, 2*layout.MaxBlocksPerExtent)

	idx := &layout.ExtentIndexBlock{}
	require.NoError(t, extent.PutNewExtent(idx, 0, alloc, dev, false))
	require.NoError(t, extent.PutNewExtent(idx, 1, alloc, dev, false))

	assert.EqualValues(t, 0, idx.Extents[0].Block)
	assert.EqualValues(t, layout.MaxBlocksPerExtent, idx.Extents[1].Block)
}

func TestPutNewExtentNoSpace(t *testing.T) {
	dev := block.NewMemDevice(1)
	alloc := newAlloc(t, dev, 1)

	idx := &layout.ExtentIndexBlock{}
	err := extent.PutNewExtent(idx, 0, alloc, dev, false)
	assert.Error(t, err)
}
