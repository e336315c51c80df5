package layout_test

import (
	"testing"

	"github.com/halvorsen/simplefs/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperblockRoundTrip(t *testing.T) {
	sb := &layout.Superblock{
		Magic:          layout.Magic,
		NrBlocks:       1000,
		NrInodes:       128,
		NrIstoreBlocks: 4,
		NrIfreeBlocks:  1,
		NrBfreeBlocks:  1,
		NrFreeInodes:   127,
		NrFreeBlocks:   993,
	}

	decoded, err := layout.DecodeSuperblock(sb.Encode())
	require.NoError(t, err)
	assert.Equal(t, sb, decoded)
}

func TestSuperblockBadMagic(t *testing.T) {
	sb := &layout.Superblock{Magic: 0x12345678}
	_, err := layout.DecodeSuperblock(sb.Encode())
	assert.Error(t, err)
}

func TestSuperblockValidate(t *testing.T) {
	sb := &layout.Superblock{
		NrBlocks:       1 + 4 + 1 + 1 + 993,
		NrIstoreBlocks: 4,
		NrIfreeBlocks:  1,
		NrBfreeBlocks:  1,
	}
	assert.NoError(t, sb.Validate(993))
	assert.Error(t, sb.Validate(992))
}

func TestInodeRecordSizeAndRoundTrip(t *testing.T) {
	ino := &layout.Inode{
		Mode:        layout.ModeRegular | 0o644,
		Uid:         1000,
		Gid:         1000,
		Size:        4096,
		Ctime:       111,
		Atime:       222,
		Mtime:       333,
		Blocks:      2,
		Nlink:       1,
		ExtentBlock: 17,
	}

	encoded := ino.Encode()
	assert.Len(t, encoded, layout.InodeRecordSize)

	decoded, err := layout.DecodeInode(encoded)
	require.NoError(t, err)
	assert.Equal(t, ino, decoded)
}

func TestInodeSymlinkTarget(t *testing.T) {
	ino := &layout.Inode{Mode: layout.ModeSymlink}
	ino.SetSymlinkTarget("target")
	assert.Equal(t, "target", ino.SymlinkTarget())
	assert.True(t, ino.IsSymlink())
}

func TestInodeIsZero(t *testing.T) {
	var ino layout.Inode
	assert.True(t, ino.IsZero())

	ino.Nlink = 1
	assert.False(t, ino.IsZero())
}

func TestExtentIndexBlockRoundTrip(t *testing.T) {
	idx := &layout.ExtentIndexBlock{NrFiles: 15}
	idx.Extents[0] = layout.ExtentRecord{Block: 0, Len: layout.MaxBlocksPerExtent, Start: 5, NrFiles: 15}

	decoded, err := layout.DecodeExtentIndexBlock(idx.Encode())
	require.NoError(t, err)
	assert.Equal(t, idx, decoded)
	assert.True(t, decoded.Extents[1].IsEmpty())
	assert.False(t, decoded.Extents[0].IsEmpty())
}

func TestDirectoryBlockFreshAndRoundTrip(t *testing.T) {
	db := layout.FreshDirectoryBlock()
	assert.Equal(t, uint32(layout.EntriesPerBlock), db.Files[0].NrBlk)
	assert.True(t, db.Files[0].IsFree())

	db.Files[0] = layout.DirectoryRecord{Inode: 7, NrBlk: 1}
	db.Files[0].SetName("a.txt")
	db.NrFiles = 1

	decoded, err := layout.DecodeDirectoryBlock(db.Encode())
	require.NoError(t, err)
	assert.Equal(t, db, decoded)
	assert.Equal(t, "a.txt", decoded.Files[0].Name())
}

func TestDerivedConstants(t *testing.T) {
	assert.Equal(t, 255, layout.MaxExtents)
	assert.Equal(t, 263, layout.DirectoryRecordSize)
	assert.Equal(t, 15, layout.EntriesPerBlock)
	assert.Equal(t, 120, layout.EntriesPerExtent)
	assert.Equal(t, 30600, layout.MaxChildren)
	assert.Equal(t, 8355840, layout.MaxFileSize)
}
