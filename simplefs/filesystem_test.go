package simplefs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvorsen/simplefs/inode"
	"github.com/halvorsen/simplefs/layout"
	"github.com/halvorsen/simplefs/simplefs"
	"github.com/halvorsen/simplefs/simplefstest"
)

func mustMount(t *testing.T) (*simplefs.Filesystem, *inode.Inode) {
	t.Helper()
	fs, root, err := simplefstest.MountFresh(64, 64, simplefs.MountOptions{})
	require.NoError(t, err)
	return fs, root
}

func TestCreateLookupUnlinkRoundTrip(t *testing.T) {
	// spec.md §8 law 6.
	fs, root := mustMount(t)

	ino, err := fs.Create(root, "a.txt", layout.ModeRegular|0o644, simplefs.Ownership{})
	require.NoError(t, err)

	found, err := fs.Lookup(root, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, ino, found)

	require.NoError(t, fs.Unlink(root, "a.txt"))
	_, err = fs.Lookup(root, "a.txt")
	assert.Error(t, err)
}

func TestCreateRootFileBoundaryScenario(t *testing.T) {
	// spec.md §8 literal boundary scenario.
	fs, root := mustMount(t)

	ino, err := fs.Create(root, "a.txt", layout.ModeRegular|0o644, simplefs.Ownership{})
	require.NoError(t, err)

	child, err := fs.Iget(ino)
	require.NoError(t, err)
	assert.EqualValues(t, 1, child.Nlink)
	assert.EqualValues(t, 1, child.Blocks)
	assert.EqualValues(t, 0, child.Size)
	assert.NotEqual(t, layout.NoneBlock, child.ExtentBlock)
}

func TestLinkThenUnlinkRestoresNlink(t *testing.T) {
	// spec.md §8 law 7.
	fs, root := mustMount(t)

	ino, err := fs.Create(root, "a", layout.ModeRegular|0o644, simplefs.Ownership{})
	require.NoError(t, err)
	a, err := fs.Iget(ino)
	require.NoError(t, err)
	before := a.Nlink

	require.NoError(t, fs.Link(a, root, "b"))
	assert.Equal(t, before+1, a.Nlink)

	require.NoError(t, fs.Unlink(root, "b"))
	assert.Equal(t, before, a.Nlink)

	_, err = fs.Lookup(root, "a")
	require.NoError(t, err)
}

func TestRenameCollisionLeavesBothEntries(t *testing.T) {
	// spec.md §8 literal boundary scenario: rename collision.
	fs, root := mustMount(t)

	_, err := fs.Create(root, "a", layout.ModeRegular|0o644, simplefs.Ownership{})
	require.NoError(t, err)
	_, err = fs.Create(root, "b", layout.ModeRegular|0o644, simplefs.Ownership{})
	require.NoError(t, err)

	err = fs.Rename(root, "a", root, "b", 0)
	assert.Error(t, err)

	_, err = fs.Lookup(root, "a")
	assert.NoError(t, err)
	_, err = fs.Lookup(root, "b")
	assert.NoError(t, err)
}

func TestRenameToFreeNameActsLikeUnlinkPlusLink(t *testing.T) {
	// spec.md §8 law 8.
	fs, root := mustMount(t)

	ino, err := fs.Create(root, "x", layout.ModeRegular|0o644, simplefs.Ownership{})
	require.NoError(t, err)

	require.NoError(t, fs.Rename(root, "x", root, "y", 0))

	_, err = fs.Lookup(root, "x")
	assert.Error(t, err)
	found, err := fs.Lookup(root, "y")
	require.NoError(t, err)
	assert.Equal(t, ino, found)
}

func TestMkdirRmdirRoundTrip(t *testing.T) {
	// spec.md §8 law 9 (modulo timestamps).
	fs, root := mustMount(t)
	statBefore := fs.Statfs()

	ino, err := fs.Mkdir(root, "sub", 0o755, simplefs.Ownership{})
	require.NoError(t, err)
	child, err := fs.Iget(ino)
	require.NoError(t, err)
	assert.EqualValues(t, 2, child.Nlink)

	require.NoError(t, fs.Rmdir(root, "sub"))

	_, err = fs.Lookup(root, "sub")
	assert.Error(t, err)

	// The root's first directory extent, allocated by the first insert
	// into the empty root, stays allocated after its entry is removed.
	statAfter := fs.Statfs()
	assert.Equal(t, statBefore.NrFreeBlocks-layout.MaxBlocksPerExtent, statAfter.NrFreeBlocks)
	assert.Equal(t, statBefore.NrFreeInodes, statAfter.NrFreeInodes)
}

func TestRmdirNonEmptyFails(t *testing.T) {
	fs, root := mustMount(t)

	_, err := fs.Mkdir(root, "sub", 0o755, simplefs.Ownership{})
	require.NoError(t, err)
	sub, err := fs.Iget(mustLookup(t, fs, root, "sub"))
	require.NoError(t, err)

	_, err = fs.Create(sub, "f", layout.ModeRegular|0o644, simplefs.Ownership{})
	require.NoError(t, err)

	err = fs.Rmdir(root, "sub")
	assert.Error(t, err)
}

func TestSymlinkBoundaryScenario(t *testing.T) {
	fs, root := mustMount(t)

	ino, err := fs.Symlink(root, "lnk", "target", simplefs.Ownership{})
	require.NoError(t, err)

	child, err := fs.Iget(ino)
	require.NoError(t, err)
	assert.True(t, child.IsSymlink())
	assert.EqualValues(t, len("target"), child.Size)
	assert.Equal(t, "target", child.SymlinkTarget())
	assert.Equal(t, layout.NoneBlock, child.ExtentBlock)
	assert.EqualValues(t, 0, child.Blocks)
}

func TestUnlinkLastHardLinkFreesResources(t *testing.T) {
	// spec.md §8 literal boundary scenario: unlink of the last hard link.
	fs, root := mustMount(t)

	ino, err := fs.Create(root, "solo", layout.ModeRegular|0o644, simplefs.Ownership{})
	require.NoError(t, err)
	child, err := fs.Iget(ino)
	require.NoError(t, err)
	assert.EqualValues(t, 1, child.Nlink)
	before := fs.Statfs()

	require.NoError(t, fs.Unlink(root, "solo"))

	// The file has no data extents, so unlink releases only its
	// extent-index block and its inode.
	after := fs.Statfs()
	assert.Equal(t, before.NrFreeBlocks+1, after.NrFreeBlocks)
	assert.Equal(t, before.NrFreeInodes+1, after.NrFreeInodes)

	reloaded, err := fs.Iget(ino)
	require.NoError(t, err)
	assert.True(t, reloaded.IsZero())
}

func mustLookup(t *testing.T, fs *simplefs.Filesystem, dir *inode.Inode, name string) uint32 {
	t.Helper()
	ino, err := fs.Lookup(dir, name)
	require.NoError(t, err)
	return ino
}
