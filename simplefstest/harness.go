// Package simplefstest builds freshly-formatted in-memory images for
// tests, playing the role of the teacher's testing.LoadDiskImage helper
// (an in-process image a test can mount without touching a real disk).
// Formatting an image is not the mkfs/CLI front end spec.md §1 excludes
// from scope — it is test scaffolding used only by _test.go files in this
// module, never exposed as a host-facing operation.
package simplefstest

import (
	"github.com/halvorsen/simplefs/bitmap"
	"github.com/halvorsen/simplefs/block"
	"github.com/halvorsen/simplefs/inode"
	"github.com/halvorsen/simplefs/layout"
	"github.com/halvorsen/simplefs/simplefs"
)

// Format builds a block.Device holding nrInodes inodes and nrDataBlocks
// data blocks, laid out per spec §3's partition order, with a root
// directory already created at layout.RootInode. The root's extent-index
// block takes one data block, leaving nrDataBlocks-1 free.
func Format(nrInodes, nrDataBlocks uint32) (block.Device, error) {
	istoreBlocks := layout.IstoreBlockCount(nrInodes)
	ifreeBlocks := layout.BitmapBlockCount(nrInodes)

	bfreeBlocks := uint32(1)
	var total uint32
	for i := 0; i < 4; i++ {
		total = 1 + istoreBlocks + ifreeBlocks + bfreeBlocks + nrDataBlocks
		bfreeBlocks = layout.BitmapBlockCount(total)
	}
	total = 1 + istoreBlocks + ifreeBlocks + bfreeBlocks + nrDataBlocks

	dev := block.NewMemDevice(total)

	istoreBase := uint32(1)
	ifreeBase := istoreBase + istoreBlocks
	bfreeBase := ifreeBase + ifreeBlocks
	dataBase := bfreeBase + bfreeBlocks

	for i := uint32(0); i < ifreeBlocks; i++ {
		if err := dev.WriteBlock(ifreeBase+i, make([]byte, block.Size)); err != nil {
			return nil, err
		}
	}
	for i := uint32(0); i < bfreeBlocks; i++ {
		if err := dev.WriteBlock(bfreeBase+i, make([]byte, block.Size)); err != nil {
			return nil, err
		}
	}

	inodeAlloc, err := bitmap.Load(dev, ifreeBase, ifreeBlocks, nrInodes, nrInodes)
	if err != nil {
		return nil, err
	}
	if _, err := inodeAlloc.Alloc(); err != nil { // reserves NoneInode (0)
		return nil, err
	}

	blockAlloc, err := bitmap.Load(dev, bfreeBase, bfreeBlocks, total, total)
	if err != nil {
		return nil, err
	}
	if _, err := blockAlloc.AllocRun(dataBase); err != nil { // reserves the header region
		return nil, err
	}

	istore := inode.NewStore(dev, istoreBase, nrInodes)
	rootNum, err := inodeAlloc.Alloc()
	if err != nil {
		return nil, err
	}
	root, _, err := istore.Iget(rootNum)
	if err != nil {
		return nil, err
	}

	extBlock, err := blockAlloc.AllocRun(1)
	if err != nil {
		return nil, err
	}
	if err := dev.WriteBlock(extBlock, (&layout.ExtentIndexBlock{}).Encode()); err != nil {
		return nil, err
	}
	dev.MarkDirty(extBlock)

	root.Mode = layout.ModeDir | 0o755
	root.Size = block.Size
	root.Nlink = 2
	root.Blocks = 1
	root.ExtentBlock = extBlock
	if err := istore.Put(root); err != nil {
		return nil, err
	}

	sb := &layout.Superblock{
		Magic:          layout.Magic,
		NrBlocks:       total,
		NrInodes:       nrInodes,
		NrIstoreBlocks: istoreBlocks,
		NrIfreeBlocks:  ifreeBlocks,
		NrBfreeBlocks:  bfreeBlocks,
		NrFreeInodes:   inodeAlloc.FreeUnits,
		NrFreeBlocks:   blockAlloc.FreeUnits,
	}
	if err := dev.WriteBlock(0, sb.Encode()); err != nil {
		return nil, err
	}
	dev.MarkDirty(0)

	return dev, nil
}

// MountFresh formats a new image and mounts it, returning the filesystem
// handle and its root directory's materialized inode.
func MountFresh(nrInodes, nrDataBlocks uint32, opts simplefs.MountOptions) (*simplefs.Filesystem, *inode.Inode, error) {
	dev, err := Format(nrInodes, nrDataBlocks)
	if err != nil {
		return nil, nil, err
	}
	fs, err := simplefs.Mount(dev, opts)
	if err != nil {
		return nil, nil, err
	}
	root, err := fs.Iget(layout.RootInode)
	if err != nil {
		return nil, nil, err
	}
	return fs, root, nil
}
