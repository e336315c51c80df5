// Package extent implements component X of spec.md §4.2: the per-file and
// per-directory extent index, searched and grown the way the teacher's
// allocator (drivers/common/allocatormap.go) finds runs of free bits, but
// operating over an ExtentIndexBlock's fixed MaxExtents array instead of a
// raw bitmap.
package extent

import (
	"github.com/halvorsen/simplefs/bitmap"
	"github.com/halvorsen/simplefs/block"
	simplefserrors "github.com/halvorsen/simplefs/errors"
	"github.com/halvorsen/simplefs/layout"
)

// Search implements ext_search: the extent index i such that
// extents[i].Block <= logicalBlock < Block+Len, or ok=false if none
// covers it. Extents are non-overlapping and ordered by Block (spec §3
// invariant), so this could binary search; it walks linearly since
// MaxExtents is small (255) and the ordering makes the scan terminate at
// the first empty extent.
func Search(idx *layout.ExtentIndexBlock, logicalBlock uint32) (int, bool) {
	for i := range idx.Extents {
		e := &idx.Extents[i]
		if e.IsEmpty() {
			break
		}
		if logicalBlock >= e.Block && logicalBlock < e.Block+e.Len {
			return i, true
		}
	}
	return 0, false
}

// AvailableExt implements available_ext: choose the extent slot a new
// directory entry should land in, given the directory's current live
// count. See spec §4.2 for the exact walk; in short, the first non-empty,
// non-full extent wins outright, the first empty extent is remembered as
// a fallback, and if every non-empty extent is full the fallback (or the
// slot right after the live extents, if no empty slot was seen yet) is
// used instead.
func AvailableExt(idx *layout.ExtentIndexBlock, liveCount uint32) (int, bool) {
	remaining := liveCount
	tentative := -1

	for i := range idx.Extents {
		e := &idx.Extents[i]
		if !e.IsEmpty() {
			if !e.IsFull() {
				return i, true
			}
			if e.NrFiles < remaining {
				remaining -= e.NrFiles
			} else {
				remaining = 0
			}
			if remaining == 0 && tentative == -1 && i+1 < len(idx.Extents) {
				tentative = i + 1
			}
			continue
		}
		if tentative == -1 {
			tentative = i
		}
	}

	if tentative == -1 {
		return 0, false
	}
	return tentative, true
}

// PutNewExtent implements put_new_ext: allocate MaxBlocksPerExtent
// contiguous physical blocks for extents[i], chaining its logical
// Block off the previous extent's end (or 0 for i==0). When
// seedAsDirectory is true each freshly-assigned block is initialized as
// a fresh directory block (spec: "seeds each as a directory block with
// files[0] = (inode=0, nr_blk=FPB)"); otherwise each block is simply
// zeroed, for regular-file extents.
func PutNewExtent(
	idx *layout.ExtentIndexBlock,
	i int,
	alloc *bitmap.Allocator,
	dev block.Device,
	seedAsDirectory bool,
) error {
	start, err := alloc.AllocRun(layout.MaxBlocksPerExtent)
	if err != nil {
		return err
	}

	logicalStart := uint32(0)
	if i > 0 {
		prev := idx.Extents[i-1]
		logicalStart = prev.Block + prev.Len
	}

	for b := uint32(0); b < layout.MaxBlocksPerExtent; b++ {
		var payload []byte
		if seedAsDirectory {
			payload = layout.FreshDirectoryBlock().Encode()
		} else {
			payload = make([]byte, block.Size)
		}
		if err := dev.WriteBlock(start+b, payload); err != nil {
			_ = alloc.FreeRun(start, layout.MaxBlocksPerExtent)
			return simplefserrors.ErrIOFailed.Wrap(err)
		}
		dev.MarkDirty(start + b)
	}

	idx.Extents[i] = layout.ExtentRecord{
		Block:   logicalStart,
		Len:     layout.MaxBlocksPerExtent,
		Start:   start,
		NrFiles: 0,
	}
	return nil
}
