// Package bitmap implements the component A of spec.md §4.1: a first-fit
// bitmap allocator for both the inode-free and data-block-free bitmaps,
// backed by persistent on-disk blocks. It's a direct generalization of the
// teacher's in-memory-only allocator (drivers/common/allocatormap.go) to
// one that loads from, and flushes back to, a block.Device.
package bitmap

import (
	gobitmap "github.com/boljen/go-bitmap"
	"github.com/sirupsen/logrus"

	"github.com/halvorsen/simplefs/block"
	simplefserrors "github.com/halvorsen/simplefs/errors"
)

// Allocator tracks which of TotalUnits resources (inodes or data blocks)
// are in use, via one bit per unit. Tie-break on allocation is always
// lowest index wins; there is no best-fit (spec §4.1).
type Allocator struct {
	bits       gobitmap.Bitmap
	dev        block.Device
	baseBlock  uint32
	blockCount uint32
	TotalUnits uint32
	FreeUnits  uint32

	warnFillRatio float64
	warnLog       *logrus.Entry
	warned        bool
}

// SetFillWarning arms a one-shot warning log the next time a successful
// Alloc/AllocRun pushes this bitmap's population at or above ratio of
// TotalUnits. ratio <= 0 disables the check. Driven by config.Config's
// BitmapWarnFillRatio via Mount.
func (a *Allocator) SetFillWarning(ratio float64, log *logrus.Entry) {
	a.warnFillRatio = ratio
	a.warnLog = log
}

// checkFillWarning logs once per crossing of warnFillRatio, reset when
// usage drops back below it so a bitmap hovering near the threshold
// doesn't get logged on every single allocation.
func (a *Allocator) checkFillWarning() {
	if a.warnFillRatio <= 0 || a.warnLog == nil || a.TotalUnits == 0 {
		return
	}
	used := a.TotalUnits - a.FreeUnits
	ratio := float64(used) / float64(a.TotalUnits)
	if ratio >= a.warnFillRatio {
		if !a.warned {
			a.warnLog.WithFields(logrus.Fields{
				"used": used, "total": a.TotalUnits, "ratio": ratio,
			}).Warn("bitmap fill ratio crossed warning threshold")
			a.warned = true
		}
	} else {
		a.warned = false
	}
}

// Load reads blockCount blocks starting at baseBlock from dev and
// interprets them as a bitmap tracking totalUnits resources. freeUnits is
// the superblock's cached free count (nr_free_inodes / nr_free_blocks),
// trusted as-is here; callers that want to validate it against the actual
// bit population should use fsck.
func Load(dev block.Device, baseBlock, blockCount, totalUnits, freeUnits uint32) (*Allocator, error) {
	raw := make([]byte, 0, blockCount*block.Size)
	for i := uint32(0); i < blockCount; i++ {
		buf, err := dev.ReadBlock(baseBlock + i)
		if err != nil {
			return nil, err
		}
		raw = append(raw, buf...)
	}

	return &Allocator{
		bits:       gobitmap.Bitmap(raw),
		dev:        dev,
		baseBlock:  baseBlock,
		blockCount: blockCount,
		TotalUnits: totalUnits,
		FreeUnits:  freeUnits,
	}, nil
}

// flushWord persists the block.Size-byte block of the bitmap containing
// bit index i.
func (a *Allocator) flushWord(i uint32) error {
	blockIdx := i / (block.Size * 8)
	start := blockIdx * block.Size
	end := start + block.Size
	if int(end) > len(a.bits) {
		end = uint32(len(a.bits))
	}

	buf := make([]byte, block.Size)
	copy(buf, a.bits[start:end])

	bno := a.baseBlock + blockIdx
	if err := a.dev.WriteBlock(bno, buf); err != nil {
		return err
	}
	a.dev.MarkDirty(bno)
	return nil
}

// Alloc finds the first unset bit and sets it, returning its index. It is
// used directly for alloc_inode(); alloc_blocks(1) also goes through
// here.
func (a *Allocator) Alloc() (uint32, error) {
	if a.FreeUnits == 0 {
		return 0, simplefserrors.ErrNoSpaceOnDevice
	}

	for i := uint32(0); i < a.TotalUnits; i++ {
		if !a.bits.Get(int(i)) {
			a.bits.Set(int(i), true)
			if err := a.flushWord(i); err != nil {
				a.bits.Set(int(i), false)
				return 0, err
			}
			a.FreeUnits--
			a.checkFillWarning()
			return i, nil
		}
	}
	return 0, simplefserrors.ErrNoSpaceOnDevice
}

// AllocRun finds the first run of count consecutive unset bits and marks
// them all in use, returning the index of the run's first bit. Used for
// alloc_blocks(n) with n in {1, MaxBlocksPerExtent} per spec §4.1.
func (a *Allocator) AllocRun(count uint32) (uint32, error) {
	if count == 0 {
		return 0, simplefserrors.ErrInvalidArgument.WithMessage("run length must be positive")
	}
	if a.FreeUnits < count {
		return 0, simplefserrors.ErrNoSpaceOnDevice
	}

	runStart := uint32(0)
	runLen := uint32(0)
	for i := uint32(0); i < a.TotalUnits; i++ {
		if a.bits.Get(int(i)) {
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = i
		}
		runLen++
		if runLen == count {
			for j := runStart; j < runStart+count; j++ {
				a.bits.Set(int(j), true)
				if err := a.flushWord(j); err != nil {
					for k := runStart; k <= j; k++ {
						a.bits.Set(int(k), false)
					}
					return 0, err
				}
			}
			a.FreeUnits -= count
			a.checkFillWarning()
			return runStart, nil
		}
	}
	return 0, simplefserrors.ErrNoSpaceOnDevice
}

// Free clears a single bit previously set by Alloc.
func (a *Allocator) Free(index uint32) error {
	if index >= a.TotalUnits {
		return simplefserrors.ErrInvalidArgument.WithMessage(
			"index %d not in [0, %d)", index, a.TotalUnits)
	}
	if !a.bits.Get(int(index)) {
		// Freeing an already-free unit is a caller bug, but spec §4.1
		// doesn't define a distinct error for it; treat it as a no-op
		// rather than corrupting the free counter.
		return nil
	}

	a.bits.Set(int(index), false)
	if err := a.flushWord(index); err != nil {
		a.bits.Set(int(index), true)
		return err
	}
	a.FreeUnits++
	return nil
}

// FreeRun clears count consecutive bits starting at index, used by
// free_blocks(bno, n).
func (a *Allocator) FreeRun(index, count uint32) error {
	for i := index; i < index+count; i++ {
		if err := a.Free(i); err != nil {
			return err
		}
	}
	return nil
}

// PopulationCount returns the number of set bits, for fsck's cross-check
// of "nr_free_* equals the count of zero bits" (spec §3, §8 invariant 5).
func (a *Allocator) PopulationCount() uint32 {
	count := uint32(0)
	for i := uint32(0); i < a.TotalUnits; i++ {
		if a.bits.Get(int(i)) {
			count++
		}
	}
	return count
}
