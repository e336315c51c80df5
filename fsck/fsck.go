// Package fsck implements the testable properties of spec.md §8 as a
// read-only consistency walk over an already-mounted image: invariants
// 1-5 (nlink accounting, extent-index ordering, directory traversal
// coverage, extent/parent entry-count sums, bitmap population counts).
// It is a diagnostic surface, not the mkfs-equivalent formatter spec §1
// excludes — nothing here writes to the device.
package fsck

import (
	"fmt"

	"github.com/gocarina/gocsv"

	"github.com/halvorsen/simplefs/bitmap"
	"github.com/halvorsen/simplefs/block"
	"github.com/halvorsen/simplefs/dirent"
	"github.com/halvorsen/simplefs/inode"
	"github.com/halvorsen/simplefs/layout"
)

// Finding is one consistency mismatch, serializable to CSV via
// github.com/gocarina/gocsv for operators piping a report into a
// spreadsheet.
type Finding struct {
	Invariant string `csv:"invariant"`
	Inode     uint32 `csv:"inode"`
	Detail    string `csv:"detail"`
}

// Report holds the outcome of one consistency pass.
type Report struct {
	Findings []Finding
}

// ToCSV renders the report as CSV text.
func (r *Report) ToCSV() (string, error) {
	return gocsv.MarshalString(&r.Findings)
}

// Check walks the mounted image rooted at layout.RootInode and returns
// every mismatch found. It never mutates dev.
func Check(dev block.Device, sb *layout.Superblock, inodeAlloc, blockAlloc *bitmap.Allocator) (*Report, error) {
	r := &Report{}

	checkBitmapPopulation(r, "bitmap-population-inodes", inodeAlloc)
	checkBitmapPopulation(r, "bitmap-population-blocks", blockAlloc)

	store := inode.NewStore(dev, 1, sb.NrInodes)
	refcounts := map[uint32]uint32{}
	childDirs := map[uint32]uint32{}

	if err := walkDirectory(dev, store, layout.RootInode, r, refcounts, childDirs); err != nil {
		return nil, err
	}

	for ino := uint32(1); ino < sb.NrInodes; ino++ {
		rec, existed, err := store.Iget(ino)
		if err != nil {
			continue
		}
		_ = existed
		if rec.Mode == 0 {
			continue
		}
		// nlink of a directory counts its own "." entry plus one ".."
		// reference per child subdirectory it contains; root's ".."
		// points back at itself, contributing one more.
		want := refcounts[ino]
		if rec.IsDir() {
			want += 1 + childDirs[ino]
			if ino == layout.RootInode {
				want++
			}
		}
		if rec.Nlink != want {
			r.Findings = append(r.Findings, Finding{
				Invariant: "nlink-accounting",
				Inode:     ino,
				Detail:    fmt.Sprintf("stored nlink=%d, observed references=%d", rec.Nlink, want),
			})
		}
	}

	return r, nil
}

func checkBitmapPopulation(r *Report, label string, a *bitmap.Allocator) {
	used := a.PopulationCount()
	want := a.TotalUnits - a.FreeUnits
	if used != want {
		r.Findings = append(r.Findings, Finding{
			Invariant: label,
			Detail:    fmt.Sprintf("bitmap has %d set bits, free-counter implies %d", used, want),
		})
	}
}

// walkDirectory recursively visits dirIno's extent index, validating
// invariants 2-4 on it and every directory block it reaches, accumulating
// a reference count per child inode (one per live directory entry) and,
// separately, how many of dirIno's live entries are themselves
// subdirectories (each contributes one ".." reference back to dirIno).
func walkDirectory(dev block.Device, store *inode.Store, dirIno uint32, r *Report, refcounts, childDirs map[uint32]uint32) error {
	parent, _, err := store.Iget(dirIno)
	if err != nil {
		return err
	}
	idx, err := readIndex(dev, parent.ExtentBlock)
	if err != nil {
		return err
	}

	checkExtentIndex(r, dirIno, idx)
	if err := checkDirectoryBlocks(dev, r, dirIno, idx); err != nil {
		return err
	}

	var children []uint32
	err = dirent.ForEach(dev, idx, func(name string, ino uint32) (bool, error) {
		refcounts[ino]++
		children = append(children, ino)
		return true, nil
	})
	if err != nil {
		return err
	}

	for _, child := range children {
		rec, _, err := store.Iget(child)
		if err != nil {
			continue
		}
		if rec.IsDir() {
			childDirs[dirIno]++
			if err := walkDirectory(dev, store, child, r, refcounts, childDirs); err != nil {
				return err
			}
		}
	}
	return nil
}

func readIndex(dev block.Device, blockNo uint32) (*layout.ExtentIndexBlock, error) {
	buf, err := dev.ReadBlock(blockNo)
	if err != nil {
		return nil, err
	}
	return layout.DecodeExtentIndexBlock(buf)
}

// checkExtentIndex validates invariant 2 (empty extents form a
// contiguous suffix, ee_block non-overlapping and non-decreasing) and the
// directory half of invariant 4 (Σ extents[i].nr_files == nr_files).
func checkExtentIndex(r *Report, ino uint32, idx *layout.ExtentIndexBlock) {
	seenEmpty := false
	var sum uint32
	nextBlock := uint32(0)

	for i := range idx.Extents {
		e := &idx.Extents[i]
		if e.IsEmpty() {
			seenEmpty = true
			continue
		}
		if seenEmpty {
			r.Findings = append(r.Findings, Finding{
				Invariant: "extent-index-contiguous-suffix",
				Inode:     ino,
				Detail:    fmt.Sprintf("extent %d is non-empty after an empty extent", i),
			})
		}
		if e.Block < nextBlock {
			r.Findings = append(r.Findings, Finding{
				Invariant: "extent-index-ordering",
				Inode:     ino,
				Detail:    fmt.Sprintf("extent %d starts at %d, expected >= %d", i, e.Block, nextBlock),
			})
		}
		nextBlock = e.Block + e.Len
		sum += e.NrFiles
	}

	if sum != idx.NrFiles {
		r.Findings = append(r.Findings, Finding{
			Invariant: "extent-sum-matches-parent",
			Inode:     ino,
			Detail:    fmt.Sprintf("extents sum to %d live entries, index header says %d", sum, idx.NrFiles),
		})
	}
}

// checkDirectoryBlocks validates invariant 3 (the run-length traversal of
// each directory block visits exactly FPB slots and revisits none, and
// the live count matches the block's nr_files) and the per-extent half of
// invariant 4 (Σ of a directory's blocks' live entries equals that
// extent's nr_files).
func checkDirectoryBlocks(dev block.Device, r *Report, ino uint32, idx *layout.ExtentIndexBlock) error {
	for ei := range idx.Extents {
		e := &idx.Extents[ei]
		if e.IsEmpty() {
			break
		}

		var extentSum uint32
		for b := uint32(0); b < e.Len; b++ {
			buf, err := dev.ReadBlock(e.Start + b)
			if err != nil {
				return err
			}
			db, err := layout.DecodeDirectoryBlock(buf)
			if err != nil {
				return err
			}

			visitedSlots := uint32(0)
			liveCount := uint32(0)
			seen := make([]bool, layout.EntriesPerBlock)
			fi := 0
			for fi < layout.EntriesPerBlock {
				if seen[fi] {
					r.Findings = append(r.Findings, Finding{
						Invariant: "directory-block-traversal",
						Inode:     ino,
						Detail:    fmt.Sprintf("extent %d block %d revisits slot %d", ei, b, fi),
					})
					break
				}
				seen[fi] = true
				step := int(db.Files[fi].NrBlk)
				if step < 1 {
					step = 1
				}
				visitedSlots += uint32(step)
				if !db.Files[fi].IsFree() {
					liveCount++
				}
				fi += step
			}

			if visitedSlots != layout.EntriesPerBlock {
				r.Findings = append(r.Findings, Finding{
					Invariant: "directory-block-traversal",
					Inode:     ino,
					Detail:    fmt.Sprintf("extent %d block %d traversal covers %d slots, want %d", ei, b, visitedSlots, layout.EntriesPerBlock),
				})
			}
			if liveCount != db.NrFiles {
				r.Findings = append(r.Findings, Finding{
					Invariant: "directory-block-live-count",
					Inode:     ino,
					Detail:    fmt.Sprintf("extent %d block %d has %d live entries, header says %d", ei, b, liveCount, db.NrFiles),
				})
			}
			extentSum += db.NrFiles
		}

		if extentSum != e.NrFiles {
			r.Findings = append(r.Findings, Finding{
				Invariant: "extent-blocks-sum-matches-extent",
				Inode:     ino,
				Detail:    fmt.Sprintf("extent %d blocks sum to %d live entries, extent record says %d", ei, extentSum, e.NrFiles),
			})
		}
	}
	return nil
}
