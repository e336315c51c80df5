// Package dirent implements component D of spec.md §4.3: the directory
// block's run-length "gap" encoding and the three primitives — insert,
// remove, lookup — every namespace mutation builds on. The teacher's
// closest analog is its FAT/unixv1 directory-entry handling
// (drivers/unixv1/dirents.go), but neither teacher format uses a
// run-length free-slot encoding, so the traversal and mutation logic here
// is built directly from spec.md §3's invariants and §4.3's algorithm,
// encapsulated so callers never touch NrBlk themselves (per the design
// note in spec §9).
package dirent

import (
	"github.com/halvorsen/simplefs/bitmap"
	"github.com/halvorsen/simplefs/block"
	simplefserrors "github.com/halvorsen/simplefs/errors"
	"github.com/halvorsen/simplefs/extent"
	"github.com/halvorsen/simplefs/layout"
)

// insertInto writes (ino, name) into the first available slot of db,
// using the run-length gap encoding. It resolves spec §9 open questions
// 1 and 3 by special-casing an entirely fresh block explicitly instead of
// reading an uninitialized loop variable: a fresh block's only record,
// slot 0, simply flips from free to live and keeps its nr_blk (spanning
// the whole block) as the "last live entry before a gap" tail length.
//
// For a non-fresh block, it walks the leading run of slots whose nr_blk
// is 1 (singleton live entries written by earlier inserts) until it
// finds the slot holding the remaining reach — either a genuine free gap
// or the previous insert's tail-carrying live entry — and steals one slot
// off the front of that reach for the new entry.
func insertInto(db *layout.DirectoryBlock, ino uint32, name string) error {
	if db.NrFiles == 0 {
		db.Files[0] = layout.DirectoryRecord{Inode: ino, NrBlk: layout.EntriesPerBlock}
		db.Files[0].SetName(name)
		db.NrFiles = 1
		return nil
	}

	fi := 0
	for fi < layout.EntriesPerBlock-1 && db.Files[fi].NrBlk == 1 {
		fi++
	}

	reach := db.Files[fi].NrBlk
	newSlot := fi + 1
	if reach < 1 || newSlot >= layout.EntriesPerBlock {
		return simplefserrors.ErrNoSpaceOnDevice.WithMessage("directory block is full")
	}

	db.Files[newSlot] = layout.DirectoryRecord{Inode: ino, NrBlk: reach - 1}
	db.Files[newSlot].SetName(name)
	db.Files[fi].NrBlk = 1
	db.NrFiles++
	return nil
}

// removeFrom clears the live entry matching (expectIno, name), adding its
// nr_blk to the nearest preceding live entry (or to slot 0, if no live
// entry precedes it) so the traversal invariant Σnr_blk==FPB keeps
// holding. It reports whether a match was found.
func removeFrom(db *layout.DirectoryBlock, name string, expectIno uint32) bool {
	fi := 0
	visited := uint32(0)

	for fi < layout.EntriesPerBlock && visited < db.NrFiles {
		rec := &db.Files[fi]
		step := int(rec.NrBlk)
		if step < 1 {
			step = 1
		}

		if !rec.IsFree() {
			visited++
			if rec.Inode == expectIno && rec.Name() == name {
				freedSpan := rec.NrBlk
				rec.Inode = layout.NoneInode
				rec.Filename = [layout.FilenameLen]byte{}

				if fi > 0 {
					i := fi - 1
					for i > 0 && db.Files[i].IsFree() {
						i--
					}
					db.Files[i].NrBlk += freedSpan
				}
				// fi == 0: the freed slot already carries the right
				// reach as its own nr_blk; nothing precedes it to merge
				// into.

				db.NrFiles--
				return true
			}
		}
		fi += step
	}
	return false
}

// lookupIn walks db the same way removeFrom does, returning the inode
// number of the live entry named name, if any.
func lookupIn(db *layout.DirectoryBlock, name string) (uint32, bool) {
	fi := 0
	visited := uint32(0)

	for fi < layout.EntriesPerBlock && visited < db.NrFiles {
		rec := &db.Files[fi]
		step := int(rec.NrBlk)
		if step < 1 {
			step = 1
		}

		if !rec.IsFree() {
			visited++
			if rec.Name() == name {
				return rec.Inode, true
			}
		}
		fi += step
	}
	return 0, false
}

// eachDirectoryBlock calls fn for every physical directory block backing
// parent's non-empty extents, in logical order, stopping (and returning
// fn's error) as soon as fn returns a non-nil error or done=true.
func eachDirectoryBlock(
	dev block.Device,
	parent *layout.ExtentIndexBlock,
	fn func(extIdx int, physical uint32, db *layout.DirectoryBlock) (done bool, err error),
) error {
	for ei := range parent.Extents {
		e := &parent.Extents[ei]
		if e.IsEmpty() {
			break
		}
		for b := uint32(0); b < e.Len; b++ {
			physical := e.Start + b
			buf, err := dev.ReadBlock(physical)
			if err != nil {
				return err
			}
			db, err := layout.DecodeDirectoryBlock(buf)
			if err != nil {
				return err
			}

			done, err := fn(ei, physical, db)
			if err != nil || done {
				return err
			}
		}
	}
	return nil
}

// Insert implements spec §4.3 insert(parent_index, name, ino): picks the
// extent via extent.AvailableExt (growing the index with a fresh extent
// if needed), finds the first directory block in that extent with room,
// and writes the entry using the gap encoding.
func Insert(dev block.Device, alloc *bitmap.Allocator, parent *layout.ExtentIndexBlock, name string, ino uint32) error {
	if len(name) > layout.FilenameLen {
		return simplefserrors.ErrNameTooLong
	}
	if parent.NrFiles >= layout.MaxChildren {
		return simplefserrors.ErrTooManyLinks
	}

	avail, ok := extent.AvailableExt(parent, parent.NrFiles)
	if !ok {
		return simplefserrors.ErrNoSpaceOnDevice
	}

	grewExtent := parent.Extents[avail].IsEmpty()
	if grewExtent {
		if err := extent.PutNewExtent(parent, avail, alloc, dev, true); err != nil {
			return err
		}
	}

	e := &parent.Extents[avail]
	for b := uint32(0); b < e.Len; b++ {
		physical := e.Start + b
		buf, err := dev.ReadBlock(physical)
		if err != nil {
			return rollbackGrewExtent(grewExtent, alloc, dev, parent, avail, err)
		}
		db, err := layout.DecodeDirectoryBlock(buf)
		if err != nil {
			return rollbackGrewExtent(grewExtent, alloc, dev, parent, avail, err)
		}
		if db.NrFiles >= layout.EntriesPerBlock {
			continue
		}

		if err := insertInto(db, ino, name); err != nil {
			return rollbackGrewExtent(grewExtent, alloc, dev, parent, avail, err)
		}
		if err := dev.WriteBlock(physical, db.Encode()); err != nil {
			return rollbackGrewExtent(grewExtent, alloc, dev, parent, avail, err)
		}
		dev.MarkDirty(physical)

		e.NrFiles++
		parent.NrFiles++
		return nil
	}

	// Every block in the chosen extent is full; the MAX_CHILD guard above
	// means this should never trigger in practice (spec §4.2).
	return rollbackGrewExtent(grewExtent, alloc, dev, parent, avail,
		simplefserrors.ErrNoSpaceOnDevice.WithMessage("no room in extent %d", avail))
}

// rollbackGrewExtent implements the §7 propagation policy: "If a fresh
// extent was allocated but the write into its first directory block
// fails, the extent's blocks are released and the extent record is
// zeroed." It always returns origErr (or a wrapped form) so callers can
// `return rollbackGrewExtent(...)` directly.
func rollbackGrewExtent(
	grew bool,
	alloc *bitmap.Allocator,
	dev block.Device,
	parent *layout.ExtentIndexBlock,
	avail int,
	origErr error,
) error {
	if !grew {
		return origErr
	}
	e := parent.Extents[avail]
	_ = alloc.FreeRun(e.Start, e.Len)
	parent.Extents[avail] = layout.ExtentRecord{}
	return origErr
}

// Remove implements spec §4.3 remove(parent_index, name, expect_ino).
func Remove(dev block.Device, parent *layout.ExtentIndexBlock, name string, expectIno uint32) error {
	found := false
	err := eachDirectoryBlock(dev, parent, func(ei int, physical uint32, db *layout.DirectoryBlock) (bool, error) {
		if !removeFrom(db, name, expectIno) {
			return false, nil
		}
		if err := dev.WriteBlock(physical, db.Encode()); err != nil {
			return true, err
		}
		dev.MarkDirty(physical)
		parent.Extents[ei].NrFiles--
		parent.NrFiles--
		found = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return simplefserrors.ErrNotFound
	}
	return nil
}

// Lookup implements spec §4.3 lookup(parent_index, name).
func Lookup(dev block.Device, parent *layout.ExtentIndexBlock, name string) (uint32, error) {
	var found uint32
	ok := false
	err := eachDirectoryBlock(dev, parent, func(_ int, _ uint32, db *layout.DirectoryBlock) (bool, error) {
		if ino, matched := lookupIn(db, name); matched {
			found, ok = ino, true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, simplefserrors.ErrNotFound
	}
	return found, nil
}

// ForEach calls fn for every live (name, ino) entry across parent's
// directory blocks, in traversal order, stopping as soon as fn returns
// an error or cont=false. Used by the fsck package to walk the namespace
// without reaching into the gap encoding itself.
func ForEach(dev block.Device, parent *layout.ExtentIndexBlock, fn func(name string, ino uint32) (cont bool, err error)) error {
	return eachDirectoryBlock(dev, parent, func(_ int, _ uint32, db *layout.DirectoryBlock) (bool, error) {
		fi := 0
		visited := uint32(0)
		for fi < layout.EntriesPerBlock && visited < db.NrFiles {
			rec := &db.Files[fi]
			step := int(rec.NrBlk)
			if step < 1 {
				step = 1
			}
			if !rec.IsFree() {
				visited++
				cont, err := fn(rec.Name(), rec.Inode)
				if err != nil || !cont {
					return true, err
				}
			}
			fi += step
		}
		return false, nil
	})
}

// RenameInPlace renames the entry matching (oldname, srcIno) to newname in
// place, used by spec §4.4 rename's same-directory fast path: "walk and
// rename in place by overwriting the filename bytes."
func RenameInPlace(dev block.Device, parent *layout.ExtentIndexBlock, oldname string, srcIno uint32, newname string) error {
	if len(newname) > layout.FilenameLen {
		return simplefserrors.ErrNameTooLong
	}

	found := false
	err := eachDirectoryBlock(dev, parent, func(_ int, physical uint32, db *layout.DirectoryBlock) (bool, error) {
		fi := 0
		visited := uint32(0)
		for fi < layout.EntriesPerBlock && visited < db.NrFiles {
			rec := &db.Files[fi]
			step := int(rec.NrBlk)
			if step < 1 {
				step = 1
			}
			if !rec.IsFree() {
				visited++
				if rec.Inode == srcIno && rec.Name() == oldname {
					rec.SetName(newname)
					found = true
					if err := dev.WriteBlock(physical, db.Encode()); err != nil {
						return true, err
					}
					dev.MarkDirty(physical)
					return true, nil
				}
			}
			fi += step
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return simplefserrors.ErrNotFound
	}
	return nil
}
