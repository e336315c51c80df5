package simplefs

import (
	stderrors "errors"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/halvorsen/simplefs/block"
	"github.com/halvorsen/simplefs/dirent"
	simplefserrors "github.com/halvorsen/simplefs/errors"
	"github.com/halvorsen/simplefs/inode"
	"github.com/halvorsen/simplefs/layout"
)

// Lookup implements spec §4.4 lookup(dir, name): resolve name inside
// dir's extent index and update dir's atime.
func (fs *Filesystem) Lookup(dir *inode.Inode, name string) (uint32, error) {
	if len(name) > layout.FilenameLen {
		return 0, simplefserrors.ErrNameTooLong
	}

	fs.locker.Lock(dir.Num)
	defer fs.locker.Unlock(dir.Num)

	idx, err := fs.readExtentIndex(dir.ExtentBlock)
	if err != nil {
		return 0, err
	}

	ino, err := dirent.Lookup(fs.dev, idx, name)
	if err != nil {
		return 0, err
	}

	fs.touch(dir, false, true, false)
	if err := fs.istore.Put(dir); err != nil {
		return 0, err
	}
	return ino, nil
}

// createCommon implements the shared prologue of spec §4.4 create and
// mkdir: allocate an inode, allocate and zero its extent-index block
// (everything but symlinks needs one), populate fields, and link it into
// dir. Rollback on any failure releases only what this call allocated,
// per §7's propagation policy ("release the child's index block, release
// its inode, do not touch dir").
func (fs *Filesystem) createCommon(dir *inode.Inode, name string, mode uint32, owner Ownership, size uint32, nlink uint32) (*inode.Inode, error) {
	if len(name) > layout.FilenameLen {
		return nil, simplefserrors.ErrNameTooLong
	}

	ino, err := fs.inodes.Alloc()
	if err != nil {
		return nil, err
	}
	child, _, err := fs.istore.Iget(ino)
	if err != nil {
		_ = fs.inodes.Free(ino)
		return nil, err
	}

	extBlock, err := fs.blocks.Alloc()
	if err != nil {
		fs.rollbackCreate(ino, 0, err)
		return nil, err
	}
	emptyIdx := &layout.ExtentIndexBlock{}
	if err := fs.writeExtentIndex(extBlock, emptyIdx); err != nil {
		fs.rollbackCreate(ino, extBlock, err)
		return nil, err
	}

	now := uint32(fs.clock.Now().Unix())
	child.Mode = mode
	child.Uid = owner.Uid
	child.Gid = owner.Gid
	child.Size = size
	child.Ctime, child.Atime, child.Mtime = now, now, now
	child.Nlink = nlink
	child.Blocks = 1
	child.ExtentBlock = extBlock

	if err := fs.istore.Put(child); err != nil {
		fs.rollbackCreate(ino, extBlock, err)
		return nil, err
	}

	dirIdx, err := fs.readExtentIndex(dir.ExtentBlock)
	if err != nil {
		fs.rollbackCreate(ino, extBlock, err)
		return nil, err
	}
	if err := dirent.Insert(fs.dev, fs.blocks, dirIdx, name, ino); err != nil {
		fs.rollbackCreate(ino, extBlock, err)
		return nil, err
	}
	if err := fs.writeExtentIndex(dir.ExtentBlock, dirIdx); err != nil {
		fs.rollbackCreate(ino, extBlock, err)
		return nil, err
	}

	return child, nil
}

// rollbackCreate releases a partially-created inode and its (possibly
// zero, meaning "not yet allocated") extent-index block, aggregating any
// secondary cleanup failure with go-multierror so it is logged rather
// than silently dropped. The original error is still what callers
// propagate; this only best-effort frees resources.
func (fs *Filesystem) rollbackCreate(ino uint32, extBlock uint32, cause error) {
	var merr *multierror.Error
	if extBlock != layout.NoneBlock {
		if err := fs.blocks.Free(extBlock); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := fs.istore.Forget(ino); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := fs.inodes.Free(ino); err != nil {
		merr = multierror.Append(merr, err)
	}
	if merr != nil {
		fs.log.WithError(merr).WithField("cause", cause).Warn("rollback cleanup failed")
	}
}

// Create implements spec §4.4 create(dir, name, mode) for regular files.
func (fs *Filesystem) Create(dir *inode.Inode, name string, mode uint32, owner Ownership) (uint32, error) {
	if mode&layout.ModeTypeMask != layout.ModeRegular {
		return 0, simplefserrors.ErrInvalidArgument.WithMessage("Create requires a regular-file mode")
	}
	if fs.inodes.FreeUnits == 0 || fs.blocks.FreeUnits == 0 {
		return 0, simplefserrors.ErrNoSpaceOnDevice
	}

	fs.locker.Lock(dir.Num)
	defer fs.locker.Unlock(dir.Num)

	child, err := fs.createCommon(dir, name, mode, owner, 0, 1)
	if err != nil {
		return 0, err
	}

	fs.touch(dir, false, false, true)
	if err := fs.istore.Put(dir); err != nil {
		return 0, err
	}
	fs.log.WithFields(logrus.Fields{"op": "create", "dir": dir.Num, "name": name, "ino": child.Num}).Info("created")
	return child.Num, nil
}

// Mkdir implements spec §4.4 create(dir, name, DIR): same prologue as
// Create, plus nlink=2 (for "." and "..") and incrementing dir's own
// nlink for the child's ".." entry.
func (fs *Filesystem) Mkdir(dir *inode.Inode, name string, mode uint32, owner Ownership) (uint32, error) {
	if fs.inodes.FreeUnits == 0 || fs.blocks.FreeUnits == 0 {
		return 0, simplefserrors.ErrNoSpaceOnDevice
	}

	fs.locker.Lock(dir.Num)
	defer fs.locker.Unlock(dir.Num)

	fullMode := (mode &^ layout.ModeTypeMask) | layout.ModeDir
	child, err := fs.createCommon(dir, name, fullMode, owner, block.Size, 2)
	if err != nil {
		return 0, err
	}

	dir.Nlink++
	fs.touch(dir, false, false, true)
	if err := fs.istore.Put(dir); err != nil {
		return 0, err
	}
	fs.log.WithFields(logrus.Fields{"op": "mkdir", "dir": dir.Num, "name": name, "ino": child.Num}).Info("created")
	return child.Num, nil
}

// Symlink implements spec §4.4 symlink(dir, name, target): the target is
// stored inline in i_data, no extent-index block or data block is
// allocated.
func (fs *Filesystem) Symlink(dir *inode.Inode, name, target string, owner Ownership) (uint32, error) {
	if len(target)+1 > layout.SymlinkInlineLen {
		return 0, simplefserrors.ErrNameTooLong
	}
	if len(name) > layout.FilenameLen {
		return 0, simplefserrors.ErrNameTooLong
	}
	if fs.inodes.FreeUnits == 0 {
		return 0, simplefserrors.ErrNoSpaceOnDevice
	}

	fs.locker.Lock(dir.Num)
	defer fs.locker.Unlock(dir.Num)

	ino, err := fs.inodes.Alloc()
	if err != nil {
		return 0, err
	}
	child, _, err := fs.istore.Iget(ino)
	if err != nil {
		_ = fs.inodes.Free(ino)
		return 0, err
	}

	now := uint32(fs.clock.Now().Unix())
	child.Mode = layout.ModeSymlink | 0o777
	child.Uid = owner.Uid
	child.Gid = owner.Gid
	child.Size = uint32(len(target))
	child.Ctime, child.Atime, child.Mtime = now, now, now
	child.Nlink = 1
	child.Blocks = 0
	child.ExtentBlock = layout.NoneBlock
	child.SetSymlinkTarget(target)

	if err := fs.istore.Put(child); err != nil {
		fs.rollbackCreate(ino, layout.NoneBlock, err)
		return 0, err
	}

	dirIdx, err := fs.readExtentIndex(dir.ExtentBlock)
	if err != nil {
		fs.rollbackCreate(ino, layout.NoneBlock, err)
		return 0, err
	}
	if err := dirent.Insert(fs.dev, fs.blocks, dirIdx, name, ino); err != nil {
		fs.rollbackCreate(ino, layout.NoneBlock, err)
		return 0, err
	}
	if err := fs.writeExtentIndex(dir.ExtentBlock, dirIdx); err != nil {
		fs.rollbackCreate(ino, layout.NoneBlock, err)
		return 0, err
	}

	fs.touch(dir, false, false, true)
	if err := fs.istore.Put(dir); err != nil {
		return 0, err
	}
	fs.log.WithFields(logrus.Fields{"op": "symlink", "dir": dir.Num, "name": name, "ino": child.Num}).Info("created")
	return child.Num, nil
}

// Unlink implements spec §4.4 unlink(dir, name).
func (fs *Filesystem) Unlink(dir *inode.Inode, name string) error {
	fs.locker.Lock(dir.Num)
	defer fs.locker.Unlock(dir.Num)

	dirIdx, err := fs.readExtentIndex(dir.ExtentBlock)
	if err != nil {
		return err
	}
	target, err := dirent.Lookup(fs.dev, dirIdx, name)
	if err != nil {
		return err
	}
	child, err := fs.Iget(target)
	if err != nil {
		return err
	}

	if err := dirent.Remove(fs.dev, dirIdx, name, target); err != nil {
		return err
	}
	if err := fs.writeExtentIndex(dir.ExtentBlock, dirIdx); err != nil {
		return err
	}

	if child.IsDir() {
		dir.Nlink--
		child.Nlink--
	}
	child.Nlink--

	fs.touch(dir, false, false, true)
	if err := fs.istore.Put(dir); err != nil {
		return err
	}

	fs.log.WithFields(logrus.Fields{"op": "unlink", "dir": dir.Num, "name": name, "ino": child.Num, "nlink": child.Nlink}).Info("unlinked")
	if child.Nlink > 0 {
		return fs.istore.Put(child)
	}
	return fs.freeInodeData(child)
}

// freeInodeData implements unlink's final-reference cleanup: release
// every data block of every non-empty extent (best-effort: scrub I/O
// errors are swallowed per §7's documented trade-off so a freed block is
// never leaked), release the extent-index block (unless the inode has
// none, i.e. a symlink), free the inode, and zero its record.
func (fs *Filesystem) freeInodeData(child *inode.Inode) error {
	if child.ExtentBlock != layout.NoneBlock {
		idx, err := fs.readExtentIndex(child.ExtentBlock)
		if err == nil {
			for i := range idx.Extents {
				e := &idx.Extents[i]
				if e.IsEmpty() {
					break
				}
				for b := uint32(0); b < e.Len; b++ {
					_ = fs.dev.WriteBlock(e.Start+b, make([]byte, block.Size))
				}
				_ = fs.blocks.FreeRun(e.Start, e.Len)
			}
		}
		_ = fs.writeExtentIndex(child.ExtentBlock, &layout.ExtentIndexBlock{})
		if err := fs.blocks.Free(child.ExtentBlock); err != nil {
			return err
		}
	}

	if err := fs.inodes.Free(child.Num); err != nil {
		return err
	}
	return fs.istore.Forget(child.Num)
}

// Rmdir implements spec §4.4 rmdir(dir, name).
func (fs *Filesystem) Rmdir(dir *inode.Inode, name string) error {
	fs.locker.Lock(dir.Num)
	defer fs.locker.Unlock(dir.Num)

	dirIdx, err := fs.readExtentIndex(dir.ExtentBlock)
	if err != nil {
		return err
	}
	target, err := dirent.Lookup(fs.dev, dirIdx, name)
	if err != nil {
		return err
	}
	child, err := fs.Iget(target)
	if err != nil {
		return err
	}
	if child.Nlink > 2 {
		return simplefserrors.ErrDirectoryNotEmpty
	}
	childIdx, err := fs.readExtentIndex(child.ExtentBlock)
	if err != nil {
		return err
	}
	if childIdx.NrFiles != 0 {
		return simplefserrors.ErrDirectoryNotEmpty
	}

	fs.locker.Unlock(dir.Num)
	defer fs.locker.Lock(dir.Num)
	return fs.Unlink(dir, name)
}

// Link implements spec §4.4 link(src, newdir, newname): insert a slot in
// newdir and bump src's nlink; no inode or data block is allocated.
func (fs *Filesystem) Link(src *inode.Inode, newdir *inode.Inode, newname string) error {
	if len(newname) > layout.FilenameLen {
		return simplefserrors.ErrNameTooLong
	}

	fs.locker.Lock(newdir.Num)
	defer fs.locker.Unlock(newdir.Num)

	idx, err := fs.readExtentIndex(newdir.ExtentBlock)
	if err != nil {
		return err
	}
	if err := dirent.Insert(fs.dev, fs.blocks, idx, newname, src.Num); err != nil {
		return err
	}
	if err := fs.writeExtentIndex(newdir.ExtentBlock, idx); err != nil {
		return err
	}

	src.Nlink++
	if err := fs.istore.Put(src); err != nil {
		return err
	}

	fs.touch(newdir, false, false, true)
	if err := fs.istore.Put(newdir); err != nil {
		return err
	}
	fs.log.WithFields(logrus.Fields{"op": "link", "dir": newdir.Num, "name": newname, "ino": src.Num}).Info("linked")
	return nil
}

// Rename implements spec §4.4 rename(olddir, oldname, newdir, newname,
// flags).
func (fs *Filesystem) Rename(olddir *inode.Inode, oldname string, newdir *inode.Inode, newname string, flags RenameFlags) error {
	if flags&(RenameExchange|RenameWhiteout) != 0 {
		return simplefserrors.ErrInvalidArgument.WithMessage("unsupported rename flags")
	}

	fs.locker.Lock(newdir.Num)
	if newdir.Num != olddir.Num {
		fs.locker.Lock(olddir.Num)
	}
	defer func() {
		fs.locker.Unlock(newdir.Num)
		if newdir.Num != olddir.Num {
			fs.locker.Unlock(olddir.Num)
		}
	}()

	oldIdx, err := fs.readExtentIndex(olddir.ExtentBlock)
	if err != nil {
		return err
	}
	srcIno, err := dirent.Lookup(fs.dev, oldIdx, oldname)
	if err != nil {
		return err
	}

	if newdir.Num == olddir.Num {
		if newname != oldname {
			if _, err := dirent.Lookup(fs.dev, oldIdx, newname); err == nil {
				return simplefserrors.ErrExists
			} else if !stderrors.Is(err, simplefserrors.ErrNotFound) {
				return err
			}
		}
		if err := dirent.RenameInPlace(fs.dev, oldIdx, oldname, srcIno, newname); err != nil {
			return err
		}
		fs.touch(olddir, false, false, true)
		if err := fs.istore.Put(olddir); err != nil {
			return err
		}
		fs.log.WithFields(logrus.Fields{"op": "rename", "dir": olddir.Num, "old": oldname, "new": newname, "ino": srcIno}).Info("renamed")
		return nil
	}

	newIdx, err := fs.readExtentIndex(newdir.ExtentBlock)
	if err != nil {
		return err
	}
	if _, err := dirent.Lookup(fs.dev, newIdx, newname); err == nil {
		return simplefserrors.ErrExists
	} else if !stderrors.Is(err, simplefserrors.ErrNotFound) {
		return err
	}

	if err := dirent.Insert(fs.dev, fs.blocks, newIdx, newname, srcIno); err != nil {
		return err
	}
	if err := fs.writeExtentIndex(newdir.ExtentBlock, newIdx); err != nil {
		return err
	}
	if err := dirent.Remove(fs.dev, oldIdx, oldname, srcIno); err != nil {
		return err
	}
	if err := fs.writeExtentIndex(olddir.ExtentBlock, oldIdx); err != nil {
		return err
	}

	src, err := fs.Iget(srcIno)
	if err != nil {
		return err
	}
	if src.IsDir() {
		newdir.Nlink++
		olddir.Nlink--
	}

	fs.touch(olddir, false, false, true)
	fs.touch(newdir, false, false, true)
	if err := fs.istore.Put(olddir); err != nil {
		return err
	}
	if err := fs.istore.Put(newdir); err != nil {
		return err
	}
	fs.log.WithFields(logrus.Fields{
		"op": "rename", "old_dir": olddir.Num, "old": oldname,
		"new_dir": newdir.Num, "new": newname, "ino": srcIno,
	}).Info("renamed")
	return nil
}
