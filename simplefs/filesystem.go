// Package simplefs implements component N of spec.md §4.4 (namespace
// operations) and §6 (external interfaces): the mount-level Filesystem
// type tying the block, layout, bitmap, inode, extent and dirent
// packages together into lookup/create/unlink/mkdir/rmdir/rename/link/
// symlink. Grounded on the teacher's drivers/unixv1/driver.go, which
// plays the same role of gluing its own allocator/inode/dirent pieces
// behind one driver type.
package simplefs

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/halvorsen/simplefs/bitmap"
	"github.com/halvorsen/simplefs/block"
	"github.com/halvorsen/simplefs/config"
	simplefserrors "github.com/halvorsen/simplefs/errors"
	"github.com/halvorsen/simplefs/fsck"
	"github.com/halvorsen/simplefs/inode"
	"github.com/halvorsen/simplefs/layout"
)

// Ownership is the caller-supplied identity spec §6 says the core has no
// ambient notion of: "ownership context (caller uid/gid)".
type Ownership struct {
	Uid uint32
	Gid uint32
}

// RenameFlags mirrors the flag bits spec §4.4 rename rejects outright.
type RenameFlags uint32

const (
	RenameExchange RenameFlags = 1 << iota
	RenameWhiteout
)

// DirLocker is the host-provided per-directory serialization hook spec §5
// describes: "a host that serializes namespace operations per-directory
// ... the core does NOT take internal locks." The zero value (noopLocker)
// is safe for single-goroutine use, matching how the test suite drives
// the core.
type DirLocker interface {
	Lock(ino uint32)
	Unlock(ino uint32)
}

type noopLocker struct{}

func (noopLocker) Lock(uint32)   {}
func (noopLocker) Unlock(uint32) {}

// Clock is the wall-clock source spec §6 lists as a host-consumed
// service ("clock (wall-clock seconds)"), abstracted per the §9 design
// note so the core never forks on host timestamp APIs.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// MountOptions configures a Filesystem at Mount time. Zero-value fields
// fall back to sane single-process defaults.
type MountOptions struct {
	Locker DirLocker
	Clock  Clock
	// Logger, if set, overrides the logger config.Config.Logger would
	// otherwise build from Config (or from the environment, if Config is
	// nil too).
	Logger *logrus.Logger
	// Config supplies the runtime tunables of SPEC_FULL.md §4.6. Nil
	// means "load from the environment", i.e. config.Load().
	Config *config.Config
}

// Filesystem is a mounted, in-memory handle onto a SimpleFS image: the
// superblock plus the inode and block allocators and the inode store,
// per spec §3 "In-memory additions: pointers to loaded bitmaps."
type Filesystem struct {
	dev    block.Device
	sb     *layout.Superblock
	inodes *bitmap.Allocator
	blocks *bitmap.Allocator
	istore *inode.Store

	locker    DirLocker
	clock     Clock
	log       *logrus.Entry
	sessionID uuid.UUID
}

// Mount implements spec §6's mount(device) -> superblock handle: reads
// block 0, validates the layout invariants, and opens the inode table
// and both bitmaps at their spec §3 partition offsets.
func Mount(dev block.Device, opts MountOptions) (*Filesystem, error) {
	buf, err := dev.ReadBlock(0)
	if err != nil {
		return nil, simplefserrors.ErrIOFailed.Wrap(err)
	}
	sb, err := layout.DecodeSuperblock(buf)
	if err != nil {
		return nil, err
	}

	dataBlocks := sb.NrBlocks - (1 + sb.NrIstoreBlocks + sb.NrIfreeBlocks + sb.NrBfreeBlocks)
	if err := sb.Validate(dataBlocks); err != nil {
		return nil, err
	}

	istoreBase := uint32(1)
	ifreeBase := istoreBase + sb.NrIstoreBlocks
	bfreeBase := ifreeBase + sb.NrIfreeBlocks

	inodeAlloc, err := bitmap.Load(dev, ifreeBase, sb.NrIfreeBlocks, sb.NrInodes, sb.NrFreeInodes)
	if err != nil {
		return nil, err
	}
	blockAlloc, err := bitmap.Load(dev, bfreeBase, sb.NrBfreeBlocks, sb.NrBlocks, sb.NrFreeBlocks)
	if err != nil {
		return nil, err
	}

	locker := opts.Locker
	if locker == nil {
		locker = noopLocker{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Load()
	}
	logger := opts.Logger
	if logger == nil {
		logger = cfg.Logger()
	}

	sessionID := uuid.New()
	istore := inode.NewStore(dev, istoreBase, sb.NrInodes)
	istore.SetCacheCap(cfg.InodeCacheSize)

	log := logger.WithField("session", sessionID.String())
	inodeAlloc.SetFillWarning(cfg.BitmapWarnFillRatio, log)
	blockAlloc.SetFillWarning(cfg.BitmapWarnFillRatio, log)

	fs := &Filesystem{
		dev:       dev,
		sb:        sb,
		inodes:    inodeAlloc,
		blocks:    blockAlloc,
		istore:    istore,
		locker:    locker,
		clock:     clock,
		log:       log,
		sessionID: sessionID,
	}
	fs.log.WithFields(logrus.Fields{
		"nr_blocks":  sb.NrBlocks,
		"nr_inodes":  sb.NrInodes,
		"free_inode": sb.NrFreeInodes,
		"free_block": sb.NrFreeBlocks,
	}).Info("mounted")
	return fs, nil
}

// Iget materializes inode ino, delegating to the inode store.
func (fs *Filesystem) Iget(ino uint32) (*inode.Inode, error) {
	materialized, _, err := fs.istore.Iget(ino)
	return materialized, err
}

// Stat surfaces the superblock counters the teacher calls FSStat,
// recovered in SPEC_FULL.md §"Supplemented features" as a lightweight
// alternative to a full fsck pass.
type Stat struct {
	BlockSize    uint32
	NrBlocks     uint32
	NrInodes     uint32
	NrFreeBlocks uint32
	NrFreeInodes uint32
}

// Statfs returns the live counters tracked by the mounted bitmaps.
func (fs *Filesystem) Statfs() Stat {
	return Stat{
		BlockSize:    block.Size,
		NrBlocks:     fs.sb.NrBlocks,
		NrInodes:     fs.sb.NrInodes,
		NrFreeBlocks: fs.blocks.FreeUnits,
		NrFreeInodes: fs.inodes.FreeUnits,
	}
}

// Fsck runs the read-only consistency walk of the fsck package (spec
// §8's invariants 1-5) over the mounted image.
func (fs *Filesystem) Fsck() (*fsck.Report, error) {
	return fsck.Check(fs.dev, fs.sb, fs.inodes, fs.blocks)
}

func (fs *Filesystem) readExtentIndex(blockNo uint32) (*layout.ExtentIndexBlock, error) {
	buf, err := fs.dev.ReadBlock(blockNo)
	if err != nil {
		return nil, err
	}
	return layout.DecodeExtentIndexBlock(buf)
}

func (fs *Filesystem) writeExtentIndex(blockNo uint32, idx *layout.ExtentIndexBlock) error {
	if err := fs.dev.WriteBlock(blockNo, idx.Encode()); err != nil {
		return err
	}
	fs.dev.MarkDirty(blockNo)
	return nil
}

func (fs *Filesystem) touch(in *inode.Inode, ctime, atime, mtime bool) {
	now := uint32(fs.clock.Now().Unix())
	if ctime {
		in.Ctime = now
	}
	if atime {
		in.Atime = now
	}
	if mtime {
		in.Mtime = now
	}
}
