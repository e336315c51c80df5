// Package inode implements component I of spec.md §4.5: the fixed-size
// on-disk inode table plus materialization ("iget") into an in-memory,
// content-addressed cache keyed by inode number, mirroring the teacher's
// RawInode<->Inode conversion in drivers/unixv1/inode.go generalized from
// a single hand-rolled driver into a reusable store.
package inode

import (
	"github.com/halvorsen/simplefs/block"
	simplefserrors "github.com/halvorsen/simplefs/errors"
	"github.com/halvorsen/simplefs/layout"
)

// Inode is a materialized inode: its number plus the on-disk record
// fields.
type Inode struct {
	Num uint32
	layout.Inode
}

// Store is the inode table: a fixed array of on-disk inode records
// starting at BaseBlock, plus the identity map spec §5 requires ("the
// host provides a content-addressed cache keyed by ino; the core's
// materialize routine must be re-entrant via a new/existing flag").
type Store struct {
	dev       block.Device
	BaseBlock uint32
	NrInodes  uint32
	cache     map[uint32]*Inode
	order     []uint32
	cacheCap  int
}

// NewStore opens the inode table region of dev, which must hold
// layout.IstoreBlockCount(nrInodes) blocks starting at baseBlock.
func NewStore(dev block.Device, baseBlock, nrInodes uint32) *Store {
	return &Store{
		dev:       dev,
		BaseBlock: baseBlock,
		NrInodes:  nrInodes,
		cache:     make(map[uint32]*Inode),
	}
}

// SetCacheCap bounds how many materialized inodes Iget keeps before
// evicting the oldest (FIFO, by insertion order). n <= 0 means unbounded.
// Driven by config.Config's InodeCacheSize via Mount. Eviction only drops
// the in-memory handle; Put always writes through to disk first, so an
// evicted inode is simply re-read (and re-cached) on its next Iget.
func (s *Store) SetCacheCap(n int) {
	s.cacheCap = n
}

func (s *Store) remember(ino uint32) {
	s.order = append(s.order, ino)
	if s.cacheCap <= 0 || len(s.cache) <= s.cacheCap {
		return
	}
	for len(s.cache) > s.cacheCap && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, oldest)
	}
}

func (s *Store) locate(ino uint32) (blockIdx uint32, offset uint32) {
	perBlock := layout.InodesPerBlock()
	return ino / perBlock, ino % perBlock
}

func (s *Store) readRecord(ino uint32) (*layout.Inode, error) {
	blockIdx, offset := s.locate(ino)
	buf, err := s.dev.ReadBlock(s.BaseBlock + blockIdx)
	if err != nil {
		return nil, err
	}

	start := offset * layout.InodeRecordSize
	return layout.DecodeInode(buf[start : start+layout.InodeRecordSize])
}

func (s *Store) writeRecord(ino uint32, rec *layout.Inode) error {
	blockIdx, offset := s.locate(ino)
	buf, err := s.dev.ReadBlock(s.BaseBlock + blockIdx)
	if err != nil {
		return err
	}

	start := offset * layout.InodeRecordSize
	copy(buf[start:start+layout.InodeRecordSize], rec.Encode())

	if err := s.dev.WriteBlock(s.BaseBlock+blockIdx, buf); err != nil {
		return err
	}
	s.dev.MarkDirty(s.BaseBlock + blockIdx)
	return nil
}

// Iget materializes inode ino: spec §4.5 "Given (sb, ino): compute block
// index/offset; if ino >= nr_inodes -> INVAL; acquire the in-memory slot
// (identity-mapped by ino); if already populated, return it; otherwise
// read the on-disk record, classify it, and cache it." existed reports
// whether the inode was already in the cache (the "new/existing flag").
func (s *Store) Iget(ino uint32) (materialized *Inode, existed bool, err error) {
	if ino == layout.NoneInode || ino >= s.NrInodes {
		return nil, false, simplefserrors.ErrInvalidArgument.WithMessage(
			"inode number %d out of range [1, %d)", ino, s.NrInodes)
	}

	if cached, ok := s.cache[ino]; ok {
		return cached, true, nil
	}

	rec, err := s.readRecord(ino)
	if err != nil {
		return nil, false, err
	}

	materialized = &Inode{Num: ino, Inode: *rec}
	s.cache[ino] = materialized
	s.remember(ino)
	return materialized, false, nil
}

// Put persists the in-memory fields of ino back to the on-disk table and
// keeps the cache entry (it is the same pointer iget handed out, so
// callers mutate in place and then call Put to flush).
func (s *Store) Put(ino *Inode) error {
	if err := s.writeRecord(ino.Num, &ino.Inode); err != nil {
		return err
	}
	s.cache[ino.Num] = ino
	return nil
}

// Forget zeroes the on-disk record and evicts ino from the cache. Used by
// unlink's final-reference cleanup (spec §4.4 unlink step 4: "Zero inode
// fields").
func (s *Store) Forget(ino uint32) error {
	zero := &layout.Inode{}
	if err := s.writeRecord(ino, zero); err != nil {
		return err
	}
	delete(s.cache, ino)
	return nil
}
