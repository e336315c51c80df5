package layout

import (
	"encoding/binary"

	simplefserrors "github.com/halvorsen/simplefs/errors"
)

// Superblock is the in-memory form of block 0, spec §3 "Superblock".
type Superblock struct {
	Magic          uint32
	NrBlocks       uint32
	NrInodes       uint32
	NrIstoreBlocks uint32
	NrIfreeBlocks  uint32
	NrBfreeBlocks  uint32
	NrFreeInodes   uint32
	NrFreeBlocks   uint32
}

// onDiskSuperblockFields is the number of uint32 fields written to disk, in
// order. The rest of the block is reserved and must be zero.
const onDiskSuperblockFields = 8

// Encode packs the superblock into a block.Size-byte buffer, zeroing the
// reserved trailer as required by "the trailing bytes ... should be zero".
func (sb *Superblock) Encode() []byte {
	buf := make([]byte, 4096)
	binary.LittleEndian.PutUint32(buf[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], sb.NrBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], sb.NrInodes)
	binary.LittleEndian.PutUint32(buf[12:16], sb.NrIstoreBlocks)
	binary.LittleEndian.PutUint32(buf[16:20], sb.NrIfreeBlocks)
	binary.LittleEndian.PutUint32(buf[20:24], sb.NrBfreeBlocks)
	binary.LittleEndian.PutUint32(buf[24:28], sb.NrFreeInodes)
	binary.LittleEndian.PutUint32(buf[28:32], sb.NrFreeBlocks)
	return buf
}

// DecodeSuperblock reads a superblock out of a block-0-sized buffer and
// validates the magic number.
func DecodeSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) != 4096 {
		return nil, simplefserrors.ErrInvalidArgument.WithMessage(
			"superblock buffer must be %d bytes, got %d", 4096, len(buf))
	}

	sb := &Superblock{
		Magic:          binary.LittleEndian.Uint32(buf[0:4]),
		NrBlocks:       binary.LittleEndian.Uint32(buf[4:8]),
		NrInodes:       binary.LittleEndian.Uint32(buf[8:12]),
		NrIstoreBlocks: binary.LittleEndian.Uint32(buf[12:16]),
		NrIfreeBlocks:  binary.LittleEndian.Uint32(buf[16:20]),
		NrBfreeBlocks:  binary.LittleEndian.Uint32(buf[20:24]),
		NrFreeInodes:   binary.LittleEndian.Uint32(buf[24:28]),
		NrFreeBlocks:   binary.LittleEndian.Uint32(buf[28:32]),
	}
	if sb.Magic != Magic {
		return nil, simplefserrors.ErrFileSystemCorrupted.WithMessage(
			"bad magic: got 0x%08X, want 0x%08X", sb.Magic, Magic)
	}
	return sb, nil
}

// Validate checks the invariants spec §3 states for the superblock: the
// five layout regions must sum to NrBlocks. The free-count-vs-bitmap
// invariants are checked by the fsck package, using each
// bitmap.Allocator's PopulationCount.
func (sb *Superblock) Validate(dataBlocks uint32) error {
	sum := 1 + sb.NrIstoreBlocks + sb.NrIfreeBlocks + sb.NrBfreeBlocks + dataBlocks
	if sum != sb.NrBlocks {
		return simplefserrors.ErrFileSystemCorrupted.WithMessage(
			"layout regions sum to %d blocks, superblock says %d", sum, sb.NrBlocks)
	}
	return nil
}

// InodesPerBlock returns how many fixed-size inode records fit in one
// block, used to locate an inode's containing block and offset.
func InodesPerBlock() uint32 {
	return 4096 / InodeRecordSize
}

// IstoreBlockCount computes ceil(nrInodes / InodesPerBlock()), the
// "Inode table" region size from spec §3's partition layout. Inode
// records never straddle a block boundary, so each block holds
// InodesPerBlock() whole records.
func IstoreBlockCount(nrInodes uint32) uint32 {
	perBlock := InodesPerBlock()
	return (nrInodes + perBlock - 1) / perBlock
}

// BitmapBlockCount computes ceil(nrItems / (block.Size*8)), shared by both
// the inode-free and block-free bitmap regions.
func BitmapBlockCount(nrItems uint32) uint32 {
	bitsPerBlock := uint32(4096 * 8)
	return (nrItems + bitsPerBlock - 1) / bitsPerBlock
}
