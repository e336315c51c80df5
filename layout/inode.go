package layout

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"

	simplefserrors "github.com/halvorsen/simplefs/errors"
)

// Inode is the in-memory form of one on-disk inode record, spec §3
// "Inode record". ei_block is 0 (NoneBlock) for symlinks, which store their
// target inline in Data instead of pointing at an extent-index block.
type Inode struct {
	Mode    uint32
	Uid     uint32
	Gid     uint32
	Size    uint32
	Ctime   uint32
	Atime   uint32
	Mtime   uint32
	Blocks  uint32 // i_blocks: count of data blocks + extent-index block
	Nlink   uint32
	ExtentBlock uint32 // ei_block
	Data    [SymlinkInlineLen]byte
}

func (ino *Inode) IsDir() bool     { return ino.Mode&ModeTypeMask == ModeDir }
func (ino *Inode) IsRegular() bool { return ino.Mode&ModeTypeMask == ModeRegular }
func (ino *Inode) IsSymlink() bool { return ino.Mode&ModeTypeMask == ModeSymlink }

// SymlinkTarget returns the NUL-terminated inline target as a string. Only
// meaningful when IsSymlink() is true.
func (ino *Inode) SymlinkTarget() string {
	n := 0
	for n < len(ino.Data) && ino.Data[n] != 0 {
		n++
	}
	return string(ino.Data[:n])
}

// SetSymlinkTarget stores target inline, NUL-padding the remainder. Callers
// must have already checked len(target)+1 <= SymlinkInlineLen (spec §4.4).
func (ino *Inode) SetSymlinkTarget(target string) {
	var buf [SymlinkInlineLen]byte
	copy(buf[:], target)
	ino.Data = buf
}

// Encode packs the inode into its fixed InodeRecordSize-byte on-disk
// representation: ten 4-byte fields followed by the 32-byte inline data
// buffer and an explicit zeroed reserved tail, totalling exactly
// InodeRecordSize bytes with no implicit struct padding.
func (ino *Inode) Encode() []byte {
	buf := make([]byte, InodeRecordSize)
	w := bytewriter.New(buf)

	fields := []uint32{
		ino.Mode, ino.Uid, ino.Gid, ino.Size,
		ino.Ctime, ino.Atime, ino.Mtime,
		ino.Blocks, ino.Nlink, ino.ExtentBlock,
	}
	for _, field := range fields {
		_ = binary.Write(w, binary.LittleEndian, field)
	}
	_, _ = w.Write(ino.Data[:])
	// Remaining bytes of buf are already zero (reserved tail).
	return buf
}

// DecodeInode unpacks one InodeRecordSize-byte record.
func DecodeInode(buf []byte) (*Inode, error) {
	if len(buf) != InodeRecordSize {
		return nil, simplefserrors.ErrInvalidArgument.WithMessage(
			"inode record must be %d bytes, got %d", InodeRecordSize, len(buf))
	}

	ino := &Inode{
		Mode:        binary.LittleEndian.Uint32(buf[0:4]),
		Uid:         binary.LittleEndian.Uint32(buf[4:8]),
		Gid:         binary.LittleEndian.Uint32(buf[8:12]),
		Size:        binary.LittleEndian.Uint32(buf[12:16]),
		Ctime:       binary.LittleEndian.Uint32(buf[16:20]),
		Atime:       binary.LittleEndian.Uint32(buf[20:24]),
		Mtime:       binary.LittleEndian.Uint32(buf[24:28]),
		Blocks:      binary.LittleEndian.Uint32(buf[28:32]),
		Nlink:       binary.LittleEndian.Uint32(buf[32:36]),
		ExtentBlock: binary.LittleEndian.Uint32(buf[36:40]),
	}
	copy(ino.Data[:], buf[40:40+SymlinkInlineLen])
	return ino, nil
}

// IsZero reports whether this is a freshly-zeroed (unallocated) inode
// record, i.e. one whose mode field has never been set.
func (ino *Inode) IsZero() bool {
	if ino.Mode != 0 || ino.Nlink != 0 || ino.ExtentBlock != 0 {
		return false
	}
	for _, b := range ino.Data {
		if b != 0 {
			return false
		}
	}
	return true
}
