package layout

import (
	"encoding/binary"

	simplefserrors "github.com/halvorsen/simplefs/errors"
)

// DirectoryRecord is one slot of a directory block, spec §3 "Directory
// block" / GLOSSARY "Gap run length". A slot with Inode==0 is free and
// NrBlk gives the run length of the gap starting at this slot; a live
// slot (Inode!=0) has NrBlk==1 except when it's the last live entry
// before a gap, where by convention it carries the remaining tail length.
// See the dirent package for the traversal and mutation algorithms; this
// type only knows how to get bytes on and off disk.
type DirectoryRecord struct {
	Inode    uint32
	NrBlk    uint32
	Filename [FilenameLen]byte
}

func (r *DirectoryRecord) IsFree() bool {
	return r.Inode == NoneInode
}

// Name returns the filename up to its first NUL byte.
func (r *DirectoryRecord) Name() string {
	n := 0
	for n < len(r.Filename) && r.Filename[n] != 0 {
		n++
	}
	return string(r.Filename[:n])
}

// SetName stores name, NUL-padding the remainder. Callers must already
// have checked len(name) <= FilenameLen.
func (r *DirectoryRecord) SetName(name string) {
	var buf [FilenameLen]byte
	copy(buf[:], name)
	r.Filename = buf
}

func (r *DirectoryRecord) encodeInto(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], r.Inode)
	binary.LittleEndian.PutUint32(buf[4:8], r.NrBlk)
	copy(buf[8:8+FilenameLen], r.Filename[:])
}

func decodeDirectoryRecord(buf []byte) DirectoryRecord {
	r := DirectoryRecord{
		Inode: binary.LittleEndian.Uint32(buf[0:4]),
		NrBlk: binary.LittleEndian.Uint32(buf[4:8]),
	}
	copy(r.Filename[:], buf[8:8+FilenameLen])
	return r
}

// DirectoryBlock is one physical block of a directory, spec §3 "Directory
// block": a live-entry count plus a packed array of EntriesPerBlock
// records using the run-length gap encoding.
type DirectoryBlock struct {
	NrFiles uint32
	Files   [EntriesPerBlock]DirectoryRecord
}

// FreshDirectoryBlock returns a newly-provisioned directory block: slot 0
// is one big gap covering the whole block, per spec §3 "On a
// freshly-provisioned directory block, the first slot has inode=0 and
// nr_blk=FPB".
func FreshDirectoryBlock() *DirectoryBlock {
	db := &DirectoryBlock{}
	db.Files[0] = DirectoryRecord{Inode: NoneInode, NrBlk: EntriesPerBlock}
	return db
}

// Encode packs the directory block into a block.Size-byte buffer. Bytes
// past the populated record array are left zero.
func (db *DirectoryBlock) Encode() []byte {
	buf := make([]byte, 4096)
	binary.LittleEndian.PutUint32(buf[0:4], db.NrFiles)
	for i := range db.Files {
		off := 4 + i*DirectoryRecordSize
		db.Files[i].encodeInto(buf[off : off+DirectoryRecordSize])
	}
	return buf
}

// DecodeDirectoryBlock unpacks one block.Size-byte buffer.
func DecodeDirectoryBlock(buf []byte) (*DirectoryBlock, error) {
	if len(buf) != 4096 {
		return nil, simplefserrors.ErrInvalidArgument.WithMessage(
			"directory block must be %d bytes, got %d", 4096, len(buf))
	}

	db := &DirectoryBlock{
		NrFiles: binary.LittleEndian.Uint32(buf[0:4]),
	}
	for i := range db.Files {
		off := 4 + i*DirectoryRecordSize
		db.Files[i] = decodeDirectoryRecord(buf[off : off+DirectoryRecordSize])
	}
	return db, nil
}
