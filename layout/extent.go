package layout

import (
	"encoding/binary"

	simplefserrors "github.com/halvorsen/simplefs/errors"
)

// ExtentRecord is one entry of an extent-index block, spec §3 "Extent
// record". An extent is "empty" iff Start==0 (NoneBlock).
type ExtentRecord struct {
	// Block is ee_block: the first logical block within the owning
	// file/directory that this extent covers.
	Block uint32
	// Len is ee_len, in [1, MaxBlocksPerExtent].
	Len uint32
	// Start is ee_start: the first physical block.
	Start uint32
	// NrFiles is the number of live directory entries in this extent;
	// always 0 for regular-file extents.
	NrFiles uint32
}

func (e *ExtentRecord) IsEmpty() bool {
	return e.Start == NoneBlock
}

// IsFull reports whether a directory extent has no room for another
// directory entry (spec §4.2 available_ext: "nr_files < FPE").
func (e *ExtentRecord) IsFull() bool {
	return e.NrFiles >= EntriesPerExtent
}

func (e *ExtentRecord) encodeInto(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], e.Block)
	binary.LittleEndian.PutUint32(buf[4:8], e.Len)
	binary.LittleEndian.PutUint32(buf[8:12], e.Start)
	binary.LittleEndian.PutUint32(buf[12:16], e.NrFiles)
}

func decodeExtent(buf []byte) ExtentRecord {
	return ExtentRecord{
		Block:   binary.LittleEndian.Uint32(buf[0:4]),
		Len:     binary.LittleEndian.Uint32(buf[4:8]),
		Start:   binary.LittleEndian.Uint32(buf[8:12]),
		NrFiles: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// ExtentIndexBlock is the per-file/per-directory index block, spec §3
// "Extent-index block": a live-entry count header followed by a fixed
// array of MaxExtents records. For regular files NrFiles is unused (0);
// for directories it is the total live entries across all extents.
type ExtentIndexBlock struct {
	NrFiles uint32
	Extents [MaxExtents]ExtentRecord
}

// Encode packs the index block into a block.Size-byte buffer. The trailer
// past the populated extent array is left zero, per spec §6.
func (idx *ExtentIndexBlock) Encode() []byte {
	buf := make([]byte, 4096)
	binary.LittleEndian.PutUint32(buf[0:4], idx.NrFiles)
	for i := range idx.Extents {
		off := 4 + i*ExtentRecordSize
		idx.Extents[i].encodeInto(buf[off : off+ExtentRecordSize])
	}
	return buf
}

// DecodeExtentIndexBlock unpacks one block.Size-byte buffer.
func DecodeExtentIndexBlock(buf []byte) (*ExtentIndexBlock, error) {
	if len(buf) != 4096 {
		return nil, simplefserrors.ErrInvalidArgument.WithMessage(
			"extent index block must be %d bytes, got %d", 4096, len(buf))
	}

	idx := &ExtentIndexBlock{
		NrFiles: binary.LittleEndian.Uint32(buf[0:4]),
	}
	for i := range idx.Extents {
		off := 4 + i*ExtentRecordSize
		idx.Extents[i] = decodeExtent(buf[off : off+ExtentRecordSize])
	}
	return idx, nil
}
