// Package block defines the block-device adapter that SimpleFS's core sits
// on top of (spec's component B): a fixed-size block store exposing
// whole-block reads and writes plus a dirty-marking hook. Everything above
// this package — the allocator, the extent index, the directory encoding —
// only ever reads and writes whole BS-sized blocks through this interface.
package block

import (
	"fmt"
	"io"

	simplefserrors "github.com/halvorsen/simplefs/errors"
)

// Size is the fixed block size, in bytes, that the on-disk format in
// spec.md §3 is built around. It is a compile-time constant, not a mount
// option: every on-disk structure (superblock, extent-index block,
// directory block) assumes exactly this many bytes per block.
const Size = 4096

// Device is the host-provided block store. Implementations need not be
// safe for concurrent use from multiple goroutines; spec §5 places the
// serialization obligation on the host.
type Device interface {
	// ReadBlock returns a copy of the contents of block bno. The returned
	// slice is always exactly Size bytes.
	ReadBlock(bno uint32) ([]byte, error)
	// WriteBlock writes data (which must be exactly Size bytes) to block
	// bno.
	WriteBlock(bno uint32, data []byte) error
	// MarkDirty is a hook implementations may use to track which blocks
	// need flushing; the core calls it after every WriteBlock-equivalent
	// mutation so a host with write-back caching knows what to flush.
	// A Device backed directly by a file or memory buffer may treat this
	// as a no-op.
	MarkDirty(bno uint32)
	// BlockCount returns the total number of addressable blocks.
	BlockCount() uint32
}

// StreamDevice adapts any io.ReadWriteSeeker (a file, or an in-memory
// buffer via xaionaro-go/bytesextra) into a Device, the way the teacher's
// BlockDevice wraps a bare *io.Seeker. StartOffset lets the device skip
// over out-of-band data (e.g. an MBR) before block 0.
type StreamDevice struct {
	stream      io.ReadWriteSeeker
	totalBlocks uint32
	startOffset int64
	dirty       map[uint32]bool
}

// NewStreamDevice wraps stream as a Device with totalBlocks blocks of
// Size bytes each, starting startOffset bytes into the stream.
func NewStreamDevice(stream io.ReadWriteSeeker, totalBlocks uint32, startOffset int64) *StreamDevice {
	return &StreamDevice{
		stream:      stream,
		totalBlocks: totalBlocks,
		startOffset: startOffset,
		dirty:       make(map[uint32]bool),
	}
}

func (dev *StreamDevice) BlockCount() uint32 {
	return dev.totalBlocks
}

func (dev *StreamDevice) checkBounds(bno uint32) error {
	if bno >= dev.totalBlocks {
		return simplefserrors.ErrInvalidArgument.WithMessage(
			"block %d not in [0, %d)", bno, dev.totalBlocks)
	}
	return nil
}

func (dev *StreamDevice) offsetOf(bno uint32) int64 {
	return dev.startOffset + int64(bno)*int64(Size)
}

func (dev *StreamDevice) ReadBlock(bno uint32) ([]byte, error) {
	if err := dev.checkBounds(bno); err != nil {
		return nil, err
	}

	if _, err := dev.stream.Seek(dev.offsetOf(bno), io.SeekStart); err != nil {
		return nil, simplefserrors.ErrIOFailed.Wrap(err)
	}

	buf := make([]byte, Size)
	if _, err := io.ReadFull(dev.stream, buf); err != nil {
		return nil, simplefserrors.ErrIOFailed.Wrap(
			fmt.Errorf("reading block %d: %w", bno, err))
	}
	return buf, nil
}

func (dev *StreamDevice) WriteBlock(bno uint32, data []byte) error {
	if err := dev.checkBounds(bno); err != nil {
		return err
	}
	if len(data) != Size {
		return simplefserrors.ErrInvalidArgument.WithMessage(
			"write to block %d must be exactly %d bytes, got %d", bno, Size, len(data))
	}

	if _, err := dev.stream.Seek(dev.offsetOf(bno), io.SeekStart); err != nil {
		return simplefserrors.ErrIOFailed.Wrap(err)
	}
	if _, err := dev.stream.Write(data); err != nil {
		return simplefserrors.ErrIOFailed.Wrap(
			fmt.Errorf("writing block %d: %w", bno, err))
	}
	dev.MarkDirty(bno)
	return nil
}

func (dev *StreamDevice) MarkDirty(bno uint32) {
	dev.dirty[bno] = true
}

// DirtyBlocks returns the set of block numbers written since the device
// was created, for hosts that want to flush selectively.
func (dev *StreamDevice) DirtyBlocks() []uint32 {
	out := make([]uint32, 0, len(dev.dirty))
	for bno := range dev.dirty {
		out = append(out, bno)
	}
	return out
}
