package block

import (
	"github.com/xaionaro-go/bytesextra"
)

// NewMemDevice creates a Device backed entirely by memory, sized for
// totalBlocks blocks. It's the reference Device implementation for
// scratch/ephemeral filesystems and for tests; see simplefstest for the
// test-oriented constructor that also seeds predictable content.
func NewMemDevice(totalBlocks uint32) *StreamDevice {
	buf := make([]byte, int(totalBlocks)*Size)
	return NewStreamDevice(bytesextra.NewReadWriteSeeker(buf), totalBlocks, 0)
}
