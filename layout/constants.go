// Package layout defines the bit-exact on-disk structures of spec.md §3
// (superblock, inode record, extent record, extent-index block, directory
// block) and their marshal/unmarshal to and from block.Size-byte buffers.
// Every constant here is part of the on-disk compatibility contract: changing
// one changes the format.
package layout

// Magic identifies a SimpleFS superblock. Spec §3/§6: 0xDEADCELL at offset 0
// of block 0.
const Magic uint32 = 0xDEADCE11

const (
	// MaxBlocksPerExtent is MAX_BPE: the cap on contiguous blocks a single
	// extent record may describe.
	MaxBlocksPerExtent = 8
	// ExtentRecordSize is EXT_REC, in bytes.
	ExtentRecordSize = 16
	// MaxExtents is MAX_EXT: floor((block.Size-4)/ExtentRecordSize).
	MaxExtents = (4096 - 4) / ExtentRecordSize
	// FilenameLen is FN_LEN: the fixed, NUL-padded filename capacity.
	FilenameLen = 255
	// DirectoryRecordSize is FILE_REC: 4 (inode) + 4 (nr_blk) + FilenameLen.
	DirectoryRecordSize = 4 + 4 + FilenameLen
	// EntriesPerBlock is FPB: floor(block.Size/DirectoryRecordSize).
	EntriesPerBlock = 4096 / DirectoryRecordSize
	// EntriesPerExtent is FPE: EntriesPerBlock * MaxBlocksPerExtent.
	EntriesPerExtent = EntriesPerBlock * MaxBlocksPerExtent
	// MaxChildren is MAX_CHILD: the largest number of live entries a
	// directory can hold.
	MaxChildren = EntriesPerExtent * MaxExtents
	// MaxFileSize is MAX_FSIZE: the largest regular file, in bytes.
	MaxFileSize = MaxBlocksPerExtent * 4096 * MaxExtents

	// InodeRecordSize is the fixed size of one on-disk inode record.
	InodeRecordSize = 104
	// SymlinkInlineLen is the capacity of i_data, the inline symlink
	// target buffer (spec §4.4 symlink: "len(target)+1 <= 32").
	SymlinkInlineLen = 32

	// NoneInode is the reserved inode number meaning "no inode" (ino=0).
	NoneInode uint32 = 0
	// NoneBlock is the reserved block number meaning "no block"
	// (first_bno=0 from alloc_blocks, or an empty extent's ee_start==0).
	NoneBlock uint32 = 0

	// RootInode is the inode number a freshly-formatted image's root
	// directory is given. Not named explicitly by spec.md, but ino 0 is
	// reserved (NoneInode) and alloc_inode's first-fit scan hands out 1
	// first on a fresh image, so formatting always lands the root here.
	RootInode uint32 = 1
)

// Mode bits for i_mode, following the POSIX S_IFMT convention the teacher's
// unixv1 driver also borrows (drivers/unixv1/common.go).
const (
	ModeTypeMask = 0o170000
	ModeRegular  = 0o100000
	ModeDir      = 0o040000
	ModeSymlink  = 0o120000
)
