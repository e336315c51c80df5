// Package errors defines the POSIX-flavored error taxonomy used throughout
// simplefs. It exists because the on-disk core reports failures as plain
// error codes (per spec §7), not as exceptions, and every layer above it
// needs a stable, comparable set of sentinel values to switch on.
package errors

import "fmt"

// SimpleFSError is a comparable sentinel error. Unlike a plain string
// wrapped in errors.New, two SimpleFSError values with the same underlying
// string compare equal, so callers can safely use errors.Is against the
// constants below even after they've been wrapped with WithMessage/Wrap.
type SimpleFSError string

func (e SimpleFSError) Error() string {
	return string(e)
}

// Taxonomy from spec.md §7.
const (
	// ErrNoSpaceOnDevice is NO_SPACE: the inode or data-block bitmap is
	// exhausted.
	ErrNoSpaceOnDevice = SimpleFSError("no space left on device")
	// ErrTooManyLinks is LINK_LIMIT: a directory already holds MAX_CHILD
	// entries, or an inode's link count would overflow.
	ErrTooManyLinks = SimpleFSError("too many links")
	// ErrNameTooLong is NAME_TOO_LONG: a filename exceeds FN_LEN, or a
	// symlink target doesn't fit in the inline i_data buffer.
	ErrNameTooLong = SimpleFSError("file name too long")
	// ErrNotFound is NOT_FOUND: no directory entry matches the requested
	// name.
	ErrNotFound = SimpleFSError("no such file or directory")
	// ErrExists is EXISTS: rename targets an occupied name.
	ErrExists = SimpleFSError("file exists")
	// ErrDirectoryNotEmpty is NOT_EMPTY: rmdir was called on a directory
	// that still has live entries.
	ErrDirectoryNotEmpty = SimpleFSError("directory not empty")
	// ErrInvalidArgument is INVAL: an out-of-range inode number, an
	// unsupported rename flag, or an unsupported creation mode.
	ErrInvalidArgument = SimpleFSError("invalid argument")
	// ErrIOFailed is IO: the block device failed a read or write.
	ErrIOFailed = SimpleFSError("input/output error")

	// ErrFileSystemCorrupted is raised by fsck when an on-disk invariant
	// doesn't hold; it is not part of the core operation taxonomy but is
	// used by the consistency checker in the fsck package.
	ErrFileSystemCorrupted = SimpleFSError("structure needs cleaning")
)

// wrappedError adds a message and/or an underlying cause to a
// SimpleFSError while keeping it comparable via errors.Is/errors.As.
type wrappedError struct {
	sentinel SimpleFSError
	message  string
	cause    error
}

func (e *wrappedError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s: %s", e.sentinel.Error(), e.message)
	}
	return e.sentinel.Error()
}

func (e *wrappedError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.sentinel
}

func (e *wrappedError) Is(target error) bool {
	return e.sentinel == target
}

// WithMessage returns a new error carrying the same sentinel but with an
// additional, more specific message appended.
func (e SimpleFSError) WithMessage(format string, args ...any) error {
	return &wrappedError{sentinel: e, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause (typically an error from the block
// device) to the sentinel, preserving both for errors.Is/errors.As.
func (e SimpleFSError) Wrap(cause error) error {
	return &wrappedError{sentinel: e, message: cause.Error(), cause: cause}
}
