package bootimg

import "github.com/pkg/errors"

// Session errors.
var (
	// ErrInvalidState is returned when an operation is called outside the
	// state it is valid in, e.g. ReadData before ReadEntry.
	ErrInvalidState = errors.New("operation invalid in current state")

	// ErrNoFormatsRegistered is returned by Reader.Open when no format was
	// enabled.
	ErrNoFormatsRegistered = errors.New("no boot image formats registered")

	// ErrNoFormatRegistered is returned by Writer.Open when no output format
	// was set.
	ErrNoFormatRegistered = errors.New("no output format registered")

	// ErrFormatAlreadyEnabled is returned when enabling a format twice on the
	// same Reader, or setting a Writer format twice.
	ErrFormatAlreadyEnabled = errors.New("format already enabled")

	// ErrUnknownFileFormat is returned by Reader.Open when no enabled format
	// placed a winning bid.
	ErrUnknownFileFormat = errors.New("failed to determine boot image format")

	// ErrUnknownFormat is returned for a format code this library does not
	// know.
	ErrUnknownFormat = errors.New("unknown boot image format")

	// ErrUnsupportedWriteFormat is returned by Writer.SetFormat for formats
	// without a writer codec (Loki and MTK images are read-only).
	ErrUnsupportedWriteFormat = errors.New("no writer available for format")

	// ErrNoFormatSelected is returned by Format queries before a format has
	// been chosen.
	ErrNoFormatSelected = errors.New("no format selected")

	// ErrEndOfEntries signals that every entry has been consumed or emitted.
	ErrEndOfEntries = errors.New("end of entries")

	// ErrUnsupportedField is returned by Header setters for fields outside
	// the supported set.
	ErrUnsupportedField = errors.New("field not supported by format")
)

// Segment engine errors.
var (
	ErrEntriesAlreadySet  = errors.New("segment entries already set")
	ErrEntryWouldOverflow = errors.New("entry offset and size would overflow")
	ErrReadWouldOverflow  = errors.New("read would overflow current offset")
	ErrWriteWouldOverflow = errors.New("write would overflow entry size")
	ErrInvalidEntrySize   = errors.New("entry size exceeds maximum")
	ErrEntryTruncated     = errors.New("entry is truncated")
)
