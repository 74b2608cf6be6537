package bootimg

import (
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/122slavo122/DualBootPatcher/internal/common"
)

type segmentWriterState int

const (
	segWriteBegin segmentWriterState = iota
	segWriteEntries
	segWriteEnd
)

// segmentWriterEntry is the write-side template for one segment: the type,
// the alignment each segment start must satisfy, and the size captured while
// the payload passes through.
type segmentWriterEntry struct {
	typ     EntryType
	offset  uint64
	size    uint32
	hasSize bool
	align   uint64
}

// segmentWriter sequences typed payload segments through a write, aligning
// each to its page boundary and recording offsets and sizes.
type segmentWriter struct {
	state   segmentWriterState
	entries []segmentWriterEntry
	cur     int

	entrySize uint32
	pos       uint64
	hasPos    bool
}

func (sw *segmentWriter) setEntries(entries []segmentWriterEntry) error {
	if sw.state != segWriteBegin {
		return ErrEntriesAlreadySet
	}
	sw.entries = entries
	sw.cur = len(entries)
	return nil
}

// current returns the entry being written, or nil outside a segment.
func (sw *segmentWriter) current() *segmentWriterEntry {
	if sw.state != segWriteEntries || sw.cur >= len(sw.entries) {
		return nil
	}
	return &sw.entries[sw.cur]
}

func (sw *segmentWriter) atEnd() bool {
	return sw.state == segWriteEnd
}

func (sw *segmentWriter) updateSizeIfUnset(size uint32) {
	ent := &sw.entries[sw.cur]
	if !ent.hasSize {
		ent.size = size
		ent.hasSize = true
	}
}

func (sw *segmentWriter) getEntry(s Stream, e *Entry) error {
	if !sw.hasPos {
		pos, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return errors.Wrap(err, "failed to get current offset")
		}
		sw.pos = uint64(pos)
		sw.hasPos = true
	}

	next := len(sw.entries)

	if sw.state == segWriteBegin {
		next = 0
	} else if sw.state == segWriteEntries && sw.cur < len(sw.entries) {
		next = sw.cur + 1
	}

	if next >= len(sw.entries) {
		sw.state = segWriteEnd
		sw.cur = len(sw.entries)
		return ErrEndOfEntries
	}

	sw.entries[next].offset = sw.pos

	e.Clear()
	e.SetType(sw.entries[next].typ)

	sw.entrySize = 0
	sw.state = segWriteEntries
	sw.cur = next

	return nil
}

func (sw *segmentWriter) writeEntry(s Stream, e *Entry) error {
	// An explicit size on the entry pins the recorded size; otherwise the
	// bytes written decide it.
	if size, ok := e.Size(); ok {
		if size > math.MaxUint32 {
			return errors.Wrapf(ErrInvalidEntrySize, "size %d", size)
		}
		sw.updateSizeIfUnset(uint32(size))
	}
	return nil
}

func (sw *segmentWriter) writeData(s Stream, buf []byte) (int, error) {
	if uint64(len(buf)) > math.MaxUint32 ||
		sw.entrySize > math.MaxUint32-uint32(len(buf)) ||
		sw.pos > math.MaxUint64-uint64(len(buf)) {
		return 0, ErrWriteWouldOverflow
	}

	if err := writeFull(s, buf); err != nil {
		// The byte count promised to the caller can no longer be
		// guaranteed.
		return 0, markFatal(errors.Wrap(err, "failed to write data"))
	}

	sw.entrySize += uint32(len(buf))
	sw.pos += uint64(len(buf))

	return len(buf), nil
}

func (sw *segmentWriter) finishEntry(s Stream) error {
	sw.updateSizeIfUnset(sw.entrySize)

	ent := &sw.entries[sw.cur]
	if ent.align > 0 {
		skip := common.PagePadding(sw.pos, ent.align)
		pos, err := s.Seek(int64(skip), io.SeekCurrent)
		if err != nil {
			return errors.Wrap(err, "failed to seek to page boundary")
		}
		sw.pos = uint64(pos)
	}

	return nil
}
