package bootimg

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

type segmentReaderState int

const (
	segReadBegin segmentReaderState = iota
	segReadEntries
	segReadEnd
)

// segmentReaderEntry describes one payload segment in physical file order.
// canTruncate permits the segment to end early at EOF without the read being
// treated as corruption.
type segmentReaderEntry struct {
	typ         EntryType
	offset      uint64
	size        uint64
	canTruncate bool
}

// segmentReader sequences typed payload segments through a read, tracking the
// current segment and the position within it.
type segmentReader struct {
	state   segmentReaderState
	entries []segmentReaderEntry
	cur     int

	readStart uint64
	readEnd   uint64
	readCur   uint64
}

func (sr *segmentReader) setEntries(entries []segmentReaderEntry) error {
	if sr.state != segReadBegin {
		return ErrEntriesAlreadySet
	}
	sr.entries = entries
	sr.cur = len(entries)
	return nil
}

func (sr *segmentReader) moveTo(s Stream, e *Entry, idx int) error {
	ent := &sr.entries[idx]

	if ent.offset > math.MaxUint64-ent.size {
		return ErrEntryWouldOverflow
	}

	if sr.readCur != ent.offset {
		if _, err := s.Seek(int64(ent.offset), io.SeekStart); err != nil {
			return errors.Wrapf(err, "failed to seek to %s entry", ent.typ)
		}
	}

	e.SetType(ent.typ)
	e.SetSize(ent.size)

	sr.state = segReadEntries
	sr.cur = idx
	sr.readStart = ent.offset
	sr.readEnd = ent.offset + ent.size
	sr.readCur = ent.offset

	return nil
}

func (sr *segmentReader) readEntry(s Stream, e *Entry) error {
	next := len(sr.entries)

	if sr.state == segReadBegin {
		next = 0
	} else if sr.state == segReadEntries && sr.cur < len(sr.entries) {
		next = sr.cur + 1
	}

	if next >= len(sr.entries) {
		sr.state = segReadEnd
		sr.cur = len(sr.entries)
		return ErrEndOfEntries
	}

	return sr.moveTo(s, e, next)
}

func (sr *segmentReader) goToEntry(s Stream, e *Entry, typ EntryType) error {
	idx := -1
	if typ == 0 {
		if len(sr.entries) > 0 {
			idx = 0
		}
	} else {
		for i := range sr.entries {
			if sr.entries[i].typ == typ {
				idx = i
				break
			}
		}
	}

	if idx < 0 {
		sr.state = segReadEnd
		sr.cur = len(sr.entries)
		return ErrEndOfEntries
	}

	return sr.moveTo(s, e, idx)
}

func (sr *segmentReader) readData(s Stream, buf []byte) (int, error) {
	toCopy := uint64(len(buf))
	if remaining := sr.readEnd - sr.readCur; toCopy > remaining {
		toCopy = remaining
	}

	if sr.readCur > math.MaxUint64-toCopy {
		return 0, ErrReadWouldOverflow
	}

	n, err := readFull(s, buf[:toCopy])
	if err != nil {
		return n, errors.Wrap(err, "failed to read entry data")
	}

	sr.readCur += uint64(n)

	// EOF inside the segment means the file is shorter than the header
	// claims.
	if n == 0 && sr.readCur != sr.readEnd && !sr.entries[sr.cur].canTruncate {
		return 0, markFatal(errors.Wrapf(ErrEntryTruncated,
			"expected %d more bytes", sr.readEnd-sr.readCur))
	}

	return n, nil
}
