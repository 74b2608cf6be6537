package bootimg

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

type searchAction int

const (
	searchContinue searchAction = iota
	searchStop
)

const searchChunkSize = 8192

// fileSearch scans s for pattern and invokes cb with the absolute offset of
// each match. start < 0 searches from the beginning; end < 0 searches to EOF;
// limit < 0 reports every match. Matches may overlap. The scan's own stream
// position is restored after every callback, so the callback is free to seek
// and read.
func fileSearch(s Stream, start, end int64, pattern []byte, limit int,
	cb func(offset uint64) (searchAction, error)) error {

	if len(pattern) == 0 || limit == 0 {
		return nil
	}
	if start < 0 {
		start = 0
	}
	if end >= 0 && end-start < int64(len(pattern)) {
		return nil
	}

	if _, err := s.Seek(start, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek to search start")
	}

	buf := make([]byte, searchChunkSize+len(pattern)-1)
	offset := uint64(start) // stream offset of buf[0]
	filled := 0             // overlap carried from the previous chunk
	matches := 0

	for {
		n, err := readFull(s, buf[filled:])
		if err != nil {
			return errors.Wrap(err, "failed to read search chunk")
		}
		eof := n < len(buf[filled:])
		total := filled + n

		usable := total
		done := eof
		if end >= 0 && offset+uint64(total) >= uint64(end) {
			usable = int(uint64(end) - offset)
			done = true
		}
		if usable < len(pattern) {
			return nil
		}

		resume := offset + uint64(total)
		from := 0
		for {
			i := bytes.Index(buf[from:usable], pattern)
			if i < 0 {
				break
			}
			act, cbErr := cb(offset + uint64(from+i))
			if cbErr != nil {
				return cbErr
			}
			if _, err := s.Seek(int64(resume), io.SeekStart); err != nil {
				return errors.Wrap(err, "failed to restore search position")
			}
			if act == searchStop {
				return nil
			}
			matches++
			if limit > 0 && matches >= limit {
				return nil
			}
			from += i + 1
		}

		if done {
			return nil
		}

		keep := len(pattern) - 1
		copy(buf, buf[total-keep:total])
		offset += uint64(total - keep)
		filled = keep
	}
}
