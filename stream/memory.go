// Package stream provides the byte stream implementations boot image
// sessions operate on: a file-backed stream and a growable in-memory one.
package stream

import (
	"io"

	"github.com/pkg/errors"
)

// Memory is a seekable in-memory byte stream. Seeking past the end and
// writing zero-fills the gap, matching the sparse-file behavior image writers
// rely on for page padding.
type Memory struct {
	buf []byte
	pos int64
}

// NewMemory returns an empty in-memory stream.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryBuffer returns an in-memory stream positioned at the start of
// data. The slice is used directly, not copied.
func NewMemoryBuffer(data []byte) *Memory {
	return &Memory{buf: data}
}

// Bytes returns the underlying buffer.
func (m *Memory) Bytes() []byte {
	return m.buf
}

// Len returns the current stream length.
func (m *Memory) Len() int {
	return len(m.buf)
}

func (m *Memory) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *Memory) Write(p []byte) (int, error) {
	if gap := m.pos - int64(len(m.buf)); gap > 0 {
		m.buf = append(m.buf, make([]byte, gap)...)
	}
	n := copy(m.buf[m.pos:], p)
	if n < len(p) {
		m.buf = append(m.buf, p[n:]...)
	}
	m.pos += int64(len(p))
	return len(p), nil
}

func (m *Memory) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.Errorf("invalid whence: %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = abs
	return abs, nil
}

// IsFatal always reports false: memory operations either succeed or leave
// the stream untouched.
func (m *Memory) IsFatal() bool {
	return false
}
