package stream

import (
	"os"

	"github.com/pkg/errors"
)

// File wraps an *os.File as a boot image stream. A failed seek, or a write
// that fails after writing part of its buffer, leaves the position
// indeterminate and marks the stream fatal; other read and write errors stay
// retryable.
type File struct {
	f     *os.File
	owned bool
	fatal bool
}

// Open opens path read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open for reading")
	}
	return &File{f: f, owned: true}, nil
}

// Create truncates or creates path for writing. Boot image writers re-read
// and rewrite the header, so the file is opened read-write.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open for writing")
	}
	return &File{f: f, owned: true}, nil
}

// NewFile wraps an already opened file. The caller keeps ownership.
func NewFile(f *os.File) *File {
	return &File{f: f}
}

func (s *File) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

func (s *File) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	if err != nil && n > 0 {
		// A short write leaves the position mid-payload.
		s.fatal = true
	}
	return n, err
}

func (s *File) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.f.Seek(offset, whence)
	if err != nil {
		s.fatal = true
	}
	return pos, err
}

func (s *File) IsFatal() bool {
	return s.fatal
}

// Close closes the underlying file if this stream opened it.
func (s *File) Close() error {
	if !s.owned {
		return nil
	}
	return s.f.Close()
}
