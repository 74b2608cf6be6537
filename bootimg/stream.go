package bootimg

import (
	"io"

	"github.com/pkg/errors"
)

// Stream is the byte stream a Reader or Writer session operates on. The
// stream is owned by the caller; the session only borrows it. Partial reads
// and writes are allowed. IsFatal reports whether the most recent failure
// left the stream in a state where retrying is pointless; the session uses it
// to decide between a failed operation (retryable) and a dead session.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
	IsFatal() bool
}

// readFull fills buf from s. EOF is not an error: the returned count is
// simply short.
func readFull(s Stream, buf []byte) (int, error) {
	n, err := io.ReadFull(s, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}

// writeFull writes all of buf to s or fails.
func writeFull(s Stream, buf []byte) error {
	for len(buf) > 0 {
		n, err := s.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("stream accepted no bytes")
		}
		buf = buf[n:]
	}
	return nil
}

// fatalError marks an error that must kill the session regardless of what
// the stream reports, e.g. a digest failure after the bytes already hit the
// stream.
type fatalError struct {
	err error
}

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

func markFatal(err error) error {
	return fatalError{err: err}
}

func isMarkedFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}
