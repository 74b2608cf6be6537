package bootimg

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type readerState int

const (
	readerStateNew readerState = iota
	readerStateHeader
	readerStateEntry
	readerStateData
	readerStateFatal
	readerStateClosed
)

// Reader is a stateful session for reading one boot image. Enable one or
// more formats (or force one), open a stream, then pull the header, the
// entries and their data in order. A Reader is not safe for concurrent use.
type Reader struct {
	state  readerState
	stream Stream

	formats []formatReader
	chosen  formatReader

	err error
}

func NewReader() *Reader {
	return &Reader{state: readerStateNew}
}

func (r *Reader) ensureState(states ...readerState) error {
	for _, st := range states {
		if r.state == st {
			return nil
		}
	}
	return r.setError(ErrInvalidState)
}

// setError records the most recent failure and returns it.
func (r *Reader) setError(err error) error {
	r.err = err
	return err
}

// fail records the failure and moves the session to the fatal state when the
// stream reports the failure as unrecoverable.
func (r *Reader) fail(err error) error {
	r.err = err
	if isMarkedFatal(err) || (r.stream != nil && r.stream.IsFatal()) {
		r.state = readerStateFatal
	}
	return err
}

func (r *Reader) newFormatReader(f Format) (formatReader, error) {
	switch f {
	case FormatAndroid:
		return newAndroidReader(false), nil
	case FormatBump:
		return newAndroidReader(true), nil
	case FormatLoki:
		return newLokiReader(), nil
	case FormatMtk:
		return newMtkReader(), nil
	default:
		return nil, ErrUnknownFormat
	}
}

func (r *Reader) registerFormat(fr formatReader) error {
	for _, existing := range r.formats {
		if existing.format() == fr.format() {
			return r.setError(errors.Wrapf(ErrFormatAlreadyEnabled,
				"%s format", fr.format()))
		}
	}
	r.formats = append(r.formats, fr)
	return nil
}

// EnableFormat registers a format for bidding.
func (r *Reader) EnableFormat(f Format) error {
	if err := r.ensureState(readerStateNew); err != nil {
		return err
	}
	fr, err := r.newFormatReader(f)
	if err != nil {
		return r.setError(err)
	}
	return r.registerFormat(fr)
}

// EnableFormatAll registers every known format.
func (r *Reader) EnableFormatAll() error {
	if err := r.ensureState(readerStateNew); err != nil {
		return err
	}
	for _, f := range Formats() {
		if err := r.EnableFormat(f); err != nil &&
			!errors.Is(err, ErrFormatAlreadyEnabled) {
			return err
		}
	}
	return nil
}

// SetFormat forces a format, skipping the bidding process. The format is
// enabled if it was not already.
func (r *Reader) SetFormat(f Format) error {
	if err := r.ensureState(readerStateNew); err != nil {
		return err
	}
	if err := r.EnableFormat(f); err != nil &&
		!errors.Is(err, ErrFormatAlreadyEnabled) {
		return err
	}
	for _, fr := range r.formats {
		if fr.format() == f {
			r.chosen = fr
			return nil
		}
	}
	return r.setError(ErrUnknownFormat)
}

// SetStrict toggles strict parsing. By default the Android codec tolerates a
// device tree payload shorter than its recorded size.
func (r *Reader) SetStrict(strict bool) {
	for _, fr := range r.formats {
		if ar, ok := fr.(*androidReader); ok {
			ar.setStrict(strict)
		}
	}
}

// Open binds the session to a stream. Unless a format was forced, every
// registered format places a bid and the highest one wins; ties go to the
// format registered first.
func (r *Reader) Open(s Stream) error {
	if err := r.ensureState(readerStateNew); err != nil {
		return err
	}

	if len(r.formats) == 0 {
		return r.setError(ErrNoFormatsRegistered)
	}

	r.stream = s

	if r.chosen == nil {
		bestBid := 0
		var best formatReader

		for _, fr := range r.formats {
			if _, err := s.Seek(0, io.SeekStart); err != nil {
				return r.fail(errors.Wrap(err, "failed to seek to start"))
			}

			bid, err := fr.bid(s, bestBid)
			if err != nil {
				return r.fail(err)
			}

			logrus.WithFields(logrus.Fields{
				"format": fr.format().String(),
				"bid":    bid,
			}).Debug("format bid")

			if bid > bestBid {
				bestBid = bid
				best = fr
			}
		}

		if best == nil {
			r.stream = nil
			return r.setError(ErrUnknownFileFormat)
		}

		r.chosen = best
	}

	r.state = readerStateHeader
	return nil
}

// Close ends the session. The stream stays open; it belongs to the caller.
func (r *Reader) Close() error {
	r.state = readerStateClosed
	r.stream = nil
	return nil
}

// ReadHeader parses the boot image header.
func (r *Reader) ReadHeader() (*Header, error) {
	if err := r.ensureState(readerStateHeader); err != nil {
		return nil, err
	}

	if _, err := r.stream.Seek(0, io.SeekStart); err != nil {
		return nil, r.fail(errors.Wrap(err, "failed to seek to start"))
	}

	h := NewHeader()
	if err := r.chosen.readHeader(r.stream, h); err != nil {
		return nil, r.fail(err)
	}

	r.state = readerStateEntry
	return h, nil
}

// ReadEntry advances to the next entry. It returns ErrEndOfEntries once
// every entry has been seen. Skipping an entry's remaining data is allowed.
func (r *Reader) ReadEntry() (*Entry, error) {
	if err := r.ensureState(readerStateEntry, readerStateData); err != nil {
		return nil, err
	}

	var e Entry
	if err := r.chosen.readEntry(r.stream, &e); err != nil {
		return nil, r.fail(err)
	}

	r.state = readerStateData
	return &e, nil
}

// GoToEntry seeks to the entry of the given type; zero means the first
// entry. It returns ErrEndOfEntries when no such entry exists.
func (r *Reader) GoToEntry(typ EntryType) (*Entry, error) {
	if err := r.ensureState(readerStateEntry, readerStateData); err != nil {
		return nil, err
	}

	var e Entry
	if err := r.chosen.goToEntry(r.stream, &e, typ); err != nil {
		return nil, r.fail(err)
	}

	r.state = readerStateData
	return &e, nil
}

// ReadData reads payload bytes of the current entry. A zero count signals
// the end of the entry.
func (r *Reader) ReadData(buf []byte) (int, error) {
	if err := r.ensureState(readerStateData); err != nil {
		return 0, err
	}

	n, err := r.chosen.readData(r.stream, buf)
	if err != nil {
		return n, r.fail(err)
	}
	return n, nil
}

// Format reports the detected or forced format. Meaningful once the session
// is open.
func (r *Reader) Format() (Format, error) {
	if r.chosen == nil {
		return 0, r.setError(ErrNoFormatSelected)
	}
	return r.chosen.format(), nil
}

// Err returns the most recent error recorded by the session.
func (r *Reader) Err() error {
	return r.err
}

// IsFatal reports whether the session can no longer be used for anything but
// Close.
func (r *Reader) IsFatal() bool {
	return r.state == readerStateFatal
}
