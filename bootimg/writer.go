package bootimg

type writerState int

const (
	writerStateNew writerState = iota
	writerStateHeader
	writerStateEntry
	writerStateData
	writerStateFatal
	writerStateClosed
)

// Writer is a stateful session for producing one boot image. Exactly one
// format is registered per session. The header is written first, then each
// entry's payload in order; Close finalizes sizes, the SHA-1 identifier and
// the trailer. A Writer is not safe for concurrent use.
type Writer struct {
	state  writerState
	stream Stream

	chosen formatWriter

	err error
}

func NewWriter() *Writer {
	return &Writer{state: writerStateNew}
}

func (w *Writer) ensureState(states ...writerState) error {
	for _, st := range states {
		if w.state == st {
			return nil
		}
	}
	return w.setError(ErrInvalidState)
}

func (w *Writer) setError(err error) error {
	w.err = err
	return err
}

func (w *Writer) fail(err error) error {
	w.err = err
	if isMarkedFatal(err) || (w.stream != nil && w.stream.IsFatal()) {
		w.state = writerStateFatal
	}
	return err
}

// SetFormat registers the output format for the session. Only the Android
// and Bump layouts can be written.
func (w *Writer) SetFormat(f Format) error {
	if err := w.ensureState(writerStateNew); err != nil {
		return err
	}
	if w.chosen != nil {
		return w.setError(ErrFormatAlreadyEnabled)
	}

	switch f {
	case FormatAndroid:
		w.chosen = newAndroidWriter(false)
	case FormatBump:
		w.chosen = newAndroidWriter(true)
	case FormatLoki, FormatMtk:
		return w.setError(ErrUnsupportedWriteFormat)
	default:
		return w.setError(ErrUnknownFormat)
	}

	return nil
}

// Open binds the session to a stream. The stream must be readable, writable
// and seekable; the header is rewritten at the end.
func (w *Writer) Open(s Stream) error {
	if err := w.ensureState(writerStateNew); err != nil {
		return err
	}
	if w.chosen == nil {
		return w.setError(ErrNoFormatRegistered)
	}

	w.stream = s
	w.state = writerStateHeader
	return nil
}

// GetHeader returns a header prepared for WriteHeader, with the supported
// field set of the chosen format.
func (w *Writer) GetHeader() (*Header, error) {
	if err := w.ensureState(writerStateHeader); err != nil {
		return nil, err
	}

	h := NewHeader()
	w.chosen.getHeader(h)
	return h, nil
}

// WriteHeader validates and stages the header. Fields outside the format's
// supported set are ignored.
func (w *Writer) WriteHeader(h *Header) error {
	if err := w.ensureState(writerStateHeader); err != nil {
		return err
	}

	if err := w.chosen.writeHeader(w.stream, h); err != nil {
		return w.fail(err)
	}

	w.state = writerStateEntry
	return nil
}

// GetEntry prepares the next entry to be written, finishing the current one
// first. It returns ErrEndOfEntries after the last entry; the caller should
// then Close.
func (w *Writer) GetEntry() (*Entry, error) {
	if err := w.ensureState(writerStateEntry, writerStateData); err != nil {
		return nil, err
	}

	if w.state == writerStateData {
		if err := w.chosen.finishEntry(w.stream); err != nil {
			return nil, w.fail(err)
		}
		w.state = writerStateEntry
	}

	var e Entry
	if err := w.chosen.getEntry(w.stream, &e); err != nil {
		return nil, w.setError(err)
	}

	return &e, nil
}

// WriteEntry begins the entry returned by GetEntry. An explicit size on the
// entry pins the recorded size; otherwise the bytes written through
// WriteData decide it.
func (w *Writer) WriteEntry(e *Entry) error {
	if err := w.ensureState(writerStateEntry); err != nil {
		return err
	}

	if err := w.chosen.writeEntry(w.stream, e); err != nil {
		return w.fail(err)
	}

	w.state = writerStateData
	return nil
}

// WriteData appends payload bytes to the current entry.
func (w *Writer) WriteData(buf []byte) (int, error) {
	if err := w.ensureState(writerStateData); err != nil {
		return 0, err
	}

	n, err := w.chosen.writeData(w.stream, buf)
	if err != nil {
		return n, w.fail(err)
	}
	return n, nil
}

// Close finalizes the image: if every entry was written, the trailer is
// appended, the identifier is computed and the header is rewritten in place.
// Closing again rewrites the header but does not append a second trailer.
func (w *Writer) Close() error {
	if w.state == writerStateNew || w.chosen == nil || w.stream == nil {
		w.state = writerStateClosed
		return nil
	}

	err := w.chosen.close(w.stream)
	w.state = writerStateClosed
	if err != nil {
		w.err = err
		return err
	}
	return nil
}

// Format reports the format registered for the session.
func (w *Writer) Format() (Format, error) {
	if w.chosen == nil {
		return 0, w.setError(ErrNoFormatSelected)
	}
	return w.chosen.format(), nil
}

// Err returns the most recent error recorded by the session.
func (w *Writer) Err() error {
	return w.err
}

// IsFatal reports whether the session can no longer be used for anything but
// Close.
func (w *Writer) IsFatal() bool {
	return w.state == writerStateFatal
}
