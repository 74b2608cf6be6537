package bootimg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/122slavo122/DualBootPatcher/stream"
)

// pseudo-random bytes without any of the known magics.
func junkImage(size int) []byte {
	buf := make([]byte, size)
	seed := uint32(0x12345678)
	for i := range buf {
		seed = seed*1664525 + 1013904223
		buf[i] = byte(seed >> 24)
		// Keep 'A' out so "ANDROID!" cannot appear by accident.
		if buf[i] == 'A' || buf[i] == 'L' {
			buf[i] = 0x00
		}
	}
	return buf
}

func TestReaderNoFormatMatches(t *testing.T) {
	r := NewReader()
	require.NoError(t, r.EnableFormatAll())

	err := r.Open(stream.NewMemoryBuffer(junkImage(100 * 1024)))
	assert.ErrorIs(t, err, ErrUnknownFileFormat)
	assert.ErrorIs(t, r.Err(), ErrUnknownFileFormat)
}

func TestReaderNoFormatsRegistered(t *testing.T) {
	r := NewReader()
	err := r.Open(stream.NewMemory())
	assert.ErrorIs(t, err, ErrNoFormatsRegistered)
}

func TestReaderEnableTwice(t *testing.T) {
	r := NewReader()
	require.NoError(t, r.EnableFormat(FormatAndroid))
	err := r.EnableFormat(FormatAndroid)
	assert.ErrorIs(t, err, ErrFormatAlreadyEnabled)
}

func TestBidMonotonicity(t *testing.T) {
	img := writeTestImage(t, FormatAndroid, minimalHeader(t), minimalPayloads())

	// Full Android bid: header magic plus trailer magic.
	full := (BootMagicSize + len(SamsungSEAndroidMagic)) * 8

	for _, bestBid := range []int{0, 10, full - 1} {
		ar := newAndroidReader(false)
		bid, err := ar.bid(stream.NewMemoryBuffer(img.Bytes()), bestBid)
		require.NoError(t, err)
		assert.Equal(t, full, bid)
	}

	ar := newAndroidReader(false)
	bid, err := ar.bid(stream.NewMemoryBuffer(img.Bytes()), full)
	require.NoError(t, err)
	assert.Equal(t, bidCannotWin, bid)
}

func TestBidDispatchPrefersTrailer(t *testing.T) {
	// A bump image bids higher than plain Android on its own output.
	img := writeTestImage(t, FormatBump, minimalHeader(t), minimalPayloads())
	img.Seek(0, 0)

	r := NewReader()
	require.NoError(t, r.EnableFormatAll())
	require.NoError(t, r.Open(img))

	format, err := r.Format()
	require.NoError(t, err)
	assert.Equal(t, FormatBump, format)
}

func TestReaderForcedFormat(t *testing.T) {
	// Forcing a format skips bidding entirely, even on a file another codec
	// would win.
	img := writeTestImage(t, FormatBump, minimalHeader(t), minimalPayloads())
	img.Seek(0, 0)

	r := NewReader()
	require.NoError(t, r.SetFormat(FormatAndroid))
	require.NoError(t, r.Open(img))

	format, err := r.Format()
	require.NoError(t, err)
	assert.Equal(t, FormatAndroid, format)

	hdr, err := r.ReadHeader()
	require.NoError(t, err)
	pageSize, ok := hdr.PageSize()
	require.True(t, ok)
	assert.Equal(t, uint32(2048), pageSize)
}

func TestReaderStateMachine(t *testing.T) {
	img := writeTestImage(t, FormatAndroid, minimalHeader(t), minimalPayloads())
	img.Seek(0, 0)

	r := NewReader()
	require.NoError(t, r.EnableFormat(FormatAndroid))

	// Data operations before opening.
	_, err := r.ReadHeader()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = r.ReadEntry()
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, r.Open(img))

	// Entries before the header.
	_, err = r.ReadEntry()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = r.ReadData(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = r.ReadHeader()
	require.NoError(t, err)

	// Data before the first entry.
	_, err = r.ReadData(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = r.ReadEntry()
	require.NoError(t, err)
	_, err = r.ReadData(make([]byte, 16))
	require.NoError(t, err)

	require.NoError(t, r.Close())
	_, err = r.ReadEntry()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestWriterStateMachine(t *testing.T) {
	w := NewWriter()

	_, err := w.GetHeader()
	assert.ErrorIs(t, err, ErrInvalidState)

	err = w.Open(stream.NewMemory())
	assert.ErrorIs(t, err, ErrNoFormatRegistered)

	require.NoError(t, w.SetFormat(FormatAndroid))
	err = w.SetFormat(FormatBump)
	assert.ErrorIs(t, err, ErrFormatAlreadyEnabled)

	require.NoError(t, w.Open(stream.NewMemory()))

	// Entries before the header.
	_, err = w.GetEntry()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = w.WriteData([]byte("x"))
	assert.ErrorIs(t, err, ErrInvalidState)

	h, err := w.GetHeader()
	require.NoError(t, err)
	copyHeader(t, h, minimalHeader(t))
	require.NoError(t, w.WriteHeader(h))

	// Data before an entry.
	_, err = w.WriteData([]byte("x"))
	assert.ErrorIs(t, err, ErrInvalidState)

	entry, err := w.GetEntry()
	require.NoError(t, err)
	require.NoError(t, w.WriteEntry(entry))
	_, err = w.WriteData([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, w.Close())
}

func TestWriterRejectsReadOnlyFormats(t *testing.T) {
	for _, f := range []Format{FormatLoki, FormatMtk} {
		w := NewWriter()
		err := w.SetFormat(f)
		assert.ErrorIs(t, err, ErrUnsupportedWriteFormat, f.String())
	}
}

func TestFormatNames(t *testing.T) {
	for _, f := range Formats() {
		got, ok := FormatByName(f.String())
		require.True(t, ok)
		assert.Equal(t, f, got)
	}
	_, ok := FormatByName("sonyelf")
	assert.False(t, ok)
}
