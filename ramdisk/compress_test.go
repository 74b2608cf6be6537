package ramdisk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() []byte {
	// Compressible but not trivial.
	var buf bytes.Buffer
	for i := 0; i < 1000; i++ {
		buf.WriteString("cpio entry ")
		buf.WriteByte(byte(i))
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	payload := samplePayload()

	for _, f := range []Format{FormatGzip, FormatZstd, FormatLz4, FormatBzip2, FormatLzma} {
		t.Run(f.String(), func(t *testing.T) {
			packed, err := Compress(payload, f)
			require.NoError(t, err)
			require.NotEqual(t, payload, packed)

			out, err := Decompress(packed, f)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}
}

func TestDetect(t *testing.T) {
	payload := samplePayload()

	// Signature-bearing codecs are detected from the compressed bytes.
	for _, f := range []Format{FormatGzip, FormatZstd, FormatLz4, FormatBzip2} {
		packed, err := Compress(payload, f)
		require.NoError(t, err)
		assert.Equal(t, f, Detect(packed), f.String())
	}

	assert.Equal(t, FormatNone, Detect([]byte("plain data")))
	assert.Equal(t, FormatNone, Detect(nil))
}

func TestDecompressAuto(t *testing.T) {
	payload := samplePayload()

	packed, err := Compress(payload, FormatGzip)
	require.NoError(t, err)

	out, f, err := DecompressAuto(packed)
	require.NoError(t, err)
	assert.Equal(t, FormatGzip, f)
	assert.Equal(t, payload, out)

	// Unrecognized input passes through untouched.
	out, f, err = DecompressAuto([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, FormatNone, f)
	assert.Equal(t, []byte("raw"), out)
}

func TestXzWriteUnsupported(t *testing.T) {
	_, err := Compress(samplePayload(), FormatXz)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFormatNames(t *testing.T) {
	for _, name := range []string{"gzip", "gz", "zstd", "lz4", "xz", "bzip2", "bz2", "lzma", "none"} {
		_, ok := FormatByName(name)
		assert.True(t, ok, name)
	}
	_, ok := FormatByName("lzop")
	assert.False(t, ok)
}
