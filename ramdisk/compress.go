// Package ramdisk detects and transcodes the compression of boot image
// ramdisk payloads.
//
// RW: gzip, zstd, lz4, lzma, bzip2
// R-only: xz
package ramdisk

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Format identifies a ramdisk compression codec.
type Format int

const (
	FormatNone Format = iota
	FormatGzip
	FormatZstd
	FormatLz4
	FormatXz
	FormatBzip2
	FormatLzma
)

func (f Format) String() string {
	switch f {
	case FormatGzip:
		return "gzip"
	case FormatZstd:
		return "zstd"
	case FormatLz4:
		return "lz4"
	case FormatXz:
		return "xz"
	case FormatBzip2:
		return "bzip2"
	case FormatLzma:
		return "lzma"
	default:
		return "none"
	}
}

// FormatByName resolves a codec name, accepting the usual aliases.
func FormatByName(name string) (Format, bool) {
	switch name {
	case "", "none", "raw":
		return FormatNone, true
	case "gzip", "gz":
		return FormatGzip, true
	case "zstd", "zst":
		return FormatZstd, true
	case "lz4":
		return FormatLz4, true
	case "xz":
		return FormatXz, true
	case "bzip2", "bz2":
		return FormatBzip2, true
	case "lzma":
		return FormatLzma, true
	default:
		return FormatNone, false
	}
}

var ErrUnsupported = errors.New("ramdisk: unsupported compression format")

// Detect inspects the payload's magic bytes. LZMA "alone" streams have no
// reliable signature and come back as FormatNone.
func Detect(data []byte) Format {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return FormatGzip
	case len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 &&
		data[2] == 0x2f && data[3] == 0xfd:
		return FormatZstd
	case len(data) >= 4 && data[0] == 0x04 && data[1] == 0x22 &&
		data[2] == 0x4d && data[3] == 0x18:
		return FormatLz4
	case len(data) >= 6 && data[0] == 0xfd && data[1] == '7' &&
		data[2] == 'z' && data[3] == 'X' && data[4] == 'Z' && data[5] == 0x00:
		return FormatXz
	case len(data) >= 3 && data[0] == 'B' && data[1] == 'Z' && data[2] == 'h':
		return FormatBzip2
	default:
		return FormatNone
	}
}

// DecompressAuto detects the codec and decompresses. An undetectable payload
// is returned as-is.
func DecompressAuto(in []byte) ([]byte, Format, error) {
	f := Detect(in)
	if f == FormatNone {
		return in, FormatNone, nil
	}
	out, err := Decompress(in, f)
	return out, f, err
}

// Decompress expands a ramdisk payload with the given codec.
func Decompress(in []byte, f Format) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(in), f)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Compress packs a ramdisk payload with the given codec.
func Compress(in []byte, f Format) ([]byte, error) {
	if f == FormatNone {
		return in, nil
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, f)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(in); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewReader wraps r with a decompressor for the given codec.
func NewReader(r io.Reader, f Format) (io.ReadCloser, error) {
	switch f {
	case FormatNone:
		return io.NopCloser(r), nil
	case FormatGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return gr, nil
	case FormatZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case FormatLz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case FormatXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case FormatLzma:
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(lr), nil
	case FormatBzip2:
		br, err := bzip2.NewReader(r, &bzip2.ReaderConfig{})
		if err != nil {
			return nil, err
		}
		return br, nil
	default:
		return nil, ErrUnsupported
	}
}

// NewWriter wraps w with a compressor for the given codec.
func NewWriter(w io.Writer, f Format) (io.WriteCloser, error) {
	switch f {
	case FormatNone:
		return nopWriteCloser{w}, nil
	case FormatGzip:
		return gzip.NewWriter(w), nil
	case FormatZstd:
		return zstd.NewWriter(w)
	case FormatLz4:
		return lz4.NewWriter(w), nil
	case FormatLzma:
		return lzma.NewWriter(w)
	case FormatBzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{})
	case FormatXz:
		// xz write support is not wired up.
		return nil, ErrUnsupported
	default:
		return nil, ErrUnsupported
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
