package bootimg

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// On-disk constants of the Android boot image layout.
const (
	BootMagic     = "ANDROID!"
	BootMagicSize = 8
	BootNameSize  = 16
	BootArgsSize  = 512

	// SamsungSEAndroidMagic is appended after the last segment unless the
	// writer is in bump mode.
	SamsungSEAndroidMagic = "SEANDROIDENFORCE"

	// BumpMagic is the trailer the Bump tool appends so stock bootloaders
	// accept modified images.
	BumpMagic = "\x41\xa9\xe4\x67\x74\x4d\x1d\x1b\xa4\x29\xf2\xec\xea\x65\x52\x79"

	// MaxHeaderOffset bounds how far into the file the header magic may
	// start.
	MaxHeaderOffset = 32768

	// headerMagicStride is the alignment of candidate magic offsets during
	// the header search.
	headerMagicStride = 8

	// Device-family defaults (jflte) used when an image does not encode its
	// own offsets.
	DefaultKernelOffset = 0x00008000
	DefaultTagsOffset   = 0x00000100
)

// Android format errors.
var (
	ErrHeaderNotFound       = errors.New("android: header magic not found")
	ErrHeaderOutOfBounds    = errors.New("android: header out of bounds")
	ErrInvalidPageSize      = errors.New("android: invalid page size")
	ErrMissingPageSize      = errors.New("android: missing page size")
	ErrBoardNameTooLong     = errors.New("android: board name too long")
	ErrKernelCmdlineTooLong = errors.New("android: kernel cmdline too long")
	ErrSha1Init             = errors.New("android: failed to initialize SHA-1")
	ErrSha1Update           = errors.New("android: failed to update SHA-1")
	ErrSamsungMagicNotFound = errors.New("android: SEAndroid magic not found")
	ErrBumpMagicNotFound    = errors.New("android: bump magic not found")
)

// androidHeader is the fixed 608-byte on-disk header. All integer fields are
// little-endian on disk and held in host order in memory; conversion happens
// exactly at decode and encode.
type androidHeader struct {
	Magic       [BootMagicSize]byte
	KernelSize  uint32
	KernelAddr  uint32
	RamdiskSize uint32
	RamdiskAddr uint32
	SecondSize  uint32
	SecondAddr  uint32
	TagsAddr    uint32
	PageSize    uint32
	DTSize      uint32
	Unused      uint32
	Name        [BootNameSize]byte
	Cmdline     [BootArgsSize]byte
	ID          [32]byte
}

const androidHeaderSize = 608

func decodeAndroidHeader(buf []byte) (androidHeader, error) {
	var hdr androidHeader
	err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr)
	return hdr, err
}

func (h *androidHeader) encode() []byte {
	var buf bytes.Buffer
	// Writing a fixed-size struct to a buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, h)
	return buf.Bytes()
}

func (h *androidHeader) boardName() string {
	return trimNulString(h.Name[:])
}

func (h *androidHeader) cmdlineString() string {
	return trimNulString(h.Cmdline[:])
}

func trimNulString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// findAndroidHeader searches the first maxOffset bytes for the boot magic at
// stride-aligned offsets and decodes the header at the lowest match. A magic
// that would extend past maxOffset, or whose header would extend past EOF,
// yields ErrHeaderOutOfBounds.
func findAndroidHeader(s Stream, maxOffset uint64) (androidHeader, uint64, error) {
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return androidHeader{}, 0, errors.Wrap(err, "failed to seek to start")
	}

	buf := make([]byte, maxOffset+androidHeaderSize)
	n, err := readFull(s, buf)
	if err != nil {
		return androidHeader{}, 0, errors.Wrap(err, "failed to read header region")
	}
	buf = buf[:n]

	magic := []byte(BootMagic)
	for off := 0; off+BootMagicSize <= len(buf); off += headerMagicStride {
		if !bytes.Equal(buf[off:off+BootMagicSize], magic) {
			continue
		}
		if uint64(off)+BootMagicSize > maxOffset {
			return androidHeader{}, 0, ErrHeaderOutOfBounds
		}
		if off+androidHeaderSize > len(buf) {
			return androidHeader{}, 0, ErrHeaderOutOfBounds
		}
		hdr, err := decodeAndroidHeader(buf[off : off+androidHeaderSize])
		if err != nil {
			return androidHeader{}, 0, errors.Wrap(err, "failed to decode header")
		}
		return hdr, uint64(off), nil
	}

	return androidHeader{}, 0, ErrHeaderNotFound
}

// trailerOffset computes where a trailer magic would sit: directly after the
// last page-aligned segment described by the header.
func (h *androidHeader) trailerOffset() uint64 {
	pos := uint64(h.PageSize)

	pos += uint64(h.KernelSize)
	pos = alignPage(pos, h.PageSize)

	pos += uint64(h.RamdiskSize)
	pos = alignPage(pos, h.PageSize)

	pos += uint64(h.SecondSize)
	pos = alignPage(pos, h.PageSize)

	pos += uint64(h.DTSize)
	pos = alignPage(pos, h.PageSize)

	return pos
}

// findTrailerMagic checks for the given magic directly after the last
// segment.
func findTrailerMagic(s Stream, hdr *androidHeader, magic string, missing error) (uint64, error) {
	pos := hdr.trailerOffset()

	if _, err := s.Seek(int64(pos), io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "failed to seek to trailer")
	}

	buf := make([]byte, len(magic))
	n, err := readFull(s, buf)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read trailer")
	}
	if n != len(magic) || !bytes.Equal(buf, []byte(magic)) {
		return 0, missing
	}

	return pos, nil
}
