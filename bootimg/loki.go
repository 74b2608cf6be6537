package bootimg

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// On-disk constants of the Loki patch format.
const (
	LokiMagic     = "LOKI"
	LokiMagicSize = 4

	// LokiMagicOffset is where the Loki sub-header sits in a patched image.
	LokiMagicOffset = 0x400

	// LokiMaxHeaderOffset bounds the search for the scrambled Android header
	// in a Loki image.
	LokiMaxHeaderOffset = 32768

	// lokiShellcodeSize counts the shellcode stub including its trailing
	// NUL. The search covers the first lokiShellcodeSize-9 bytes; the
	// patched-in ramdisk load address sits at lokiShellcodeSize-5.
	lokiShellcodeSize = 65
)

// lokiShellcode is the stub the Loki tool appends to a patched image. The
// final eight bytes are placeholders the tool overwrites, so the search only
// covers the stable prefix.
var lokiShellcode = []byte{
	0xfe, 0xb5,
	0x0d, 0x4d,
	0xd5, 0xf8,
	0x88, 0x04,
	0xab, 0x68,
	0x98, 0x42,
	0x12, 0xd0,
	0xd5, 0xf8,
	0x90, 0x64,
	0x0a, 0x4c,
	0xd5, 0xf8,
	0x8c, 0x74,
	0x07, 0xf5, 0x80, 0x57,
	0x0f, 0xce,
	0x0f, 0xc4,
	0x10, 0x3f,
	0xfb, 0xdc,
	0xd5, 0xf8,
	0x88, 0x04,
	0x04, 0x49,
	0xd5, 0xf8,
	0x8c, 0x24,
	0xa8, 0x60,
	0x69, 0x61,
	0x2a, 0x61,
	0x00, 0x20,
	0xfe, 0xbd,
	0xff, 0xff, 0xff, 0xff,
	0xee, 0xee, 0xee, 0xee,
}

// Loki format errors.
var (
	ErrLokiHeaderTooSmall    = errors.New("loki: file too small for Loki header")
	ErrInvalidLokiMagic      = errors.New("loki: invalid magic")
	ErrPageSizeCannotBeZero  = errors.New("loki: page size cannot be zero")
	ErrShellcodeNotFound     = errors.New("loki: shellcode not found")
	ErrNoRamdiskGzipHeader   = errors.New("loki: no ramdisk gzip header found")
	ErrRamdiskOffsetTooLarge = errors.New("loki: ramdisk offset greater than aboot offset")
	ErrUnexpectedEndOfFile   = errors.New("loki: unexpected end of file")
	ErrInvalidKernelAddress  = errors.New("loki: invalid kernel address")
	ErrCannotDetermineRdSize = errors.New("loki: failed to determine ramdisk size")
)

// lokiHeader is the 148-byte sub-header the Loki tool inserts at
// LokiMagicOffset. Old-style patches leave the three trailing fields zero.
type lokiHeader struct {
	Magic           [LokiMagicSize]byte
	Recovery        uint32
	Build           [128]byte
	OrigKernelSize  uint32
	OrigRamdiskSize uint32
	RamdiskAddr     uint32
}

const lokiHeaderSize = 148

func decodeLokiHeader(buf []byte) (lokiHeader, error) {
	var hdr lokiHeader
	err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr)
	return hdr, err
}

// isLGRamdiskAddress reports whether the ramdisk load address belongs to the
// LG device family, which stores its aboot copy in a full page instead of the
// usual 0x200 bytes.
func isLGRamdiskAddress(addr uint32) bool {
	return addr > 0x88f00000 || addr == 0x0f8132a0
}
