package bootimg

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// On-disk constants of the MTK payload sub-header.
const (
	MtkMagic     = "\x88\x16\x88\x58"
	MtkMagicSize = 4
)

// MTK format errors.
var (
	ErrMtkHeaderNotFound     = errors.New("mtk: header not found")
	ErrMismatchedKernelSize  = errors.New("mtk: mismatched kernel size in headers")
	ErrMismatchedRamdiskSize = errors.New("mtk: mismatched ramdisk size in headers")
)

// mtkHeader is the 512-byte header MTK devices prefix to both the kernel and
// the ramdisk payload inside an otherwise ordinary Android image.
type mtkHeader struct {
	Magic  [MtkMagicSize]byte
	Size   uint32
	Type   [32]byte
	Unused [472]byte
}

const mtkHeaderSize = 512

func decodeMtkHeader(buf []byte) (mtkHeader, error) {
	var hdr mtkHeader
	err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr)
	return hdr, err
}

func (h *mtkHeader) typeString() string {
	return trimNulString(h.Type[:])
}
