package bootimg

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// lokiReaderFields is the set of header fields the Loki reader reconstructs.
// Both old- and new-style recoveries produce the same set.
const lokiReaderFields = FieldKernelAddress | FieldRamdiskAddress |
	FieldSecondBootAddress | FieldKernelTagsAddress | FieldPageSize |
	FieldBoardName | FieldKernelCmdline

// lokiReader recovers boot images scrambled by the Loki tool. The Android
// header is still present but carries wrong kernel/ramdisk values; the
// original ones are reconstructed from the Loki sub-header (new-style) or by
// scanning for the kernel image header, the ramdisk gzip signature and the
// appended shellcode (old-style).
type lokiReader struct {
	raw     androidHeader
	lokiHdr lokiHeader

	hdrOffset     uint64
	hasHdrOffset  bool
	lokiOffset    uint64
	hasLokiOffset bool

	seg segmentReader
}

func newLokiReader() *lokiReader {
	return &lokiReader{}
}

func (lr *lokiReader) format() Format {
	return FormatLoki
}

func (lr *lokiReader) bid(s Stream, bestBid int) (int, error) {
	if bestBid >= (BootMagicSize+LokiMagicSize)*8 {
		return bidCannotWin, nil
	}

	bid := 0

	hdr, offset, err := findLokiHeader(s)
	switch {
	case err == nil:
		lr.lokiHdr = hdr
		lr.lokiOffset = offset
		lr.hasLokiOffset = true
		bid += LokiMagicSize * 8
	case errors.Is(err, ErrLokiHeaderTooSmall) || errors.Is(err, ErrInvalidLokiMagic):
		return 0, nil
	default:
		return 0, err
	}

	ahdr, ahdrOffset, err := findAndroidHeader(s, LokiMaxHeaderOffset)
	switch {
	case err == nil:
		lr.raw = ahdr
		lr.hdrOffset = ahdrOffset
		lr.hasHdrOffset = true
		bid += BootMagicSize * 8
	case errors.Is(err, ErrHeaderNotFound) || errors.Is(err, ErrHeaderOutOfBounds):
		return 0, nil
	default:
		return 0, err
	}

	return bid, nil
}

// findLokiHeader reads the Loki sub-header at its fixed offset.
func findLokiHeader(s Stream) (lokiHeader, uint64, error) {
	if _, err := s.Seek(LokiMagicOffset, io.SeekStart); err != nil {
		return lokiHeader{}, 0, errors.Wrap(err, "failed to seek to Loki header")
	}

	buf := make([]byte, lokiHeaderSize)
	n, err := readFull(s, buf)
	if err != nil {
		return lokiHeader{}, 0, errors.Wrap(err, "failed to read Loki header")
	}
	if n != lokiHeaderSize {
		return lokiHeader{}, 0, ErrLokiHeaderTooSmall
	}

	hdr, err := decodeLokiHeader(buf)
	if err != nil {
		return lokiHeader{}, 0, errors.Wrap(err, "failed to decode Loki header")
	}
	if string(hdr.Magic[:]) != LokiMagic {
		return lokiHeader{}, 0, ErrInvalidLokiMagic
	}

	return hdr, LokiMagicOffset, nil
}

// findRamdiskAddress recovers the original ramdisk load address. Newer Loki
// versions patch it into the shellcode stub; older ones leave nothing, so the
// jflte default offset from the kernel address is used.
func findRamdiskAddress(s Stream, ahdr *androidHeader, lhdr *lokiHeader) (uint32, error) {
	if lhdr.RamdiskAddr != 0 {
		var shellcodeOffset uint64
		found := false

		// Every match is recorded; the last one wins.
		err := fileSearch(s, -1, -1, lokiShellcode[:lokiShellcodeSize-9], -1,
			func(offset uint64) (searchAction, error) {
				shellcodeOffset = offset
				found = true
				return searchContinue, nil
			})
		if err != nil {
			return 0, errors.Wrap(err, "failed to search for Loki shellcode")
		}
		if !found {
			return 0, ErrShellcodeNotFound
		}

		addrOffset := shellcodeOffset + lokiShellcodeSize - 5

		if _, err := s.Seek(int64(addrOffset), io.SeekStart); err != nil {
			return 0, errors.Wrap(err, "failed to seek to ramdisk address")
		}

		var buf [4]byte
		n, err := readFull(s, buf[:])
		if err != nil {
			return 0, errors.Wrap(err, "failed to read ramdisk address")
		}
		if n != len(buf) {
			return 0, errors.Wrap(ErrUnexpectedEndOfFile,
				"while reading ramdisk address")
		}

		return binary.LittleEndian.Uint32(buf[:]), nil
	}

	if ahdr.KernelAddr > math.MaxUint32-0x01ff8000 {
		return 0, errors.Wrapf(ErrInvalidKernelAddress,
			"kernel address %#x", ahdr.KernelAddr)
	}

	return ahdr.KernelAddr + 0x01ff8000, nil
}

// findGzipOffset locates the start of the gzip-compressed ramdisk in an
// old-style image. A gzip member whose flags byte is exactly 0x08 (only the
// original-filename bit) is preferred over one with empty flags, since
// manually gzipped ramdisks carry a filename.
func findGzipOffset(s Stream, startOffset uint64) (uint64, error) {
	gzipDeflateMagic := []byte{0x1f, 0x8b, 0x08}

	var flag0Offset, flag8Offset uint64
	var haveFlag0, haveFlag8 bool

	err := fileSearch(s, int64(startOffset), -1, gzipDeflateMagic, -1,
		func(offset uint64) (searchAction, error) {
			if haveFlag0 && haveFlag8 {
				return searchStop, nil
			}

			if _, err := s.Seek(int64(offset+3), io.SeekStart); err != nil {
				return searchStop, errors.Wrap(err, "failed to seek to flags byte")
			}

			var flags [1]byte
			n, err := readFull(s, flags[:])
			if err != nil {
				return searchStop, errors.Wrap(err, "failed to read flags byte")
			}
			if n == 0 {
				return searchStop, nil
			}

			if !haveFlag0 && flags[0] == 0x00 {
				flag0Offset = offset
				haveFlag0 = true
			} else if !haveFlag8 && flags[0] == 0x08 {
				flag8Offset = offset
				haveFlag8 = true
			}

			return searchContinue, nil
		})
	if err != nil {
		return 0, errors.Wrap(err, "failed to search for gzip magic")
	}

	switch {
	case haveFlag8:
		return flag8Offset, nil
	case haveFlag0:
		return flag0Offset, nil
	default:
		return 0, ErrNoRamdiskGzipHeader
	}
}

// findRamdiskSizeOld guesses the ramdisk size of an old-style image: the
// ramdisk runs from the gzip header to the copy of aboot stored at the end of
// the file. Trailing zero padding is intentionally kept.
func findRamdiskSizeOld(s Stream, ahdr *androidHeader, ramdiskOffset uint64) (uint32, error) {
	var abootSize int64
	if isLGRamdiskAddress(ahdr.RamdiskAddr) {
		abootSize = int64(ahdr.PageSize)
	} else {
		abootSize = 0x200
	}

	abootOffset, err := s.Seek(-abootSize, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrap(err, "failed to seek to end of file")
	}

	if ramdiskOffset > uint64(abootOffset) {
		return 0, ErrRamdiskOffsetTooLarge
	}

	return uint32(uint64(abootOffset) - ramdiskOffset), nil
}

// findLinuxKernelSize reads the image size field of the Linux kernel header;
// early Loki versions store the original kernel size nowhere else.
func findLinuxKernelSize(s Stream, kernelOffset uint64) (uint32, error) {
	if _, err := s.Seek(int64(kernelOffset+0x2c), io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "failed to seek to kernel header")
	}

	var buf [4]byte
	n, err := readFull(s, buf[:])
	if err != nil {
		return 0, errors.Wrap(err, "failed to read kernel image size")
	}
	if n != len(buf) {
		return 0, errors.Wrap(ErrUnexpectedEndOfFile,
			"while reading kernel header")
	}

	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (lr *lokiReader) readHeader(s Stream, h *Header) error {
	if !lr.hasLokiOffset {
		// A bid is skipped when the caller forces a format.
		hdr, offset, err := findLokiHeader(s)
		if err != nil {
			return err
		}
		lr.lokiHdr = hdr
		lr.lokiOffset = offset
		lr.hasLokiOffset = true
	}
	if !lr.hasHdrOffset {
		hdr, offset, err := findAndroidHeader(s, LokiMaxHeaderOffset)
		if err != nil {
			return err
		}
		lr.raw = hdr
		lr.hdrOffset = offset
		lr.hasHdrOffset = true
	}

	var kernelOffset, ramdiskOffset, dtOffset uint64
	var kernelSize, ramdiskSize uint32
	var err error

	// New-style patches record the original values of the scrambled fields
	// in the Loki sub-header.
	newStyle := lr.lokiHdr.OrigKernelSize != 0 &&
		lr.lokiHdr.OrigRamdiskSize != 0 &&
		lr.lokiHdr.RamdiskAddr != 0

	if newStyle {
		kernelOffset, kernelSize, ramdiskOffset, ramdiskSize, dtOffset, err =
			lr.readHeaderNew(s, h)
	} else {
		kernelOffset, kernelSize, ramdiskOffset, ramdiskSize, err =
			lr.readHeaderOld(s, h)
	}
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"new_style":    newStyle,
		"kernel_size":  kernelSize,
		"ramdisk_size": ramdiskSize,
	}).Debug("recovered Loki image geometry")

	entries := []segmentReaderEntry{
		{EntryKernel, kernelOffset, uint64(kernelSize), false},
		{EntryRamdisk, ramdiskOffset, uint64(ramdiskSize), false},
	}
	if lr.raw.DTSize > 0 && dtOffset != 0 {
		entries = append(entries, segmentReaderEntry{
			EntryDeviceTree, dtOffset, uint64(lr.raw.DTSize), false,
		})
	}

	return lr.seg.setEntries(entries)
}

// readHeaderOld reconstructs an image patched by an early Loki version,
// which stored nothing recoverable in its sub-header.
func (lr *lokiReader) readHeaderOld(s Stream, h *Header) (kernelOffset uint64,
	kernelSize uint32, ramdiskOffset uint64, ramdiskSize uint32, err error) {

	raw := &lr.raw

	if raw.PageSize == 0 {
		return 0, 0, 0, 0, ErrPageSizeCannotBeZero
	}

	// The tags address is invalid in old images; derive it from the jflte
	// defaults.
	tagsAddr := raw.KernelAddr - DefaultKernelOffset + DefaultTagsOffset

	kernelSize, err = findLinuxKernelSize(s, uint64(raw.PageSize))
	if err != nil {
		return 0, 0, 0, 0, err
	}

	gzipSearchStart := uint64(raw.PageSize) + uint64(kernelSize) +
		pagePadding(uint64(kernelSize), raw.PageSize)
	gzipOffset, err := findGzipOffset(s, gzipSearchStart)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	ramdiskSize, err = findRamdiskSizeOld(s, raw, gzipOffset)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	ramdiskAddr, err := findRamdiskAddress(s, raw, &lr.lokiHdr)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	h.SetSupportedFields(lokiReaderFields)
	_ = h.SetBoardName(raw.boardName())
	_ = h.SetKernelCmdline(raw.cmdlineString())
	_ = h.SetPageSize(raw.PageSize)
	_ = h.SetKernelAddress(raw.KernelAddr)
	_ = h.SetRamdiskAddress(ramdiskAddr)
	_ = h.SetSecondBootAddress(raw.SecondAddr)
	_ = h.SetKernelTagsAddress(tagsAddr)

	kernelOffset = uint64(raw.PageSize)
	ramdiskOffset = gzipOffset

	return kernelOffset, kernelSize, ramdiskOffset, ramdiskSize, nil
}

// readHeaderNew reconstructs an image patched by a newer Loki version using
// the original values preserved in the sub-header.
func (lr *lokiReader) readHeaderNew(s Stream, h *Header) (kernelOffset uint64,
	kernelSize uint32, ramdiskOffset uint64, ramdiskSize uint32,
	dtOffset uint64, err error) {

	raw := &lr.raw

	if raw.PageSize == 0 {
		return 0, 0, 0, 0, 0, ErrPageSizeCannotBeZero
	}

	var fakeSize uint32
	if isLGRamdiskAddress(raw.RamdiskAddr) {
		fakeSize = raw.PageSize
	} else {
		fakeSize = 0x200
	}

	ramdiskAddr, err := findRamdiskAddress(s, raw, &lr.lokiHdr)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}

	kernelSize = lr.lokiHdr.OrigKernelSize
	ramdiskSize = lr.lokiHdr.OrigRamdiskSize

	h.SetSupportedFields(lokiReaderFields)
	_ = h.SetBoardName(raw.boardName())
	_ = h.SetKernelCmdline(raw.cmdlineString())
	_ = h.SetPageSize(raw.PageSize)
	_ = h.SetKernelAddress(raw.KernelAddr)
	_ = h.SetRamdiskAddress(ramdiskAddr)
	_ = h.SetSecondBootAddress(raw.SecondAddr)
	_ = h.SetKernelTagsAddress(raw.TagsAddr)

	pos := uint64(raw.PageSize)

	kernelOffset = pos
	pos += uint64(kernelSize)
	pos = alignPage(pos, raw.PageSize)

	ramdiskOffset = pos
	pos += uint64(ramdiskSize)
	pos = alignPage(pos, raw.PageSize)

	// The patch stores a fake copy of aboot ahead of the device tree.
	if raw.DTSize != 0 {
		pos += uint64(fakeSize)
	}
	dtOffset = pos

	return kernelOffset, kernelSize, ramdiskOffset, ramdiskSize, dtOffset, nil
}

func (lr *lokiReader) readEntry(s Stream, e *Entry) error {
	return lr.seg.readEntry(s, e)
}

func (lr *lokiReader) goToEntry(s Stream, e *Entry, typ EntryType) error {
	return lr.seg.goToEntry(s, e, typ)
}

func (lr *lokiReader) readData(s Stream, buf []byte) (int, error) {
	return lr.seg.readData(s, buf)
}
