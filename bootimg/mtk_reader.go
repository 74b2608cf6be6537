package bootimg

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// mtkReader parses Android images whose kernel and ramdisk payloads carry
// MTK sub-headers.
type mtkReader struct {
	raw        androidHeader
	kernelHdr  mtkHeader
	ramdiskHdr mtkHeader

	hdrOffset    uint64
	hasHdrOffset bool

	kernelOffset  uint64
	ramdiskOffset uint64
	hasMtkOffsets bool

	seg segmentReader
}

func newMtkReader() *mtkReader {
	return &mtkReader{}
}

func (mr *mtkReader) format() Format {
	return FormatMtk
}

// readMtkHeader reads and validates one MTK sub-header at the given offset.
func readMtkHeader(s Stream, offset uint64) (mtkHeader, error) {
	if _, err := s.Seek(int64(offset), io.SeekStart); err != nil {
		return mtkHeader{}, errors.Wrapf(err,
			"failed to seek to MTK header at %d", offset)
	}

	buf := make([]byte, mtkHeaderSize)
	n, err := readFull(s, buf)
	if err != nil {
		return mtkHeader{}, errors.Wrap(err, "failed to read MTK header")
	}
	if n != mtkHeaderSize || string(buf[:MtkMagicSize]) != MtkMagic {
		return mtkHeader{}, errors.Wrapf(ErrMtkHeaderNotFound, "at offset %d", offset)
	}

	return decodeMtkHeader(buf)
}

// findMtkHeaders locates the MTK sub-headers at the start of the kernel and
// ramdisk segments. The payload offsets it records on the reader point past
// the sub-headers, at the actual payloads.
func (mr *mtkReader) findMtkHeaders(s Stream) error {
	pos := uint64(mr.raw.PageSize)

	kernelOffset := pos
	pos += uint64(mr.raw.KernelSize)
	pos = alignPage(pos, mr.raw.PageSize)

	ramdiskOffset := pos

	kernelHdr, err := readMtkHeader(s, kernelOffset)
	if err != nil {
		return err
	}
	ramdiskHdr, err := readMtkHeader(s, ramdiskOffset)
	if err != nil {
		return err
	}

	mr.kernelHdr = kernelHdr
	mr.ramdiskHdr = ramdiskHdr
	mr.kernelOffset = kernelOffset + mtkHeaderSize
	mr.ramdiskOffset = ramdiskOffset + mtkHeaderSize
	mr.hasMtkOffsets = true

	logrus.WithFields(logrus.Fields{
		"kernel_type":  kernelHdr.typeString(),
		"ramdisk_type": ramdiskHdr.typeString(),
	}).Debug("found MTK sub-headers")

	return nil
}

func (mr *mtkReader) bid(s Stream, bestBid int) (int, error) {
	if bestBid >= (BootMagicSize+2*MtkMagicSize)*8 {
		return bidCannotWin, nil
	}

	bid := 0

	hdr, offset, err := findAndroidHeader(s, MaxHeaderOffset)
	switch {
	case err == nil:
		mr.raw = hdr
		mr.hdrOffset = offset
		mr.hasHdrOffset = true
		bid += BootMagicSize * 8
	case errors.Is(err, ErrHeaderNotFound) || errors.Is(err, ErrHeaderOutOfBounds):
		return 0, nil
	default:
		return 0, err
	}

	if err := mr.findMtkHeaders(s); err == nil {
		bid += 2 * MtkMagicSize * 8
	} else if errors.Is(err, ErrMtkHeaderNotFound) {
		return 0, nil
	} else {
		return 0, err
	}

	return bid, nil
}

func (mr *mtkReader) readHeader(s Stream, h *Header) error {
	if !mr.hasHdrOffset {
		// A bid is skipped when the caller forces a format.
		hdr, offset, err := findAndroidHeader(s, MaxHeaderOffset)
		if err != nil {
			return err
		}
		mr.raw = hdr
		mr.hdrOffset = offset
		mr.hasHdrOffset = true
	}
	if !mr.hasMtkOffsets {
		if err := mr.findMtkHeaders(s); err != nil {
			return err
		}
	}

	// The Android sizes must cover the MTK sub-headers exactly.
	if uint64(mr.raw.KernelSize) != uint64(mr.kernelHdr.Size)+mtkHeaderSize {
		return ErrMismatchedKernelSize
	}
	if uint64(mr.raw.RamdiskSize) != uint64(mr.ramdiskHdr.Size)+mtkHeaderSize {
		return ErrMismatchedRamdiskSize
	}

	h.SetSupportedFields(androidReaderFields)
	_ = h.SetBoardName(mr.raw.boardName())
	_ = h.SetKernelCmdline(mr.raw.cmdlineString())
	_ = h.SetPageSize(mr.raw.PageSize)
	_ = h.SetKernelAddress(mr.raw.KernelAddr)
	_ = h.SetRamdiskAddress(mr.raw.RamdiskAddr)
	_ = h.SetSecondBootAddress(mr.raw.SecondAddr)
	_ = h.SetKernelTagsAddress(mr.raw.TagsAddr)
	_ = h.SetID(mr.raw.ID[:20])

	raw := &mr.raw
	pageSize := raw.PageSize

	pos := mr.hdrOffset
	pos += androidHeaderSize
	pos = alignPage(pos, pageSize)

	kernelHdrOffset := pos
	pos += uint64(raw.KernelSize)
	pos = alignPage(pos, pageSize)

	ramdiskHdrOffset := pos
	pos += uint64(raw.RamdiskSize)
	pos = alignPage(pos, pageSize)

	secondOffset := pos
	pos += uint64(raw.SecondSize)
	pos = alignPage(pos, pageSize)

	dtOffset := pos

	entries := []segmentReaderEntry{
		{EntryMtkKernelHeader, kernelHdrOffset, mtkHeaderSize, false},
		{EntryKernel, mr.kernelOffset, uint64(mr.kernelHdr.Size), false},
		{EntryMtkRamdiskHeader, ramdiskHdrOffset, mtkHeaderSize, false},
		{EntryRamdisk, mr.ramdiskOffset, uint64(mr.ramdiskHdr.Size), false},
	}
	if raw.SecondSize > 0 {
		entries = append(entries, segmentReaderEntry{
			EntrySecondBoot, secondOffset, uint64(raw.SecondSize), false,
		})
	}
	if raw.DTSize > 0 {
		entries = append(entries, segmentReaderEntry{
			EntryDeviceTree, dtOffset, uint64(raw.DTSize), false,
		})
	}

	return mr.seg.setEntries(entries)
}

func (mr *mtkReader) readEntry(s Stream, e *Entry) error {
	return mr.seg.readEntry(s, e)
}

func (mr *mtkReader) goToEntry(s Stream, e *Entry, typ EntryType) error {
	return mr.seg.goToEntry(s, e, typ)
}

func (mr *mtkReader) readData(s Stream, buf []byte) (int, error) {
	return mr.seg.readData(s, buf)
}
