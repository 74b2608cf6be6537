package bootimg

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// androidReaderFields is the set of header fields the Android reader
// populates.
const androidReaderFields = FieldKernelAddress | FieldRamdiskAddress |
	FieldSecondBootAddress | FieldKernelTagsAddress | FieldPageSize |
	FieldBoardName | FieldKernelCmdline | FieldID

// androidReader parses the canonical Android layout. With isBump set it bids
// on the Bump trailer instead of the Samsung SEAndroid one; parsing is
// otherwise identical.
type androidReader struct {
	raw          androidHeader
	hdrOffset    uint64
	hasHdrOffset bool

	// A device tree shorter than its recorded size is tolerated unless
	// strict mode is requested.
	allowTruncatedDT bool

	isBump bool

	seg segmentReader
}

func newAndroidReader(isBump bool) *androidReader {
	return &androidReader{allowTruncatedDT: true, isBump: isBump}
}

func (ar *androidReader) format() Format {
	if ar.isBump {
		return FormatBump
	}
	return FormatAndroid
}

// setStrict turns tolerance for truncated device tree payloads off (strict)
// or back on.
func (ar *androidReader) setStrict(strict bool) {
	ar.allowTruncatedDT = !strict
}

func (ar *androidReader) bid(s Stream, bestBid int) (int, error) {
	trailer := SamsungSEAndroidMagic
	missing := ErrSamsungMagicNotFound
	if ar.isBump {
		trailer = BumpMagic
		missing = ErrBumpMagicNotFound
	}

	if bestBid >= (BootMagicSize+len(trailer))*8 {
		return bidCannotWin, nil
	}

	bid := 0

	hdr, offset, err := findAndroidHeader(s, MaxHeaderOffset)
	switch {
	case err == nil:
		ar.raw = hdr
		ar.hdrOffset = offset
		ar.hasHdrOffset = true
		bid += BootMagicSize * 8
	case errors.Is(err, ErrHeaderNotFound) || errors.Is(err, ErrHeaderOutOfBounds):
		return 0, nil
	default:
		return 0, err
	}

	if _, err := findTrailerMagic(s, &ar.raw, trailer, missing); err == nil {
		bid += len(trailer) * 8
	} else if !errors.Is(err, missing) {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"format": ar.format().String(),
		"offset": ar.hdrOffset,
		"bid":    bid,
	}).Debug("boot image header located")

	return bid, nil
}

// convertHeader copies the raw on-disk values into the format-independent
// header.
func (ar *androidReader) convertHeader(h *Header) {
	raw := &ar.raw

	h.SetSupportedFields(androidReaderFields)
	_ = h.SetBoardName(raw.boardName())
	_ = h.SetKernelCmdline(raw.cmdlineString())
	_ = h.SetPageSize(raw.PageSize)
	_ = h.SetKernelAddress(raw.KernelAddr)
	_ = h.SetRamdiskAddress(raw.RamdiskAddr)
	_ = h.SetSecondBootAddress(raw.SecondAddr)
	_ = h.SetKernelTagsAddress(raw.TagsAddr)
	_ = h.SetID(raw.ID[:20])
}

func (ar *androidReader) readHeader(s Stream, h *Header) error {
	if !ar.hasHdrOffset {
		// A bid is skipped when the caller forces a format.
		hdr, offset, err := findAndroidHeader(s, MaxHeaderOffset)
		if err != nil {
			return err
		}
		ar.raw = hdr
		ar.hdrOffset = offset
		ar.hasHdrOffset = true
	}

	ar.convertHeader(h)

	raw := &ar.raw
	pageSize := raw.PageSize

	// Segment offsets follow the header page; each segment starts on the
	// page boundary after its predecessor.
	pos := ar.hdrOffset
	pos += androidHeaderSize
	pos = alignPage(pos, pageSize)

	kernelOffset := pos
	pos += uint64(raw.KernelSize)
	pos = alignPage(pos, pageSize)

	ramdiskOffset := pos
	pos += uint64(raw.RamdiskSize)
	pos = alignPage(pos, pageSize)

	secondOffset := pos
	pos += uint64(raw.SecondSize)
	pos = alignPage(pos, pageSize)

	dtOffset := pos

	entries := []segmentReaderEntry{
		{EntryKernel, kernelOffset, uint64(raw.KernelSize), false},
		{EntryRamdisk, ramdiskOffset, uint64(raw.RamdiskSize), false},
		{EntrySecondBoot, secondOffset, uint64(raw.SecondSize), false},
		{EntryDeviceTree, dtOffset, uint64(raw.DTSize), ar.allowTruncatedDT},
	}

	return ar.seg.setEntries(entries)
}

func (ar *androidReader) readEntry(s Stream, e *Entry) error {
	return ar.seg.readEntry(s, e)
}

func (ar *androidReader) goToEntry(s Stream, e *Entry, typ EntryType) error {
	return ar.seg.goToEntry(s, e, typ)
}

func (ar *androidReader) readData(s Stream, buf []byte) (int, error) {
	return ar.seg.readData(s, buf)
}
