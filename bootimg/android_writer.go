package bootimg

import (
	"crypto/sha1"
	"encoding/binary"
	"hash"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// androidWriterFields is the set of header fields the Android writer
// consumes. The identifier is produced by the writer itself.
const androidWriterFields = FieldKernelAddress | FieldRamdiskAddress |
	FieldSecondBootAddress | FieldKernelTagsAddress | FieldPageSize |
	FieldBoardName | FieldKernelCmdline

// validPageSizes are the page sizes the Android layout permits.
var validPageSizes = []uint32{2048, 4096, 8192, 16384, 32768, 65536, 131072}

// androidWriter emits the canonical Android layout. With isBump set the
// trailer is the Bump magic instead of the Samsung SEAndroid one.
type androidWriter struct {
	raw    androidHeader
	isBump bool

	sha hash.Hash

	fileSize    uint64
	hasFileSize bool

	seg segmentWriter
}

func newAndroidWriter(isBump bool) *androidWriter {
	return &androidWriter{isBump: isBump, sha: sha1.New()}
}

func (aw *androidWriter) format() Format {
	if aw.isBump {
		return FormatBump
	}
	return FormatAndroid
}

func (aw *androidWriter) getHeader(h *Header) {
	h.SetSupportedFields(androidWriterFields)
}

func (aw *androidWriter) writeHeader(s Stream, h *Header) error {
	aw.raw = androidHeader{}
	copy(aw.raw.Magic[:], BootMagic)

	if addr, ok := h.KernelAddress(); ok {
		aw.raw.KernelAddr = addr
	}
	if addr, ok := h.RamdiskAddress(); ok {
		aw.raw.RamdiskAddr = addr
	}
	if addr, ok := h.SecondBootAddress(); ok {
		aw.raw.SecondAddr = addr
	}
	if addr, ok := h.KernelTagsAddress(); ok {
		aw.raw.TagsAddr = addr
	}

	pageSize, ok := h.PageSize()
	if !ok {
		return ErrMissingPageSize
	}
	valid := false
	for _, size := range validPageSizes {
		if pageSize == size {
			valid = true
			break
		}
	}
	if !valid {
		return errors.Wrapf(ErrInvalidPageSize, "page size %d", pageSize)
	}
	aw.raw.PageSize = pageSize

	if name, ok := h.BoardName(); ok {
		if len(name) >= BootNameSize {
			return ErrBoardNameTooLong
		}
		copy(aw.raw.Name[:], name)
	}
	if cmdline, ok := h.KernelCmdline(); ok {
		if len(cmdline) >= BootArgsSize {
			return ErrKernelCmdlineTooLong
		}
		copy(aw.raw.Cmdline[:], cmdline)
	}

	entries := []segmentWriterEntry{
		{typ: EntryKernel, align: uint64(pageSize)},
		{typ: EntryRamdisk, align: uint64(pageSize)},
		{typ: EntrySecondBoot, align: uint64(pageSize)},
		{typ: EntryDeviceTree, align: uint64(pageSize)},
	}
	if err := aw.seg.setEntries(entries); err != nil {
		return err
	}

	// The first page is reserved for the header and its padding; payloads
	// start on the following page boundary.
	if _, err := s.Seek(int64(pageSize), io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek to first page")
	}

	return nil
}

func (aw *androidWriter) getEntry(s Stream, e *Entry) error {
	return aw.seg.getEntry(s, e)
}

func (aw *androidWriter) writeEntry(s Stream, e *Entry) error {
	return aw.seg.writeEntry(s, e)
}

func (aw *androidWriter) writeData(s Stream, buf []byte) (int, error) {
	n, err := aw.seg.writeData(s, buf)
	if err != nil {
		return n, err
	}

	// Every payload byte enters the hash; sizes follow in finishEntry.
	if _, err := aw.sha.Write(buf); err != nil {
		// The bytes are already on the stream and cannot be retracted.
		return n, markFatal(ErrSha1Update)
	}

	return n, nil
}

func (aw *androidWriter) finishEntry(s Stream) error {
	if err := aw.seg.finishEntry(s); err != nil {
		return err
	}

	ent := aw.seg.current()

	// Every segment contributes its size to the hash except an absent
	// device tree.
	if ent.typ != EntryDeviceTree || ent.size > 0 {
		var le [4]byte
		binary.LittleEndian.PutUint32(le[:], ent.size)
		if _, err := aw.sha.Write(le[:]); err != nil {
			return markFatal(ErrSha1Update)
		}
	}

	switch ent.typ {
	case EntryKernel:
		aw.raw.KernelSize = ent.size
	case EntryRamdisk:
		aw.raw.RamdiskSize = ent.size
	case EntrySecondBoot:
		aw.raw.SecondSize = ent.size
	case EntryDeviceTree:
		aw.raw.DTSize = ent.size
	}

	return nil
}

func (aw *androidWriter) close(s Stream) error {
	if aw.hasFileSize {
		// Re-closing seeks to the recorded end so the trailer is not
		// appended twice.
		if _, err := s.Seek(int64(aw.fileSize), io.SeekStart); err != nil {
			return errors.Wrap(err, "failed to seek to end of image")
		}
	} else {
		pos, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return errors.Wrap(err, "failed to get current offset")
		}
		aw.fileSize = uint64(pos)
		aw.hasFileSize = true
	}

	// Only a fully written image gets its trailer and final header.
	if aw.seg.atEnd() {
		trailer := SamsungSEAndroidMagic
		if aw.isBump {
			trailer = BumpMagic
		}
		if err := writeFull(s, []byte(trailer)); err != nil {
			return errors.Wrap(err, "failed to write trailer magic")
		}

		digest := aw.sha.Sum(nil)
		copy(aw.raw.ID[:], digest)

		logrus.WithFields(logrus.Fields{
			"format": aw.format().String(),
			"size":   aw.fileSize + uint64(len(trailer)),
		}).Debug("finalizing boot image header")

		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, "failed to seek to header")
		}
		if err := writeFull(s, aw.raw.encode()); err != nil {
			return errors.Wrap(err, "failed to write header")
		}
	}

	return nil
}
