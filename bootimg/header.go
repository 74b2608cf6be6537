package bootimg

// FieldFlags is a bitset of header fields. A codec advertises the fields it
// reads or writes through Header.SupportedFields; setting a field outside
// that set is rejected.
type FieldFlags uint32

const (
	FieldKernelAddress FieldFlags = 1 << iota
	FieldRamdiskAddress
	FieldSecondBootAddress
	FieldKernelTagsAddress
	FieldPageSize
	FieldBoardName
	FieldKernelCmdline
	FieldID
)

// FieldsAll enables every field; it is the default for a fresh Header.
const FieldsAll = FieldKernelAddress | FieldRamdiskAddress |
	FieldSecondBootAddress | FieldKernelTagsAddress | FieldPageSize |
	FieldBoardName | FieldKernelCmdline | FieldID

// Header is the in-memory, format-independent description of a boot image.
// Every field is individually optional.
type Header struct {
	supported FieldFlags

	kernelAddr    uint32
	hasKernelAddr bool
	ramdiskAddr   uint32
	hasRamdisk    bool
	secondAddr    uint32
	hasSecond     bool
	tagsAddr      uint32
	hasTags       bool
	pageSize      uint32
	hasPageSize   bool
	boardName     string
	hasBoardName  bool
	cmdline       string
	hasCmdline    bool
	id            []byte
	hasID         bool
}

// NewHeader returns an empty header with all fields supported.
func NewHeader() *Header {
	return &Header{supported: FieldsAll}
}

// Clear resets every field to unset and restores the full supported set.
func (h *Header) Clear() {
	*h = Header{supported: FieldsAll}
}

// SupportedFields reports which fields the producing or consuming codec
// honors.
func (h *Header) SupportedFields() FieldFlags {
	return h.supported
}

// SetSupportedFields restricts which fields may be set. Values already stored
// are kept.
func (h *Header) SetSupportedFields(fields FieldFlags) {
	h.supported = fields
}

func (h *Header) checkSupported(f FieldFlags) error {
	if h.supported&f == 0 {
		return ErrUnsupportedField
	}
	return nil
}

func (h *Header) KernelAddress() (uint32, bool) {
	return h.kernelAddr, h.hasKernelAddr
}

func (h *Header) SetKernelAddress(addr uint32) error {
	if err := h.checkSupported(FieldKernelAddress); err != nil {
		return err
	}
	h.kernelAddr = addr
	h.hasKernelAddr = true
	return nil
}

func (h *Header) RamdiskAddress() (uint32, bool) {
	return h.ramdiskAddr, h.hasRamdisk
}

func (h *Header) SetRamdiskAddress(addr uint32) error {
	if err := h.checkSupported(FieldRamdiskAddress); err != nil {
		return err
	}
	h.ramdiskAddr = addr
	h.hasRamdisk = true
	return nil
}

func (h *Header) SecondBootAddress() (uint32, bool) {
	return h.secondAddr, h.hasSecond
}

func (h *Header) SetSecondBootAddress(addr uint32) error {
	if err := h.checkSupported(FieldSecondBootAddress); err != nil {
		return err
	}
	h.secondAddr = addr
	h.hasSecond = true
	return nil
}

func (h *Header) KernelTagsAddress() (uint32, bool) {
	return h.tagsAddr, h.hasTags
}

func (h *Header) SetKernelTagsAddress(addr uint32) error {
	if err := h.checkSupported(FieldKernelTagsAddress); err != nil {
		return err
	}
	h.tagsAddr = addr
	h.hasTags = true
	return nil
}

func (h *Header) PageSize() (uint32, bool) {
	return h.pageSize, h.hasPageSize
}

func (h *Header) SetPageSize(size uint32) error {
	if err := h.checkSupported(FieldPageSize); err != nil {
		return err
	}
	h.pageSize = size
	h.hasPageSize = true
	return nil
}

func (h *Header) BoardName() (string, bool) {
	return h.boardName, h.hasBoardName
}

func (h *Header) SetBoardName(name string) error {
	if err := h.checkSupported(FieldBoardName); err != nil {
		return err
	}
	h.boardName = name
	h.hasBoardName = true
	return nil
}

func (h *Header) KernelCmdline() (string, bool) {
	return h.cmdline, h.hasCmdline
}

func (h *Header) SetKernelCmdline(cmdline string) error {
	if err := h.checkSupported(FieldKernelCmdline); err != nil {
		return err
	}
	h.cmdline = cmdline
	h.hasCmdline = true
	return nil
}

// ID returns the 20-byte image identifier, if set. Readers populate it from
// the on-disk header; writers compute their own and ignore a caller-set
// value.
func (h *Header) ID() ([]byte, bool) {
	return h.id, h.hasID
}

func (h *Header) SetID(id []byte) error {
	if err := h.checkSupported(FieldID); err != nil {
		return err
	}
	h.id = append([]byte(nil), id...)
	h.hasID = true
	return nil
}
