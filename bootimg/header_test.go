package bootimg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderOptionalFields(t *testing.T) {
	h := NewHeader()

	_, ok := h.KernelAddress()
	assert.False(t, ok)
	_, ok = h.PageSize()
	assert.False(t, ok)

	require.NoError(t, h.SetKernelAddress(0x80008000))
	v, ok := h.KernelAddress()
	require.True(t, ok)
	assert.Equal(t, uint32(0x80008000), v)

	// Other fields stay unset.
	_, ok = h.RamdiskAddress()
	assert.False(t, ok)

	h.Clear()
	_, ok = h.KernelAddress()
	assert.False(t, ok)
	assert.Equal(t, FieldsAll, h.SupportedFields())
}

func TestHeaderRejectsUnsupportedFields(t *testing.T) {
	h := NewHeader()
	h.SetSupportedFields(FieldPageSize | FieldKernelCmdline)

	assert.NoError(t, h.SetPageSize(2048))
	assert.NoError(t, h.SetKernelCmdline("quiet"))

	assert.ErrorIs(t, h.SetBoardName("jflte"), ErrUnsupportedField)
	assert.ErrorIs(t, h.SetKernelAddress(1), ErrUnsupportedField)
	assert.ErrorIs(t, h.SetID(make([]byte, 20)), ErrUnsupportedField)

	// Rejected setters must not leave values behind.
	_, ok := h.BoardName()
	assert.False(t, ok)
}

func TestHeaderIDCopies(t *testing.T) {
	h := NewHeader()
	id := make([]byte, 20)
	id[0] = 0xaa
	require.NoError(t, h.SetID(id))

	id[0] = 0xbb
	got, ok := h.ID()
	require.True(t, ok)
	assert.Equal(t, byte(0xaa), got[0])
}

func TestEntryEquality(t *testing.T) {
	var a, b Entry
	a.SetType(EntryKernel)
	a.SetSize(100)
	b.SetType(EntryKernel)
	b.SetSize(100)
	assert.True(t, a.Equal(&b))

	b.SetSize(101)
	assert.False(t, a.Equal(&b))

	b.SetSize(100)
	b.SetType(EntryRamdisk)
	assert.False(t, a.Equal(&b))

	a.Clear()
	_, ok := a.Type()
	assert.False(t, ok)
	_, ok = a.Size()
	assert.False(t, ok)

	var empty Entry
	assert.True(t, a.Equal(&empty))
}
