package bootimg

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/122slavo122/DualBootPatcher/stream"
)

func encodeLokiHeader(t *testing.T, hdr *lokiHeader) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	return buf.Bytes()
}

// buildLokiOldImage constructs the scenario image: LOKI header with no
// recorded originals, kernel image header carrying the size, gzip signature
// marking the ramdisk, aboot copy in the last 0x200 bytes.
func buildLokiOldImage(t *testing.T) []byte {
	t.Helper()

	img := make([]byte, 10240)

	ahdr := androidHeader{
		KernelAddr:  0x10008000,
		RamdiskAddr: 0x11000000,
		KernelSize:  0x7000, // scrambled by the patch
		RamdiskSize: 0x3000,
		PageSize:    2048,
	}
	copy(ahdr.Magic[:], BootMagic)
	copy(img, ahdr.encode())

	var lhdr lokiHeader
	copy(lhdr.Magic[:], LokiMagic)
	copy(img[LokiMagicOffset:], encodeLokiHeader(t, &lhdr))

	// Kernel payload with the Linux image header size field at +0x2c.
	for i := 2048; i < 2048+4096; i++ {
		img[i] = 0x55
	}
	binary.LittleEndian.PutUint32(img[2048+0x2c:], 4096)

	// Ramdisk: gzip deflate signature with empty flags at the page boundary
	// after the kernel.
	copy(img[6144:], []byte{0x1f, 0x8b, 0x08, 0x00})
	for i := 6148; i < 10240-0x200; i++ {
		img[i] = 0x66
	}

	return img
}

func TestLokiOldStyleRecovery(t *testing.T) {
	mem := stream.NewMemoryBuffer(buildLokiOldImage(t))

	r := NewReader()
	require.NoError(t, r.EnableFormatAll())
	require.NoError(t, r.Open(mem))

	format, err := r.Format()
	require.NoError(t, err)
	assert.Equal(t, FormatLoki, format)

	hdr, err := r.ReadHeader()
	require.NoError(t, err)

	v, ok := hdr.RamdiskAddress()
	require.True(t, ok)
	assert.Equal(t, uint32(0x12000000), v)
	// kernel_addr - default kernel offset + default tags offset
	v, ok = hdr.KernelTagsAddress()
	require.True(t, ok)
	assert.Equal(t, uint32(0x10000100), v)
	v, ok = hdr.KernelAddress()
	require.True(t, ok)
	assert.Equal(t, uint32(0x10008000), v)

	entry, err := r.ReadEntry()
	require.NoError(t, err)
	typ, _ := entry.Type()
	size, _ := entry.Size()
	assert.Equal(t, EntryKernel, typ)
	assert.Equal(t, uint64(4096), size)

	entry, err = r.ReadEntry()
	require.NoError(t, err)
	typ, _ = entry.Type()
	size, _ = entry.Size()
	assert.Equal(t, EntryRamdisk, typ)
	// file length - aboot copy - gzip offset
	assert.Equal(t, uint64(10240-512-6144), size)

	// The ramdisk segment starts at the gzip signature.
	buf := make([]byte, 4)
	n, err := r.ReadData(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	assert.Equal(t, []byte{0x1f, 0x8b, 0x08, 0x00}, buf)

	_, err = r.ReadEntry()
	assert.ErrorIs(t, err, ErrEndOfEntries)
}

// buildLokiNewImage constructs the scenario image: original sizes and the
// ramdisk address preserved in the LOKI header, address also patched into the
// shellcode stub near the end of the file.
func buildLokiNewImage(t *testing.T, shellcodeOffset int) []byte {
	t.Helper()

	img := make([]byte, 10240)

	ahdr := androidHeader{
		KernelAddr:  0x10008000,
		RamdiskAddr: 0x11000000,
		KernelSize:  0x7000,
		RamdiskSize: 0x3000,
		PageSize:    2048,
	}
	copy(ahdr.Magic[:], BootMagic)
	copy(img, ahdr.encode())

	lhdr := lokiHeader{
		OrigKernelSize:  4096,
		OrigRamdiskSize: 3584,
		RamdiskAddr:     0x11000000,
	}
	copy(lhdr.Magic[:], LokiMagic)
	copy(img[LokiMagicOffset:], encodeLokiHeader(t, &lhdr))

	for i := 2048; i < 2048+4096; i++ {
		img[i] = 0x55
	}
	for i := 6144; i < 6144+3584; i++ {
		img[i] = 0x66
	}

	copy(img[shellcodeOffset:], lokiShellcode)
	binary.LittleEndian.PutUint32(
		img[shellcodeOffset+lokiShellcodeSize-5:], 0x11000000)

	return img
}

func TestLokiNewStyleRecovery(t *testing.T) {
	mem := stream.NewMemoryBuffer(buildLokiNewImage(t, 10240-128))

	r := NewReader()
	require.NoError(t, r.EnableFormatAll())
	require.NoError(t, r.Open(mem))

	format, err := r.Format()
	require.NoError(t, err)
	assert.Equal(t, FormatLoki, format)

	hdr, err := r.ReadHeader()
	require.NoError(t, err)

	v, ok := hdr.RamdiskAddress()
	require.True(t, ok)
	assert.Equal(t, uint32(0x11000000), v)

	entry, err := r.ReadEntry()
	require.NoError(t, err)
	size, _ := entry.Size()
	assert.Equal(t, uint64(4096), size)

	data := make([]byte, 4096)
	read := 0
	for read < len(data) {
		n, err := r.ReadData(data[read:])
		require.NoError(t, err)
		require.NotZero(t, n)
		read += n
	}
	assert.Equal(t, bytes.Repeat([]byte{0x55}, 4096), data)

	entry, err = r.ReadEntry()
	require.NoError(t, err)
	typ, _ := entry.Type()
	size, _ = entry.Size()
	assert.Equal(t, EntryRamdisk, typ)
	assert.Equal(t, uint64(3584), size)

	_, err = r.ReadEntry()
	assert.ErrorIs(t, err, ErrEndOfEntries)
}

func TestLokiShellcodeLastMatchWins(t *testing.T) {
	// Two copies of the stub; only the later one carries the real address.
	img := buildLokiNewImage(t, 10240-128)
	copy(img[9000:], lokiShellcode[:lokiShellcodeSize-9])
	binary.LittleEndian.PutUint32(img[9000+lokiShellcodeSize-5:], 0xdeadbeef)
	copy(img[9600:], lokiShellcode[:lokiShellcodeSize-9])
	binary.LittleEndian.PutUint32(img[9600+lokiShellcodeSize-5:], 0x11000000)

	// Wipe the original stub so the two planted ones are the only matches.
	for i := 10240 - 128; i < 10240; i++ {
		img[i] = 0
	}

	mem := stream.NewMemoryBuffer(img)

	r := NewReader()
	require.NoError(t, r.EnableFormat(FormatLoki))
	require.NoError(t, r.Open(mem))

	hdr, err := r.ReadHeader()
	require.NoError(t, err)

	v, ok := hdr.RamdiskAddress()
	require.True(t, ok)
	assert.Equal(t, uint32(0x11000000), v)
}

func TestLokiShellcodeMissing(t *testing.T) {
	img := buildLokiNewImage(t, 10240-128)
	for i := 10240 - 128; i < 10240; i++ {
		img[i] = 0
	}

	r := NewReader()
	require.NoError(t, r.EnableFormat(FormatLoki))
	require.NoError(t, r.Open(stream.NewMemoryBuffer(img)))

	_, err := r.ReadHeader()
	assert.ErrorIs(t, err, ErrShellcodeNotFound)
	assert.ErrorIs(t, r.Err(), ErrShellcodeNotFound)
}

func TestLokiGzipFlagPreference(t *testing.T) {
	// A flags=0x00 match ahead of a flags=0x08 match: the 0x08 one wins.
	img := buildLokiOldImage(t)
	copy(img[8192:], []byte{0x1f, 0x8b, 0x08, 0x08})

	r := NewReader()
	require.NoError(t, r.EnableFormat(FormatLoki))
	require.NoError(t, r.Open(stream.NewMemoryBuffer(img)))

	_, err := r.ReadHeader()
	require.NoError(t, err)

	_, err = r.ReadEntry()
	require.NoError(t, err)
	entry, err := r.ReadEntry()
	require.NoError(t, err)
	size, _ := entry.Size()
	// Ramdisk now starts at the preferred signature.
	assert.Equal(t, uint64(10240-512-8192), size)
}

func TestLokiHeaderMissing(t *testing.T) {
	// Too short for a Loki header at 0x400.
	short := make([]byte, 256)

	lr := newLokiReader()
	bid, err := lr.bid(stream.NewMemoryBuffer(short), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, bid)

	// Valid length, wrong magic.
	noMagic := make([]byte, 4096)
	lr = newLokiReader()
	bid, err = lr.bid(stream.NewMemoryBuffer(noMagic), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, bid)
}
