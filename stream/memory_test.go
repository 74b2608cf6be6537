package stream

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySparseWriteZeroFills(t *testing.T) {
	m := NewMemory()

	_, err := m.Write([]byte("abc"))
	require.NoError(t, err)

	// Seek well past EOF; the gap must come back as zeros.
	_, err = m.Seek(10, io.SeekStart)
	require.NoError(t, err)
	_, err = m.Write([]byte("xyz"))
	require.NoError(t, err)

	want := append([]byte("abc"), 0, 0, 0, 0, 0, 0, 0)
	want = append(want, []byte("xyz")...)
	assert.Equal(t, want, m.Bytes())
	assert.Equal(t, 13, m.Len())
}

func TestMemoryReadAtEOF(t *testing.T) {
	m := NewMemoryBuffer([]byte("abc"))

	buf := make([]byte, 8)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = m.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestMemorySeekWhence(t *testing.T) {
	m := NewMemoryBuffer([]byte("0123456789"))

	pos, err := m.Seek(4, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)

	pos, err = m.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	pos, err = m.Seek(-3, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos)

	buf := make([]byte, 3)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "789", string(buf[:n]))

	_, err = m.Seek(-1, io.SeekStart)
	assert.Error(t, err)

	assert.False(t, m.IsFatal())
}

func TestMemoryOverwrite(t *testing.T) {
	m := NewMemoryBuffer([]byte("aaaaaaaa"))

	_, err := m.Seek(2, io.SeekStart)
	require.NoError(t, err)
	_, err = m.Write([]byte("bb"))
	require.NoError(t, err)

	assert.Equal(t, []byte("aabbaaaa"), m.Bytes())

	// Overwrite running past the end extends the buffer.
	_, err = m.Seek(6, io.SeekStart)
	require.NoError(t, err)
	_, err = m.Write([]byte("cccc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("aabbaacccc"), m.Bytes())
}
