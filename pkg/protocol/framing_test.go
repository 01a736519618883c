package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFramer(t *testing.T) {
	f, err := NewFramer("", 0)
	require.NoError(t, err)
	assert.IsType(t, LengthPrefixed{}, f)
	assert.False(t, f.Acknowledged())

	f, err = NewFramer(FramingSingleRead, 0)
	require.NoError(t, err)
	assert.Equal(t, SingleRead{BufferSize: DefaultBufferSize}, f)
	assert.True(t, f.Acknowledged())
	assert.Equal(t, DefaultBufferSize, f.MaxPayload())

	f, err = NewFramer(FramingSingleRead, 4096)
	require.NoError(t, err)
	assert.Equal(t, 4096, f.MaxPayload())

	_, err = NewFramer("carrier-pigeon", 0)
	assert.Error(t, err)
}

func TestLengthPrefixedRoundTrip(t *testing.T) {
	f := LengthPrefixed{MaxSize: MaxFrameSize}
	var buf bytes.Buffer

	frames := [][]byte{
		[]byte("first"),
		{},
		bytes.Repeat([]byte{0xAB}, 5000),
	}
	for _, frame := range frames {
		require.NoError(t, f.WriteFrame(&buf, frame))
	}
	for _, want := range frames {
		got, err := f.ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, len(want), len(got))
		assert.True(t, bytes.Equal(want, got))
	}

	_, err := f.ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestLengthPrefixedLimits(t *testing.T) {
	f := LengthPrefixed{MaxSize: 10}

	err := f.WriteFrame(&bytes.Buffer{}, make([]byte, 11))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 100)
	_, err = f.ReadFrame(bytes.NewReader(header[:]))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	binary.BigEndian.PutUint32(header[:], 8)
	_, err = f.ReadFrame(bytes.NewReader(append(header[:], 1, 2, 3)))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSingleRead(t *testing.T) {
	f := SingleRead{BufferSize: 32}
	var buf bytes.Buffer

	require.NoError(t, f.WriteFrame(&buf, []byte("hello")))
	got, err := f.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	assert.ErrorIs(t, f.WriteFrame(&buf, nil), ErrEmptyMessage)
	assert.ErrorIs(t, f.WriteFrame(&buf, make([]byte, 33)), ErrFrameTooLarge)

	_, err = f.ReadFrame(&bytes.Buffer{})
	assert.ErrorIs(t, err, ErrTransport)
}
