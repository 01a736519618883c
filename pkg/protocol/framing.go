package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// DefaultBufferSize is the single-read buffer size.
	DefaultBufferSize = 1024

	// MaxFrameSize bounds length-prefixed frames.
	MaxFrameSize = 16 << 20

	FramingSingleRead     = "single-read"
	FramingLengthPrefixed = "length-prefixed"
)

// Framer delimits raw ciphertext on the byte stream.
type Framer interface {
	WriteFrame(w io.Writer, payload []byte) error
	ReadFrame(r io.Reader) ([]byte, error)

	// Acknowledged reports whether the receiver must acknowledge a frame
	// before the sender writes its digest.
	Acknowledged() bool

	// MaxPayload is the largest frame the peer can read, 0 if unbounded.
	MaxPayload() int
}

// NewFramer returns the framer registered under name.
func NewFramer(name string, bufferSize int) (Framer, error) {
	switch name {
	case FramingSingleRead:
		if bufferSize <= 0 {
			bufferSize = DefaultBufferSize
		}
		return SingleRead{BufferSize: bufferSize}, nil
	case FramingLengthPrefixed, "":
		return LengthPrefixed{MaxSize: MaxFrameSize}, nil
	}
	return nil, fmt.Errorf("unknown framing %q", name)
}

// SingleRead writes frames raw and reads each one with a single Read call.
// It relies on the peers alternating so frames never coalesce.
type SingleRead struct {
	BufferSize int
}

func (f SingleRead) WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyMessage
	}
	if len(payload) > f.BufferSize {
		return fmt.Errorf("%w: %d bytes exceeds read buffer of %d", ErrFrameTooLarge, len(payload), f.BufferSize)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame: %w: %w", ErrTransport, err)
	}
	return nil
}

func (f SingleRead) ReadFrame(r io.Reader) ([]byte, error) {
	buf := make([]byte, f.BufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil {
			return nil, fmt.Errorf("read frame: %w: %w", ErrTransport, err)
		}
	}
}

func (f SingleRead) Acknowledged() bool { return true }

func (f SingleRead) MaxPayload() int { return f.BufferSize }

// LengthPrefixed precedes each frame with its 4-byte big-endian length.
type LengthPrefixed struct {
	MaxSize int
}

func (f LengthPrefixed) WriteFrame(w io.Writer, payload []byte) error {
	if f.MaxSize > 0 && len(payload) > f.MaxSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, len(payload), f.MaxSize)
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w: %w", ErrTransport, err)
	}
	return nil
}

func (f LengthPrefixed) ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w: %w", ErrTransport, err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if f.MaxSize > 0 && int64(size) > int64(f.MaxSize) {
		return nil, fmt.Errorf("%w: peer announced %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w: %w", ErrTransport, err)
	}
	return payload, nil
}

func (f LengthPrefixed) Acknowledged() bool { return false }

func (f LengthPrefixed) MaxPayload() int { return f.MaxSize }
