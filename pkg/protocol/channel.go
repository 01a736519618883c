package protocol

import (
	"crypto/subtle"
	"fmt"
	"io"
	"unicode/utf8"

	"securecmd/pkg/crypto"
)

// Options selects the wire discipline. Both peers must agree.
type Options struct {
	Framer Framer

	// Integrity appends SHA-256(plaintext || key) after every ciphertext.
	Integrity bool
}

// DefaultOptions is length-prefixed framing with integrity digests.
func DefaultOptions() Options {
	return Options{Framer: LengthPrefixed{MaxSize: MaxFrameSize}, Integrity: true}
}

// Channel sends and receives encrypted text messages over one connection.
// It is not safe for concurrent use; the protocol is strictly sequential.
type Channel struct {
	rw   io.ReadWriter
	key  *crypto.SecureKey
	opts Options
}

// NewChannel binds a stream to an established session key.
func NewChannel(rw io.ReadWriter, key *crypto.SecureKey, opts Options) *Channel {
	if opts.Framer == nil {
		opts.Framer = LengthPrefixed{MaxSize: MaxFrameSize}
	}
	return &Channel{rw: rw, key: key, opts: opts}
}

// MaxMessageSize is the largest plaintext Send accepts, 0 if unbounded.
func (c *Channel) MaxMessageSize() int {
	max := c.opts.Framer.MaxPayload()
	if max <= 0 {
		return 0
	}
	return max / crypto.AESBlockSize * crypto.AESBlockSize
}

// Send encrypts msg and writes it, followed by its digest when integrity is on.
func (c *Channel) Send(msg string) error {
	payload := []byte(msg)
	if len(payload) > 0 && payload[len(payload)-1] == 0 {
		return ErrTrailingZero
	}

	key := c.key.Bytes()
	ciphertext, err := crypto.AESEncrypt(payload, key)
	if err != nil {
		return err
	}
	if err := c.opts.Framer.WriteFrame(c.rw, ciphertext); err != nil {
		return err
	}
	if !c.opts.Integrity {
		return nil
	}

	if c.opts.Framer.Acknowledged() {
		ack := make([]byte, len(Ack))
		if _, err := io.ReadFull(c.rw, ack); err != nil {
			return fmt.Errorf("read acknowledgement: %w: %w", ErrTransport, err)
		}
	}

	digest := crypto.KeyedDigest(payload, key)
	if _, err := c.rw.Write(digest[:]); err != nil {
		return fmt.Errorf("write digest: %w: %w", ErrTransport, err)
	}
	return nil
}

// Receive reads one message, verifies its digest when integrity is on and
// returns the decrypted text.
func (c *Channel) Receive() (string, error) {
	ciphertext, err := c.opts.Framer.ReadFrame(c.rw)
	if err != nil {
		return "", err
	}

	if c.opts.Integrity && c.opts.Framer.Acknowledged() {
		if _, err := c.rw.Write([]byte(Ack)); err != nil {
			return "", fmt.Errorf("write acknowledgement: %w: %w", ErrTransport, err)
		}
	}

	key := c.key.Bytes()
	plaintext, err := crypto.AESDecrypt(ciphertext, key)
	if err != nil {
		return "", err
	}

	if c.opts.Integrity {
		var received crypto.Digest
		if _, err := io.ReadFull(c.rw, received[:]); err != nil {
			return "", fmt.Errorf("read digest: %w: %w", ErrTransport, err)
		}
		expected := crypto.KeyedDigest(plaintext, key)
		if subtle.ConstantTimeCompare(expected[:], received[:]) != 1 {
			return "", ErrIntegrity
		}
	}

	if !utf8.Valid(plaintext) {
		return "", ErrDecoding
	}
	return string(plaintext), nil
}

// Close destroys the session key. The underlying stream is owned by the caller.
func (c *Channel) Close() {
	c.key.Destroy()
}
