package crypto

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// SecureKey keeps a symmetric session key in locked, read-only memory.
type SecureKey struct {
	buf *memguard.LockedBuffer
}

// NewSecureKey moves key into a guarded buffer. The source slice is wiped.
func NewSecureKey(key []byte) (*SecureKey, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKeySize, AESKeySize, len(key))
	}
	buf := memguard.NewBufferFromBytes(key)
	buf.Freeze()
	return &SecureKey{buf: buf}, nil
}

// Bytes returns a view of the key. It must not be retained after Destroy.
func (k *SecureKey) Bytes() []byte {
	if k == nil || !k.buf.IsAlive() {
		return nil
	}
	return k.buf.Bytes()
}

// Destroy wipes and releases the key.
func (k *SecureKey) Destroy() {
	if k != nil {
		k.buf.Destroy()
	}
}
