package protocol

import (
	"fmt"
	"io"

	"securecmd/pkg/crypto"
)

// HandshakeConfig parameterises one side of the key exchange.
type HandshakeConfig struct {
	// Random drives RSA key generation and the key half. Defaults to crypto/rand.
	Random crypto.Random

	// KeyHalf overrides the locally generated key half.
	KeyHalf string
}

func (c HandshakeConfig) random() crypto.Random {
	if c.Random == nil {
		return crypto.SystemRandom{}
	}
	return c.Random
}

// handshakeState lives only for the duration of the exchange.
type handshakeState struct {
	local     *crypto.PrivateKey
	localHalf string
	peer      crypto.PublicKey
	peerHalf  string
}

// ServerHandshake runs the server side of the key exchange and returns the
// assembled session key.
func ServerHandshake(rw io.ReadWriter, cfg HandshakeConfig) (*crypto.SecureKey, error) {
	st, err := exchange(rw, cfg)
	if err != nil {
		return nil, err
	}
	return assembleSecure(st.localHalf, st.peerHalf)
}

// ClientHandshake runs the client side of the key exchange.
func ClientHandshake(rw io.ReadWriter, cfg HandshakeConfig) (*crypto.SecureKey, error) {
	st, err := exchange(rw, cfg)
	if err != nil {
		return nil, err
	}
	return assembleSecure(st.peerHalf, st.localHalf)
}

// exchange is symmetric: each side publishes its RSA key, then sends its key
// half encrypted under the peer's key. The public keys travel unauthenticated.
func exchange(rw io.ReadWriter, cfg HandshakeConfig) (*handshakeState, error) {
	r := cfg.random()
	st := &handshakeState{
		local:     crypto.GenerateKey(r),
		localHalf: cfg.KeyHalf,
	}
	if st.localHalf == "" {
		st.localHalf = crypto.RandomString(r, KeyHalfSize)
	}
	if err := validateKeyHalf(st.localHalf); err != nil {
		return nil, err
	}

	if _, err := rw.Write(st.local.Public.Bytes()); err != nil {
		return nil, fmt.Errorf("send public key: %w: %w", ErrTransport, err)
	}

	peerKey := make([]byte, crypto.PublicKeySize)
	if _, err := io.ReadFull(rw, peerKey); err != nil {
		return nil, fmt.Errorf("receive public key: %w: %w", ErrTransport, err)
	}
	peer, err := crypto.ParsePublicKey(peerKey)
	if err != nil {
		return nil, err
	}
	st.peer = peer

	// The ciphertext is sent block aligned so the reader knows its size.
	wire := make([]byte, KeyHalfSize)
	copy(wire, crypto.RSAEncrypt([]byte(st.localHalf), st.peer))
	if _, err := rw.Write(wire); err != nil {
		return nil, fmt.Errorf("send key half: %w: %w", ErrTransport, err)
	}

	peerCipher := make([]byte, KeyHalfSize)
	if _, err := io.ReadFull(rw, peerCipher); err != nil {
		return nil, fmt.Errorf("receive key half: %w: %w", ErrTransport, err)
	}
	st.peerHalf = string(crypto.RSADecrypt(peerCipher, st.local))

	return st, nil
}

func validateKeyHalf(half string) error {
	if len(half) != KeyHalfSize {
		return fmt.Errorf("%w: key half is %d bytes, need %d", ErrKeyAssembly, len(half), KeyHalfSize)
	}
	for i := 0; i < len(half); i++ {
		if half[i] == 0 || half[i] >= 0x80 {
			return fmt.Errorf("%w: key half must be non-NUL 7-bit ASCII", ErrKeyAssembly)
		}
	}
	return nil
}

// AssembleKey concatenates the server half and the client half.
func AssembleKey(serverHalf, clientHalf string) ([]byte, error) {
	key := []byte(serverHalf + clientHalf)
	if len(key) != crypto.AESKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrKeyAssembly, len(key), crypto.AESKeySize)
	}
	return key, nil
}

func assembleSecure(serverHalf, clientHalf string) (*crypto.SecureKey, error) {
	key, err := AssembleKey(serverHalf, clientHalf)
	if err != nil {
		return nil, err
	}
	return crypto.NewSecureKey(key)
}
