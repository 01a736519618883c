// Package crypto implements 32-bit textbook RSA, AES-128 and SHA-256 from
// first principles, plus the randomness and secret-memory helpers they need.
package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// PrimeBits is the length of each RSA prime. The modulus is 32 bits,
	// far too small for real security; kept for wire compatibility.
	PrimeBits = 16

	// PrimeErrorBound is the accepted false-prime probability per prime.
	PrimeErrorBound = 1e-6

	// PublicKeySize is the wire size of a PublicKey.
	PublicKeySize = 8

	// RSABlockSize is the number of plaintext bytes per RSA block.
	RSABlockSize = 4
)

// ErrInvalidPublicKey is returned when a serialized public key cannot be used.
var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is an RSA public key over a 32-bit modulus.
type PublicKey struct {
	Modulus  uint32
	Exponent uint32
}

// Bytes serializes the key as modulus then exponent, both big-endian.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeySize)
	binary.BigEndian.PutUint32(b[0:4], k.Modulus)
	binary.BigEndian.PutUint32(b[4:8], k.Exponent)
	return b
}

// ParsePublicKey decodes the 8-byte wire form of a PublicKey.
func ParsePublicKey(b []byte) (PublicKey, error) {
	if len(b) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(b))
	}
	k := PublicKey{
		Modulus:  binary.BigEndian.Uint32(b[0:4]),
		Exponent: binary.BigEndian.Uint32(b[4:8]),
	}
	if k.Modulus < 2 {
		return PublicKey{}, fmt.Errorf("%w: modulus %d", ErrInvalidPublicKey, k.Modulus)
	}
	return k, nil
}

func (k PublicKey) String() string {
	return fmt.Sprintf("PublicKey{n=%d, e=%d}", k.Modulus, k.Exponent)
}

// PrivateKey holds the RSA primes, the private exponent and the public half.
type PrivateKey struct {
	P      uint32
	Q      uint32
	D      uint32
	Public PublicKey
}

// NewPrivateKey builds a key from known components.
func NewPrivateKey(p, q, d uint32, public PublicKey) *PrivateKey {
	return &PrivateKey{P: p, Q: q, D: d, Public: public}
}

// String hides the private components.
func (k *PrivateKey) String() string {
	return fmt.Sprintf("PrivateKey{%s}", k.Public)
}

// selfCheckProbes are round-tripped through every generated key.
var selfCheckProbes = []uint32{2, 0x41424344, 0x7fffffff}

// GenerateKey draws two distinct 16-bit primes whose product fills 32 bits and
// derives the exponents. It loops until the key round-trips its probes.
func GenerateKey(r Random) *PrivateKey {
	for {
		p := GeneratePrime(r, PrimeBits, PrimeErrorBound)
		q := GeneratePrime(r, PrimeBits, PrimeErrorBound)
		if p == q {
			continue
		}

		n := uint64(p) * uint64(q)
		if n>>31 != 1 {
			continue
		}

		key, err := deriveKey(p, q)
		if err != nil {
			continue
		}
		if !key.selfCheck() {
			continue
		}
		return key
	}
}

func deriveKey(p, q uint32) (*PrivateKey, error) {
	n := p * q
	totient := (p - 1) * (q - 1)

	e, err := FindCoprime(totient)
	if err != nil {
		return nil, err
	}
	d, err := ModularInverse(e, totient)
	if err != nil {
		return nil, err
	}

	return NewPrivateKey(p, q, d, PublicKey{Modulus: n, Exponent: e}), nil
}

func (k *PrivateKey) selfCheck() bool {
	for _, probe := range selfCheckProbes {
		if probe >= k.Public.Modulus {
			continue
		}
		if DecryptBlock(EncryptBlock(probe, k.Public), k) != probe {
			return false
		}
	}
	return true
}

// EncryptBlock computes value^e mod n.
func EncryptBlock(value uint32, key PublicKey) uint32 {
	return ModPow(value, key.Exponent, key.Modulus)
}

// DecryptBlock computes value^d mod n.
func DecryptBlock(value uint32, key *PrivateKey) uint32 {
	return ModPow(value, key.D, key.Public.Modulus)
}

// RSAEncrypt packs data into 4-byte big-endian blocks, encrypts each block
// independently and strips trailing zero bytes from the result.
// Blocks are not chained: equal plaintext blocks give equal ciphertext.
func RSAEncrypt(data []byte, key PublicKey) []byte {
	return transformWords(data, func(v uint32) uint32 { return EncryptBlock(v, key) })
}

// RSADecrypt reverses RSAEncrypt. Trailing zero bytes of the plaintext are
// indistinguishable from padding and are lost.
func RSADecrypt(data []byte, key *PrivateKey) []byte {
	return transformWords(data, func(v uint32) uint32 { return DecryptBlock(v, key) })
}

func transformWords(data []byte, fn func(uint32) uint32) []byte {
	blocks := SplitBlocks(data, RSABlockSize)
	out := make([]byte, 0, len(blocks)*RSABlockSize)
	var word [RSABlockSize]byte
	for _, block := range blocks {
		binary.BigEndian.PutUint32(word[:], fn(binary.BigEndian.Uint32(block)))
		out = append(out, word[:]...)
	}
	return StripTrailingZeros(out)
}
