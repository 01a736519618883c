package crypto

import (
	"errors"
	"fmt"
)

const (
	// AESBlockSize is the size of a cipher block.
	AESBlockSize = 16

	// AESKeySize is the size of the symmetric key (AES-128).
	AESKeySize = 16

	aesRounds = 10
)

// ErrInvalidKeySize is returned for symmetric keys that are not 16 bytes.
var ErrInvalidKeySize = errors.New("invalid symmetric key size")

// Block is one 16-byte cipher block, column-major as in FIPS-197.
type Block [AESBlockSize]byte

// KeySchedule is the expanded AES-128 key: 11 round keys of 4 words.
type KeySchedule [4 * (aesRounds + 1)]uint32

var (
	sbox    [256]byte
	invSbox [256]byte
	rcon    = [aesRounds]uint32{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80, 0x1b, 0x36}
)

func init() {
	for i := 0; i < 256; i++ {
		x := byte(i)
		inv := gfInverse(x)
		s := inv ^ rotl8(inv, 1) ^ rotl8(inv, 2) ^ rotl8(inv, 3) ^ rotl8(inv, 4) ^ 0x63
		sbox[x] = s
		invSbox[s] = x
	}
}

func rotl8(x byte, n uint) byte {
	return x<<n | x>>(8-n)
}

// gfMul multiplies in GF(2^8) modulo x^8 + x^4 + x^3 + x + 1.
func gfMul(a, b byte) byte {
	var p byte
	for b != 0 {
		if b&1 != 0 {
			p ^= a
		}
		hi := a & 0x80
		a <<= 1
		if hi != 0 {
			a ^= 0x1b
		}
		b >>= 1
	}
	return p
}

// gfInverse returns x^254, the multiplicative inverse (0 maps to 0).
func gfInverse(x byte) byte {
	if x == 0 {
		return 0
	}
	result := byte(1)
	base := x
	for e := 254; e > 0; e >>= 1 {
		if e&1 == 1 {
			result = gfMul(result, base)
		}
		base = gfMul(base, base)
	}
	return result
}

func subWord(w uint32) uint32 {
	return uint32(sbox[w>>24])<<24 | uint32(sbox[w>>16&0xff])<<16 |
		uint32(sbox[w>>8&0xff])<<8 | uint32(sbox[w&0xff])
}

// ExpandKey derives the round keys from a 16-byte key.
func ExpandKey(key []byte) (*KeySchedule, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKeySize, AESKeySize, len(key))
	}

	var ks KeySchedule
	for i := 0; i < 4; i++ {
		ks[i] = uint32(key[4*i])<<24 | uint32(key[4*i+1])<<16 | uint32(key[4*i+2])<<8 | uint32(key[4*i+3])
	}
	for i := 4; i < len(ks); i++ {
		temp := ks[i-1]
		if i%4 == 0 {
			temp = subWord(temp<<8|temp>>24) ^ rcon[i/4-1]<<24
		}
		ks[i] = ks[i-4] ^ temp
	}

	return &ks, nil
}

func (ks *KeySchedule) addRoundKey(s *Block, round int) {
	for c := 0; c < 4; c++ {
		w := ks[4*round+c]
		s[4*c] ^= byte(w >> 24)
		s[4*c+1] ^= byte(w >> 16)
		s[4*c+2] ^= byte(w >> 8)
		s[4*c+3] ^= byte(w)
	}
}

func subBytes(s *Block, table *[256]byte) {
	for i := range s {
		s[i] = table[s[i]]
	}
}

func shiftRows(s *Block) {
	var t Block
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			t[r+4*c] = s[r+4*((c+r)%4)]
		}
	}
	*s = t
}

func invShiftRows(s *Block) {
	var t Block
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			t[r+4*((c+r)%4)] = s[r+4*c]
		}
	}
	*s = t
}

func mixColumns(s *Block) {
	for c := 0; c < 4; c++ {
		a0, a1, a2, a3 := s[4*c], s[4*c+1], s[4*c+2], s[4*c+3]
		s[4*c] = gfMul(a0, 2) ^ gfMul(a1, 3) ^ a2 ^ a3
		s[4*c+1] = a0 ^ gfMul(a1, 2) ^ gfMul(a2, 3) ^ a3
		s[4*c+2] = a0 ^ a1 ^ gfMul(a2, 2) ^ gfMul(a3, 3)
		s[4*c+3] = gfMul(a0, 3) ^ a1 ^ a2 ^ gfMul(a3, 2)
	}
}

func invMixColumns(s *Block) {
	for c := 0; c < 4; c++ {
		a0, a1, a2, a3 := s[4*c], s[4*c+1], s[4*c+2], s[4*c+3]
		s[4*c] = gfMul(a0, 14) ^ gfMul(a1, 11) ^ gfMul(a2, 13) ^ gfMul(a3, 9)
		s[4*c+1] = gfMul(a0, 9) ^ gfMul(a1, 14) ^ gfMul(a2, 11) ^ gfMul(a3, 13)
		s[4*c+2] = gfMul(a0, 13) ^ gfMul(a1, 9) ^ gfMul(a2, 14) ^ gfMul(a3, 11)
		s[4*c+3] = gfMul(a0, 11) ^ gfMul(a1, 13) ^ gfMul(a2, 9) ^ gfMul(a3, 14)
	}
}

// Encrypt transforms one block.
func (ks *KeySchedule) Encrypt(in Block) Block {
	s := in
	ks.addRoundKey(&s, 0)
	for round := 1; round < aesRounds; round++ {
		subBytes(&s, &sbox)
		shiftRows(&s)
		mixColumns(&s)
		ks.addRoundKey(&s, round)
	}
	subBytes(&s, &sbox)
	shiftRows(&s)
	ks.addRoundKey(&s, aesRounds)
	return s
}

// Decrypt inverts Encrypt.
func (ks *KeySchedule) Decrypt(in Block) Block {
	s := in
	ks.addRoundKey(&s, aesRounds)
	for round := aesRounds - 1; round > 0; round-- {
		invShiftRows(&s)
		subBytes(&s, &invSbox)
		ks.addRoundKey(&s, round)
		invMixColumns(&s)
	}
	invShiftRows(&s)
	subBytes(&s, &invSbox)
	ks.addRoundKey(&s, 0)
	return s
}

// AESEncrypt chunks data into zero-padded 16-byte blocks and encrypts each one
// independently (ECB). The ciphertext is always a whole number of blocks.
func AESEncrypt(data, key []byte) ([]byte, error) {
	ks, err := ExpandKey(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(data)+AESBlockSize)
	for _, chunk := range SplitBlocks(data, AESBlockSize) {
		var b Block
		copy(b[:], chunk)
		ct := ks.Encrypt(b)
		out = append(out, ct[:]...)
	}
	return out, nil
}

// AESDecrypt decrypts each block and strips the trailing zero padding. A
// ciphertext that is not block aligned is zero-padded first.
func AESDecrypt(data, key []byte) ([]byte, error) {
	ks, err := ExpandKey(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(data)+AESBlockSize)
	for _, chunk := range SplitBlocks(data, AESBlockSize) {
		var b Block
		copy(b[:], chunk)
		pt := ks.Decrypt(b)
		out = append(out, pt[:]...)
	}
	return StripTrailingZeros(out), nil
}
