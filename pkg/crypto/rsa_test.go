package crypto

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixed key from the original key generator's test fixture.
func fixedKey() *PrivateKey {
	return NewPrivateKey(56519, 43117, 1462098053, PublicKey{Modulus: 2436929723, Exponent: 5})
}

func TestPublicKeyBytes(t *testing.T) {
	key := PublicKey{Modulus: 0x91408a3b, Exponent: 5}
	b := key.Bytes()
	assert.Equal(t, []byte{0x91, 0x40, 0x8a, 0x3b, 0x00, 0x00, 0x00, 0x05}, b)

	parsed, err := ParsePublicKey(b)
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestParsePublicKey_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"nil", nil},
		{"short", []byte{1, 2, 3}},
		{"long", make([]byte, 9)},
		{"zero modulus", make([]byte, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePublicKey(tt.input)
			assert.ErrorIs(t, err, ErrInvalidPublicKey)
		})
	}
}

func TestGenerateKey(t *testing.T) {
	r := NewSeededRandom(8)
	for i := 0; i < 20; i++ {
		key := GenerateKey(r)

		require.NotEqual(t, key.P, key.Q)
		require.True(t, big.NewInt(int64(key.P)).ProbablyPrime(20))
		require.True(t, big.NewInt(int64(key.Q)).ProbablyPrime(20))
		require.Equal(t, key.P*key.Q, key.Public.Modulus)
		require.Equal(t, uint32(1), key.Public.Modulus>>31, "modulus %#x does not fill 32 bits", key.Public.Modulus)

		totient := uint64(key.P-1) * uint64(key.Q-1)
		require.Equal(t, uint64(1), uint64(key.Public.Exponent)*uint64(key.D)%totient)
	}
}

func TestRSABlockRoundTrip(t *testing.T) {
	key := fixedKey()
	for _, v := range []uint32{0, 1, 2, 0x41424344, key.Public.Modulus - 1} {
		assert.Equal(t, v, DecryptBlock(EncryptBlock(v, key.Public), key))
	}
}

func TestRSAMessageRoundTrip(t *testing.T) {
	r := NewSeededRandom(9)
	keys := []*PrivateKey{fixedKey(), GenerateKey(r), GenerateKey(r)}

	messages := []string{
		"ABCDEFGH",
		"12345678",
		"Hello, world!",
		"a longer message that spans several four byte blocks.",
	}

	for _, key := range keys {
		for _, msg := range messages {
			ct := RSAEncrypt([]byte(msg), key.Public)
			pt := RSADecrypt(ct, key)
			assert.Equal(t, msg, string(pt), "key %s", key)
		}
	}
}

func TestRSAMessageRoundTrip_RandomAligned(t *testing.T) {
	r := NewSeededRandom(10)
	key := GenerateKey(r)
	for i := 0; i < 200; i++ {
		msg := []byte(RandomString(r, 4*(1+int(r.Uint32n(16)))))
		assert.True(t, bytes.Equal(msg, RSADecrypt(RSAEncrypt(msg, key.Public), key)))
	}
}

func TestRSAEncrypt_ECB(t *testing.T) {
	key := fixedKey()
	ct := RSAEncrypt([]byte("ABCDABCDxyz!"), key.Public)
	require.Greater(t, len(ct), 8)
	assert.Equal(t, ct[0:4], ct[4:8], "identical plaintext blocks encrypt identically")
}

func TestRSADecrypt_TrailingZerosAreStripped(t *testing.T) {
	key := fixedKey()
	msg := []byte{'a', 'b', 'c', 'd', 'e', 0}
	pt := RSADecrypt(RSAEncrypt(msg, key.Public), key)
	assert.Equal(t, []byte("abcde"), pt)
}

func TestPrivateKeyStringHidesSecrets(t *testing.T) {
	s := fixedKey().String()
	assert.NotContains(t, s, "1462098053")
	assert.Contains(t, s, "2436929723")
}
