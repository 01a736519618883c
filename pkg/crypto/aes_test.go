package crypto

import (
	"bytes"
	stdaes "crypto/aes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestSbox(t *testing.T) {
	assert.Equal(t, byte(0x63), sbox[0x00])
	assert.Equal(t, byte(0x7c), sbox[0x01])
	assert.Equal(t, byte(0xed), sbox[0x53])
	assert.Equal(t, byte(0x16), sbox[0xff])
	for i := 0; i < 256; i++ {
		require.Equal(t, byte(i), invSbox[sbox[i]])
	}
}

func TestExpandKey(t *testing.T) {
	// FIPS-197 appendix A.1
	ks, err := ExpandKey(mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2b7e1516), ks[0])
	assert.Equal(t, uint32(0xa0fafe17), ks[4])
	assert.Equal(t, uint32(0xb6630ca6), ks[43])

	_, err = ExpandKey([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestBlockVector(t *testing.T) {
	// FIPS-197 appendix C.1
	ks, err := ExpandKey(mustHex(t, "000102030405060708090a0b0c0d0e0f"))
	require.NoError(t, err)

	var in Block
	copy(in[:], mustHex(t, "00112233445566778899aabbccddeeff"))
	ct := ks.Encrypt(in)
	assert.Equal(t, "69c4e0d86a7b0430d8cdb78070b4c55a", hex.EncodeToString(ct[:]))

	pt := ks.Decrypt(ct)
	assert.Equal(t, in, pt)
}

func TestBlockMatchesStdlib(t *testing.T) {
	r := NewSeededRandom(11)
	for i := 0; i < 200; i++ {
		key := make([]byte, AESKeySize)
		var in Block
		for j := range key {
			key[j] = byte(r.Uint32())
			in[j] = byte(r.Uint32())
		}

		ks, err := ExpandKey(key)
		require.NoError(t, err)
		ref, err := stdaes.NewCipher(key)
		require.NoError(t, err)

		want := make([]byte, AESBlockSize)
		ref.Encrypt(want, in[:])
		got := ks.Encrypt(in)
		require.Equal(t, want, got[:])
		require.Equal(t, in, ks.Decrypt(got))
	}
}

func TestAESMessageRoundTrip(t *testing.T) {
	key := []byte("ABCDEFGH12345678")
	messages := []string{
		"a",
		"exactly16bytes!!",
		"test me, I want to see whether multi-block messages survive",
		"ça marche avec de l'UTF-8 aussi",
	}

	for _, msg := range messages {
		ct, err := AESEncrypt([]byte(msg), key)
		require.NoError(t, err)
		assert.Zero(t, len(ct)%AESBlockSize)

		pt, err := AESDecrypt(ct, key)
		require.NoError(t, err)
		assert.Equal(t, msg, string(pt))
	}
}

func TestAESMessageRoundTrip_RandomAligned(t *testing.T) {
	r := NewSeededRandom(12)
	for i := 0; i < 100; i++ {
		key := []byte(RandomString(r, AESKeySize))
		msg := []byte(RandomString(r, AESBlockSize*(1+int(r.Uint32n(8)))))

		ct, err := AESEncrypt(msg, key)
		require.NoError(t, err)
		pt, err := AESDecrypt(ct, key)
		require.NoError(t, err)
		require.True(t, bytes.Equal(msg, pt))
	}
}

func TestAESEncrypt_ECB(t *testing.T) {
	key := []byte("0123456789abcdef")
	ct, err := AESEncrypt([]byte("same block here!same block here!"), key)
	require.NoError(t, err)
	assert.Equal(t, ct[:16], ct[16:32])
}

func TestAESEncrypt_Empty(t *testing.T) {
	ct, err := AESEncrypt(nil, []byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Empty(t, ct)
}

func TestAESEncrypt_BadKey(t *testing.T) {
	_, err := AESEncrypt([]byte("x"), []byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = AESDecrypt([]byte("x"), nil)
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func BenchmarkAESEncrypt(b *testing.B) {
	key := []byte("0123456789abcdef")
	msg := bytes.Repeat([]byte("benchmark "), 100)
	for i := 0; i < b.N; i++ {
		AESEncrypt(msg, key)
	}
}
