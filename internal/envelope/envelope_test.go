package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	require.Len(t, key, KeySize)

	for _, plaintext := range [][]byte{
		[]byte("blood panel 2026-03-02"),
		{},
		bytes.Repeat([]byte{0xAB}, 1<<16),
	} {
		sealed, err := Encrypt(plaintext, key)
		require.NoError(t, err)
		assert.Len(t, sealed.IV, IVSize)
		assert.Len(t, sealed.Tag, TagSize)
		assert.Len(t, sealed.Ciphertext, len(plaintext))

		got, err := Decrypt(sealed.Ciphertext, key, sealed.IV, sealed.Tag)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plaintext, got))
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	a, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestDecryptRejectsTampering(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	sealed, err := Encrypt([]byte("x-ray report"), key)
	require.NoError(t, err)

	flip := func(b []byte) []byte {
		out := bytes.Clone(b)
		out[0] ^= 0x01
		return out
	}
	otherKey, err := GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name       string
		ciphertext []byte
		key        []byte
		iv         []byte
		tag        []byte
	}{
		{"ciphertext bit flipped", flip(sealed.Ciphertext), key, sealed.IV, sealed.Tag},
		{"iv bit flipped", sealed.Ciphertext, key, flip(sealed.IV), sealed.Tag},
		{"tag bit flipped", sealed.Ciphertext, key, sealed.IV, flip(sealed.Tag)},
		{"wrong key", sealed.Ciphertext, otherKey, sealed.IV, sealed.Tag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.ciphertext, tt.key, tt.iv, tt.tag)
			assert.ErrorIs(t, err, ErrAuthenticationFailed)
		})
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	_, err = Decrypt([]byte("abc"), key, make([]byte, 8), make([]byte, TagSize))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decrypt([]byte("abc"), key[:16], make([]byte, IVSize), make([]byte, TagSize))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestBlobSplit(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	sealed, err := Encrypt([]byte("discharge summary"), key)
	require.NoError(t, err)

	ct, tag, err := SplitBlob(sealed.Blob())
	require.NoError(t, err)
	assert.Equal(t, sealed.Ciphertext, ct)
	assert.Equal(t, sealed.Tag, tag)

	_, _, err = SplitBlob([]byte("short"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDigest(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Digest(nil))
	assert.Len(t, Digest([]byte("abc")), 64)
}
