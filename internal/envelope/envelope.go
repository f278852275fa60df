// Package envelope implements the symmetric half of envelope encryption:
// per-record data keys, AES-256-GCM sealing and content digests.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	dErrors "medblock/pkg/domain-errors"
)

const (
	KeySize = 32
	IVSize  = 12
	TagSize = 16
)

var (
	// ErrAuthenticationFailed is returned when the GCM tag does not verify.
	ErrAuthenticationFailed = dErrors.New(dErrors.CodeCrypto, "authentication failed")
	// ErrInvalidKey is returned for keys that are not KeySize bytes.
	ErrInvalidKey = dErrors.New(dErrors.CodeCrypto, "invalid data key")
	// ErrMalformed is returned for IVs, tags or blobs of the wrong shape.
	ErrMalformed = dErrors.New(dErrors.CodeCrypto, "malformed envelope")
)

// Sealed is the output of Encrypt. Ciphertext has the same length as the
// plaintext; the tag is carried separately.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// Blob returns ciphertext||tag, the layout written to object storage.
func (s Sealed) Blob() []byte {
	out := make([]byte, 0, len(s.Ciphertext)+len(s.Tag))
	out = append(out, s.Ciphertext...)
	return append(out, s.Tag...)
}

// SplitBlob reverses Blob.
func SplitBlob(blob []byte) (ciphertext, tag []byte, err error) {
	if len(blob) < TagSize {
		return nil, nil, ErrMalformed
	}
	cut := len(blob) - TagSize
	return blob[:cut], blob[cut:], nil
}

// GenerateKey returns a fresh random data key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate data key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key with a fresh random IV.
func Encrypt(plaintext, key []byte) (Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return Sealed{}, err
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Sealed{}, fmt.Errorf("generate iv: %w", err)
	}
	out := gcm.Seal(nil, iv, plaintext, nil)
	cut := len(out) - TagSize
	return Sealed{Ciphertext: out[:cut], IV: iv, Tag: out[cut:]}, nil
}

// Decrypt opens ciphertext sealed by Encrypt. Any tampering with ciphertext,
// iv or tag, or use of a different key, yields ErrAuthenticationFailed.
func Decrypt(ciphertext, key, iv, tag []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVSize || len(tag) != TagSize {
		return nil, ErrMalformed
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Zero overwrites key material in place.
func Zero(b []byte) {
	clear(b)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "init gcm")
	}
	return gcm, nil
}
