package keystore

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"medblock/internal/envelope"
)

const sealInfo = "medblock/keystore/v1"

// Sealer encrypts stored private keys at rest with a per-principal key
// derived from a master secret.
type Sealer struct {
	secret []byte
}

func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) < 16 {
		return nil, errors.New("keystore master secret must be at least 16 bytes")
	}
	return &Sealer{secret: append([]byte(nil), secret...)}, nil
}

// Seal returns iv||ciphertext||tag.
func (s *Sealer) Seal(principalID string, der []byte) ([]byte, error) {
	key, err := s.derive(principalID)
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(key)

	sealed, err := envelope.Encrypt(der, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, envelope.IVSize+len(der)+envelope.TagSize)
	out = append(out, sealed.IV...)
	return append(out, sealed.Blob()...), nil
}

func (s *Sealer) Open(principalID string, sealed []byte) ([]byte, error) {
	if len(sealed) < envelope.IVSize+envelope.TagSize {
		return nil, envelope.ErrMalformed
	}
	key, err := s.derive(principalID)
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(key)

	iv := sealed[:envelope.IVSize]
	ct, tag, err := envelope.SplitBlob(sealed[envelope.IVSize:])
	if err != nil {
		return nil, err
	}
	return envelope.Decrypt(ct, key, iv, tag)
}

func (s *Sealer) derive(principalID string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.secret, []byte(principalID), []byte(sealInfo))
	key := make([]byte, envelope.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return key, nil
}
