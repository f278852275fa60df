package keywrap

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"medblock/internal/keywrap/keystore"
	dErrors "medblock/pkg/domain-errors"
	"medblock/pkg/platform/sentinel"
)

const defaultRSABits = 2048

// Local wraps data keys with RSA-OAEP-SHA256 under a per-principal key pair.
// Key pairs are created on first Wrap for a principal and persisted through a
// keystore.Store; concurrent first uses of one principal share a single
// generation.
type Local struct {
	store keystore.Store
	bits  int

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*rsa.PrivateKey
}

type LocalOption func(*Local)

// WithKeyBits overrides the RSA modulus size. Tests use smaller keys.
func WithKeyBits(bits int) LocalOption {
	return func(l *Local) {
		l.bits = bits
	}
}

func NewLocal(store keystore.Store, opts ...LocalOption) *Local {
	l := &Local{
		store: store,
		bits:  defaultRSABits,
		cache: make(map[string]*rsa.PrivateKey),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) Wrap(ctx context.Context, key []byte, principalID string) ([]byte, error) {
	priv, err := l.keyFor(ctx, principalID, true)
	if err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &priv.PublicKey, key, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "local wrap failed")
	}
	return wrapped, nil
}

// Unwrap never creates a key pair; an unknown principal cannot have been
// wrapped to.
func (l *Local) Unwrap(ctx context.Context, wrapped []byte, principalID string) ([]byte, error) {
	priv, err := l.keyFor(ctx, principalID, false)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, ErrUnwrapFailed
	}
	if err != nil {
		return nil, err
	}
	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrapped, nil)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	return key, nil
}

func (l *Local) keyFor(ctx context.Context, principalID string, create bool) (*rsa.PrivateKey, error) {
	if principalID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "principal id is required")
	}
	l.mu.RLock()
	priv, ok := l.cache[principalID]
	l.mu.RUnlock()
	if ok {
		return priv, nil
	}

	flightKey := principalID
	if create {
		flightKey = "create:" + principalID
	}
	v, err, _ := l.group.Do(flightKey, func() (any, error) {
		priv, err := l.load(ctx, principalID)
		if errors.Is(err, sentinel.ErrNotFound) && create {
			priv, err = l.generate(ctx, principalID)
		}
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[principalID] = priv
		l.mu.Unlock()
		return priv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*rsa.PrivateKey), nil
}

func (l *Local) load(ctx context.Context, principalID string) (*rsa.PrivateKey, error) {
	der, err := l.store.Get(ctx, principalID)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "parse principal key")
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, dErrors.New(dErrors.CodeCrypto, "principal key is not RSA")
	}
	return priv, nil
}

func (l *Local) generate(ctx context.Context, principalID string) (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, l.bits)
	if err != nil {
		return nil, fmt.Errorf("generate principal key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal principal key: %w", err)
	}
	err = l.store.PutIfAbsent(ctx, principalID, der)
	if errors.Is(err, sentinel.ErrConflict) {
		// another process won the race
		return l.load(ctx, principalID)
	}
	if err != nil {
		return nil, fmt.Errorf("store principal key: %w", err)
	}
	return priv, nil
}
